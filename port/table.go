// Package port implements the port binding and dispatch table of a node.
//
// A [Table] maps a destination port to the endpoint that receives packets for
// it. An endpoint is either a [Socket], which buffers packets in an inbound
// queue until the application reads them, or a [Callback], which the
// dispatcher invokes synchronously. A single binding on [lcsp.PortAny]
// receives traffic for every port without a concrete binding.
//
// Table is safe for concurrent use: lookups and dispatch take a read lock
// while Bind, BindCallback, Unbind and Reset take the write lock.
package port

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soypat/lcsp"
	"github.com/soypat/lcsp/internal"
)

//go:generate stringer -type=Kind -linecomment -output stringers.go .

// DefaultCapacity is the number of port slots used when [Config.Capacity] is zero.
const DefaultCapacity = 16

var (
	errNegativeCapacity = errors.New("lcsp/port: negative capacity")
	errBadMaxPort       = errors.New("lcsp/port: max port must be in [2, 253]")
)

// Kind is the state of a port slot.
type Kind uint8

const (
	KindClosed   Kind = iota // closed
	KindQueue                // queue
	KindCallback             // callback
)

// Callback receives packets synchronously from [Table.Demux]. The callback
// takes ownership of pkt and must free it when done.
type Callback func(pkt *lcsp.Packet)

// Freer releases packet buffers. It is implemented by *[buffer.Pool].
//
// [buffer.Pool]: https://pkg.go.dev/github.com/soypat/lcsp/buffer#Pool
type Freer interface {
	Free(pkt *lcsp.Packet)
}

// Config configures a [Table] on [Table.Reset].
type Config struct {
	// Capacity is the fixed number of port slots. Defaults to [DefaultCapacity].
	Capacity int
	// MaxPort is the largest valid concrete port. Defaults to [lcsp.DefaultMaxPort].
	MaxPort lcsp.Port
	// Rand is used for dynamic port allocation. Defaults to a time seeded [XorshiftSource].
	Rand RandSource
	// Pool receives packets drained on Unbind and packets dropped by Demux.
	// If nil such packets are discarded without being freed.
	Pool   Freer
	Logger *slog.Logger
}

// binding is the payload of an open port slot. It is implemented only by
// queueBinding and callbackBinding so that a slot is either closed (nil),
// bound to a socket or bound to a callback, never several at once.
type binding interface {
	kind() Kind
}

type queueBinding struct{ sock *Socket }

type callbackBinding struct{ cb Callback }

func (queueBinding) kind() Kind    { return KindQueue }
func (callbackBinding) kind() Kind { return KindCallback }

// Entry is a copy of a port slot as returned by [Table.Lookup] and [Table.Bindings].
// The zero Entry is closed.
type Entry struct {
	open binding
	port lcsp.Port
}

func closedEntry() Entry { return Entry{port: lcsp.PortUnset} }

// Port returns the port the entry is bound to, or [lcsp.PortUnset] if closed.
func (e Entry) Port() lcsp.Port {
	if e.open == nil {
		return lcsp.PortUnset
	}
	return e.port
}

// Kind returns the kind of endpoint bound to the entry.
func (e Entry) Kind() Kind {
	if e.open == nil {
		return KindClosed
	}
	return e.open.kind()
}

// IsOpen reports whether the entry holds a binding.
func (e Entry) IsOpen() bool { return e.open != nil }

// Socket returns the bound socket or nil if the entry is not a queue binding.
func (e Entry) Socket() *Socket {
	if qb, ok := e.open.(queueBinding); ok {
		return qb.sock
	}
	return nil
}

// Callback returns the bound callback or nil if the entry is not a callback binding.
func (e Entry) Callback() Callback {
	if cb, ok := e.open.(callbackBinding); ok {
		return cb.cb
	}
	return nil
}

// Table is the port binding table. The zero value has no slots; call
// [Table.Reset] before use.
type Table struct {
	mu      sync.RWMutex
	entries []Entry
	maxPort lcsp.Port
	rand    RandSource
	pool    Freer
	logger
	delivered atomic.Uint64
	callbacks atomic.Uint64
	dropped   atomic.Uint64
}

// Stats holds dispatch counters of a [Table].
type Stats struct {
	Delivered uint64 // Packets queued on a socket.
	Callbacks uint64 // Packets handed to a callback.
	Dropped   uint64 // Packets freed for lack of a binding or queue space.
}

// Reset configures the table and closes every slot. Sockets bound before the
// reset are drained as if unbound.
func (t *Table) Reset(cfg Config) error {
	if cfg.Capacity < 0 {
		return errNegativeCapacity
	} else if cfg.Capacity == 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.MaxPort == 0 {
		cfg.MaxPort = lcsp.DefaultMaxPort
	} else if cfg.MaxPort < 2 || cfg.MaxPort >= lcsp.PortUnset {
		return errBadMaxPort
	}
	if cfg.Rand == nil {
		cfg.Rand = NewXorshiftSource(uint32(time.Now().UnixNano()))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		t.closeEntry(&t.entries[i])
	}
	if cap(t.entries) >= cfg.Capacity {
		t.entries = t.entries[:cfg.Capacity]
	} else {
		t.entries = make([]Entry, cfg.Capacity)
	}
	for i := range t.entries {
		t.entries[i] = closedEntry()
	}
	t.maxPort = cfg.MaxPort
	t.rand = cfg.Rand
	t.pool = cfg.Pool
	t.logger = logger{log: cfg.Logger}
	t.delivered.Store(0)
	t.callbacks.Store(0)
	t.dropped.Store(0)
	return nil
}

// Capacity returns the number of port slots.
func (t *Table) Capacity() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// MaxPort returns the largest valid concrete port.
func (t *Table) MaxPort() lcsp.Port {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.maxPort
}

// InUse reports whether any slot holds port, regardless of the slot's state.
// Since closed slots hold [lcsp.PortUnset], InUse(PortUnset) is true while any
// slot is free.
func (t *Table) InUse(port lcsp.Port) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.inUse(port)
}

func (t *Table) inUse(port lcsp.Port) bool {
	for i := range t.entries {
		if t.entries[i].port == port {
			return true
		}
	}
	return false
}

// DynamicPort returns a pseudo random port in [1, MaxPort-1] without checking
// whether it is in use. Callers must handle [lcsp.ErrPortInUse] on bind.
func (t *Table) DynamicPort() lcsp.Port {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.randPort()
}

// DynamicPortFree returns a pseudo random port in [1, MaxPort-1] that is not in use.
// It draws at most MaxPort-1 candidates and returns [lcsp.PortUnset] if all
// of them were in use. Draws may repeat so a free port is not guaranteed to
// be found even if one exists.
func (t *Table) DynamicPortFree() lcsp.Port {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.rand == nil {
		return lcsp.PortUnset
	}
	for attempts := t.maxPort - 1; attempts > 0; attempts-- {
		port := t.randPort()
		if !t.inUse(port) {
			return port
		}
	}
	t.debug("port:dyn-exhausted", slog.Int("maxport", int(t.maxPort)))
	return lcsp.PortUnset
}

func (t *Table) randPort() lcsp.Port {
	if t.rand == nil {
		return lcsp.PortUnset // Table not Reset.
	}
	return 1 + lcsp.Port(t.rand.Uint8()%uint8(t.maxPort-1))
}

// Lookup returns the open entry that receives packets destined to port.
// A concrete binding for port takes precedence over a wildcard binding
// regardless of slot order. If nothing is bound the returned entry is closed
// and err is nil. err is [lcsp.ErrInvalidPort] if port exceeds the maximum
// port and is not the wildcard.
func (t *Table) Lookup(port lcsp.Port) (Entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, err := t.lookup(port)
	if e == nil {
		return closedEntry(), err
	}
	return *e, nil
}

func (t *Table) lookup(port lcsp.Port) (*Entry, error) {
	if !port.IsValid(t.maxPort) {
		return nil, lcsp.ErrInvalidPort
	}
	var wildcard *Entry
	for i := range t.entries {
		e := &t.entries[i]
		if e.open == nil {
			continue // Never hand out closed slots.
		}
		if e.port == port {
			return e, nil
		} else if e.port == lcsp.PortAny && wildcard == nil {
			wildcard = e
		}
	}
	return wildcard, nil
}

// Callback returns the callback that receives packets for port, or nil if
// port is not bound or is bound to a socket.
func (t *Table) Callback(port lcsp.Port) Callback {
	e, _ := t.Lookup(port)
	return e.Callback()
}

// Socket returns the socket that receives packets for port, or nil if port
// is not bound or is bound to a callback.
func (t *Table) Socket(port lcsp.Port) *Socket {
	e, _ := t.Lookup(port)
	return e.Socket()
}

// Bind binds sock to port. Packets dispatched to port are queued on sock,
// which should have an inbound queue created with [Socket.Listen].
// Use [lcsp.PortAny] to receive packets for all otherwise unbound ports.
func (t *Table) Bind(sock *Socket, port lcsp.Port) error {
	if sock == nil {
		return lcsp.ErrInvalidArgument
	}
	return t.bind(queueBinding{sock: sock}, port)
}

// BindCallback binds cb to port. Packets dispatched to port are passed to cb
// synchronously by [Table.Demux].
func (t *Table) BindCallback(cb Callback, port lcsp.Port) error {
	if cb == nil {
		return lcsp.ErrInvalidArgument
	}
	return t.bind(callbackBinding{cb: cb}, port)
}

func (t *Table) bind(b binding, port lcsp.Port) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inUse(port) {
		t.debug("port:bind", slog.Int("port", int(port)), slog.String("err", lcsp.ErrPortInUse.Error()))
		return lcsp.ErrPortInUse
	} else if !port.IsValid(t.maxPort) {
		t.debug("port:bind", slog.Int("port", int(port)), slog.String("err", lcsp.ErrInvalidPort.Error()))
		return lcsp.ErrInvalidPort
	}
	for i := range t.entries {
		e := &t.entries[i]
		if e.open == nil {
			e.open = b
			e.port = port
			t.debug("port:bind", slog.Int("port", int(port)), slog.String("kind", b.kind().String()), slog.Int("slot", i))
			return nil
		}
	}
	t.debug("port:bind", slog.Int("port", int(port)), slog.String("err", lcsp.ErrOutOfSlots.Error()))
	return lcsp.ErrOutOfSlots
}

// Unbind closes the binding on port. Packets still queued on a bound socket
// are freed without blocking. Unbinding a port that is not bound succeeds.
// Only an exact match is closed: unbinding a concrete port never closes the
// wildcard binding.
func (t *Table) Unbind(port lcsp.Port) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !port.IsValid(t.maxPort) {
		return lcsp.ErrInvalidPort
	}
	for i := range t.entries {
		e := &t.entries[i]
		if e.open != nil && e.port == port {
			t.closeEntry(e)
			return nil
		}
	}
	return nil
}

// closeEntry drains a queue binding and resets e to closed.
func (t *Table) closeEntry(e *Entry) {
	if qb, ok := e.open.(queueBinding); ok {
		n := qb.sock.drain(t.pool)
		t.debug("port:unbind", slog.Int("port", int(e.port)), slog.Int("drained", n))
	} else if e.open != nil {
		t.debug("port:unbind", slog.Int("port", int(e.port)))
	}
	*e = closedEntry()
}

// Bindings appends a copy of every open entry to dst in slot order and returns the result.
func (t *Table) Bindings(dst []Entry) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := range t.entries {
		if t.entries[i].open != nil {
			dst = append(dst, t.entries[i])
		}
	}
	return dst
}

// Demux dispatches pkt to the endpoint bound to its destination port.
// Callback endpoints are invoked synchronously outside of the table lock.
// If no endpoint is bound or the socket queue is full pkt is freed and
// [lcsp.ErrPacketDrop] is returned. Demux takes ownership of pkt in all cases.
func (t *Table) Demux(pkt *lcsp.Packet) error {
	if pkt == nil {
		return lcsp.ErrInvalidArgument
	}
	dport := pkt.ID.DPort
	t.mu.RLock()
	lg := t.logger
	pool := t.pool
	e, err := t.lookup(dport)
	var cb Callback
	if e != nil {
		switch b := e.open.(type) {
		case callbackBinding:
			cb = b.cb
		case queueBinding:
			// Push under the read lock so Unbind cannot drain the queue in between.
			if b.sock.deliver(pkt) {
				t.mu.RUnlock()
				t.delivered.Add(1)
				lg.trace("port:demux-queue", slog.Int("dport", int(dport)))
				return nil
			}
		}
	}
	t.mu.RUnlock()
	if cb != nil {
		t.callbacks.Add(1)
		lg.trace("port:demux-cb", slog.Int("dport", int(dport)))
		cb(pkt)
		return nil
	}
	t.dropped.Add(1)
	lg.trace("port:drop", slog.Int("dport", int(dport)), slog.Int("sport", int(pkt.ID.SPort)))
	if pool != nil {
		pool.Free(pkt)
	}
	if err != nil {
		return err
	}
	return lcsp.ErrPacketDrop
}

// Stats returns the dispatch counters accumulated since the last Reset.
func (t *Table) Stats() Stats {
	return Stats{
		Delivered: t.delivered.Load(),
		Callbacks: t.callbacks.Load(),
		Dropped:   t.dropped.Load(),
	}
}

type logger struct {
	log *slog.Logger
}

func (l logger) debug(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelDebug, msg, attrs...)
}
func (l logger) trace(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, internal.LevelTrace, msg, attrs...)
}
