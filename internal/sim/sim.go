// Package sim runs a port table against synthetic traffic. It backs the
// lcspsim command.
package sim

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"

	"github.com/soypat/lcsp"
	"github.com/soypat/lcsp/buffer"
	"github.com/soypat/lcsp/internal"
	"github.com/soypat/lcsp/port"
)

// Node is a simulated node: a buffer pool, a port table and the endpoints
// bound to it.
type Node struct {
	cfg     Config
	pool    buffer.Pool
	table   port.Table
	sockets []boundSocket
	// received counts packets consumed per port by sockets and callbacks.
	received map[lcsp.Port]uint64
	log      *slog.Logger
}

type boundSocket struct {
	port lcsp.Port
	sock *port.Socket
}

// Report summarises a simulation run.
type Report struct {
	Bindings []BindingReport `json:"bindings"`
	Sent     int             `json:"sent"`
	Rejected int             `json:"rejected"`
	NoBuffer int             `json:"no_buffer"`
	Table    port.Stats      `json:"table"`
	Pool     buffer.Stats    `json:"pool"`
}

// BindingReport describes one open binding after a run.
type BindingReport struct {
	Port     string `json:"port"`
	Kind     string `json:"kind"`
	Received uint64 `json:"received"`
}

// NewNode builds the pool and table described by cfg and sets up its bindings.
func NewNode(cfg Config, log *slog.Logger) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := &Node{
		cfg:      cfg,
		received: make(map[lcsp.Port]uint64),
		log:      log,
	}
	err := n.pool.Reset(cfg.Buffers, cfg.BufferSize, log)
	if err != nil {
		return nil, err
	}
	src, err := newRandSource(cfg.Rand, cfg.Seed)
	if err != nil {
		return nil, err
	}
	err = n.table.Reset(port.Config{
		Capacity: cfg.Capacity,
		MaxPort:  lcsp.Port(cfg.MaxPort),
		Rand:     src,
		Pool:     &n.pool,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}
	for i, b := range cfg.Bindings {
		if err := n.bind(b); err != nil {
			return nil, fmt.Errorf("binding %d (port %s): %w", i, b.Port, err)
		}
	}
	return n, nil
}

func newRandSource(kind string, seed uint32) (port.RandSource, error) {
	if kind == randChaCha {
		var key [32]byte
		binary.LittleEndian.PutUint32(key[:], seed)
		return port.NewChaChaSource(key)
	}
	return port.NewXorshiftSource(seed), nil
}

func (n *Node) bind(b Binding) error {
	p := b.Port.Port
	if b.Port.Dynamic {
		p = n.table.DynamicPortFree()
		if p == lcsp.PortUnset {
			return lcsp.ErrPortInUse
		}
	}
	if b.Kind == kindCallback {
		return n.table.BindCallback(n.callback(p), p)
	}
	sock := new(port.Socket)
	if err := sock.Listen(b.Backlog); err != nil {
		return err
	}
	if err := n.table.Bind(sock, p); err != nil {
		return err
	}
	n.sockets = append(n.sockets, boundSocket{port: p, sock: sock})
	return nil
}

// callback returns a callback bound on port p that counts and frees packets.
func (n *Node) callback(p lcsp.Port) port.Callback {
	return func(pkt *lcsp.Packet) {
		n.received[p]++
		n.pool.Free(pkt)
	}
}

// Table returns the node's port table.
func (n *Node) Table() *port.Table { return &n.table }

// Run sends cfg.Packets packets with random destination ports through the
// table, reading all sockets every cfg.ReadEvery packets. Destination ports
// are drawn from [0, MaxPort+1] so that some packets are rejected as invalid.
func (n *Node) Run(rng *rand.Rand) Report {
	var rep Report
	var payload [8]byte
	for i := 0; i < n.cfg.Packets; i++ {
		pkt := n.pool.Get()
		if pkt == nil {
			rep.NoBuffer++
			n.readAll()
			continue
		}
		pkt.ID = lcsp.PacketID{
			Pri:   lcsp.Priority(rng.Intn(4)),
			Src:   uint16(rng.Intn(1 << 14)),
			Dst:   1,
			SPort: lcsp.Port(rng.Intn(n.cfg.MaxPort + 1)),
			DPort: lcsp.Port(rng.Intn(n.cfg.MaxPort + 2)),
		}
		binary.BigEndian.PutUint64(payload[:], uint64(i))
		pkt.SetPayload(payload[:])
		rep.Sent++
		err := n.table.Demux(pkt)
		if err == lcsp.ErrInvalidPort {
			rep.Rejected++
		}
		if n.cfg.ReadEvery > 0 && i%n.cfg.ReadEvery == 0 {
			n.readAll()
		}
	}
	n.readAll()
	rep.Bindings = n.bindingReports()
	rep.Table = n.table.Stats()
	rep.Pool = n.pool.Stats()
	internal.LogAttrs(n.log, slog.LevelInfo, "sim:done",
		slog.Int("sent", rep.Sent),
		slog.Uint64("delivered", rep.Table.Delivered),
		slog.Uint64("callbacks", rep.Table.Callbacks),
		slog.Uint64("dropped", rep.Table.Dropped),
	)
	return rep
}

func (n *Node) readAll() {
	for _, bs := range n.sockets {
		for pkt := bs.sock.TryRead(); pkt != nil; pkt = bs.sock.TryRead() {
			n.received[bs.port]++
			n.pool.Free(pkt)
		}
	}
}

func (n *Node) bindingReports() []BindingReport {
	entries := n.table.Bindings(nil)
	slices.SortFunc(entries, func(a, b port.Entry) int { return int(a.Port()) - int(b.Port()) })
	reps := make([]BindingReport, 0, len(entries))
	for _, e := range entries {
		reps = append(reps, BindingReport{
			Port:     PortSpec{Port: e.Port()}.String(),
			Kind:     e.Kind().String(),
			Received: n.received[e.Port()],
		})
	}
	return reps
}

// Close unbinds every port, draining socket queues back to the pool.
func (n *Node) Close() error {
	for _, e := range n.table.Bindings(nil) {
		if err := n.table.Unbind(e.Port()); err != nil {
			return err
		}
	}
	n.sockets = n.sockets[:0]
	return nil
}

// Pool returns the node's buffer pool statistics.
func (n *Node) Pool() buffer.Stats { return n.pool.Stats() }
