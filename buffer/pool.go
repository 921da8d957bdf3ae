// Package buffer provides the fixed-size packet buffer pool shared by the
// dispatcher and port owners. All memory is allocated on [Pool.Reset].
package buffer

import (
	"errors"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/soypat/lcsp"
	"github.com/soypat/lcsp/internal"
)

var (
	errBufferCount = errors.New("lcsp/buffer: buffer count must be in [1, 65535]")
	errZeroSize    = errors.New("lcsp/buffer: zero buffer size")
	errSizeTooBig  = errors.New("lcsp/buffer: buffer size exceeds packet length field")
)

// Pool hands out [lcsp.Packet] buffers of a fixed size. It is safe for concurrent use.
type Pool struct {
	mu   sync.Mutex
	pkts []lcsp.Packet
	// inuse is indexed like pkts.
	inuse []bool
	// free is a stack of indices into pkts.
	free   []uint16
	data   []byte
	size   int
	gets   uint64
	frees  uint64
	misses uint64
	// badFrees counts foreign and double frees.
	badFrees uint64
	logger
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Total    int
	InUse    int
	Gets     uint64
	Frees    uint64
	Misses   uint64 // Get calls that found the pool empty.
	BadFrees uint64 // Free calls with foreign or already freed packets.
}

// Reset allocates numBuffers buffers of bufSize bytes each. Outstanding
// packets from before the reset are no longer recognised by the pool.
func (p *Pool) Reset(numBuffers, bufSize int, log *slog.Logger) error {
	switch {
	case numBuffers <= 0 || numBuffers > 0xffff:
		return errBufferCount
	case bufSize <= 0:
		return errZeroSize
	case bufSize > 0xffff:
		return errSizeTooBig
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pkts = make([]lcsp.Packet, numBuffers)
	p.inuse = make([]bool, numBuffers)
	p.free = make([]uint16, numBuffers)
	p.data = make([]byte, numBuffers*bufSize)
	p.size = bufSize
	p.gets, p.frees, p.misses, p.badFrees = 0, 0, 0, 0
	p.logger = logger{log: log}
	for i := range p.pkts {
		p.pkts[i].Data = p.data[i*bufSize : (i+1)*bufSize : (i+1)*bufSize]
		// Pop from the back so buffers are handed out in index order.
		p.free[i] = uint16(numBuffers - 1 - i)
	}
	return nil
}

// Size returns the data capacity of each buffer.
func (p *Pool) Size() int { return p.size }

// Get returns a cleared packet or nil if the pool is exhausted.
func (p *Pool) Get() *lcsp.Packet {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		p.misses++
		p.debug("pool:get-exhausted", slog.Int("total", len(p.pkts)))
		return nil
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.inuse[idx] = true
	p.gets++
	pkt := &p.pkts[idx]
	pkt.ID = lcsp.PacketID{}
	pkt.Length = 0
	return pkt
}

// Free returns pkt to the pool. Freeing nil is a no-op. Packets that do not
// belong to the pool or that are already free are logged and ignored.
func (p *Pool) Free(pkt *lcsp.Packet) {
	if pkt == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, ok := p.index(pkt)
	if !ok {
		p.badFrees++
		p.error("pool:free-foreign")
		return
	} else if !p.inuse[idx] {
		p.badFrees++
		p.error("pool:double-free", slog.Int("idx", idx))
		return
	}
	p.inuse[idx] = false
	p.free = append(p.free, uint16(idx))
	p.frees++
}

// Available returns the amount of buffers that can be acquired with Get.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Stats returns the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Total:    len(p.pkts),
		InUse:    len(p.pkts) - len(p.free),
		Gets:     p.gets,
		Frees:    p.frees,
		Misses:   p.misses,
		BadFrees: p.badFrees,
	}
}

func (p *Pool) index(pkt *lcsp.Packet) (int, bool) {
	if len(p.pkts) == 0 {
		return 0, false
	}
	base := uintptr(unsafe.Pointer(&p.pkts[0]))
	ptr := uintptr(unsafe.Pointer(pkt))
	if ptr < base {
		return 0, false
	}
	off := ptr - base
	const sz = unsafe.Sizeof(lcsp.Packet{})
	if off%sz != 0 || off/sz >= uintptr(len(p.pkts)) {
		return 0, false
	}
	return int(off / sz), true
}

type logger struct {
	log *slog.Logger
}

func (l logger) error(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelError, msg, attrs...)
}
func (l logger) debug(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelDebug, msg, attrs...)
}
