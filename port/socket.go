package port

import (
	"os"
	"time"

	"github.com/soypat/lcsp"
	"github.com/soypat/lcsp/internal"
	"github.com/soypat/lcsp/queue"
)

// DefaultRxQueueLen is the inbound queue length used by [Socket.Listen] when
// backlog is not positive.
const DefaultRxQueueLen = 16

// Socket is a queue endpoint. Packets dispatched to the socket's port are
// buffered in its inbound queue until read by the application. The Socket is
// owned by the application; a [Table] only references it while bound.
type Socket struct {
	rx queue.Queue[*lcsp.Packet]
}

// Listen creates the socket's inbound queue with room for backlog packets.
// Until Listen is called packets dispatched to the socket are dropped.
// Calling Listen again discards queued packets without freeing them, so it
// should only be called before the socket is bound.
func (s *Socket) Listen(backlog int) error {
	if backlog <= 0 {
		backlog = DefaultRxQueueLen
	}
	return s.rx.Reset(backlog)
}

// TryRead returns the oldest queued packet or nil if none is queued.
// The caller owns the returned packet.
func (s *Socket) TryRead() *lcsp.Packet {
	pkt, _ := s.rx.TryPop()
	return pkt
}

// Read waits up to timeout for a packet to arrive. A non-positive timeout
// waits forever. [os.ErrDeadlineExceeded] is returned on timeout.
func (s *Socket) Read(timeout time.Duration) (*lcsp.Packet, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	backoff := internal.NewBackoff(5 * time.Millisecond)
	for {
		if pkt := s.TryRead(); pkt != nil {
			return pkt, nil
		}
		var remaining time.Duration
		if !deadline.IsZero() {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return nil, os.ErrDeadlineExceeded
			}
		}
		backoff.Miss(remaining)
	}
}

// Buffered returns the number of packets waiting to be read.
func (s *Socket) Buffered() int { return s.rx.Len() }

func (s *Socket) deliver(pkt *lcsp.Packet) bool {
	return s.rx.TryPush(pkt)
}

// drain pops every queued packet without blocking and frees it to pool.
// It returns the number of packets drained.
func (s *Socket) drain(pool Freer) (n int) {
	for {
		pkt, ok := s.rx.TryPop()
		if !ok {
			return n
		}
		if pkt == nil {
			continue
		}
		n++
		if pool != nil {
			pool.Free(pkt)
		}
	}
}
