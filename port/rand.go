package port

import (
	"sync"

	"golang.org/x/crypto/chacha20"

	"github.com/soypat/lcsp/internal"
)

// RandSource supplies the random bytes used to draw dynamic ports.
// Implementations shared between tables must be safe for concurrent use.
type RandSource interface {
	Uint8() uint8
}

// XorshiftSource is a 32 bit xorshift generator. It is cheap and suitable for
// microcontrollers without a hardware random number generator.
type XorshiftSource struct {
	mu    sync.Mutex
	state uint32
}

// NewXorshiftSource returns a generator seeded with seed. A zero seed is replaced
// with a fixed non-zero value since xorshift is stuck at zero.
func NewXorshiftSource(seed uint32) *XorshiftSource {
	if seed == 0 {
		seed = 0x9e3779b9
	}
	return &XorshiftSource{state: seed}
}

// Uint8 returns the next pseudo random byte.
func (x *XorshiftSource) Uint8() uint8 {
	x.mu.Lock()
	if x.state == 0 {
		x.state = 0x9e3779b9
	}
	x.state = internal.Prand32(x.state)
	v := x.state
	x.mu.Unlock()
	return uint8(v >> 24)
}

// ChaChaSource produces bytes from the ChaCha20 keystream of a seed. The same
// seed always yields the same stream, which makes it useful for reproducible
// simulations on hosts.
type ChaChaSource struct {
	mu     sync.Mutex
	cipher *chacha20.Cipher
	buf    [64]byte
	off    int
}

// NewChaChaSource returns a keystream byte source for seed.
func NewChaChaSource(seed [chacha20.KeySize]byte) (*ChaChaSource, error) {
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(seed[:], nonce[:])
	if err != nil {
		return nil, err
	}
	cs := &ChaChaSource{cipher: c}
	cs.off = len(cs.buf)
	return cs, nil
}

// Uint8 returns the next keystream byte.
func (cs *ChaChaSource) Uint8() uint8 {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.off == len(cs.buf) {
		clear(cs.buf[:])
		cs.cipher.XORKeyStream(cs.buf[:], cs.buf[:])
		cs.off = 0
	}
	v := cs.buf[cs.off]
	cs.off++
	return v
}
