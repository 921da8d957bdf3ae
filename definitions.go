package lcsp

//go:generate stringer -type=errGeneric,Priority -linecomment -output stringers.go .

// Port is the numeric identifier that selects which application endpoint
// receives a packet on a node.
type Port uint8

// Reserved port values.
const (
	// PortAny is the wildcard port. A binding on PortAny receives every packet
	// whose destination port has no concrete binding of its own.
	PortAny Port = 255
	// PortUnset marks an unused port slot or the failure of a dynamic port search.
	PortUnset Port = 254
	// DefaultMaxPort is the largest concrete port of the 6-bit port field.
	DefaultMaxPort Port = 63
)

// IsValid reports whether p is a concrete port in [0, maxPort] or the wildcard.
func (p Port) IsValid(maxPort Port) bool { return p <= maxPort || p == PortAny }

// Priority is the packet priority as carried in the packet identifier.
type Priority uint8

const (
	PrioCritical Priority = iota // critical
	PrioHigh                     // high
	PrioNorm                     // normal
	PrioLow                      // low
)

// PacketID holds the addressing fields of a packet. Encoding them on the wire
// is left to the interface layer.
type PacketID struct {
	Pri   Priority
	Flags uint8
	Src   uint16
	Dst   uint16
	DPort Port
	SPort Port
}

// Packet is a buffer handed out by a buffer pool. Ownership moves with the
// pointer: whoever holds the packet last must free it back to its pool.
type Packet struct {
	ID PacketID
	// Data is the full backing buffer. Payload is Data[:Length].
	Data   []byte
	Length uint16
}

// Payload returns the valid portion of the packet buffer.
func (p *Packet) Payload() []byte { return p.Data[:p.Length] }

// SetPayload copies b into the packet buffer and sets Length. It returns the
// number of bytes copied, which is less than len(b) if the buffer is too small.
func (p *Packet) SetPayload(b []byte) int {
	n := copy(p.Data, b)
	p.Length = uint16(n)
	return n
}
