package lcsp

type errGeneric uint8

// Generic errors common to port binding and packet dispatch.
const (
	_                  errGeneric = iota // non-initialized err
	ErrPacketDrop                        // packet dropped
	ErrInvalidArgument                   // invalid argument
	ErrInvalidPort                       // invalid port
	ErrPortInUse                         // port in use
	ErrOutOfSlots                        // no free port slots
)

func (err errGeneric) Error() string {
	return err.String()
}
