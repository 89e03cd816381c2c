package session

import "strconv"

// Handle identifies a live session. The low 32 bits hold the table slot plus
// one and the high 32 bits hold the slot's generation. The zero Handle never
// refers to a session.
type Handle uint64

func makeHandle(slot int, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(slot+1))
}

// slot returns the table index encoded in h, or -1 for the zero handle.
func (h Handle) slot() int {
	return int(uint32(h)) - 1
}

func (h Handle) generation() uint32 {
	return uint32(h >> 32)
}

func (h Handle) String() string {
	return strconv.FormatUint(uint64(h), 10)
}

// ParseHandle parses the decimal form produced by Handle.String.
func ParseHandle(s string) (Handle, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, ErrInvalidHandle
	}
	return Handle(v), nil
}
