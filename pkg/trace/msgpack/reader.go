package msgpack

import (
	"io"
	"unicode/utf8"

	"github.com/tinylib/msgp/msgp"
)

// Reader reads the MessagePack primitives the event protocol is framed in:
// array/map headers, narrowed unsigned integers, 64-bit floats, and
// length-prefixed UTF-8 strings. Every method fails with *MalformedInput on
// any tag mismatch or truncation.
type Reader struct {
	r *msgp.Reader
}

// NewReader wraps rd for primitive MessagePack reads.
func NewReader(rd io.Reader) *Reader {
	return &Reader{r: msgp.NewReader(rd)}
}

// ArrayHeader reads an array header and returns its length.
func (r *Reader) ArrayHeader() (uint32, error) {
	n, err := r.r.ReadArrayHeader()
	if err != nil {
		return 0, malformed("read array header", err)
	}
	return n, nil
}

// MapHeader reads a map header and returns its entry count.
func (r *Reader) MapHeader() (uint32, error) {
	n, err := r.r.ReadMapHeader()
	if err != nil {
		return 0, malformed("read map header", err)
	}
	return n, nil
}

// Uint16 reads an unsigned integer narrowed to 16 bits.
func (r *Reader) Uint16() (uint16, error) {
	n, err := r.r.ReadUint16()
	if err != nil {
		return 0, malformed("read uint16", err)
	}
	return n, nil
}

// Uint32 reads an unsigned integer narrowed to 32 bits.
func (r *Reader) Uint32() (uint32, error) {
	n, err := r.r.ReadUint32()
	if err != nil {
		return 0, malformed("read uint32", err)
	}
	return n, nil
}

// Uint64 reads an unsigned 64-bit integer.
func (r *Reader) Uint64() (uint64, error) {
	n, err := r.r.ReadUint64()
	if err != nil {
		return 0, malformed("read uint64", err)
	}
	return n, nil
}

// Usize reads an unsigned integer narrowed to a platform-sized index,
// used for string-table references.
func (r *Reader) Usize() (int, error) {
	n, err := r.r.ReadUint64()
	if err != nil {
		return 0, malformed("read index", err)
	}
	if n > uint64(^uint(0)>>1) {
		return 0, malformed("read index", errOutOfRange)
	}
	return int(n), nil
}

// Float64 reads a 64-bit float.
func (r *Reader) Float64() (float64, error) {
	f, err := r.r.ReadFloat64()
	if err != nil {
		return 0, malformed("read float64", err)
	}
	return f, nil
}

// String reads a length-prefixed string and validates it as UTF-8.
func (r *Reader) String() (string, error) {
	s, err := r.r.ReadString()
	if err != nil {
		return "", malformed("read string", err)
	}
	if !utf8.ValidString(s) {
		return "", malformed("read string", errInvalidUTF8)
	}
	return s, nil
}

// Skip advances past one arbitrary MessagePack value (scalar, array, or
// map, recursively), without interpreting it. Used for event kinds this
// processor doesn't recognize, so the stream never desynchronizes.
func (r *Reader) Skip() error {
	if err := r.r.Skip(); err != nil {
		return malformed("skip value", err)
	}
	return nil
}

var (
	errOutOfRange  = errRange{}
	errInvalidUTF8 = errUTF8{}
)

type errRange struct{}

func (errRange) Error() string { return "index out of range for this platform" }

type errUTF8 struct{}

func (errUTF8) Error() string { return "invalid UTF-8" }
