package msgpack

import (
	"io"

	"github.com/tinylib/msgp/msgp"
)

// Writer writes the same primitive family Reader reads, used by the v0.4
// and v0.5 exporters to re-encode completed traces.
type Writer struct {
	w *msgp.Writer
}

// NewWriter wraps w for primitive MessagePack writes. Callers must call
// Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: msgp.NewWriter(w)}
}

// ArrayHeader writes an array header of length n.
func (w *Writer) ArrayHeader(n uint32) error {
	return w.w.WriteArrayHeader(n)
}

// MapHeader writes a map header with n entries.
func (w *Writer) MapHeader(n uint32) error {
	return w.w.WriteMapHeader(n)
}

// Uint writes an unsigned integer using the most compact MessagePack tag.
func (w *Writer) Uint(n uint64) error {
	return w.w.WriteUint64(n)
}

// Float64 writes a 64-bit float.
func (w *Writer) Float64(f float64) error {
	return w.w.WriteFloat64(f)
}

// String writes a length-prefixed UTF-8 string.
func (w *Writer) String(s string) error {
	return w.w.WriteString(s)
}

// Flush flushes any buffered bytes to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}
