package wire

// Little-endian fixed-layout record plumbing shared by all codecs. Every
// RoRnet record is a packed struct with no internal padding; strings are
// NUL-padded right to their declared width on encode and right-stripped of
// NUL bytes on decode.

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// writer appends fixed-width fields to a preallocated buffer.
type writer struct {
	buf []byte
	err error
}

func newWriter(size int) *writer { return &writer{buf: make([]byte, 0, size)} }

func (w *writer) u32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *writer) i32(v int32) { w.u32(uint32(v)) }

func (w *writer) f32(v float32) { w.u32(math.Float32bits(v)) }

func (w *writer) boolByte(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// str appends s NUL-padded to width bytes. Overlong values are an encode
// error; the server rejects oversized records outright.
func (w *writer) str(s string, width int, field string) {
	if w.err != nil {
		return
	}
	if len(s) > width {
		w.err = fmt.Errorf("field %s: %d bytes exceeds width %d", field, len(s), width)
		return
	}
	w.buf = append(w.buf, s...)
	for i := len(s); i < width; i++ {
		w.buf = append(w.buf, 0)
	}
}

func (w *writer) bytes(b []byte) { w.buf = append(w.buf, b...) }

// reader consumes fixed-width fields from a byte slice.
type reader struct {
	buf []byte
	off int
	err error
}

func newReader(buf []byte) *reader { return &reader{buf: buf} }

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("short record: need %d bytes at offset %d, have %d", n, r.off, len(r.buf))
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) i32() int32 { return int32(r.u32()) }

func (r *reader) f32() float32 { return math.Float32frombits(r.u32()) }

func (r *reader) boolByte() bool {
	b := r.take(1)
	return b != nil && b[0] != 0
}

// str reads a width-byte field and strips trailing NUL bytes.
func (r *reader) str(width int) string {
	b := r.take(width)
	if b == nil {
		return ""
	}
	return strings.TrimRight(string(b), "\x00")
}

// rest returns all remaining bytes.
func (r *reader) rest() []byte {
	b := r.buf[r.off:]
	r.off = len(r.buf)
	return b
}

// remaining reports how many undecoded bytes are left.
func (r *reader) remaining() int { return len(r.buf) - r.off }
