// Package pickle implements the evaluator's wire format (spec.md §4.5): a
// self-describing byte stream, current version 5, that round-trips every
// value.Value variant. Integers are written in network byte order at their
// natural width; Text uses a 2-byte length for short payloads and a 4-byte
// length for long ones; dependency paths are written against a shared
// PrefixTbl rather than repeating arc strings; DPaths entries record only
// the path, not the observed value, so an unpickled entry carries a nil
// observation.
package pickle

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Version is the current pickle format version (spec.md §4.5, §6).
const Version uint32 = 5

const (
	shortTextLimit = 1<<16 - 1
)

type writer struct {
	buf []byte
}

func newWriter() *writer { return &writer{} }

func (w *writer) bytes() []byte { return w.buf }

func (w *writer) u8(b byte) { w.buf = append(w.buf, b) }

func (w *writer) bool(b bool) {
	if b {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) u16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) i32(v int32) { w.u32(uint32(v)) }

func (w *writer) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) raw(b []byte) { w.buf = append(w.buf, b...) }

// text writes spec.md §4.5's short/long text form: a length-class marker
// byte (0 or 1) followed by a 2-byte length for payloads that fit, otherwise
// by a 4-byte length, so the reader always knows which form to expect
// without guessing from size alone.
func (w *writer) text(b []byte) {
	if len(b) <= shortTextLimit {
		w.u8(0)
		w.u16(uint16(len(b)))
		w.raw(b)
		return
	}
	w.u8(1)
	w.u32(uint32(len(b)))
	w.raw(b)
}

func (w *writer) str(s string) { w.text([]byte(s)) }

type reader struct {
	buf []byte
	pos int
}

func newReader(b []byte) *reader { return &reader{buf: b} }

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) need(n int) error {
	if r.remaining() < n {
		return fmt.Errorf("pickle: short read: need %d bytes, have %d", n, r.remaining())
	}
	return nil
}

func (r *reader) u8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) boolean() (bool, error) {
	b, err := r.u8()
	return b != 0, err
}

func (r *reader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) i32() (int32, error) {
	v, err := r.u32()
	return int32(v), err
}

func (r *reader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) raw(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) text() ([]byte, error) {
	form, err := r.u8()
	if err != nil {
		return nil, err
	}
	if form == 0 {
		n, err := r.u16()
		if err != nil {
			return nil, err
		}
		return r.raw(int(n))
	}
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	return r.raw(int(n))
}

func (r *reader) str() (string, error) {
	b, err := r.text()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// exhausted reports whether the reader consumed exactly its input, per
// spec.md §4.5 "fails if fewer or more bytes were consumed".
func (r *reader) exhausted() bool { return r.remaining() == 0 }

var _ = io.EOF // keeps the io import in use; nothing else in this file uses io
