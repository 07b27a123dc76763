package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
)

// reader decodes the big-endian items of a class file. The first error
// sticks: later reads return zero values and failed records what was being
// read when the stream ran out.
type reader struct {
	r      io.Reader
	buf    [8]byte
	err    error
	failed string
}

func newReader(r io.Reader) *reader {
	return &reader{r: r}
}

func (r *reader) fill(n int, what string) []byte {
	if r.err != nil {
		return r.buf[:n]
	}
	if _, err := io.ReadFull(r.r, r.buf[:n]); err != nil {
		r.err = err
		r.failed = what
		for i := range r.buf {
			r.buf[i] = 0
		}
	}
	return r.buf[:n]
}

func (r *reader) u1(what string) uint8 { return r.fill(1, what)[0] }

func (r *reader) u2(what string) uint16 { return binary.BigEndian.Uint16(r.fill(2, what)) }

func (r *reader) u4(what string) uint32 { return binary.BigEndian.Uint32(r.fill(4, what)) }

func (r *reader) u8(what string) uint64 { return binary.BigEndian.Uint64(r.fill(8, what)) }

// bytes reads n raw bytes into a fresh slice.
func (r *reader) bytes(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r.r, data); err != nil {
		r.err = err
		r.failed = what
		return nil
	}
	return data
}

// check reports the sticky error, if any, naming what was being read.
func (r *reader) check() error {
	if r.err == nil {
		return nil
	}
	return fmt.Errorf("reading %s: %w", r.failed, r.err)
}
