package decoder

import (
	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/pingcap/errors"
)

// reader walks an event payload. The first out-of-bounds read sets err and
// every later read returns zero values.
type reader struct {
	buf []byte
	pos int
	err error
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.buf) {
		r.err = errors.Annotatef(ErrMalformedFrame, "need %d bytes at offset %d, have %d", n, r.pos, len(r.buf)-r.pos)
		return nil
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return v
}

func (r *reader) skip(n int) {
	r.bytes(n)
}

func (r *reader) int1() uint8 {
	return uint8(r.fixed(1))
}

func (r *reader) int2() uint16 {
	return uint16(r.fixed(2))
}

func (r *reader) int4() uint32 {
	return uint32(r.fixed(4))
}

func (r *reader) int8() uint64 {
	return r.fixed(8)
}

func (r *reader) fixed(n int) uint64 {
	b := r.bytes(n)
	if b == nil {
		return 0
	}
	return gomysql.FixedLengthInt(b)
}

// fixedBE reads a big endian integer, as temporal and decimal values are stored.
func (r *reader) fixedBE(n int) uint64 {
	b := r.bytes(n)
	if b == nil {
		return 0
	}
	return gomysql.BFixedLengthInt(b)
}

func (r *reader) more() bool {
	return r.err == nil && r.pos < len(r.buf)
}

// intN reads a length encoded integer.
func (r *reader) intN() uint64 {
	if r.err != nil {
		return 0
	}
	if r.pos >= len(r.buf) {
		r.err = errors.Annotatef(ErrMalformedFrame, "length encoded int at offset %d", r.pos)
		return 0
	}
	num, isNull, n := gomysql.LengthEncodedInt(r.buf[r.pos:])
	if isNull || r.pos+n > len(r.buf) {
		r.err = errors.Annotatef(ErrMalformedFrame, "bad length encoded int at offset %d", r.pos)
		return 0
	}
	r.pos += n
	return num
}

func (r *reader) rest() []byte {
	if r.err != nil {
		return nil
	}
	v := r.buf[r.pos:]
	r.pos = len(r.buf)
	return v
}

func bitmapSize(numCol uint64) int {
	return int((numCol + 7) / 8)
}
