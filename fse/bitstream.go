package fse

import (
	"math/bits"
)

func lowMask(n uint) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << n) - 1
}

// bitsLE returns bits [start, start+n) of data read as one little-endian
// number. Bits below zero or past the end read as zero. n is at most 32.
func bitsLE(data []byte, start, n int) uint64 {
	if n <= 0 {
		return 0
	}
	if start < 0 {
		shift := -start
		if shift >= n {
			return 0
		}
		return bitsLE(data, 0, n-shift) << uint(shift)
	}
	idx := start / 8
	var v uint64
	for i := 0; i < 8; i++ {
		if idx+i < len(data) {
			v |= uint64(data[idx+i]) << uint(8*i)
		}
	}
	return (v >> uint(start%8)) & lowMask(uint(n))
}

// forwardReader reads a header bit stream from the lowest bit up.
type forwardReader struct {
	data []byte
	pos  int
}

func (r *forwardReader) peek(n int) uint64 {
	return bitsLE(r.data, r.pos, n)
}

func (r *forwardReader) skip(n int) {
	r.pos += n
}

// reverseReader walks an FSE body from its end mark toward byte zero.
// pos counts the bits that have not been consumed yet.
type reverseReader struct {
	data []byte
	pos  int
}

func newReverseReader(src []byte) (*reverseReader, error) {
	if len(src) == 0 {
		return nil, ErrSrcSizeWrong
	}
	last := src[len(src)-1]
	if last == 0 {
		return nil, ErrCorruption
	}
	return &reverseReader{data: src, pos: (len(src)-1)*8 + bits.Len8(last) - 1}, nil
}

func (r *reverseReader) read(n uint8) uint32 {
	if n == 0 {
		return 0
	}
	r.pos -= int(n)
	return uint32(bitsLE(r.data, r.pos, int(n)))
}

// overflowed reports whether more bits were read than the stream holds.
func (r *reverseReader) overflowed() bool {
	return r.pos < 0
}

// bitWriter appends bits from the lowest bit up, as both the header and
// the body writers expect.
type bitWriter struct {
	out   []byte
	acc   uint64
	nbits uint
}

func (w *bitWriter) add(v uint64, n uint) {
	w.acc |= (v & lowMask(n)) << w.nbits
	w.nbits += n
	for w.nbits >= 8 {
		w.out = append(w.out, byte(w.acc))
		w.acc >>= 8
		w.nbits -= 8
	}
}

func (w *bitWriter) bytes() []byte {
	if w.nbits > 0 {
		w.out = append(w.out, byte(w.acc))
		w.acc = 0
		w.nbits = 0
	}
	return w.out
}

// closeStream writes the end mark and returns the finished body.
func (w *bitWriter) closeStream() []byte {
	w.add(1, 1)
	return w.bytes()
}
