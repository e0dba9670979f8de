// Package bitfield holds unsigned integers of arbitrary bit length.
//
// A BitField is a sequence of 64-bit words where every word but the last
// is full and the last word keeps its bits in the low end. Bit 0 is the
// most significant bit. The same type is used to build values (Append,
// Concat) and to read them back at arbitrary offsets (Range, Slice).
package bitfield

import (
	"errors"
	"fmt"
	"math/big"
	"math/bits"
	"strings"
)

var (
	// ErrOutOfRange is returned when a bit index falls outside the field.
	ErrOutOfRange = errors.New("bitfield: index out of range")
	// ErrTooWide is returned when a value does not fit the requested width.
	ErrTooWide = errors.New("bitfield: value does not fit")
)

type BitField struct {
	words []uint64
	last  int
}

func mask(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(n)) - 1
}

// New returns value as a field of exactly width bits. The value is zero
// padded on the high side when width exceeds its natural length.
func New(value uint64, width int) (BitField, error) {
	if width < 0 {
		return BitField{}, fmt.Errorf("%w: negative width %d", ErrOutOfRange, width)
	}
	if bits.Len64(value) > width {
		return BitField{}, fmt.Errorf("%w: %d needs %d bits, have %d", ErrTooWide, value, bits.Len64(value), width)
	}
	var b BitField
	for width > 64 {
		b.appendBits(0, 64)
		width -= 64
	}
	b.appendBits(value, width)
	return b, nil
}

// FromBytes reads the leading bitWidth bits of the first byteCount bytes
// of data, interpreted big-endian. A bitWidth larger than byteCount*8
// zero pads the result on the high side.
func FromBytes(data []byte, byteCount, bitWidth int) (BitField, error) {
	return FromBytesAt(data, byteCount, bitWidth, 0)
}

// FromBytesAt is FromBytes starting at bitOffset inside data. Parks and
// checkpoint entries may begin at any bit.
func FromBytesAt(data []byte, byteCount, bitWidth, bitOffset int) (BitField, error) {
	if byteCount < 0 || byteCount > len(data) || bitWidth < 0 || bitOffset < 0 {
		return BitField{}, fmt.Errorf("%w: %d bytes of %d, width %d, offset %d",
			ErrOutOfRange, byteCount, len(data), bitWidth, bitOffset)
	}
	var b BitField
	avail := byteCount*8 - bitOffset
	if avail < 0 {
		return BitField{}, fmt.Errorf("%w: offset %d past %d bytes", ErrOutOfRange, bitOffset, byteCount)
	}
	if bitWidth > avail {
		pad := bitWidth - avail
		for pad > 64 {
			b.appendBits(0, 64)
			pad -= 64
		}
		b.appendBits(0, pad)
		bitWidth = avail
	}
	pos := bitOffset
	for bitWidth > 0 {
		n := bitWidth
		if n > 56 {
			n = 56
		}
		b.appendBits(readBytesBits(data, pos, n), n)
		pos += n
		bitWidth -= n
	}
	return b, nil
}

// readBytesBits extracts n <= 57 bits starting at bit pos of a
// big-endian byte string.
func readBytesBits(data []byte, pos, n int) uint64 {
	var v uint64
	first := pos / 8
	shift := pos % 8
	need := (shift + n + 7) / 8
	for i := 0; i < need; i++ {
		v <<= 8
		if first+i < len(data) {
			v |= uint64(data[first+i])
		}
	}
	return (v >> uint(need*8-shift-n)) & mask(n)
}

// FromBig returns the low width bits of x.
func FromBig(x *big.Int, width int) (BitField, error) {
	if x.Sign() < 0 || x.BitLen() > width {
		return BitField{}, fmt.Errorf("%w: %s in %d bits", ErrTooWide, x.String(), width)
	}
	buf := make([]byte, (width+7)/8)
	x.FillBytes(buf)
	return FromBytesAt(buf, len(buf), width, len(buf)*8-width)
}

// Len is the number of bits in the field.
func (b BitField) Len() int {
	if len(b.words) == 0 {
		return 0
	}
	return (len(b.words)-1)*64 + b.last
}

func (b *BitField) appendBits(v uint64, n int) {
	if n == 0 {
		return
	}
	if len(b.words) == 0 || b.last == 64 {
		b.words = append(b.words, 0)
		b.last = 0
	}
	i := len(b.words) - 1
	free := 64 - b.last
	if n <= free {
		if n == 64 {
			b.words[i] = v
		} else {
			b.words[i] = b.words[i]<<uint(n) | v
		}
		b.last += n
		return
	}
	rest := n - free
	b.words[i] = b.words[i]<<uint(free) | v>>uint(rest)
	b.last = 64
	b.words = append(b.words, v&mask(rest))
	b.last = rest
}

// Append adds the low width bits of value after the current last bit.
func (b *BitField) Append(value uint64, width int) error {
	if width < 0 || width > 64 {
		return fmt.Errorf("%w: append width %d", ErrOutOfRange, width)
	}
	if bits.Len64(value) > width {
		return fmt.Errorf("%w: %d in %d bits", ErrTooWide, value, width)
	}
	b.appendBits(value, width)
	return nil
}

// Concat returns b followed by o. Neither operand is modified.
func (b BitField) Concat(o BitField) BitField {
	out := b.clone()
	for i, w := range o.words {
		n := 64
		if i == len(o.words)-1 {
			n = o.last
		}
		out.appendBits(w&mask(n), n)
	}
	return out
}

func (b BitField) clone() BitField {
	return BitField{words: append([]uint64(nil), b.words...), last: b.last}
}

// get reads n <= 64 bits at start. Callers check the bounds.
func (b BitField) get(start, n int) uint64 {
	var v uint64
	for n > 0 {
		w := start / 64
		o := start % 64
		size := 64
		if w == len(b.words)-1 {
			size = b.last
		}
		avail := size - o
		take := n
		if take > avail {
			take = avail
		}
		chunk := (b.words[w] >> uint(avail-take)) & mask(take)
		if take == 64 {
			v = chunk
		} else {
			v = v<<uint(take) | chunk
		}
		n -= take
		start += take
	}
	return v
}

// Range returns the bits in [start, end). end is clamped to Len.
func (b BitField) Range(start, end int) (BitField, error) {
	if end > b.Len() {
		end = b.Len()
	}
	if start < 0 || start > end {
		return BitField{}, fmt.Errorf("%w: range [%d,%d) of %d bits", ErrOutOfRange, start, end, b.Len())
	}
	var out BitField
	for start < end {
		n := end - start
		if n > 64 {
			n = 64
		}
		out.appendBits(b.get(start, n), n)
		start += n
	}
	return out, nil
}

// Slice returns the bits from start to the end of the field.
func (b BitField) Slice(start int) (BitField, error) {
	return b.Range(start, b.Len())
}

// Bits reads width <= 64 bits at start as an integer.
func (b BitField) Bits(start, width int) (uint64, error) {
	if width < 0 || width > 64 || start < 0 || start+width > b.Len() {
		return 0, fmt.Errorf("%w: %d bits at %d of %d", ErrOutOfRange, width, start, b.Len())
	}
	if width == 0 {
		return 0, nil
	}
	return b.get(start, width), nil
}

// Uint64 returns the field as an integer if it is at most 64 bits long.
func (b BitField) Uint64() (uint64, error) {
	if b.Len() > 64 {
		return 0, fmt.Errorf("%w: %d bits in a uint64", ErrTooWide, b.Len())
	}
	if len(b.words) == 0 {
		return 0, nil
	}
	return b.words[0], nil
}

// Big returns the field as a big integer.
func (b BitField) Big() *big.Int {
	return new(big.Int).Rsh(new(big.Int).SetBytes(b.Bytes()), uint(b.padding()))
}

func (b BitField) padding() int {
	return (8 - b.Len()%8) % 8
}

// Bytes encodes the field big-endian with the low end zero padded to a
// byte boundary.
func (b BitField) Bytes() []byte {
	n := b.Len()
	out := make([]byte, (n+7)/8)
	for i := 0; i < len(out); i++ {
		take := 8
		if rem := n - i*8; rem < 8 {
			take = rem
		}
		out[i] = byte(b.get(i*8, take) << uint(8-take))
	}
	return out
}

// Equal reports whether both fields have the same length and bits.
func (b BitField) Equal(o BitField) bool {
	return b.Compare(o) == 0
}

// Compare orders fields by length first, then by value.
func (b BitField) Compare(o BitField) int {
	switch {
	case b.Len() < o.Len():
		return -1
	case b.Len() > o.Len():
		return 1
	}
	for i := range b.words {
		switch {
		case b.words[i] < o.words[i]:
			return -1
		case b.words[i] > o.words[i]:
			return 1
		}
	}
	return 0
}

func (b BitField) String() string {
	var sb strings.Builder
	for i := 0; i < b.Len(); i++ {
		if b.get(i, 1) == 1 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
