package hashchain

import (
	"fmt"

	"github.com/aead/chacha20/chacha"

	"github.com/chuwt/posprover/bitfield"
)

const (
	f1BlockBits  = 512
	f1BlockBytes = f1BlockBits / 8
	chachaRounds = 8
)

// F1 is the table 1 function: y = keystream bits [x*k, x*k+k) followed by
// the top ExtraBits of x. The keystream is ChaCha8 under a key derived from
// the plot id. F1 is safe for concurrent use.
type F1 struct {
	k   int
	key [32]byte
}

// NewF1 derives the keystream key for plotID, which must be 32 bytes.
func NewF1(k int, plotID []byte) (*F1, error) {
	if k < MinK || k > MaxK {
		return nil, fmt.Errorf("%w: %d", ErrBadK, k)
	}
	if len(plotID) != 32 {
		return nil, fmt.Errorf("hashchain: plot id is %d bytes, want 32", len(plotID))
	}
	f := &F1{k: k}
	f.key[0] = 1
	copy(f.key[1:], plotID[:31])
	return f, nil
}

// keystream returns n blocks starting at block counter first.
func (f *F1) keystream(first uint64, n int) []byte {
	var nonce [chacha.NonceSize]byte
	c, err := chacha.NewCipher(nonce[:], f.key[:], chachaRounds)
	if err != nil {
		// key and nonce sizes are fixed above
		panic(err)
	}
	c.SetCounter(first)
	buf := make([]byte, n*f1BlockBytes)
	c.XORKeyStream(buf, buf)
	return buf
}

func (f *F1) extra(x uint64) uint64 {
	return x >> uint(f.k-ExtraBits)
}

// CalculateF returns the (k+ExtraBits)-bit y for leaf x.
func (f *F1) CalculateF(x uint64) uint64 {
	bit := x * uint64(f.k)
	block := bit / f1BlockBits
	off := bit % f1BlockBits
	n := 1
	if off+uint64(f.k) > f1BlockBits {
		n = 2
	}
	ks := f.keystream(block, n)
	return bitsAt(ks, off, f.k)<<ExtraBits | f.extra(x)
}

// CalculateBucket returns y and the metadata (x itself) for leaf x.
func (f *F1) CalculateBucket(x uint64) (uint64, bitfield.BitField, error) {
	meta, err := bitfield.New(x, f.k)
	if err != nil {
		return 0, bitfield.BitField{}, err
	}
	return f.CalculateF(x), meta, nil
}

// CalculateBuckets fills out[i] with the y of leaf firstX+i from a single
// keystream pass.
func (f *F1) CalculateBuckets(firstX uint64, out []uint64) {
	if len(out) == 0 {
		return
	}
	k := uint64(f.k)
	start := firstX * k / f1BlockBits
	end := ((firstX+uint64(len(out)))*k + f1BlockBits - 1) / f1BlockBits
	ks := f.keystream(start, int(end-start))
	base := start * f1BlockBits
	for i := range out {
		x := firstX + uint64(i)
		out[i] = bitsAt(ks, x*k-base, f.k)<<ExtraBits | f.extra(x)
	}
}
