// Package hashchain implements the seven table functions a plot is built
// from: F1 maps a leaf x to a y value, FX merges two matching entries of
// one table into an entry of the next. The prover only needs them to put
// a recovered proof back in canonical order; the plot builder and the
// verifier run them forward.
package hashchain

import (
	"encoding/binary"
	"errors"
)

const (
	MinK = 18
	MaxK = 50

	// ExtraBits is the number of bits appended to every y beyond k.
	ExtraBits    = 6
	ExtraBitsPow = 1 << ExtraBits

	B  = 119
	C  = 127
	BC = B * C
)

// VectorLens gives, per table, the metadata length of its inputs in
// multiples of k.
var VectorLens = [8]int{0, 0, 1, 2, 4, 4, 3, 2}

var ErrBadK = errors.New("hashchain: k out of range")

// ChallengeF7 returns the top k bits of a challenge.
func ChallengeF7(challenge []byte, k int) uint64 {
	var buf [8]byte
	copy(buf[:], challenge)
	return binary.BigEndian.Uint64(buf[:]) >> uint(64-k)
}

// bitsAt reads n <= 57 bits at bit pos of a big-endian byte string.
func bitsAt(data []byte, pos uint64, n int) uint64 {
	first := pos / 8
	shift := pos % 8
	var v uint64
	for i := uint64(0); i < 8; i++ {
		v <<= 8
		if first+i < uint64(len(data)) {
			v |= uint64(data[first+i])
		}
	}
	return (v << shift) >> uint(64-n)
}
