package hashchain

import (
	"errors"
	"fmt"

	"github.com/minio/sha256-simd"

	"github.com/chuwt/posprover/bitfield"
)

// ProofLen is the number of leaves in a full proof.
const ProofLen = 64

var ErrInvalidProof = errors.New("hashchain: invalid proof")

// ValidateProof evaluates a proof in canonical order forward through all
// seven tables and returns its f7. Every adjacent pair must match and the
// f7 must equal the top k bits of the challenge.
func ValidateProof(k int, plotID, challenge []byte, proof []uint64) (uint64, error) {
	if len(proof) != ProofLen {
		return 0, fmt.Errorf("%w: %d leaves", ErrInvalidProof, len(proof))
	}
	f1, err := NewF1(k, plotID)
	if err != nil {
		return 0, err
	}
	ys := make([]uint64, len(proof))
	metas := make([]bitfield.BitField, len(proof))
	for i, x := range proof {
		if x>>uint(k) != 0 {
			return 0, fmt.Errorf("%w: leaf %d wider than %d bits", ErrInvalidProof, i, k)
		}
		if ys[i], metas[i], err = f1.CalculateBucket(x); err != nil {
			return 0, err
		}
	}

	for table := 2; table <= 7; table++ {
		fx, err := NewFx(k, table)
		if err != nil {
			return 0, err
		}
		for i := 0; i < len(ys)/2; i++ {
			yl, yr := ys[2*i], ys[2*i+1]
			if !CheckMatch(yl, yr) {
				return 0, fmt.Errorf("%w: table %d pair %d does not match", ErrInvalidProof, table, i)
			}
			if ys[i], metas[i], err = fx.CalculateBucket(yl, metas[2*i], metas[2*i+1]); err != nil {
				return 0, err
			}
		}
		ys = ys[:len(ys)/2]
		metas = metas[:len(metas)/2]
	}

	f7 := ys[0] >> ExtraBits
	if want := ChallengeF7(challenge, k); f7 != want {
		return 0, fmt.Errorf("%w: f7 %d, challenge wants %d", ErrInvalidProof, f7, want)
	}
	return f7, nil
}

// PlotOrder rearranges a canonical proof into the order the plot stores it:
// at every level the sub-proof whose leaves compare lower from the last
// leaf backwards comes first.
func PlotOrder(proof []uint64) []uint64 {
	out := append([]uint64(nil), proof...)
	for size := 1; size < len(out); size *= 2 {
		next := make([]uint64, 0, len(out))
		for j := 0; j+2*size <= len(out); j += 2 * size {
			l := out[j : j+size]
			r := out[j+size : j+2*size]
			if lessFromEnd(l, r) {
				next = append(append(next, l...), r...)
			} else {
				next = append(append(next, r...), l...)
			}
		}
		out = next
	}
	return out
}

func lessFromEnd(l, r []uint64) bool {
	for i := len(l) - 1; i >= 0; i-- {
		switch {
		case l[i] < r[i]:
			return true
		case l[i] > r[i]:
			return false
		}
	}
	return false
}

// QualityString derives the quality of a canonical proof, the same value a
// prover computes from the plot for that challenge.
func QualityString(k int, challenge []byte, proof []uint64) ([32]byte, error) {
	if len(proof) != ProofLen || len(challenge) != 32 {
		return [32]byte{}, fmt.Errorf("%w: %d leaves, %d byte challenge", ErrInvalidProof, len(proof), len(challenge))
	}
	ordered := PlotOrder(proof)
	i := int(challenge[31]&0x1f) * 2
	return Quality(challenge, ordered[i], ordered[i+1], k)
}

// Quality hashes the challenge with two leaves of k bits each.
func Quality(challenge []byte, x1, x2 uint64, k int) ([32]byte, error) {
	var pair bitfield.BitField
	if err := pair.Append(x1, k); err != nil {
		return [32]byte{}, err
	}
	if err := pair.Append(x2, k); err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(append(append([]byte(nil), challenge[:32]...), pair.Bytes()...)), nil
}
