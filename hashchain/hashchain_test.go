package hashchain

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chuwt/posprover/bitfield"
)

var testPlotID = []byte{
	35, 2, 52, 4, 51, 55, 23, 84, 91, 10, 111, 12, 13, 222, 151, 16,
	228, 211, 254, 45, 92, 198, 204, 10, 9, 10, 11, 129, 139, 171, 15, 23,
}

func TestF1BatchMatchesSingle(t *testing.T) {
	for _, k := range []int{18, 19, 25, 32, 50} {
		f1, err := NewF1(k, testPlotID)
		require.NoError(t, err)
		for _, first := range []uint64{0, 1, 27, 1000, 1<<uint(k) - 300} {
			out := make([]uint64, 257)
			f1.CalculateBuckets(first, out)
			for i, y := range out {
				x := first + uint64(i)
				require.Equal(t, f1.CalculateF(x), y, "k=%d x=%d", k, x)
				require.Less(t, y, uint64(1)<<uint(k+ExtraBits))
				require.Equal(t, x>>uint(k-ExtraBits), y&(ExtraBitsPow-1))
			}
		}
	}
}

func TestF1KeyDependsOnPlotID(t *testing.T) {
	other := append([]byte(nil), testPlotID...)
	other[0] ^= 1
	a, err := NewF1(18, testPlotID)
	require.NoError(t, err)
	b, err := NewF1(18, other)
	require.NoError(t, err)

	same := 0
	for x := uint64(0); x < 64; x++ {
		if a.CalculateF(x) == b.CalculateF(x) {
			same++
		}
	}
	assert.Less(t, same, 4)

	_, err = NewF1(17, testPlotID)
	assert.ErrorIs(t, err, ErrBadK)
	_, err = NewF1(18, testPlotID[:31])
	assert.Error(t, err)
}

func TestFxDeterministic(t *testing.T) {
	const k = 20
	rng := rand.New(rand.NewSource(4))
	for table := 2; table <= 7; table++ {
		fx, err := NewFx(k, table)
		require.NoError(t, err)
		width := VectorLens[table] * k
		l := randomField(t, rng, width)
		r := randomField(t, rng, width)
		y1 := rng.Uint64() >> uint(64-(k+ExtraBits))

		y, meta, err := fx.CalculateBucket(y1, l, r)
		require.NoError(t, err)
		y2, meta2, err := fx.CalculateBucket(y1, l, r)
		require.NoError(t, err)
		assert.Equal(t, y, y2)
		assert.True(t, meta.Equal(meta2))
		assert.Less(t, y, uint64(1)<<uint(k+ExtraBits))

		switch {
		case table < 4:
			assert.Equal(t, 2*width, meta.Len())
		case table < 7:
			assert.Equal(t, VectorLens[table+1]*k, meta.Len())
		default:
			assert.Zero(t, meta.Len())
		}
	}

	_, err := NewFx(k, 1)
	assert.Error(t, err)
}

func randomField(t *testing.T, rng *rand.Rand, width int) bitfield.BitField {
	var b bitfield.BitField
	for width > 0 {
		n := width
		if n > 32 {
			n = 32
		}
		require.NoError(t, b.Append(uint64(rng.Uint32())>>uint(32-n), n))
		width -= n
	}
	return b
}

func TestTargetsSharedAndBounded(t *testing.T) {
	a := Targets()
	b := Targets()
	require.Same(t, a, b)
	for parity := 0; parity < 2; parity++ {
		for i := 0; i < BC; i += 97 {
			for _, v := range a[parity][i] {
				require.Less(t, int(v), BC)
			}
		}
	}
}

func bucketYs(rng *rand.Rand, bucket uint64, n int) []uint64 {
	ys := make([]uint64, n)
	for i := range ys {
		ys[i] = bucket*BC + uint64(rng.Intn(BC))
	}
	sort.Slice(ys, func(i, j int) bool { return ys[i] < ys[j] })
	return ys
}

func TestFindMatchesAgreesWithCheckMatch(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	m := NewMatcher()
	total := 0
	for bucket := uint64(10); bucket < 30; bucket++ {
		left := bucketYs(rng, bucket, 300)
		right := bucketYs(rng, bucket+1, 300)

		got := map[Match]bool{}
		for _, match := range m.FindMatches(left, right) {
			require.False(t, got[match], "duplicate %v", match)
			got[match] = true
		}
		want := map[Match]bool{}
		for i, yl := range left {
			for j, yr := range right {
				if CheckMatch(yl, yr) {
					want[Match{Left: i, Right: j}] = true
				}
			}
		}
		assert.Equal(t, want, got, "bucket %d", bucket)
		total += len(got)
	}
	assert.NotZero(t, total)
}

func TestFindMatchesOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	left := bucketYs(rng, 40, 250)
	right := bucketYs(rng, 41, 250)

	pairs := func(ms []Match) map[[2]uint64]int {
		out := map[[2]uint64]int{}
		for _, m := range ms {
			out[[2]uint64{left[m.Left], right[m.Right]}]++
		}
		return out
	}
	first := pairs(FindMatches(left, right))

	// reusing a matcher across unrelated buckets must not leak state
	m := NewMatcher()
	m.FindMatches(bucketYs(rng, 2, 500), bucketYs(rng, 3, 500))
	assert.Equal(t, first, pairs(m.FindMatches(left, right)))
	assert.Nil(t, FindMatches(nil, right))
}

func TestCheckMatchNeedsAdjacentBuckets(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	left := bucketYs(rng, 5, 200)
	right := bucketYs(rng, 6, 200)
	for _, match := range FindMatches(left, right) {
		yl, yr := left[match.Left], right[match.Right]
		require.True(t, CheckMatch(yl, yr))
		require.False(t, CheckMatch(yl, yr+BC))
		require.False(t, CheckMatch(yr, yl))
	}
}

func TestPlotOrder(t *testing.T) {
	proof := make([]uint64, ProofLen)
	for i := range proof {
		proof[i] = uint64(ProofLen - i)
	}
	ordered := PlotOrder(proof)
	for i := range ordered {
		assert.Equal(t, uint64(i+1), ordered[i])
	}
}

func TestValidateProofRejectsShape(t *testing.T) {
	challenge := make([]byte, 32)
	_, err := ValidateProof(18, testPlotID, challenge, make([]uint64, 10))
	assert.ErrorIs(t, err, ErrInvalidProof)

	proof := make([]uint64, ProofLen)
	proof[3] = 1 << 18
	_, err = ValidateProof(18, testPlotID, challenge, proof)
	assert.ErrorIs(t, err, ErrInvalidProof)

	for i := range proof {
		proof[i] = uint64(i)
	}
	_, err = ValidateProof(18, testPlotID, challenge, proof)
	assert.ErrorIs(t, err, ErrInvalidProof)
}

func TestChallengeF7(t *testing.T) {
	challenge := make([]byte, 32)
	challenge[0] = 0xab
	challenge[1] = 0xcd
	challenge[2] = 0xef
	assert.Equal(t, uint64(0xabcdef)>>6, ChallengeF7(challenge, 18))
	assert.Equal(t, uint64(0xab), ChallengeF7(challenge, 8))
}
