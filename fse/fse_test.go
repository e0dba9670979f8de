package fse

import (
	"math/rand"
	"testing"

	kfse "github.com/klauspost/compress/fse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geometricDeltas(rng *rand.Rand, n int, mean float64, max int) []byte {
	out := make([]byte, n)
	for i := range out {
		v := int(rng.ExpFloat64() * mean)
		if v > max {
			v = max
		}
		out[i] = byte(v)
	}
	return out
}

func TestDeltasRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, r := range []float64{4.7, 2.75, 2.7, 2.6, 2.45, 1.0} {
		for _, n := range []int{3, 4, 5, 100, 2047, 9999} {
			deltas := geometricDeltas(rng, n, r, 40)
			block, err := EncodeDeltas(deltas, r)
			require.NoError(t, err, "r=%v n=%d", r, n)

			got, err := DecodeDeltas(block, n, r)
			require.NoError(t, err, "r=%v n=%d", r, n)
			assert.Equal(t, deltas, got, "r=%v n=%d", r, n)
		}
	}
}

func TestDecodeDeltasZeroPadsShortBlocks(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	deltas := geometricDeltas(rng, 700, 2.75, 30)
	block, err := EncodeDeltas(deltas, 2.75)
	require.NoError(t, err)

	got, err := DecodeDeltas(block, 2047, 2.75)
	require.NoError(t, err)
	require.Len(t, got, 2047)
	assert.Equal(t, deltas, got[:700])
	assert.Equal(t, make([]byte, 2047-700), got[700:])
}

func TestDecodeDeltasDstTooSmall(t *testing.T) {
	deltas := geometricDeltas(rand.New(rand.NewSource(3)), 500, 2.75, 30)
	block, err := EncodeDeltas(deltas, 2.75)
	require.NoError(t, err)

	_, err = DecodeDeltas(block, 100, 2.75)
	assert.ErrorIs(t, err, ErrDstTooSmall)
}

func TestNormalizedCountFillsTable(t *testing.T) {
	for _, r := range []float64{4.7, 2.75, 2.7, 2.6, 2.45, 1.0} {
		counts := NormalizedCount(r)
		require.LessOrEqual(t, len(counts), MaxSymbolValue)
		total := 0
		for _, c := range counts {
			require.NotZero(t, c)
			if c == -1 {
				total++
			} else {
				total += int(c)
			}
		}
		assert.Equal(t, 1<<DeltaTableLog, total, "r=%v", r)

		// a delta of one is likelier than zero; past that the
		// distribution only decays
		assert.Greater(t, counts[1], counts[0], "r=%v", r)
		for i := 2; i < len(counts); i++ {
			assert.LessOrEqual(t, weight(counts[i]), weight(counts[i-1]), "r=%v symbol %d", r, i)
		}
	}

	assert.Equal(t, []int16{1504, 2811}, NormalizedCount(4.7)[:2])
	assert.Equal(t, []int16{5989, 6505}, NormalizedCount(1.0)[:2])
}

// weight reads a normalized count, where -1 stands for one state.
func weight(c int16) int16 {
	if c == -1 {
		return 1
	}
	return c
}

func TestNCountRoundTrip(t *testing.T) {
	for _, r := range []float64{4.7, 2.45, 1.0} {
		counts := NormalizedCount(r)
		header, err := WriteNCount(counts, DeltaTableLog)
		require.NoError(t, err)

		got, tableLog, n, err := ReadNCount(header)
		require.NoError(t, err)
		assert.Equal(t, DeltaTableLog, tableLog)
		assert.Equal(t, len(header), n)
		assert.Equal(t, counts, got)
	}
}

func TestNCountWithZeroRuns(t *testing.T) {
	counts := make([]int16, 200)
	counts[0] = 10
	counts[3] = -1
	counts[60] = 12
	counts[199] = 9
	header, err := WriteNCount(counts, 5)
	require.NoError(t, err)

	got, tableLog, _, err := ReadNCount(header)
	require.NoError(t, err)
	assert.Equal(t, 5, tableLog)
	assert.Equal(t, counts, got)
}

func TestReadNCountRejectsWrongTotal(t *testing.T) {
	// table log 15 followed by zero bits: every symbol reads as a low
	// probability one and the alphabet runs out before the mass does.
	in := make([]byte, 600)
	in[0] = 0x0a
	_, _, _, err := ReadNCount(in)
	assert.ErrorIs(t, err, ErrCorruption)
}

func TestReadNCountRejectsLargeTableLog(t *testing.T) {
	_, _, _, err := ReadNCount([]byte{0x0b, 0, 0, 0})
	assert.ErrorIs(t, err, ErrTableLogTooLarge)
}

func TestReadNCountShortInput(t *testing.T) {
	_, _, _, err := ReadNCount([]byte{0x00})
	assert.ErrorIs(t, err, ErrCorruption)
}

func TestWriteNCountRejectsBadTotal(t *testing.T) {
	_, err := WriteNCount([]int16{10, 10}, 5)
	assert.ErrorIs(t, err, ErrCorruption)
	_, err = WriteNCount([]int16{30, 10}, 5)
	assert.Error(t, err)
}

func TestDecodeDeltasRejectsBadDelta(t *testing.T) {
	counts := make([]int16, 256)
	counts[0] = 16
	counts[255] = 16
	frame, err := EncodeFrame([]byte{0, 255, 0, 0, 255}, counts, 5)
	require.NoError(t, err)

	_, err = DecodeFrame(frame, 5)
	assert.ErrorIs(t, err, ErrBadDelta)
}

func TestFrameRoundTrip(t *testing.T) {
	counts := []int16{12, 8, 6, 3, -1, -1, 1}
	src := []byte{0, 1, 2, 0, 0, 3, 1, 4, 5, 6, 0, 2, 1, 0}
	frame, err := EncodeFrame(src, counts, 5)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		got, err := DecodeFrame(frame, len(src))
		require.NoError(t, err)
		assert.Equal(t, src, got)
	}
}

func TestDecompressEmptySource(t *testing.T) {
	dt, err := NewDecodeTable(NormalizedCount(1.0), DeltaTableLog)
	require.NoError(t, err)
	_, err = Decompress(make([]byte, 10), nil, dt)
	assert.ErrorIs(t, err, ErrSrcSizeWrong)
	_, err = Decompress(make([]byte, 10), []byte{0x12, 0x00}, dt)
	assert.ErrorIs(t, err, ErrCorruption)
}

func TestBlockRawFlag(t *testing.T) {
	got, err := DecodeBlock(RawFlag|3, []byte{1, 2, 3, 9}, 2047, 2.75)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
	assert.Equal(t, 3, BlockSize(RawFlag|3))
	assert.Equal(t, 3, BlockSize(3))

	_, err = DecodeBlock(RawFlag|10, []byte{1, 2, 3}, 2047, 2.75)
	assert.ErrorIs(t, err, ErrCorruption)
}

func TestEncodeBlock(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	deltas := geometricDeltas(rng, 2047, 2.75, 30)

	prefix, payload, err := EncodeBlock(deltas, 2.75, 896)
	require.NoError(t, err)
	require.Zero(t, prefix&RawFlag)
	require.Equal(t, int(prefix), len(payload))
	got, err := DecodeBlock(prefix, payload, 2047, 2.75)
	require.NoError(t, err)
	assert.Equal(t, deltas, got)

	// two symbols never compress
	prefix, payload, err = EncodeBlock([]byte{1, 2}, 2.75, 896)
	require.NoError(t, err)
	assert.Equal(t, uint16(RawFlag|2), prefix)
	assert.Equal(t, []byte{1, 2}, payload)

	// a symbol outside the alphabet falls back to raw bytes
	prefix, payload, err = EncodeBlock([]byte{0, 1, 200, 0}, 1.0, 896)
	require.NoError(t, err)
	assert.NotZero(t, prefix&RawFlag)
	assert.Equal(t, []byte{0, 1, 200, 0}, payload)

	_, _, err = EncodeBlock(make([]byte, 100), 1.0, 4)
	assert.ErrorIs(t, err, ErrDstTooSmall)
}

func TestDecodesIndependentEncoder(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	for _, n := range []int{1000, 4001, 20000} {
		in := geometricDeltas(rng, n, 3, 60)
		var s kfse.Scratch
		out, err := kfse.Compress(in, &s)
		require.NoError(t, err, "n=%d", n)

		got, err := DecodeFrame(out, n)
		require.NoError(t, err, "n=%d", n)
		assert.Equal(t, in, got, "n=%d", n)
	}
}
