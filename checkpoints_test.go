package posprover

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chuwt/posprover/bitfield"
)

// c1Layout lays out n C1 checkpoints 10, 12, 14, ... followed by the zero
// terminator and returns a prover whose C2 samples every
// Checkpoint2Interval-th of them.
func c1Layout(t *testing.T, n int) (*DiskProver, *bytes.Reader) {
	t.Helper()
	p := &DiskProver{header: PlotHeader{K: 18}}
	var buf bytes.Buffer
	for i := 0; i <= n; i++ {
		v := uint64(10 + 2*i)
		if i == n {
			v = 0
		}
		bf, err := bitfield.New(v, 18)
		require.NoError(t, err)
		buf.Write(bf.Bytes())
		if i < n && i%Checkpoint2Interval == 0 {
			p.c2 = append(p.c2, v)
		}
	}
	p.pointers[tableC1] = 0
	p.pointers[tableC2] = uint64(buf.Len())
	return p, bytes.NewReader(buf.Bytes())
}

func TestLocateP7(t *testing.T) {
	p, f := c1Layout(t, 25000)
	require.Len(t, p.c2, 3)

	tests := []struct {
		name string
		f7   uint64
		want p7Lookup
	}{
		{"first checkpoint", 10, p7Lookup{kind: singlePark, c1: 0, seed: 10}},
		{"first park", 11, p7Lookup{kind: singlePark, c1: 0, seed: 10}},
		{"second C2 entry", 30001, p7Lookup{kind: singlePark, c1: 14995, seed: 30000}},
		{"on checkpoint", 30000, p7Lookup{kind: boundaryPark, c1: 14995, seed: 30000, prevSeed: 29998}},
		{"on C2 entry", 20010, p7Lookup{kind: boundaryPark, c1: 10000, seed: 20010, prevSeed: 20008}},
		{"third C2 entry", 45001, p7Lookup{kind: singlePark, c1: 22495, seed: 45000}},
		{"past last checkpoint", 200000, p7Lookup{kind: singlePark, c1: 24999, seed: 50008}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := p.locateP7(f, tt.f7)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok, err := p.locateP7(f, 9)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocateP7C2PastC1(t *testing.T) {
	p, f := c1Layout(t, 25000)
	p.c2 = append(p.c2, 60000)

	_, _, err := p.locateP7(f, 60001)
	assert.ErrorIs(t, err, ErrInvalidPlot)
}
