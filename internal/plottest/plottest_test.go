package plottest

import (
	"slices"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chuwt/posprover"
	"github.com/chuwt/posprover/hashchain"
)

func TestPrune(t *testing.T) {
	var tables [8][]entry
	tables[1] = make([]entry, 4)
	for i := range tables[1] {
		tables[1][i] = entry{y: uint64(i), l: uint32(i)}
	}
	for j := 2; j <= 6; j++ {
		tables[j] = []entry{{y: 0, l: 0, r: 1}, {y: 1, l: 1, r: 2}, {y: 2, l: 2, r: 3}, {y: 3, l: 0, r: 3}}
	}
	// table 7 only uses entries 1 and 3 of table 6
	tables[7] = []entry{{y: 9, l: 3, r: 1}}

	prune(&tables)

	assert.Len(t, tables[1], 4)
	require.Len(t, tables[6], 2)
	assert.Equal(t, []uint64{1, 3}, yOf(tables[6]))
	assert.Equal(t, entry{y: 9, l: 1, r: 0}, tables[7][0])

	// table 6 entries 1 and 3 use table 5 entries 0, 1, 2 and 3
	assert.Len(t, tables[5], 4)
	assert.Equal(t, uint32(1), tables[6][0].l)
	assert.Equal(t, uint32(2), tables[6][0].r)
	for j := 2; j <= 5; j++ {
		for _, e := range tables[j+1] {
			assert.Less(t, int(e.l), len(tables[j]))
			assert.Less(t, int(e.r), len(tables[j]))
		}
	}
}

func TestBuild(t *testing.T) {
	var id [32]byte
	id[5] = 0x42
	fs := afero.NewMemMapFs()
	p, err := Build(fs, "/k18.plot", 18, id, make([]byte, 112))
	require.NoError(t, err)

	full := 1 << uint(p.K)
	for j := 1; j <= 6; j++ {
		require.NotEmpty(t, p.lps[j], "table %d", j)
		assert.True(t, slices.IsSorted(p.lps[j]), "table %d", j)
		assert.Len(t, p.smallFirst[j], len(p.lps[j]))
	}
	// tables 2..6 lose the entries table 7 never reaches
	for j := 1; j <= 5; j++ {
		assert.Less(t, len(p.lps[j]), full, "table %d", j+1)
	}
	assert.True(t, slices.IsSorted(p.f7))
	assert.Len(t, p.p7, p.Len())

	info, err := fs.Stat(p.Path)
	require.NoError(t, err)
	c1 := (p.Len() + posprover.Checkpoint1Interval - 1) / posprover.Checkpoint1Interval
	assert.Equal(t, int64(p.Pointers[10])+int64(c1*posprover.C3Size(p.K)), info.Size())

	for i := 0; i < p.Len(); i += p.Len()/25 + 1 {
		f7, err := hashchain.ValidateProof(p.K, id[:], p.Challenge(p.F7(i), 0), p.Proof(i))
		require.NoError(t, err, "entry %d", i)
		assert.Equal(t, p.F7(i), f7)
	}
}

func TestBuildRejectsK(t *testing.T) {
	_, err := Build(afero.NewMemMapFs(), "/k.plot", 33, [32]byte{}, nil)
	assert.Error(t, err)
}
