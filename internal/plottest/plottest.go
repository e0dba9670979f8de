// Package plottest builds small but complete plots in memory so the disk
// prover can be exercised end to end. It runs the seven tables forward,
// prunes entries no table 7 entry depends on, and writes the result in
// the on-disk layout: compressed line point parks for tables 1..6, table 7
// position parks and the C1/C2/C3 checkpoint tables.
//
// The builder keeps line points in uint64 and therefore supports k <= 32.
package plottest

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/afero"

	"github.com/chuwt/posprover"
	"github.com/chuwt/posprover/bitfield"
	"github.com/chuwt/posprover/fse"
	"github.com/chuwt/posprover/hashchain"
)

const maxK = 32

// Plot is a plot written to Fs at Path, together with the in-memory tables
// it was written from.
type Plot struct {
	K        int
	ID       [32]byte
	Memo     []byte
	Fs       afero.Fs
	Path     string
	Pointers posprover.TablePointers

	// lps[j] holds the sorted line points of table j, 1..6.
	lps [7][]uint64
	// smallFirst[j][i] is set when the smaller half of lps[j][i] came from
	// the lower bucket.
	smallFirst [7][]bool
	// f7 and p7 are table 7 in file order: the f7 of each entry and the
	// table 6 position it stores.
	f7 []uint64
	p7 []uint64
}

type entry struct {
	y    uint64
	meta bitfield.BitField
	// l and r index the previous table. For table 1 entries l is x.
	l, r uint32
}

// Build writes a plot for k and id to path on fs.
func Build(fs afero.Fs, path string, k int, id [32]byte, memo []byte) (*Plot, error) {
	if k < hashchain.MinK || k > maxK {
		return nil, fmt.Errorf("plottest: k=%d out of range", k)
	}
	tables, err := forward(k, id)
	if err != nil {
		return nil, err
	}
	prune(&tables)

	p := &Plot{K: k, ID: id, Memo: memo, Fs: fs, Path: path}
	if err := p.compress(tables); err != nil {
		return nil, err
	}
	data, err := p.encode()
	if err != nil {
		return nil, err
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return nil, err
	}
	return p, nil
}

// forward computes tables 1..7, each sorted by y.
func forward(k int, id [32]byte) ([8][]entry, error) {
	var tables [8][]entry
	f1, err := hashchain.NewF1(k, id[:])
	if err != nil {
		return tables, err
	}
	ys := make([]uint64, 1<<uint(k))
	f1.CalculateBuckets(0, ys)
	t1 := make([]entry, len(ys))
	for x, y := range ys {
		meta, err := bitfield.New(uint64(x), k)
		if err != nil {
			return tables, err
		}
		t1[x] = entry{y: y, meta: meta, l: uint32(x)}
	}
	sortByY(t1)
	tables[1] = t1

	m := hashchain.NewMatcher()
	for t := 2; t <= 7; t++ {
		fx, err := hashchain.NewFx(k, t)
		if err != nil {
			return tables, err
		}
		prev := tables[t-1]
		var next []entry
		lstart, lend := -1, -1
		for i := 0; i < len(prev); {
			b := prev[i].y / hashchain.BC
			j := i
			for j < len(prev) && prev[j].y/hashchain.BC == b {
				j++
			}
			if lstart >= 0 && prev[lstart].y/hashchain.BC+1 == b {
				for _, mt := range m.FindMatches(yOf(prev[lstart:lend]), yOf(prev[i:j])) {
					li, ri := lstart+mt.Left, i+mt.Right
					y, meta, err := fx.CalculateBucket(prev[li].y, prev[li].meta, prev[ri].meta)
					if err != nil {
						return tables, err
					}
					next = append(next, entry{y: y, meta: meta, l: uint32(li), r: uint32(ri)})
				}
			}
			lstart, lend = i, j
			i = j
		}
		if len(next) == 0 {
			return tables, fmt.Errorf("plottest: table %d is empty", t)
		}
		for i := range prev {
			prev[i].meta = bitfield.BitField{}
		}
		sortByY(next)
		tables[t] = next
	}
	return tables, nil
}

func sortByY(es []entry) {
	slices.SortStableFunc(es, func(a, b entry) int {
		switch {
		case a.y < b.y:
			return -1
		case a.y > b.y:
			return 1
		}
		return 0
	})
}

func yOf(es []entry) []uint64 {
	out := make([]uint64, len(es))
	for i, e := range es {
		out[i] = e.y
	}
	return out
}

// prune drops entries of tables 2..6 that nothing in the next table
// points at and renumbers the pointers into them.
func prune(tables *[8][]entry) {
	for t := 7; t >= 3; t-- {
		used := make([]bool, len(tables[t-1]))
		for _, e := range tables[t] {
			used[e.l] = true
			used[e.r] = true
		}
		index := make([]uint32, len(used))
		kept := tables[t-1][:0]
		for i, e := range tables[t-1] {
			if used[i] {
				index[i] = uint32(len(kept))
				kept = append(kept, e)
			}
		}
		tables[t-1] = kept
		for i := range tables[t] {
			tables[t][i].l = index[tables[t][i].l]
			tables[t][i].r = index[tables[t][i].r]
		}
	}
}

// compress turns forward tables 2..7 into line point tables 1..6 and the
// table 7 index.
func (p *Plot) compress(tables [8][]entry) error {
	// pos maps an entry of the forward table to its line point position
	var pos []uint64
	for j := 1; j <= 6; j++ {
		src := tables[j+1]
		lps := make([]uint64, len(src))
		small := make([]bool, len(src))
		for i, e := range src {
			var a, b uint64
			if j == 1 {
				a, b = uint64(tables[1][e.l].l), uint64(tables[1][e.r].l)
			} else {
				a, b = pos[e.l], pos[e.r]
			}
			lp := posprover.SquareToLinePoint(a, b)
			if !lp.IsUint64() {
				return fmt.Errorf("plottest: line point %s overflows", lp)
			}
			lps[i] = lp.Uint64()
			small[i] = a < b
		}
		order := rank(lps)
		next := make([]uint64, len(src))
		p.lps[j] = make([]uint64, len(src))
		p.smallFirst[j] = make([]bool, len(src))
		for r, i := range order {
			next[i] = uint64(r)
			p.lps[j][r] = lps[i]
			p.smallFirst[j][r] = small[i]
		}
		pos = next
	}

	t7 := tables[7]
	f7 := make([]uint64, len(t7))
	for i, e := range t7 {
		f7[i] = e.y >> hashchain.ExtraBits
	}
	p.f7 = make([]uint64, len(t7))
	p.p7 = make([]uint64, len(t7))
	for r, i := range rank(f7) {
		p.f7[r] = f7[i]
		p.p7[r] = pos[i]
	}
	return nil
}

// rank returns the indices of vs in ascending order of value.
func rank(vs []uint64) []int {
	order := make([]int, len(vs))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case vs[a] < vs[b]:
			return -1
		case vs[a] > vs[b]:
			return 1
		}
		return 0
	})
	return order
}

func (p *Plot) header() posprover.PlotHeader {
	return posprover.PlotHeader{
		ID:                p.ID,
		K:                 uint8(p.K),
		FormatDescription: posprover.FormatDescriptionV1,
		Memo:              p.Memo,
	}
}

func parks(n int) int {
	return (n + posprover.EntriesPerPark - 1) / posprover.EntriesPerPark
}

func (p *Plot) c1() []uint64 {
	var out []uint64
	for i := 0; i < len(p.f7); i += posprover.Checkpoint1Interval {
		out = append(out, p.f7[i])
	}
	return out
}

// encode lays the tables out after the header.
func (p *Plot) encode() ([]byte, error) {
	k := p.K
	h := p.header()
	c1 := p.c1()
	var c2 []uint64
	for i := 0; i < len(c1); i += posprover.Checkpoint2Interval {
		c2 = append(c2, c1[i])
	}

	cs := uint64(posprover.CheckpointSize(k))
	ptrs := posprover.TablePointers{}
	ptrs[1] = uint64(h.Len())
	for j := 1; j <= 6; j++ {
		ptrs[j+1] = ptrs[j] + uint64(parks(len(p.lps[j])))*uint64(posprover.ParkSize(k, j))
	}
	ptrs[8] = ptrs[7] + uint64(parks(len(p.p7)))*uint64(posprover.P7ParkSize(k))
	ptrs[9] = ptrs[8] + uint64(len(c1)+1)*cs
	ptrs[10] = ptrs[9] + uint64(len(c2)+1)*cs
	p.Pointers = ptrs

	var buf bytes.Buffer
	buf.Write(h.Encode(ptrs))
	for j := 1; j <= 6; j++ {
		for start := 0; start < len(p.lps[j]); start += posprover.EntriesPerPark {
			end := min(start+posprover.EntriesPerPark, len(p.lps[j]))
			park, err := encodePark(k, j, p.lps[j][start:end])
			if err != nil {
				return nil, fmt.Errorf("plottest: table %d park %d: %w", j, start/posprover.EntriesPerPark, err)
			}
			buf.Write(park)
		}
	}
	for start := 0; start < len(p.p7); start += posprover.EntriesPerPark {
		end := min(start+posprover.EntriesPerPark, len(p.p7))
		park, err := encodeP7Park(k, p.p7[start:end])
		if err != nil {
			return nil, err
		}
		buf.Write(park)
	}
	for _, v := range append(c1, 0) {
		cp, err := checkpoint(k, v)
		if err != nil {
			return nil, err
		}
		buf.Write(cp)
	}
	for _, v := range append(c2, 0) {
		cp, err := checkpoint(k, v)
		if err != nil {
			return nil, err
		}
		buf.Write(cp)
	}
	for c := range c1 {
		park, err := p.encodeC3Park(c)
		if err != nil {
			return nil, fmt.Errorf("plottest: C3 park %d: %w", c, err)
		}
		buf.Write(park)
	}
	if uint64(buf.Len()) != ptrs[10]+uint64(len(c1)*posprover.C3Size(k)) {
		return nil, errors.New("plottest: layout size mismatch")
	}
	return buf.Bytes(), nil
}

func checkpoint(k int, v uint64) ([]byte, error) {
	bf, err := bitfield.New(v, k)
	if err != nil {
		return nil, err
	}
	return bf.Bytes(), nil
}

// encodePark writes up to EntriesPerPark sorted line points of table j.
func encodePark(k, table int, lps []uint64) ([]byte, error) {
	out := make([]byte, 0, posprover.ParkSize(k, table))
	base, err := bitfield.New(lps[0], 2*k)
	if err != nil {
		return nil, err
	}
	out = append(out, base.Bytes()...)

	stubBits := posprover.StubBits(k)
	var stubs bitfield.BitField
	deltas := make([]byte, 0, len(lps)-1)
	for i := 1; i < len(lps); i++ {
		gap := lps[i] - lps[i-1]
		if err := stubs.Append(gap&(1<<uint(stubBits)-1), stubBits); err != nil {
			return nil, err
		}
		d := gap >> uint(stubBits)
		if d >= 0xff {
			return nil, fmt.Errorf("delta %d too large", d)
		}
		deltas = append(deltas, byte(d))
	}
	stubBytes := make([]byte, posprover.StubsSize(k))
	copy(stubBytes, stubs.Bytes())
	out = append(out, stubBytes...)

	prefix, block, err := fse.EncodeBlock(deltas, posprover.DeltaR(table), posprover.MaxDeltasSize(table)-2)
	if err != nil {
		return nil, err
	}
	out = binary.LittleEndian.AppendUint16(out, prefix)
	out = append(out, block...)
	return pad(out, posprover.ParkSize(k, table)), nil
}

func encodeP7Park(k int, positions []uint64) ([]byte, error) {
	var bf bitfield.BitField
	for _, v := range positions {
		if err := bf.Append(v, k+1); err != nil {
			return nil, err
		}
	}
	return pad(bf.Bytes(), posprover.P7ParkSize(k)), nil
}

func (p *Plot) encodeC3Park(c int) ([]byte, error) {
	start := c * posprover.Checkpoint1Interval
	end := min(start+posprover.Checkpoint1Interval, len(p.f7))
	deltas := make([]byte, 0, end-start-1)
	for i := start + 1; i < end; i++ {
		d := p.f7[i] - p.f7[i-1]
		if d >= 0xff {
			return nil, fmt.Errorf("f7 delta %d too large", d)
		}
		deltas = append(deltas, byte(d))
	}
	size := posprover.C3Size(p.K)
	prefix, block, err := fse.EncodeBlock(deltas, posprover.C3R, size-2)
	if err != nil {
		return nil, err
	}
	out := binary.BigEndian.AppendUint16(make([]byte, 0, size), prefix)
	return pad(append(out, block...), size), nil
}

func pad(b []byte, size int) []byte {
	if len(b) < size {
		b = append(b, make([]byte, size-len(b))...)
	}
	return b
}
