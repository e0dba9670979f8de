package plottest

import (
	"encoding/binary"
	"math/big"
	"sort"

	"github.com/chuwt/posprover"
	"github.com/chuwt/posprover/hashchain"
)

// Len is the number of table 7 entries.
func (p *Plot) Len() int {
	return len(p.f7)
}

// F7 returns the f7 of the i-th table 7 entry in file order.
func (p *Plot) F7(i int) uint64 {
	return p.f7[i]
}

// Challenge builds a challenge whose top k bits are f7 and whose last
// byte is last.
func (p *Plot) Challenge(f7 uint64, last byte) []byte {
	c := make([]byte, 32)
	binary.BigEndian.PutUint64(c, f7<<uint(64-p.K))
	for i := 8; i < 31; i++ {
		c[i] = byte(i * 7)
	}
	c[31] = last
	return c
}

// Lookup returns the file positions of the table 7 entries with f7.
func (p *Plot) Lookup(f7 uint64) []int {
	lo := sort.Search(len(p.f7), func(i int) bool { return p.f7[i] >= f7 })
	var out []int
	for i := lo; i < len(p.f7) && p.f7[i] == f7; i++ {
		out = append(out, i)
	}
	return out
}

// Conclusive reports whether a prover can find every entry with f7: the
// run of equal values must end inside a C3 park, and must not start on a
// checkpoint when it crosses into the next park.
func (p *Plot) Conclusive(f7 uint64) bool {
	m := p.Lookup(f7)
	if len(m) == 0 {
		return false
	}
	a, b := m[0], m[len(m)-1]
	if b+1 >= len(p.f7) || (b+1)%posprover.Checkpoint1Interval == 0 {
		return false
	}
	return a%posprover.Checkpoint1Interval != 0 || a/posprover.Checkpoint1Interval == b/posprover.Checkpoint1Interval
}

// Qualities returns the qualities a prover should report for challenge,
// walking the in-memory tables.
func (p *Plot) Qualities(challenge []byte) ([][32]byte, error) {
	last5 := challenge[31] & 0x1f
	var out [][32]byte
	for _, i := range p.Lookup(hashchain.ChallengeF7(challenge, p.K)) {
		pos := p.p7[i]
		for t := 6; t > 1; t-- {
			x, y := p.square(t, pos)
			if (last5>>uint(t-2))&1 == 1 {
				pos = x
			} else {
				pos = y
			}
		}
		x1, x2 := p.square(1, pos)
		q, err := hashchain.Quality(challenge, x2, x1, p.K)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// Proof returns the canonical leaves of the i-th table 7 entry.
func (p *Plot) Proof(i int) []uint64 {
	return p.leaves(6, p.p7[i])
}

func (p *Plot) leaves(table int, pos uint64) []uint64 {
	x, y := p.square(table, pos)
	l, r := x, y
	if p.smallFirst[table][pos] {
		l, r = y, x
	}
	if table == 1 {
		return []uint64{l, r}
	}
	return append(p.leaves(table-1, l), p.leaves(table-1, r)...)
}

func (p *Plot) square(table int, pos uint64) (uint64, uint64) {
	return posprover.LinePointToSquare(new(big.Int).SetUint64(p.lps[table][pos]))
}

// ParkOffset returns the file offset of park n of table 1..6.
func (p *Plot) ParkOffset(table int, n uint64) int64 {
	return int64(p.Pointers[table] + n*uint64(posprover.ParkSize(p.K, table)))
}
