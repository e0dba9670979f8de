package hashchain

import "sync"

// Match is a pair of indices into a left and a right bucket.
type Match struct {
	Left  int
	Right int
}

var (
	targetsOnce sync.Once
	targets     *[2][BC][ExtraBitsPow]uint16
)

// Targets returns, per parity of the left bucket and per left y offset, the
// right y offsets that match it. The table is built on first use and never
// modified afterwards.
func Targets() *[2][BC][ExtraBitsPow]uint16 {
	targetsOnce.Do(func() {
		t := new([2][BC][ExtraBitsPow]uint16)
		for parity := 0; parity < 2; parity++ {
			for i := 0; i < BC; i++ {
				indJ := i / C
				for m := 0; m < ExtraBitsPow; m++ {
					c := 2*m + parity
					t[parity][i][m] = uint16(((indJ+m)%B)*C + (c*c+i)%C)
				}
			}
		}
		targets = t
	})
	return targets
}

type rmapEntry struct {
	pos   uint16
	count uint16
}

// Matcher finds matches between adjacent buckets. It keeps scratch space
// between calls and is not safe for concurrent use.
type Matcher struct {
	rmap  []rmapEntry
	clean []uint16
}

func NewMatcher() *Matcher {
	return &Matcher{rmap: make([]rmapEntry, BC)}
}

// FindMatches returns every matching (left, right) pair of two y-sorted
// buckets whose bucket numbers y/BC are consecutive.
func (m *Matcher) FindMatches(left, right []uint64) []Match {
	if len(left) == 0 || len(right) == 0 {
		return nil
	}
	for _, y := range m.clean {
		m.rmap[y].count = 0
	}
	m.clean = m.clean[:0]

	parity := (left[0] / BC) % 2
	remove := (right[0] / BC) * BC
	for i, y := range right {
		ry := y - remove
		if m.rmap[ry].count == 0 {
			m.rmap[ry].pos = uint16(i)
		}
		m.rmap[ry].count++
		m.clean = append(m.clean, uint16(ry))
	}

	t := Targets()
	removeY := remove - BC
	var out []Match
	for i, y := range left {
		r := y - removeY
		for _, target := range t[parity][r] {
			e := m.rmap[target]
			for j := 0; j < int(e.count); j++ {
				out = append(out, Match{Left: i, Right: int(e.pos) + j})
			}
		}
	}
	return out
}

// FindMatches is Matcher.FindMatches with fresh scratch space.
func FindMatches(left, right []uint64) []Match {
	return NewMatcher().FindMatches(left, right)
}

// CheckMatch reports whether yl and yr match.
func CheckMatch(yl, yr uint64) bool {
	bl := int64(yl / BC)
	br := int64(yr / BC)
	if bl+1 != br {
		return false
	}
	l := int64(yl % BC)
	r := int64(yr % BC)
	for m := int64(0); m < ExtraBitsPow; m++ {
		if ((r/C-l/C)-m)%B == 0 {
			c := 2*m + bl%2
			if ((r%C-l%C)-c*c)%C == 0 {
				return true
			}
		}
	}
	return false
}
