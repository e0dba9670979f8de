package posprover

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/chuwt/posprover/bitfield"
	"github.com/chuwt/posprover/fse"
	"github.com/chuwt/posprover/hashchain"
)

type lookupKind int

const (
	// singlePark: every entry for the target lies in the C3 park of the
	// checkpoint at or below it.
	singlePark lookupKind = iota
	// boundaryPark: the checkpoint itself equals the target, so the tail
	// of the previous park may hold entries too.
	boundaryPark
)

// p7Lookup names the C3 parks to scan for one f7.
type p7Lookup struct {
	kind lookupKind
	// c1 is the index of the greatest C1 checkpoint not above the target.
	c1   uint64
	seed uint64
	// prevSeed is the checkpoint at c1-1, set for boundaryPark.
	prevSeed uint64
}

// getP7Entries returns the table 6 positions stored by every table 7
// entry whose f7 equals the top k bits of challenge.
func (p *DiskProver) getP7Entries(f io.ReaderAt, challenge []byte) ([]uint64, error) {
	if len(p.c2) == 0 {
		return nil, nil
	}
	f7 := hashchain.ChallengeF7(challenge, p.K())
	l, ok, err := p.locateP7(f, f7)
	if err != nil || !ok {
		return nil, err
	}
	positions, err := p.p7Positions(f, l, f7)
	if err != nil || len(positions) == 0 {
		return nil, err
	}
	return p.readP7(f, positions)
}

// locateP7 walks C2 in memory and then one C2 step of C1 on disk. ok is
// false when the target is below the first checkpoint.
func (p *DiskProver) locateP7(f io.ReaderAt, f7 uint64) (p7Lookup, bool, error) {
	idx := -1
	for i, v := range p.c2 {
		if f7 < v {
			break
		}
		idx = i
	}
	if idx < 0 {
		return p7Lookup{}, false, nil
	}

	size := uint64(CheckpointSize(p.K()))
	total := (p.pointers[tableC2] - p.pointers[tableC1]) / size
	start := uint64(idx) * Checkpoint2Interval
	if start >= total {
		return p7Lookup{}, false, fmt.Errorf("%w: C2 entry %d past %d C1 entries", ErrInvalidPlot, idx, total)
	}
	n := total - start
	if n > Checkpoint2Interval {
		n = Checkpoint2Interval
	}
	buf, err := readAt(f, int64(p.pointers[tableC1]+start*size), int(n*size))
	if err != nil {
		return p7Lookup{}, false, fmt.Errorf("read C1: %w", err)
	}

	l := p7Lookup{kind: singlePark, c1: start}
	for s := uint64(0); s < n; s++ {
		v, err := p.checkpointValue(buf[s*size:])
		if err != nil {
			return p7Lookup{}, false, err
		}
		// a zero past the first entry terminates C1
		if s != 0 && v == 0 {
			break
		}
		if f7 < v {
			break
		}
		l.c1 = start + s
		l.seed = v
	}

	if l.seed == f7 && l.c1 > 0 {
		l.kind = boundaryPark
		prev, err := readAt(f, int64(p.pointers[tableC1]+(l.c1-1)*size), int(size))
		if err != nil {
			return p7Lookup{}, false, fmt.Errorf("read C1: %w", err)
		}
		if l.prevSeed, err = p.checkpointValue(prev); err != nil {
			return p7Lookup{}, false, err
		}
	}
	return l, true, nil
}

// p7Positions returns the table 7 positions holding f7.
func (p *DiskProver) p7Positions(f io.ReaderAt, l p7Lookup, f7 uint64) ([]uint64, error) {
	base := l.c1 * Checkpoint1Interval
	var out []uint64
	switch l.kind {
	case boundaryPark:
		deltas, ok, err := p.readC3Park(f, l.c1-1)
		if err != nil {
			return nil, err
		}
		if ok {
			// the next checkpoint equals f7, so running off the end of
			// this park is conclusive
			prev, _ := p.scanC3(deltas, l.prevSeed, f7, l.c1-1)
			out = append(out, prev...)
		}
		out = append(out, base)
	case singlePark:
		if l.seed == f7 {
			out = append(out, base)
		}
	}

	deltas, ok, err := p.readC3Park(f, l.c1)
	if err != nil || !ok {
		return out, err
	}
	found, surpassed := p.scanC3(deltas, l.seed, f7, l.c1)
	if !surpassed {
		// The park ran out without passing f7. In the final park the
		// zero padding looks like repeated entries, so nothing found here
		// can be trusted.
		return out, nil
	}
	return append(out, found...), nil
}

// scanC3 accumulates the deltas of C3 park c1 from the checkpoint value
// curr and records every position whose f7 equals target. surpassed
// reports whether the scan passed target before the park ended.
func (p *DiskProver) scanC3(deltas []byte, curr, target, c1 uint64) ([]uint64, bool) {
	var found []uint64
	pos := c1 * Checkpoint1Interval
	last := (c1+1)*Checkpoint1Interval - 1
	limit := uint64(1)<<uint(p.K()) - 1
	for _, d := range deltas {
		if curr > target {
			break
		}
		curr += uint64(d)
		pos++
		if curr == target {
			found = append(found, pos)
		}
		if pos >= last || curr >= limit {
			break
		}
	}
	return found, curr > target
}

// readC3Park decodes the deltas of C3 park c1. A park that does not decode
// is logged and reported as not ok.
func (p *DiskProver) readC3Park(f io.ReaderAt, c1 uint64) ([]byte, bool, error) {
	size := C3Size(p.K())
	buf, err := readAt(f, int64(p.pointers[tableC3]+c1*uint64(size)), size)
	if err != nil {
		return nil, false, fmt.Errorf("read C3 park %d: %w", c1, err)
	}
	prefix := binary.BigEndian.Uint16(buf)
	deltas, err := fse.DecodeBlock(prefix, buf[2:], Checkpoint1Interval, C3R)
	if err != nil {
		p.log.Warn("undecodable C3 park",
			"file", p.filename,
			"park", c1,
			"err", err)
		return nil, false, nil
	}
	return deltas, true, nil
}

// readP7 resolves table 7 positions to the table 6 positions they store.
func (p *DiskProver) readP7(f io.ReaderAt, positions []uint64) ([]uint64, error) {
	k := p.K()
	size := P7ParkSize(k)
	width := k + 1
	out := make([]uint64, 0, len(positions))

	var park bitfield.BitField
	current := ^uint64(0)
	for _, pos := range positions {
		if idx := pos / EntriesPerPark; idx != current {
			buf, err := readAt(f, int64(p.pointers[7]+idx*uint64(size)), size)
			if err != nil {
				return nil, fmt.Errorf("read table 7 park %d: %w", idx, err)
			}
			if park, err = bitfield.FromBytes(buf, size, size*8); err != nil {
				return nil, &CorruptionError{Table: 7, Park: idx, Err: err}
			}
			current = idx
		}
		v, err := park.Bits(int(pos%EntriesPerPark)*width, width)
		if err != nil {
			return nil, &CorruptionError{Table: 7, Park: current, Err: err}
		}
		out = append(out, v)
	}
	return out, nil
}
