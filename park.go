package posprover

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"github.com/chuwt/posprover/bitfield"
	"github.com/chuwt/posprover/fse"
)

// readLinePoint returns the line point at position of table 1..6.
//
// A park is a baseline line point, the low (k-3) bits of every following
// gap packed back to back, then a little-endian size prefix and the FSE
// coded high bits of those gaps.
func (p *DiskProver) readLinePoint(f io.ReaderAt, table int, position uint64) (*big.Int, error) {
	k := p.K()
	park := position / EntriesPerPark
	size := ParkSize(k, table)
	buf, err := readAt(f, int64(p.pointers[table]+park*uint64(size)), size)
	if err != nil {
		return nil, fmt.Errorf("read park %d of table %d: %w", park, table, err)
	}
	corrupt := func(err error) error {
		return &CorruptionError{Table: table, Park: park, Err: err}
	}

	lpSize := LinePointSize(k)
	baseline, err := bitfield.FromBytes(buf, lpSize, 2*k)
	if err != nil {
		return nil, corrupt(err)
	}
	stubsSize := StubsSize(k)
	stubs, err := bitfield.FromBytes(buf[lpSize:], stubsSize, stubsSize*8)
	if err != nil {
		return nil, corrupt(err)
	}

	rest := buf[lpSize+stubsSize:]
	prefix := binary.LittleEndian.Uint16(rest)
	if n := fse.BlockSize(prefix); n > len(rest)-2 {
		return nil, corrupt(fmt.Errorf("delta block of %d bytes, room for %d", n, len(rest)-2))
	}
	deltas, err := fse.DecodeBlock(prefix, rest[2:], EntriesPerPark-1, rValues[table-1])
	if err != nil {
		return nil, corrupt(err)
	}

	offset := int(position % EntriesPerPark)
	if offset > len(deltas) {
		return nil, corrupt(fmt.Errorf("entry %d past %d deltas", offset, len(deltas)))
	}
	stubBits := k - stubMinusBits
	var sumStubs, sumDeltas uint64
	for i := 0; i < offset; i++ {
		s, err := stubs.Bits(i*stubBits, stubBits)
		if err != nil {
			return nil, corrupt(err)
		}
		sumStubs += s
		sumDeltas += uint64(deltas[i])
	}

	lp := baseline.Big()
	high := new(big.Int).SetUint64(sumDeltas)
	lp.Add(lp, high.Lsh(high, uint(stubBits)))
	return lp.Add(lp, new(big.Int).SetUint64(sumStubs)), nil
}
