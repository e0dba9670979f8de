package hashchain

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/chuwt/posprover/bitfield"
)

// Fx computes entries of tables 2 through 7 from a matching pair of the
// previous table.
type Fx struct {
	k     int
	table int
}

func NewFx(k, tableIndex int) (*Fx, error) {
	if k < MinK || k > MaxK {
		return nil, fmt.Errorf("%w: %d", ErrBadK, k)
	}
	if tableIndex < 2 || tableIndex > 7 {
		return nil, fmt.Errorf("hashchain: no fx for table %d", tableIndex)
	}
	return &Fx{k: k, table: tableIndex}, nil
}

// CalculateBucket hashes y1 || l || r and returns the new y and metadata.
// y1 is the y of the left entry, l and r are the metadata of both entries.
func (f *Fx) CalculateBucket(y1 uint64, l, r bitfield.BitField) (uint64, bitfield.BitField, error) {
	yBits := f.k + ExtraBits
	in, err := bitfield.New(y1, yBits)
	if err != nil {
		return 0, bitfield.BitField{}, err
	}
	lr := l.Concat(r)
	hash := blake3.Sum256(in.Concat(lr).Bytes())
	y := binary.BigEndian.Uint64(hash[:8]) >> uint(64-yBits)

	switch {
	case f.table < 4:
		return y, lr, nil
	case f.table < 7:
		meta, err := bitfield.FromBytesAt(hash[:], len(hash), VectorLens[f.table+1]*f.k, yBits)
		if err != nil {
			return 0, bitfield.BitField{}, err
		}
		return y, meta, nil
	default:
		return y, bitfield.BitField{}, nil
	}
}
