package posprover

import (
	"fmt"

	"github.com/chuwt/posprover/bitfield"
	"github.com/chuwt/posprover/hashchain"
)

// reorderProof puts leaves gathered by getInputs into the order the plotter
// matched them in. At each of tables 2..7 the pair whose y falls in the
// lower bucket goes first, and its block of leaves moves with it.
func (p *DiskProver) reorderProof(xs []uint64) ([]uint64, error) {
	if len(xs) != hashchain.ProofLen {
		return nil, fmt.Errorf("reorder %d leaves, want %d", len(xs), hashchain.ProofLen)
	}
	k := p.K()
	f1, err := hashchain.NewF1(k, p.header.ID[:])
	if err != nil {
		return nil, err
	}

	leaves := append([]uint64(nil), xs...)
	ys := make([]uint64, len(leaves))
	metas := make([]bitfield.BitField, len(leaves))
	for i, x := range leaves {
		if ys[i], metas[i], err = f1.CalculateBucket(x); err != nil {
			return nil, err
		}
	}

	for table := 2; table <= 7; table++ {
		fx, err := hashchain.NewFx(k, table)
		if err != nil {
			return nil, err
		}
		block := 1 << uint(table-2)
		next := make([]uint64, 0, len(leaves))
		for i := 0; i < len(ys)/2; i++ {
			l, r := 2*i, 2*i+1
			lo := leaves[l*block : (l+1)*block]
			hi := leaves[r*block : (r+1)*block]
			if ys[l]/hashchain.BC > ys[r]/hashchain.BC {
				l, r = r, l
				lo, hi = hi, lo
			}
			next = append(append(next, lo...), hi...)
			if ys[i], metas[i], err = fx.CalculateBucket(ys[l], metas[l], metas[r]); err != nil {
				return nil, err
			}
		}
		leaves = next
		ys = ys[:len(ys)/2]
		metas = metas[:len(metas)/2]
	}
	return leaves, nil
}
