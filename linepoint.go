package posprover

import "math/big"

// GetXEnc returns x*(x-1)/2, the first line point whose larger coordinate
// is x.
func GetXEnc(x uint64) *big.Int {
	a := new(big.Int).SetUint64(x)
	if x == 0 {
		return a
	}
	b := new(big.Int).SetUint64(x - 1)
	a.Mul(a, b)
	return a.Rsh(a, 1)
}

// SquareToLinePoint maps the unordered pair {x, y} to a single integer.
func SquareToLinePoint(x, y uint64) *big.Int {
	if y > x {
		x, y = y, x
	}
	lp := GetXEnc(x)
	return lp.Add(lp, new(big.Int).SetUint64(y))
}

// LinePointToSquare inverts SquareToLinePoint and returns (x, y) with
// x > y.
func LinePointToSquare(lp *big.Int) (uint64, uint64) {
	var x uint64
	for i := 63; i >= 0; i-- {
		next := x + 1<<uint(i)
		if lp.Cmp(GetXEnc(next)) >= 0 {
			x = next
		}
	}
	y := new(big.Int).Sub(lp, GetXEnc(x))
	return x, y.Uint64()
}
