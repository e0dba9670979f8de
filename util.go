package posprover

import (
	"io"

	"github.com/chuwt/posprover/hashchain"
)

const (
	plotMagic = "Proof of Space Plot"
	plotIDLen = 32

	minK = hashchain.MinK
	maxK = hashchain.MaxK

	stubMinusBits         = 3
	c3BitsPerEntry        = 2.4
	maxAverageDeltaTable1 = 5.6
	maxAverageDelta       = 3.5
)

// Plot layout parameters shared with plot writers.
const (
	FormatDescriptionV1 = "v1.0"

	EntriesPerPark      = 2048
	Checkpoint1Interval = 10000
	Checkpoint2Interval = 10000

	// C3R is the delta distribution of C3 parks.
	C3R = 1.0
)

// rValues is the delta distribution of tables 1 through 6.
var rValues = [6]float64{4.7, 2.75, 2.75, 2.7, 2.6, 2.45}

// DeltaR returns the delta distribution parameter of table 1..6.
func DeltaR(table int) float64 {
	return rValues[table-1]
}

// StubBits is the width of the low part of a line point gap stored
// verbatim in a park.
func StubBits(k int) int {
	return k - stubMinusBits
}

func byteAlign(bits uint64) uint64 {
	return (bits + 7) &^ 7
}

func cdiv(a, b int) int {
	return (a + b - 1) / b
}

// LinePointSize is the byte size of a park's baseline line point.
func LinePointSize(k int) int {
	return int(byteAlign(uint64(2*k)) / 8)
}

// StubsSize is the byte size of a park's packed stub array.
func StubsSize(k int) int {
	return int(byteAlign(uint64((EntriesPerPark-1)*(k-stubMinusBits))) / 8)
}

// MaxDeltasSize is the space a park reserves for its size prefix and
// delta block.
func MaxDeltasSize(table int) int {
	avg := maxAverageDelta
	if table == 1 {
		avg = maxAverageDeltaTable1
	}
	return int(byteAlign(uint64(float64(EntriesPerPark-1)*avg)) / 8)
}

func ParkSize(k, table int) int {
	return LinePointSize(k) + StubsSize(k) + MaxDeltasSize(table)
}

// P7ParkSize is the byte size of a table 7 park of (k+1)-bit positions.
func P7ParkSize(k int) int {
	return int(byteAlign(uint64((k+1)*EntriesPerPark)) / 8)
}

// C3Size is the byte size of one C3 park, size prefix included.
func C3Size(k int) int {
	if k < 20 {
		return int(byteAlign(8*Checkpoint1Interval) / 8)
	}
	return int(byteAlign(uint64(c3BitsPerEntry*Checkpoint1Interval)) / 8)
}

// CheckpointSize is the byte size of one C1 or C2 entry.
func CheckpointSize(k int) int {
	return cdiv(k, 8)
}

// readAt reads exactly n bytes at off.
func readAt(r io.ReaderAt, off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := r.ReadAt(buf, off)
	if got == n {
		return buf, nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, err
}
