package fse

import (
	"container/heap"
	"fmt"
	"math"
	"sync"
)

const (
	MinTableLog         = 5
	TableLogAbsoluteMax = 15
	MaxSymbolValue      = 255

	// DeltaTableLog is the table log used for every delta block.
	DeltaTableLog = 14
)

// ReadNCount decodes a normalized count header. It returns the counts per
// symbol (-1 marks a low probability symbol), the table log and the number
// of header bytes consumed.
func ReadNCount(in []byte) ([]int16, int, int, error) {
	if len(in) < 4 {
		buf := make([]byte, 4)
		copy(buf, in)
		counts, tableLog, n, err := readNCount(buf)
		if err != nil {
			return nil, 0, 0, err
		}
		if n > len(in) {
			return nil, 0, 0, fmt.Errorf("%w: header needs %d bytes, have %d", ErrCorruption, n, len(in))
		}
		return counts, tableLog, n, nil
	}
	return readNCount(in)
}

func readNCount(in []byte) ([]int16, int, int, error) {
	r := forwardReader{data: in}
	nbBits := int(r.peek(4)) + MinTableLog
	if nbBits > TableLogAbsoluteMax {
		return nil, 0, 0, fmt.Errorf("%w: %d", ErrTableLogTooLarge, nbBits)
	}
	r.skip(4)
	tableLog := nbBits
	remaining := (1 << nbBits) + 1
	threshold := 1 << nbBits
	nbBits++

	counts := make([]int16, 0, MaxSymbolValue+1)
	previous0 := false
	for remaining > 1 && len(counts) <= MaxSymbolValue {
		if previous0 {
			n0 := len(counts)
			for r.peek(16) == 0xFFFF {
				n0 += 24
				r.skip(16)
				if n0 > MaxSymbolValue {
					return nil, 0, 0, ErrMaxSymbolValueTooSmall
				}
			}
			for r.peek(2) == 3 {
				n0 += 3
				r.skip(2)
			}
			n0 += int(r.peek(2))
			r.skip(2)
			if n0 > MaxSymbolValue {
				return nil, 0, 0, ErrMaxSymbolValueTooSmall
			}
			for len(counts) < n0 {
				counts = append(counts, 0)
			}
		}

		max := (2*threshold - 1) - remaining
		v := int(r.peek(32))
		var count int
		if v&(threshold-1) < max {
			count = v & (threshold - 1)
			r.skip(nbBits - 1)
		} else {
			count = v & (2*threshold - 1)
			if count >= threshold {
				count -= max
			}
			r.skip(nbBits)
		}

		count--
		if count < 0 {
			remaining += count
		} else {
			remaining -= count
		}
		counts = append(counts, int16(count))
		previous0 = count == 0
		for remaining < threshold && threshold > 1 {
			nbBits--
			threshold >>= 1
		}
	}
	if remaining != 1 {
		return nil, 0, 0, fmt.Errorf("%w: normalized counts sum to %d, want %d",
			ErrCorruption, (1<<tableLog)+1-remaining, 1<<tableLog)
	}
	consumed := (r.pos + 7) / 8
	if consumed > len(in) {
		return nil, 0, 0, fmt.Errorf("%w: header overruns input", ErrCorruption)
	}
	return counts, tableLog, consumed, nil
}

// WriteNCount encodes normalized counts in the layout ReadNCount expects.
func WriteNCount(counts []int16, tableLog int) ([]byte, error) {
	if tableLog < MinTableLog || tableLog > TableLogAbsoluteMax {
		return nil, fmt.Errorf("%w: %d", ErrTableLogTooLarge, tableLog)
	}
	if len(counts) == 0 || len(counts) > MaxSymbolValue+1 {
		return nil, ErrMaxSymbolValueTooSmall
	}
	var w bitWriter
	w.add(uint64(tableLog-MinTableLog), 4)

	tableSize := 1 << tableLog
	remaining := tableSize + 1
	threshold := tableSize
	nbBits := uint(tableLog + 1)
	alphabet := len(counts)
	previous0 := false
	symbol := 0
	for symbol < alphabet && remaining > 1 {
		if previous0 {
			start := symbol
			for symbol < alphabet && counts[symbol] == 0 {
				symbol++
			}
			if symbol == alphabet {
				break
			}
			for symbol >= start+24 {
				start += 24
				w.add(0xFFFF, 16)
			}
			for symbol >= start+3 {
				start += 3
				w.add(3, 2)
			}
			w.add(uint64(symbol-start), 2)
		}
		count := int(counts[symbol])
		symbol++
		max := (2*threshold - 1) - remaining
		if count < 0 {
			remaining += count
		} else {
			remaining -= count
		}
		count++
		if count >= threshold {
			count += max
		}
		n := nbBits
		if count < max {
			n--
		}
		w.add(uint64(count), n)
		previous0 = count == 1
		if remaining < 1 {
			return nil, fmt.Errorf("%w: counts exceed table size", ErrCorruption)
		}
		for remaining < threshold {
			nbBits--
			threshold >>= 1
		}
	}
	if remaining != 1 {
		return nil, fmt.Errorf("%w: counts do not sum to table size", ErrCorruption)
	}
	return w.bytes(), nil
}

var normalizedCounts sync.Map

// NormalizedCount quantises the delta distribution for parameter r to
// 2^14 states. The distribution is the one the plots are written with:
// symbol i has probability proportional to e^(-i/r).
func NormalizedCount(r float64) []int16 {
	if v, ok := normalizedCounts.Load(r); ok {
		return v.([]int16)
	}
	const (
		e            = 2.718281828459
		minProb      = 1e-50
		totalQuantum = 1 << DeltaTableLog
	)
	var dpdf []float64
	p := 1 - math.Pow((e-1)/e, 1.0/r)
	for p > minProb && len(dpdf) < MaxSymbolValue {
		dpdf = append(dpdf, p)
		p = (math.Pow(e, 1.0/r) - 1) * math.Pow(e-1, 1.0/r)
		p = p / math.Pow(e, float64(len(dpdf)+1)/r)
	}

	counts := make([]int16, len(dpdf))
	for i := range counts {
		counts[i] = 1
	}
	q := &gainQueue{dpdf: dpdf, counts: counts}
	for i := range dpdf {
		q.idx = append(q.idx, i)
	}
	heap.Init(q)
	for todo := 0; todo < totalQuantum-len(dpdf); todo++ {
		i := q.idx[0]
		counts[i]++
		heap.Fix(q, 0)
	}
	for i := range counts {
		if counts[i] == 1 {
			counts[i] = -1
		}
	}
	normalizedCounts.Store(r, counts)
	return counts
}

// gainQueue orders symbols by the entropy gained from one more state.
type gainQueue struct {
	dpdf   []float64
	counts []int16
	idx    []int
}

func (q *gainQueue) gain(i int) float64 {
	c := float64(q.counts[i])
	return q.dpdf[i] * (math.Log2(c+1) - math.Log2(c))
}

func (q *gainQueue) Len() int { return len(q.idx) }

func (q *gainQueue) Less(a, b int) bool {
	ga, gb := q.gain(q.idx[a]), q.gain(q.idx[b])
	if ga != gb {
		return ga > gb
	}
	return q.idx[a] < q.idx[b]
}

func (q *gainQueue) Swap(a, b int) { q.idx[a], q.idx[b] = q.idx[b], q.idx[a] }

func (q *gainQueue) Push(x interface{}) { q.idx = append(q.idx, x.(int)) }

func (q *gainQueue) Pop() interface{} {
	n := len(q.idx)
	x := q.idx[n-1]
	q.idx = q.idx[:n-1]
	return x
}
