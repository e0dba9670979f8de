package fse

import (
	"fmt"
	"math/bits"
)

type symbolTransform struct {
	deltaNbBits    uint32
	deltaFindState int32
}

// EncodeTable is the compression counterpart of DecodeTable.
type EncodeTable struct {
	tableLog   uint
	counts     []int16
	stateTable []uint16
	symbolTT   []symbolTransform
}

// NewEncodeTable builds the compression table for normalized counts.
func NewEncodeTable(counts []int16, tableLog int) (*EncodeTable, error) {
	if tableLog < MinTableLog || tableLog > TableLogAbsoluteMax {
		return nil, fmt.Errorf("%w: %d", ErrTableLogTooLarge, tableLog)
	}
	tableSize := 1 << tableLog
	tableMask := tableSize - 1
	highThreshold := tableSize - 1
	maxSymbol := len(counts) - 1

	tableSymbol := make([]uint8, tableSize)
	cumul := make([]int, maxSymbol+2)
	for u := 1; u <= maxSymbol+1; u++ {
		if counts[u-1] == -1 {
			cumul[u] = cumul[u-1] + 1
			tableSymbol[highThreshold] = uint8(u - 1)
			highThreshold--
		} else {
			cumul[u] = cumul[u-1] + int(counts[u-1])
		}
	}
	cumul[maxSymbol+1] = tableSize + 1

	step := tableStep(tableSize)
	position := 0
	for s := 0; s <= maxSymbol; s++ {
		for i := 0; i < int(counts[s]); i++ {
			tableSymbol[position] = uint8(s)
			position = (position + step) & tableMask
			for position > highThreshold {
				position = (position + step) & tableMask
			}
		}
	}
	if position != 0 {
		return nil, fmt.Errorf("%w: counts do not fill the table", ErrCorruption)
	}

	stateTable := make([]uint16, tableSize)
	for u := 0; u < tableSize; u++ {
		s := tableSymbol[u]
		stateTable[cumul[s]] = uint16(tableSize + u)
		cumul[s]++
	}

	symbolTT := make([]symbolTransform, maxSymbol+1)
	total := 0
	for s := 0; s <= maxSymbol; s++ {
		switch c := int(counts[s]); c {
		case 0:
		case -1, 1:
			symbolTT[s].deltaNbBits = uint32(tableLog<<16) - uint32(tableSize)
			symbolTT[s].deltaFindState = int32(total - 1)
			total++
		default:
			maxBitsOut := uint32(tableLog) - uint32(bits.Len32(uint32(c-1))-1)
			minStatePlus := uint32(c) << maxBitsOut
			symbolTT[s].deltaNbBits = (maxBitsOut << 16) - minStatePlus
			symbolTT[s].deltaFindState = int32(total - c)
			total += c
		}
	}
	return &EncodeTable{tableLog: uint(tableLog), counts: counts, stateTable: stateTable, symbolTT: symbolTT}, nil
}

type encState struct {
	value uint32
}

func (ct *EncodeTable) initState(symbol byte) encState {
	tt := ct.symbolTT[symbol]
	nbBitsOut := (tt.deltaNbBits + (1 << 15)) >> 16
	value := (nbBitsOut << 16) - tt.deltaNbBits
	return encState{value: uint32(ct.stateTable[int32(value>>nbBitsOut)+tt.deltaFindState])}
}

func (ct *EncodeTable) encode(w *bitWriter, st *encState, symbol byte) {
	tt := ct.symbolTT[symbol]
	nbBitsOut := (st.value + tt.deltaNbBits) >> 16
	w.add(uint64(st.value), uint(nbBitsOut))
	st.value = uint32(ct.stateTable[int32(st.value>>nbBitsOut)+tt.deltaFindState])
}

// Compress encodes src as an FSE body. Inputs of two symbols or fewer are
// not compressible, matching the reference encoder.
func Compress(src []byte, ct *EncodeTable) ([]byte, error) {
	if len(src) <= 2 {
		return nil, ErrIncompressible
	}
	for _, s := range src {
		if int(s) >= len(ct.counts) || ct.counts[s] == 0 {
			return nil, fmt.Errorf("%w: symbol %d has no states", ErrMaxSymbolValueTooSmall, s)
		}
	}

	var w bitWriter
	var s1, s2 encState
	ip := len(src)
	if ip&1 == 1 {
		s1 = ct.initState(src[ip-1])
		s2 = ct.initState(src[ip-2])
		ct.encode(&w, &s1, src[ip-3])
		ip -= 3
	} else {
		s2 = ct.initState(src[ip-1])
		s1 = ct.initState(src[ip-2])
		ip -= 2
	}
	for ip > 0 {
		ct.encode(&w, &s2, src[ip-1])
		ct.encode(&w, &s1, src[ip-2])
		ip -= 2
	}
	w.add(uint64(s2.value), ct.tableLog)
	w.add(uint64(s1.value), ct.tableLog)
	return w.closeStream(), nil
}
