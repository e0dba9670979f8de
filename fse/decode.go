// Package fse implements the finite state entropy (tANS) block format the
// plot parks are compressed with. The layout is bit-compatible with the
// reference FSE library: a normalized count header followed by a backward
// bit stream driven by two interleaved decoder states.
package fse

import (
	"errors"
	"fmt"
	"math/bits"
)

var (
	ErrCorruption             = errors.New("fse: corrupted block")
	ErrTableLogTooLarge       = errors.New("fse: table log too large")
	ErrMaxSymbolValueTooSmall = errors.New("fse: max symbol value too small")
	ErrDstTooSmall            = errors.New("fse: destination too small")
	ErrSrcSizeWrong           = errors.New("fse: empty source")
	ErrIncompressible         = errors.New("fse: input is not compressible")
	ErrBadDelta               = errors.New("fse: bad delta")
)

type decodeEntry struct {
	newState uint16
	symbol   uint8
	nbBits   uint8
}

// DecodeTable maps every decoder state to the symbol it emits and the way
// to the next state. It is read-only once built.
type DecodeTable struct {
	tableLog uint8
	entries  []decodeEntry
}

func tableStep(tableSize int) int {
	return (tableSize >> 1) + (tableSize >> 3) + 3
}

// NewDecodeTable builds the decoding table for normalized counts.
func NewDecodeTable(counts []int16, tableLog int) (*DecodeTable, error) {
	if tableLog < MinTableLog || tableLog > TableLogAbsoluteMax {
		return nil, fmt.Errorf("%w: %d", ErrTableLogTooLarge, tableLog)
	}
	if len(counts) == 0 || len(counts) > MaxSymbolValue+1 {
		return nil, ErrMaxSymbolValueTooSmall
	}
	tableSize := 1 << tableLog
	highThreshold := tableSize - 1
	entries := make([]decodeEntry, tableSize)
	symbolNext := make([]uint32, len(counts))

	for s, c := range counts {
		if c == -1 {
			if highThreshold < 0 {
				return nil, fmt.Errorf("%w: too many low probability symbols", ErrCorruption)
			}
			entries[highThreshold].symbol = uint8(s)
			highThreshold--
			symbolNext[s] = 1
		} else {
			symbolNext[s] = uint32(c)
		}
	}

	step := tableStep(tableSize)
	tableMask := tableSize - 1
	position := 0
	for s, c := range counts {
		for i := 0; i < int(c); i++ {
			entries[position].symbol = uint8(s)
			position = (position + step) & tableMask
			for position > highThreshold {
				position = (position + step) & tableMask
			}
		}
	}
	if position != 0 {
		return nil, fmt.Errorf("%w: counts do not fill the table", ErrCorruption)
	}

	for u := range entries {
		s := entries[u].symbol
		next := symbolNext[s]
		symbolNext[s]++
		if next == 0 {
			return nil, fmt.Errorf("%w: symbol %d has no states", ErrCorruption, s)
		}
		nb := uint32(tableLog) - uint32(bits.Len32(next)-1)
		entries[u].nbBits = uint8(nb)
		entries[u].newState = uint16((next << nb) - uint32(tableSize))
	}
	return &DecodeTable{tableLog: uint8(tableLog), entries: entries}, nil
}

// TableLog returns the log2 of the number of states.
func (dt *DecodeTable) TableLog() int {
	return int(dt.tableLog)
}

// Decompress decodes the body src into dst and returns the number of
// symbols produced. Decoding stops at the end of the bit stream; dst past
// that point is left untouched.
func Decompress(dst, src []byte, dt *DecodeTable) (int, error) {
	br, err := newReverseReader(src)
	if err != nil {
		return 0, err
	}
	s1 := br.read(dt.tableLog)
	s2 := br.read(dt.tableLog)
	if br.overflowed() {
		return 0, fmt.Errorf("%w: stream shorter than its initial states", ErrCorruption)
	}

	n := 0
	limit := len(dst) - 2
	for {
		if n > limit {
			return n, ErrDstTooSmall
		}
		e := dt.entries[s1]
		dst[n] = e.symbol
		n++
		s1 = uint32(e.newState) + br.read(e.nbBits)
		if br.overflowed() {
			dst[n] = dt.entries[s2].symbol
			n++
			break
		}

		if n > limit {
			return n, ErrDstTooSmall
		}
		e = dt.entries[s2]
		dst[n] = e.symbol
		n++
		s2 = uint32(e.newState) + br.read(e.nbBits)
		if br.overflowed() {
			dst[n] = dt.entries[s1].symbol
			n++
			break
		}
	}
	return n, nil
}
