package posprover

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Header layout:
//
//	19 bytes  "Proof of Space Plot"
//	32 bytes  plot id
//	1 byte    k
//	2 bytes   format description length, big-endian
//	x bytes   format description
//	2 bytes   memo length, big-endian
//	x bytes   memo
//	80 bytes  table begin pointers 1..10, big-endian uint64 each

// PlotHeader is the fixed part of a plot file.
type PlotHeader struct {
	ID                [plotIDLen]byte
	K                 uint8
	FormatDescription string
	Memo              []byte
}

const (
	memoLenPoolKey      = 48 + 48 + 32
	memoLenPoolContract = 32 + 48 + 32
)

// Memo is the key material stored by the plotter. Exactly one of
// PoolPublicKey and PoolContractPuzzleHash is set.
type Memo struct {
	PoolPublicKey          []byte
	PoolContractPuzzleHash []byte
	FarmerPublicKey        []byte
	LocalMasterSecretKey   []byte
}

// DecodeMemo splits the memo by its length.
func (h *PlotHeader) DecodeMemo() (Memo, error) {
	m := h.Memo
	switch len(m) {
	case memoLenPoolKey:
		return Memo{PoolPublicKey: m[:48], FarmerPublicKey: m[48:96], LocalMasterSecretKey: m[96:]}, nil
	case memoLenPoolContract:
		return Memo{PoolContractPuzzleHash: m[:32], FarmerPublicKey: m[32:80], LocalMasterSecretKey: m[80:]}, nil
	}
	return Memo{}, fmt.Errorf("%w: memo of %d bytes", ErrInvalidPlot, len(m))
}

// TablePointers holds the absolute offsets of tables 1..7 and C1, C2, C3
// at indices 1..10. Index 0 is unused.
type TablePointers [11]uint64

const (
	tableC1 = 8
	tableC2 = 9
	tableC3 = 10
)

// ReadHeader parses the header and table pointers. It returns the header
// section length, pointers included.
func ReadHeader(r io.ReaderAt) (*PlotHeader, TablePointers, int64, error) {
	var ptrs TablePointers
	off := int64(0)

	fixed, err := readAt(r, off, len(plotMagic)+plotIDLen+1+2)
	if err != nil {
		return nil, ptrs, 0, fmt.Errorf("read header: %w", err)
	}
	if string(fixed[:len(plotMagic)]) != plotMagic {
		return nil, ptrs, 0, fmt.Errorf("%w: bad magic", ErrInvalidPlot)
	}
	h := &PlotHeader{}
	copy(h.ID[:], fixed[len(plotMagic):])
	h.K = fixed[len(plotMagic)+plotIDLen]
	if int(h.K) < minK || int(h.K) > maxK {
		return nil, ptrs, 0, fmt.Errorf("%w: k=%d", ErrInvalidPlot, h.K)
	}
	off += int64(len(fixed))

	fmtLen := int(binary.BigEndian.Uint16(fixed[len(fixed)-2:]))
	desc, err := readAt(r, off, fmtLen+2)
	if err != nil {
		return nil, ptrs, 0, fmt.Errorf("read format description: %w", err)
	}
	h.FormatDescription = string(desc[:fmtLen])
	if h.FormatDescription != FormatDescriptionV1 {
		return nil, ptrs, 0, fmt.Errorf("%w: format %q", ErrInvalidPlot, h.FormatDescription)
	}
	off += int64(len(desc))

	memoLen := int(binary.BigEndian.Uint16(desc[fmtLen:]))
	if h.Memo, err = readAt(r, off, memoLen); err != nil {
		return nil, ptrs, 0, fmt.Errorf("read memo: %w", err)
	}
	off += int64(memoLen)

	raw, err := readAt(r, off, 8*10)
	if err != nil {
		return nil, ptrs, 0, fmt.Errorf("read table pointers: %w", err)
	}
	off += int64(len(raw))
	for i := 1; i <= 10; i++ {
		ptrs[i] = binary.BigEndian.Uint64(raw[(i-1)*8:])
	}
	if err := ptrs.validate(uint64(off)); err != nil {
		return nil, ptrs, 0, err
	}
	return h, ptrs, off, nil
}

func (p TablePointers) validate(headerLen uint64) error {
	if p[1] < headerLen {
		return fmt.Errorf("%w: table 1 at %d inside the header", ErrInvalidPlot, p[1])
	}
	for i := 2; i <= 10; i++ {
		if p[i] <= p[i-1] {
			return fmt.Errorf("%w: table pointer %d (%d) not after %d (%d)", ErrInvalidPlot, i, p[i], i-1, p[i-1])
		}
	}
	return nil
}

// Encode writes the header followed by the pointers in file layout.
func (h *PlotHeader) Encode(ptrs TablePointers) []byte {
	out := make([]byte, 0, h.Len())
	out = append(out, plotMagic...)
	out = append(out, h.ID[:]...)
	out = append(out, h.K)
	out = binary.BigEndian.AppendUint16(out, uint16(len(h.FormatDescription)))
	out = append(out, h.FormatDescription...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(h.Memo)))
	out = append(out, h.Memo...)
	for i := 1; i <= 10; i++ {
		out = binary.BigEndian.AppendUint64(out, ptrs[i])
	}
	return out
}

// Len is the encoded size of the header and pointers.
func (h *PlotHeader) Len() int {
	return len(plotMagic) + plotIDLen + 1 + 2 + len(h.FormatDescription) + 2 + len(h.Memo) + 8*10
}
