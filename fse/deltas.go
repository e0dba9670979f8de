package fse

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// RawFlag marks a size prefix whose block holds raw symbol bytes.
const RawFlag = 0x8000

var deltaTables sync.Map

// DeltaTable returns the decode table implied by the delta distribution r.
// Tables are built once per r and shared.
func DeltaTable(r float64) (*DecodeTable, error) {
	if v, ok := deltaTables.Load(r); ok {
		return v.(*DecodeTable), nil
	}
	dt, err := NewDecodeTable(NormalizedCount(r), DeltaTableLog)
	if err != nil {
		return nil, err
	}
	v, _ := deltaTables.LoadOrStore(r, dt)
	return v.(*DecodeTable), nil
}

type frameTable struct {
	header []byte
	table  *DecodeTable
}

var frameTables sync.Map

func frameTableFor(header []byte, counts []int16, tableLog int) (*DecodeTable, error) {
	key := xxhash.Sum64(header)
	if v, ok := frameTables.Load(key); ok {
		c := v.(*frameTable)
		if bytes.Equal(c.header, header) {
			return c.table, nil
		}
		return NewDecodeTable(counts, tableLog)
	}
	dt, err := NewDecodeTable(counts, tableLog)
	if err != nil {
		return nil, err
	}
	frameTables.LoadOrStore(key, &frameTable{header: append([]byte(nil), header...), table: dt})
	return dt, nil
}

func decodeInto(src []byte, n int, dt *DecodeTable) ([]byte, error) {
	out := make([]byte, n)
	if _, err := Decompress(out, src, dt); err != nil {
		return nil, err
	}
	for i, d := range out {
		if d == 0xff {
			return nil, fmt.Errorf("%w at %d", ErrBadDelta, i)
		}
	}
	return out, nil
}

// DecodeDeltas decodes a header-less FSE body coded with the delta
// distribution r. The result always has length n; positions past the
// encoded symbols are zero.
func DecodeDeltas(body []byte, n int, r float64) ([]byte, error) {
	dt, err := DeltaTable(r)
	if err != nil {
		return nil, err
	}
	return decodeInto(body, n, dt)
}

// DecodeFrame decodes a self-describing block: a normalized count header
// followed by the body. Decode tables are cached by header.
func DecodeFrame(frame []byte, n int) ([]byte, error) {
	counts, tableLog, hsize, err := ReadNCount(frame)
	if err != nil {
		return nil, err
	}
	dt, err := frameTableFor(frame[:hsize], counts, tableLog)
	if err != nil {
		return nil, err
	}
	return decodeInto(frame[hsize:], n, dt)
}

// BlockSize returns the payload length announced by a size prefix.
func BlockSize(prefix uint16) int {
	return int(prefix &^ RawFlag)
}

// DecodeBlock decodes a size-prefixed delta block. A raw block yields its
// bytes as they are; a compressed one yields exactly n symbols.
func DecodeBlock(prefix uint16, payload []byte, n int, r float64) ([]byte, error) {
	size := BlockSize(prefix)
	if size > len(payload) {
		return nil, fmt.Errorf("%w: block of %d bytes, have %d", ErrCorruption, size, len(payload))
	}
	if prefix&RawFlag != 0 {
		return append([]byte(nil), payload[:size]...), nil
	}
	return DecodeDeltas(payload[:size], n, r)
}

// EncodeDeltas compresses deltas with the distribution for r. The body
// carries no header.
func EncodeDeltas(deltas []byte, r float64) ([]byte, error) {
	ct, err := NewEncodeTable(NormalizedCount(r), DeltaTableLog)
	if err != nil {
		return nil, err
	}
	return Compress(deltas, ct)
}

// EncodeFrame compresses src with explicit normalized counts and prefixes
// the counts header.
func EncodeFrame(src []byte, counts []int16, tableLog int) ([]byte, error) {
	header, err := WriteNCount(counts, tableLog)
	if err != nil {
		return nil, err
	}
	ct, err := NewEncodeTable(counts, tableLog)
	if err != nil {
		return nil, err
	}
	body, err := Compress(src, ct)
	if err != nil {
		return nil, err
	}
	return append(header, body...), nil
}

// EncodeBlock compresses deltas into at most maxSize bytes, falling back to
// a raw block when compression fails or does not fit.
func EncodeBlock(deltas []byte, r float64, maxSize int) (uint16, []byte, error) {
	if enc, err := EncodeDeltas(deltas, r); err == nil && len(enc) <= maxSize && len(enc) < RawFlag {
		return uint16(len(enc)), enc, nil
	}
	if len(deltas) > maxSize || len(deltas) >= RawFlag {
		return 0, nil, fmt.Errorf("%w: %d raw deltas exceed %d bytes", ErrDstTooSmall, len(deltas), maxSize)
	}
	return uint16(len(deltas)) | RawFlag, append([]byte(nil), deltas...), nil
}
