package posprover

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/minio/sha256-simd"
)

// encMode encodes with Core Deterministic Encoding so equal values always
// produce equal bytes, which Fingerprint relies on.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("posprover: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("posprover: CBOR decoder initialization failed: " + err.Error())
	}
}

// proverState is the serialized form of a DiskProver. Integer keys keep
// the encoding compact.
type proverState struct {
	Version           uint16   `cbor:"1,keyasint"`
	Filename          string   `cbor:"2,keyasint"`
	ID                []byte   `cbor:"3,keyasint"`
	K                 uint8    `cbor:"4,keyasint"`
	FormatDescription string   `cbor:"5,keyasint"`
	Memo              []byte   `cbor:"6,keyasint"`
	Pointers          []uint64 `cbor:"7,keyasint"`
	C2                []uint64 `cbor:"8,keyasint"`
}

// headerState is the part of the state that identifies a plot.
type headerState struct {
	ID     []byte `cbor:"1,keyasint"`
	K      uint8  `cbor:"2,keyasint"`
	Format string `cbor:"3,keyasint"`
	Memo   []byte `cbor:"4,keyasint"`
}

// MarshalBinary encodes the prover so it can be restored with
// LoadDiskProver without reading C2 again.
func (p *DiskProver) MarshalBinary() ([]byte, error) {
	return encMode.Marshal(proverState{
		Version:           p.version,
		Filename:          p.filename,
		ID:                p.header.ID[:],
		K:                 p.header.K,
		FormatDescription: p.header.FormatDescription,
		Memo:              p.header.Memo,
		Pointers:          p.pointers[1:],
		C2:                p.c2,
	})
}

// UnmarshalBinary restores state written by MarshalBinary. Options already
// applied to p are kept.
func (p *DiskProver) UnmarshalBinary(data []byte) error {
	var s proverState
	if err := decMode.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode prover: %w", err)
	}
	if s.Version != proverVersion {
		return fmt.Errorf("decode prover: unsupported version %d", s.Version)
	}
	if len(s.ID) != plotIDLen {
		return fmt.Errorf("%w: plot id is %d bytes", ErrInvalidPlot, len(s.ID))
	}
	if int(s.K) < minK || int(s.K) > maxK {
		return fmt.Errorf("%w: k=%d", ErrInvalidPlot, s.K)
	}
	if len(s.Pointers) != len(TablePointers{})-1 {
		return fmt.Errorf("%w: %d table pointers", ErrInvalidPlot, len(s.Pointers))
	}
	if len(s.C2) == 0 {
		return fmt.Errorf("%w: empty C2", ErrInvalidPlot)
	}
	var ptrs TablePointers
	copy(ptrs[1:], s.Pointers)
	if err := ptrs.validate(0); err != nil {
		return err
	}

	p.version = s.Version
	p.pointers = ptrs
	p.filename = s.Filename
	copy(p.header.ID[:], s.ID)
	p.header.K = s.K
	p.header.FormatDescription = s.FormatDescription
	p.header.Memo = s.Memo
	p.c2 = s.C2
	return nil
}

// LoadDiskProver restores a prover from MarshalBinary output. The plot
// file is not touched until the first query.
func LoadDiskProver(data []byte, opts ...Option) (*DiskProver, error) {
	p := &DiskProver{}
	p.applyDefaults(opts)
	if err := p.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return p, nil
}

// Fingerprint returns the first four bytes, in hex, of the SHA-256 of v's
// canonical CBOR encoding.
func Fingerprint(v any) (string, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:4]), nil
}

// Fingerprint identifies the plot by its header for log lines.
func (p *DiskProver) Fingerprint() string {
	fp, err := Fingerprint(headerState{
		ID:     p.header.ID[:],
		K:      p.header.K,
		Format: p.header.FormatDescription,
		Memo:   p.header.Memo,
	})
	if err != nil {
		return "unknown"
	}
	return fp
}
