package posprover

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/chuwt/posprover/bitfield"
	"github.com/chuwt/posprover/hashchain"
)

const proverVersion = 1

// parallelDepth is the lowest recursion depth at which GetFullProof still
// splits into goroutines. Depths 6 and 5 split, so a query runs at most
// six extra goroutines.
const parallelDepth = 5

// DiskProver answers challenges against one plot file. It is immutable
// after construction and safe for concurrent use; every query opens its
// own file handle.
type DiskProver struct {
	version  uint16
	filename string
	header   PlotHeader
	pointers TablePointers
	c2       []uint64

	fs  afero.Fs
	log *slog.Logger
}

type Option func(*DiskProver)

// WithFs reads plots through fs instead of the OS file system.
func WithFs(fs afero.Fs) Option {
	return func(p *DiskProver) {
		p.fs = fs
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *DiskProver) {
		p.log = l
	}
}

func (p *DiskProver) applyDefaults(opts []Option) {
	for _, o := range opts {
		o(p)
	}
	if p.fs == nil {
		p.fs = afero.NewOsFs()
	}
	if p.log == nil {
		p.log = slog.Default()
	}
}

// NewDiskProver parses the plot header and loads the C2 checkpoints.
func NewDiskProver(filename string, opts ...Option) (*DiskProver, error) {
	p := &DiskProver{version: proverVersion, filename: filename}
	p.applyDefaults(opts)

	f, err := p.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h, ptrs, _, err := ReadHeader(f)
	if err != nil {
		return nil, fmt.Errorf("plot %s: %w", filename, err)
	}
	p.header = *h
	p.pointers = ptrs
	if p.c2, err = p.loadC2(f); err != nil {
		return nil, fmt.Errorf("plot %s: %w", filename, err)
	}
	p.log.Debug("opened plot",
		"file", filename,
		"fingerprint", p.Fingerprint(),
		"k", h.K,
		"c2", len(p.c2))
	return p, nil
}

func (p *DiskProver) open() (afero.File, error) {
	f, err := p.fs.Open(p.filename)
	if err != nil {
		return nil, fmt.Errorf("open plot: %w", err)
	}
	if err := adviseRandom(f); err != nil {
		p.log.Debug("fadvise failed", "file", p.filename, "err", err)
	}
	return f, nil
}

// withFile runs fn on a fresh handle to the plot.
func (p *DiskProver) withFile(fn func(afero.File) error) error {
	f, err := p.open()
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(f)
}

func (p *DiskProver) loadC2(f io.ReaderAt) ([]uint64, error) {
	size := uint64(CheckpointSize(p.K()))
	entries := (p.pointers[tableC3] - p.pointers[tableC2]) / size
	if entries < 2 {
		return nil, fmt.Errorf("%w: C2 table has %d entries", ErrInvalidPlot, entries)
	}
	// the last entry is the zero terminator
	buf, err := readAt(f, int64(p.pointers[tableC2]), int((entries-1)*size))
	if err != nil {
		return nil, fmt.Errorf("read C2: %w", err)
	}
	c2 := make([]uint64, entries-1)
	for i := range c2 {
		if c2[i], err = p.checkpointValue(buf[uint64(i)*size:]); err != nil {
			return nil, err
		}
	}
	return c2, nil
}

// checkpointValue decodes the k-bit f7 at the start of b.
func (p *DiskProver) checkpointValue(b []byte) (uint64, error) {
	bf, err := bitfield.FromBytes(b, CheckpointSize(p.K()), p.K())
	if err != nil {
		return 0, err
	}
	return bf.Uint64()
}

func (p *DiskProver) Filename() string {
	return p.filename
}

func (p *DiskProver) K() int {
	return int(p.header.K)
}

func (p *DiskProver) ID() [plotIDLen]byte {
	return p.header.ID
}

func (p *DiskProver) Memo() []byte {
	return append([]byte(nil), p.header.Memo...)
}

func (p *DiskProver) FormatDescription() string {
	return p.header.FormatDescription
}

// Header returns a copy of the plot header.
func (p *DiskProver) Header() PlotHeader {
	h := p.header
	h.Memo = p.Memo()
	return h
}

func (p *DiskProver) TablePointers() TablePointers {
	return p.pointers
}

// C2Len is the number of C2 checkpoints held in memory.
func (p *DiskProver) C2Len() int {
	return len(p.c2)
}

func checkChallenge(challenge []byte) error {
	if len(challenge) != 32 {
		return fmt.Errorf("challenge is %d bytes, want 32", len(challenge))
	}
	return nil
}

// GetQualitiesForChallenge returns one quality per table 7 entry matching
// the challenge. Most challenges have none, in which case the result is
// empty and the error nil.
func (p *DiskProver) GetQualitiesForChallenge(challenge []byte) ([][32]byte, error) {
	if err := checkChallenge(challenge); err != nil {
		return nil, err
	}
	f, err := p.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := p.getP7Entries(f, challenge)
	if err != nil || len(entries) == 0 {
		return nil, err
	}

	// the last five challenge bits pick one branch per table from 6 down to 2
	last5 := challenge[31] & 0x1f
	qualities := make([][32]byte, 0, len(entries))
	for _, position := range entries {
		for table := 6; table > 1; table-- {
			lp, err := p.readLinePoint(f, table, position)
			if err != nil {
				return nil, err
			}
			x, y := LinePointToSquare(lp)
			if (last5>>uint(table-2))&1 == 0 {
				position = y
			} else {
				position = x
			}
		}
		lp, err := p.readLinePoint(f, 1, position)
		if err != nil {
			return nil, err
		}
		x1, x2 := LinePointToSquare(lp)
		q, err := hashchain.Quality(challenge, x2, x1, p.K())
		if err != nil {
			return nil, err
		}
		qualities = append(qualities, q)
	}
	return qualities, nil
}

// GetFullProof returns the 64 leaves of the index-th proof for challenge in
// canonical order. With parallel set the two top levels of the table walk
// fetch their branches concurrently.
func (p *DiskProver) GetFullProof(challenge []byte, index int, parallel bool) ([]uint64, error) {
	if err := checkChallenge(challenge); err != nil {
		return nil, err
	}
	f, err := p.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := p.getP7Entries(f, challenge)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(entries) {
		return nil, ErrNoProof
	}

	xs, err := p.getInputs(f, entries[index], 6, parallel)
	if err != nil {
		return nil, err
	}
	return p.reorderProof(xs)
}

// getInputs walks from a table position down to table 1 and returns the
// leaves under it, smaller position first at every level.
func (p *DiskProver) getInputs(f afero.File, position uint64, depth int, parallel bool) ([]uint64, error) {
	lp, err := p.readLinePoint(f, depth, position)
	if err != nil {
		return nil, err
	}
	x, y := LinePointToSquare(lp)
	if depth == 1 {
		return []uint64{y, x}, nil
	}

	if !parallel || depth < parallelDepth {
		left, err := p.getInputs(f, y, depth-1, false)
		if err != nil {
			return nil, err
		}
		right, err := p.getInputs(f, x, depth-1, false)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil
	}

	var left, right []uint64
	var g errgroup.Group
	g.Go(func() error {
		return p.withFile(func(f afero.File) (err error) {
			left, err = p.getInputs(f, y, depth-1, true)
			return err
		})
	})
	g.Go(func() error {
		return p.withFile(func(f afero.File) (err error) {
			right, err = p.getInputs(f, x, depth-1, true)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return append(left, right...), nil
}
