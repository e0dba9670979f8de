package posprover

import (
	"errors"
	"fmt"
)

var (
	// ErrNoProof is returned when a challenge has no proof in the plot or
	// the requested proof index does not exist. It is an expected outcome.
	ErrNoProof = errors.New("no proof of space for this challenge")

	// ErrInvalidPlot is returned for a header or layout the prover cannot
	// read.
	ErrInvalidPlot = errors.New("invalid plot")
)

// CorruptionError reports a park that could not be decoded.
type CorruptionError struct {
	Table int
	Park  uint64
	Err   error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupt park %d of table %d: %v", e.Park, e.Table, e.Err)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}
