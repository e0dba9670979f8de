package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/samber/lo"

	"github.com/chuwt/posprover"
	"github.com/chuwt/posprover/bitfield"
	"github.com/chuwt/posprover/hashchain"
)

// plotResult is the outcome of one plot's query, printed in plot order.
type plotResult struct {
	path  string
	lines []string
	err   error
}

func challengeArg(args []string) ([]byte, error) {
	if len(args) != 1 {
		return nil, errors.New("expected one challenge argument")
	}
	challenge, err := hex.DecodeString(strings.TrimPrefix(args[0], "0x"))
	if err != nil {
		return nil, fmt.Errorf("challenge: %w", err)
	}
	if len(challenge) != 32 {
		return nil, fmt.Errorf("challenge is %d bytes, want 32", len(challenge))
	}
	return challenge, nil
}

// forEachPlot opens every configured plot and runs query on it from a
// pool of cfg.Workers goroutines.
func forEachPlot(o *options, query func(*posprover.DiskProver) ([]string, error)) ([]plotResult, error) {
	pool, err := ants.NewPool(o.cfg.Workers)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	results := make([]plotResult, len(o.cfg.Plots))
	var wg sync.WaitGroup
	for i, path := range o.cfg.Plots {
		i, path := i, path
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			results[i].path = path
			d, err := posprover.NewDiskProver(path, posprover.WithLogger(o.logger))
			if err != nil {
				results[i].err = err
				return
			}
			results[i].lines, results[i].err = query(d)
		})
		if err != nil {
			wg.Done()
			results[i] = plotResult{path: path, err: err}
		}
	}
	wg.Wait()
	return results, nil
}

// report prints results and returns an error if every plot failed.
func report(o *options, results []plotResult) error {
	for _, r := range results {
		if r.err != nil {
			o.logger.Error("query failed", "plot", r.path, "err", r.err)
			continue
		}
		fmt.Fprintf(o.out, "%s\n", r.path)
		for _, l := range r.lines {
			fmt.Fprintf(o.out, "  %s\n", l)
		}
	}
	failed := lo.Filter(results, func(r plotResult, _ int) bool { return r.err != nil })
	if len(failed) > 0 && len(failed) == len(results) {
		return fmt.Errorf("all %d plots failed", len(failed))
	}
	return nil
}

func runInfo(o *options) error {
	results, err := forEachPlot(o, func(d *posprover.DiskProver) ([]string, error) {
		id := d.ID()
		return []string{
			fmt.Sprintf("k: %d", d.K()),
			fmt.Sprintf("id: %s", hex.EncodeToString(id[:])),
			fmt.Sprintf("format: %s", d.FormatDescription()),
			fmt.Sprintf("memo: %d bytes", len(d.Memo())),
			fmt.Sprintf("fingerprint: %s", d.Fingerprint()),
			fmt.Sprintf("c2 entries: %d", d.C2Len()),
		}, nil
	})
	if err != nil {
		return err
	}
	return report(o, results)
}

func runQualities(o *options, challenge []byte) error {
	results, err := forEachPlot(o, func(d *posprover.DiskProver) ([]string, error) {
		qualities, err := d.GetQualitiesForChallenge(challenge)
		if err != nil {
			return nil, err
		}
		if len(qualities) == 0 {
			return []string{"no qualities"}, nil
		}
		return lo.Map(qualities, func(q [32]byte, i int) string {
			return fmt.Sprintf("%d: %s", i, hex.EncodeToString(q[:]))
		}), nil
	})
	if err != nil {
		return err
	}
	return report(o, results)
}

func runProof(o *options, challenge []byte) error {
	results, err := forEachPlot(o, func(d *posprover.DiskProver) ([]string, error) {
		proof, err := d.GetFullProof(challenge, o.index, o.cfg.Parallel)
		if errors.Is(err, posprover.ErrNoProof) {
			return []string{"no proof"}, nil
		}
		if err != nil {
			return nil, err
		}
		id := d.ID()
		if _, err := hashchain.ValidateProof(d.K(), id[:], challenge, proof); err != nil {
			return nil, fmt.Errorf("proof does not verify: %w", err)
		}
		quality, err := hashchain.QualityString(d.K(), challenge, proof)
		if err != nil {
			return nil, err
		}
		encoded, err := encodeProof(proof, d.K())
		if err != nil {
			return nil, err
		}
		return []string{
			fmt.Sprintf("proof: %s", hex.EncodeToString(encoded)),
			fmt.Sprintf("quality: %s", hex.EncodeToString(quality[:])),
			"verified",
		}, nil
	})
	if err != nil {
		return err
	}
	return report(o, results)
}

// encodeProof packs the leaves as consecutive k-bit fields.
func encodeProof(proof []uint64, k int) ([]byte, error) {
	var bf bitfield.BitField
	for _, x := range proof {
		if err := bf.Append(x, k); err != nil {
			return nil, err
		}
	}
	return bf.Bytes(), nil
}
