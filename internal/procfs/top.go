package procfs

import (
	"context"

	"horizonx-meter/internal/file"
	"horizonx-meter/internal/meter"
	"horizonx-meter/internal/rank"

	"golang.org/x/sync/errgroup"
)

const scanConcurrency = 16

// Measure returns the ranking value of one process.
type Measure func(ctx context.Context, pid int) (float64, error)

// Failure is a process whose measurement failed.
type Failure struct {
	PID int
	Err error
}

// Collect measures every pid. Processes whose measurement fails are left
// out and reported in failed. An interrupted tick aborts the scan.
func Collect(ctx context.Context, pids []int, measure Measure) (entries []meter.ProcessEntry, failed []Failure, err error) {
	type result struct {
		value float64
		err   error
	}

	results := make([]result, len(pids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)

	for i, pid := range pids {
		g.Go(func() error {
			v, err := measure(gctx, pid)
			if err != nil && meter.Interrupted(gctx, err) {
				return err
			}
			results[i] = result{value: v, err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	entries = make([]meter.ProcessEntry, 0, len(pids))
	for i, res := range results {
		if res.err != nil {
			failed = append(failed, Failure{PID: pids[i], Err: res.err})
			continue
		}
		entries = append(entries, meter.ProcessEntry{PID: pids[i], Value: res.value})
	}
	return entries, failed, nil
}

// Top ranks entries by value, highest first, and fills in commands. Entries
// without a command line are skipped until limit entries are found.
func Top(ctx context.Context, r file.Reader, entries []meter.ProcessEntry, limit int) ([]meter.ProcessEntry, error) {
	sorted := rank.Sort(entries, func(e meter.ProcessEntry) float64 { return e.Value }, rank.Descending)

	out := make([]meter.ProcessEntry, 0, limit)
	for _, e := range sorted {
		if len(out) == limit {
			break
		}

		cmd, err := Command(ctx, r, e.PID)
		if err != nil {
			if meter.Interrupted(ctx, err) {
				return nil, err
			}
			continue
		}
		if cmd == "" {
			continue
		}

		e.Command = cmd
		out = append(out, e)
	}
	return out, nil
}
