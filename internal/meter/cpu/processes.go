package cpu

import (
	"context"

	"horizonx-meter/internal/meter"
	"horizonx-meter/internal/procfs"
)

// Processes ranks processes by accumulated CPU time.
func (m *Meter) Processes(ctx context.Context) ([]meter.ProcessEntry, error) {
	pids, err := procfs.PIDs(ctx, m.r)
	if err != nil {
		return nil, err
	}

	entries, failed, err := procfs.Collect(ctx, pids, func(ctx context.Context, pid int) (float64, error) {
		st, err := procfs.ReadStat(ctx, m.r, pid)
		if err != nil {
			return 0, err
		}
		return float64(st.UTime + st.STime), nil
	})
	if err != nil {
		return nil, err
	}
	if len(failed) > 0 {
		m.log.Debug("cpu: processes skipped", "count", len(failed))
	}

	return procfs.Top(ctx, m.r, entries, topProcesses)
}
