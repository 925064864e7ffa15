// Package swap measures swap usage and ranks processes by swapped-out size.
package swap

import (
	"context"
	"errors"
	"sync"

	"horizonx-meter/internal/file"
	"horizonx-meter/internal/logger"
	"horizonx-meter/internal/meter"
	"horizonx-meter/internal/procfs"
)

const topProcesses = 3

type Meter struct {
	meter.Base

	log logger.Logger
	r   file.Reader

	mu sync.Mutex
	// denied holds PIDs whose status is missing, unreadable or malformed.
	// It only grows; a recycled PID stays excluded for the life of the
	// meter. A timed out read never lands here.
	denied map[int]struct{}
}

func New(r file.Reader, log logger.Logger) *Meter {
	return &Meter{r: r, log: log, denied: make(map[int]struct{})}
}

func (m *Meter) CalculateUsage(ctx context.Context) (float64, error) {
	data, err := m.r.ReadAll(ctx, "/proc/meminfo")
	if err != nil {
		return 0, err
	}

	kv := procfs.Meminfo(data)
	total, ok := kv["SwapTotal"]
	if !ok {
		return 0, meter.ParseErrorf("/proc/meminfo: no SwapTotal")
	}
	if total == 0 {
		return 0, nil
	}

	free := kv["SwapFree"]
	if free > total {
		free = total
	}
	return float64(total-free) / float64(total) * 100, nil
}

func (m *Meter) Processes(ctx context.Context) ([]meter.ProcessEntry, error) {
	pids, err := procfs.PIDs(ctx, m.r)
	if err != nil {
		return nil, err
	}
	pids = m.allowed(pids)

	entries, failed, err := procfs.Collect(ctx, pids, func(ctx context.Context, pid int) (float64, error) {
		kb, err := procfs.StatusKB(ctx, m.r, pid, "VmSwap")
		if err != nil {
			return 0, err
		}
		return float64(kb * 1024), nil
	})
	if err != nil {
		return nil, err
	}
	m.deny(failed)

	swapping := entries[:0]
	for _, e := range entries {
		if e.Value > 0 {
			swapping = append(swapping, e)
		}
	}

	return procfs.Top(ctx, m.r, swapping, topProcesses)
}

// Denied reports the current size of the PID denylist.
func (m *Meter) Denied() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.denied)
}

func (m *Meter) allowed(pids []int) []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := pids[:0]
	for _, pid := range pids {
		if _, ok := m.denied[pid]; !ok {
			out = append(out, pid)
		}
	}
	return out
}

// deniable reports whether a status read failed in a way that will repeat
// on every tick. Timeouts are transient.
func deniable(err error) bool {
	if errors.Is(err, file.ErrTimeout) {
		return false
	}
	return file.IsNotFound(err) ||
		errors.Is(err, file.ErrPermission) ||
		errors.Is(err, file.ErrIO) ||
		errors.Is(err, meter.ErrParse)
}

func (m *Meter) deny(failed []procfs.Failure) {
	added := 0

	m.mu.Lock()
	for _, f := range failed {
		if !deniable(f.Err) {
			continue
		}
		m.denied[f.PID] = struct{}{}
		added++
	}
	size := len(m.denied)
	m.mu.Unlock()

	if added > 0 {
		m.log.Debug("swap: pids denied", "added", added, "total", size)
	}
}
