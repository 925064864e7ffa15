// Package memory measures RAM usage and ranks processes by footprint.
package memory

import (
	"context"
	"os"

	"horizonx-meter/internal/file"
	"horizonx-meter/internal/logger"
	"horizonx-meter/internal/meter"
	"horizonx-meter/internal/procfs"
)

const topProcesses = 3

type Calculation string

const (
	// RAMOnly ranks by resident set size.
	RAMOnly Calculation = "ram_only"
	// All ranks by resident plus virtual plus shared size.
	All Calculation = "all"
)

type Info struct {
	Total     uint64
	Free      uint64
	Available uint64
	Buffers   uint64
	Cached    uint64

	hasAvailable bool
}

// Used prefers MemAvailable and falls back to free, buffers and cache on
// kernels that do not export it.
func (i Info) Used() uint64 {
	if i.hasAvailable {
		if i.Available > i.Total {
			return 0
		}
		return i.Total - i.Available
	}

	reclaim := i.Free + i.Buffers + i.Cached
	if reclaim > i.Total {
		return 0
	}
	return i.Total - reclaim
}

func ParseInfo(data []byte) (Info, error) {
	kv := procfs.Meminfo(data)

	total, ok := kv["MemTotal"]
	if !ok {
		return Info{}, meter.ParseErrorf("/proc/meminfo: no MemTotal")
	}

	info := Info{
		Total:   total,
		Free:    kv["MemFree"],
		Buffers: kv["Buffers"],
		Cached:  kv["Cached"],
	}
	info.Available, info.hasAvailable = kv["MemAvailable"]
	return info, nil
}

type Meter struct {
	meter.Base

	log      logger.Logger
	r        file.Reader
	calc     Calculation
	pageSize uint64
}

func New(r file.Reader, calc Calculation, log logger.Logger) *Meter {
	if calc != All {
		calc = RAMOnly
	}
	return &Meter{r: r, calc: calc, log: log, pageSize: uint64(os.Getpagesize())}
}

func (m *Meter) CalculateUsage(ctx context.Context) (float64, error) {
	data, err := m.r.ReadAll(ctx, "/proc/meminfo")
	if err != nil {
		return 0, err
	}

	info, err := ParseInfo(data)
	if err != nil {
		return 0, err
	}
	if info.Total == 0 {
		return 0, nil
	}

	return float64(info.Used()) / float64(info.Total) * 100, nil
}

func (m *Meter) Processes(ctx context.Context) ([]meter.ProcessEntry, error) {
	pids, err := procfs.PIDs(ctx, m.r)
	if err != nil {
		return nil, err
	}

	entries, _, err := procfs.Collect(ctx, pids, func(ctx context.Context, pid int) (float64, error) {
		sm, err := procfs.ReadStatm(ctx, m.r, pid)
		if err != nil {
			return 0, err
		}
		return float64(m.footprint(sm) * m.pageSize), nil
	})
	if err != nil {
		return nil, err
	}

	return procfs.Top(ctx, m.r, entries, topProcesses)
}

func (m *Meter) footprint(sm procfs.Statm) uint64 {
	if m.calc == All {
		return sm.Resident + sm.Size + sm.Shared
	}
	return sm.Resident
}
