// Package load reports the kernel load average relative to the core count.
package load

import (
	"bufio"
	"bytes"
	"context"
	"strconv"
	"strings"
	"sync"

	"horizonx-meter/internal/file"
	"horizonx-meter/internal/logger"
	"horizonx-meter/internal/meter"
)

type Meter struct {
	meter.Base

	log logger.Logger
	r   file.Reader

	mu    sync.Mutex
	cores int
}

func New(r file.Reader, log logger.Logger) *Meter {
	return &Meter{r: r, log: log}
}

// CalculateUsage is the one minute load per core, capped at 100.
func (m *Meter) CalculateUsage(ctx context.Context) (float64, error) {
	info, err := m.read(ctx)
	if err != nil {
		return 0, err
	}

	cores, err := m.Cores(ctx)
	if err != nil {
		return 0, err
	}

	return min(100, info.Load1/float64(cores)*100), nil
}

func (m *Meter) SystemLoad(ctx context.Context) (meter.LoadInfo, error) {
	return m.read(ctx)
}

// Cores counts processor entries in /proc/cpuinfo. The first successful
// count is kept for the life of the meter.
func (m *Meter) Cores(ctx context.Context) (int, error) {
	m.mu.Lock()
	cores := m.cores
	m.mu.Unlock()
	if cores > 0 {
		return cores, nil
	}

	data, err := m.r.ReadAll(ctx, "/proc/cpuinfo")
	if err != nil {
		return 0, err
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), "processor") {
			cores++
		}
	}
	if cores == 0 {
		return 0, meter.ParseErrorf("/proc/cpuinfo: no processor entries")
	}

	m.mu.Lock()
	m.cores = cores
	m.mu.Unlock()

	m.log.Debug("load: cores counted", "cores", cores)
	return cores, nil
}

func (m *Meter) read(ctx context.Context) (meter.LoadInfo, error) {
	data, err := m.r.ReadAll(ctx, "/proc/loadavg")
	if err != nil {
		return meter.LoadInfo{}, err
	}
	return ParseLoadavg(data)
}

// ParseLoadavg reads "0.50 0.40 0.30 2/345 12345".
func ParseLoadavg(data []byte) (meter.LoadInfo, error) {
	fields := strings.Fields(string(data))
	if len(fields) < 4 {
		return meter.LoadInfo{}, meter.ParseErrorf("/proc/loadavg: %d fields", len(fields))
	}

	var avg [3]float64
	for i := range avg {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return meter.LoadInfo{}, meter.ParseErrorf("/proc/loadavg field %d: %v", i+1, err)
		}
		avg[i] = v
	}

	running, total, ok := strings.Cut(fields[3], "/")
	if !ok {
		return meter.LoadInfo{}, meter.ParseErrorf("/proc/loadavg tasks %q", fields[3])
	}
	r, err := strconv.Atoi(running)
	if err != nil {
		return meter.LoadInfo{}, meter.ParseErrorf("/proc/loadavg running tasks: %v", err)
	}
	t, err := strconv.Atoi(total)
	if err != nil {
		return meter.LoadInfo{}, meter.ParseErrorf("/proc/loadavg total tasks: %v", err)
	}

	return meter.LoadInfo{Load1: avg[0], Load5: avg[1], Load15: avg[2], RunningTasks: r, TotalTasks: t}, nil
}
