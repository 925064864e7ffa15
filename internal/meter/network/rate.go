package network

import (
	"context"
	"math"

	"horizonx-meter/internal/meter"
	"horizonx-meter/internal/rank"
)

func (m *Meter) Prepare(ctx context.Context) error {
	devices, err := m.scan(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending = m.measure(devices)
	return nil
}

// measure turns counters into speeds against the committed state. An
// interface seen for the first time reports zero speed. Maxima start at
// one byte per second and only grow. The maximum of an interface missing
// from this tick is kept for when it returns.
func (m *Meter) measure(devices []device) *reading {
	next := &reading{
		counters:   make(map[string]Counters, len(devices)),
		maxima:     make(map[string]Speed, len(devices)),
		interfaces: make([]meter.InterfaceEntry, 0, len(devices)),
	}

	var sum float64
	for _, dev := range devices {
		sp := m.speed(dev)

		prevMax, ok := m.maxima[dev.name]
		if !ok {
			prevMax = Speed{Up: 1, Down: 1}
		}
		maxSpeed := Speed{Up: math.Max(sp.Up, prevMax.Up), Down: math.Max(sp.Down, prevMax.Down)}

		sum += math.Round(math.Max(sp.Up/maxSpeed.Up, sp.Down/maxSpeed.Down) * 100)

		next.counters[dev.name] = dev.counters
		next.maxima[dev.name] = maxSpeed
		next.interfaces = append(next.interfaces, meter.InterfaceEntry{
			Name:                dev.name,
			UploadBytesPerSec:   sp.Up,
			DownloadBytesPerSec: sp.Down,
			Kind:                dev.kind,
		})
	}

	for name, peak := range m.maxima {
		if _, ok := next.maxima[name]; !ok {
			next.maxima[name] = peak
		}
	}

	total := float64(len(devices) * 100)
	if total == 0 {
		total = 1
	}
	next.usage = math.Round(sum / total * 100)

	next.interfaces = rank.Sort(next.interfaces, func(e meter.InterfaceEntry) float64 {
		return e.UploadBytesPerSec + e.DownloadBytesPerSec
	}, rank.Descending)

	return next
}

func (m *Meter) speed(dev device) Speed {
	prev, ok := m.previous[dev.name]
	if !ok {
		return Speed{}
	}
	return Speed{
		Up:   delta(prev.TX, dev.counters.TX) / m.refresh,
		Down: delta(prev.RX, dev.counters.RX) / m.refresh,
	}
}

// delta treats a counter that went backwards, after a driver reset, as idle.
func delta(prev, curr uint64) float64 {
	if curr < prev {
		return 0
	}
	return float64(curr - prev)
}

func (m *Meter) CalculateUsage(context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == nil {
		return 0, nil
	}
	return m.pending.usage, nil
}

func (m *Meter) Interfaces(context.Context) ([]meter.InterfaceEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == nil {
		return []meter.InterfaceEntry{}, nil
	}
	return m.pending.interfaces, nil
}

func (m *Meter) Commit() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == nil {
		return
	}
	m.previous = m.pending.counters
	m.maxima = m.pending.maxima
	m.pending = nil
}
