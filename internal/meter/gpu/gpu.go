// Package gpu meters the host's primary display GPU. Devices are found
// under /sys/class/drm and named from the PCI ID databases. AMD sensors are
// read from sysfs, NVIDIA ones through nvidia-smi.
package gpu

import (
	"context"

	"horizonx-meter/internal/meter"
)

// Prepare resolves the primary device and reads its sensors once for the
// tick. A host without a GPU reports a zero reading.
func (m *Meter) Prepare(ctx context.Context) error {
	dev, ok, err := m.discovery.Primary(ctx)
	if err != nil {
		return err
	}

	var next reading
	if ok {
		switch dev.VendorID {
		case VendorAMD:
			next, err = m.collectAMD(ctx, dev)
		case VendorNVIDIA:
			next.info, err = m.collectNvidia(ctx, dev)
		default:
			next.info = identity(dev)
		}
		if err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.pending = next
	m.mu.Unlock()
	return nil
}

func (m *Meter) CalculateUsage(context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending.info.UsagePercent, nil
}

func (m *Meter) GPU(context.Context) (meter.GPUInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending.info, nil
}

// Commit adds the published busy sample to the rolling window.
func (m *Meter) Commit() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending.hasBusy {
		m.busy.Add(m.pending.busy)
		m.pending.hasBusy = false
	}
}

func identity(dev Device) meter.GPUInfo {
	return meter.GPUInfo{
		Name:    dev.Name,
		Vendor:  dev.Vendor,
		Model:   dev.Model,
		Card:    dev.Card,
		Primary: dev.Primary,
	}
}
