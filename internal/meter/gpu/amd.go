package gpu

import (
	"context"
	"strconv"
	"strings"

	"horizonx-meter/internal/meter"
)

// collectAMD reads the amdgpu sysfs sensors of dev. Every sensor is
// optional; one the kernel does not expose reads as zero. The busy percent
// is reported smoothed over the committed window plus this sample.
func (m *Meter) collectAMD(ctx context.Context, dev Device) (reading, error) {
	info, err := m.readAMD(ctx, dev)
	if err != nil {
		return reading{}, err
	}

	busy, ok, err := m.readNumber(ctx, dev.Path+"/gpu_busy_percent")
	if err != nil {
		return reading{}, err
	}
	if ok {
		m.mu.Lock()
		info.UsagePercent = m.busy.Peek(busy)
		m.mu.Unlock()
	}
	return reading{info: info, busy: busy, hasBusy: ok}, nil
}

func (m *Meter) readAMD(ctx context.Context, dev Device) (meter.GPUInfo, error) {
	info := identity(dev)

	total, _, err := m.readNumber(ctx, dev.Path+"/mem_info_vram_total")
	if err != nil {
		return meter.GPUInfo{}, err
	}
	used, _, err := m.readNumber(ctx, dev.Path+"/mem_info_vram_used")
	if err != nil {
		return meter.GPUInfo{}, err
	}
	info.MemTotal = uint64(total)
	info.MemUsed = uint64(used)

	if err := m.readHwmon(ctx, dev, &info); err != nil {
		return meter.GPUInfo{}, err
	}

	if info.CoreClockMHz == 0 {
		if info.CoreClockMHz, err = m.readDPM(ctx, dev.Path+"/pp_dpm_sclk"); err != nil {
			return meter.GPUInfo{}, err
		}
	}
	if info.MemClockMHz == 0 {
		if info.MemClockMHz, err = m.readDPM(ctx, dev.Path+"/pp_dpm_mclk"); err != nil {
			return meter.GPUInfo{}, err
		}
	}

	return info, nil
}

func (m *Meter) readHwmon(ctx context.Context, dev Device, info *meter.GPUInfo) error {
	dirs, err := m.r.List(ctx, dev.Path+"/hwmon")
	if err != nil {
		if meter.Interrupted(ctx, err) {
			return err
		}
		return nil
	}
	if len(dirs) == 0 {
		return nil
	}
	base := dev.Path + "/hwmon/" + dirs[0]

	if v, ok, err := m.readNumber(ctx, base+"/temp1_input"); err != nil {
		return err
	} else if ok {
		info.TempCelsius = v / 1000
	}

	for _, name := range []string{"power1_average", "power1_input"} {
		v, ok, err := m.readNumber(ctx, base+"/"+name)
		if err != nil {
			return err
		}
		if ok {
			info.PowerWatts = v / 1e6
			break
		}
	}

	if v, ok, err := m.readNumber(ctx, base+"/freq1_input"); err != nil {
		return err
	} else if ok {
		info.CoreClockMHz = v / 1e6
	}
	if v, ok, err := m.readNumber(ctx, base+"/freq2_input"); err != nil {
		return err
	} else if ok {
		info.MemClockMHz = v / 1e6
	}
	return nil
}

// readNumber reads a single-value sysfs attribute. ok is false when the
// attribute is missing or unreadable; only an interrupted tick is returned.
func (m *Meter) readNumber(ctx context.Context, path string) (float64, bool, error) {
	raw, err := m.r.ReadAll(ctx, path)
	if err != nil {
		if meter.Interrupted(ctx, err) {
			return 0, false, err
		}
		return 0, false, nil
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		m.log.Debug("gpu: unreadable sensor", "path", path, "error", err)
		return 0, false, nil
	}
	return v, true, nil
}

func (m *Meter) readDPM(ctx context.Context, path string) (float64, error) {
	raw, err := m.r.ReadAll(ctx, path)
	if err != nil {
		if meter.Interrupted(ctx, err) {
			return 0, err
		}
		return 0, nil
	}
	return parseDPM(string(raw)), nil
}

// parseDPM returns the active level of a pp_dpm table, the line marked
// with a star:
//
//	0: 500Mhz
//	1: 2482Mhz *
func parseDPM(s string) float64 {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasSuffix(line, "*") {
			continue
		}
		_, level, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		level = strings.TrimSpace(strings.TrimSuffix(level, "*"))
		level = strings.TrimSuffix(strings.ToLower(level), "mhz")
		v, err := strconv.ParseFloat(strings.TrimSpace(level), 64)
		if err != nil {
			return 0
		}
		return v
	}
	return 0
}
