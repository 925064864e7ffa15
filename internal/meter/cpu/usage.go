package cpu

import (
	"bufio"
	"bytes"
	"context"
	"strconv"
	"strings"

	"horizonx-meter/internal/meter"
)

// times splits a sample into the periods used for usage. Guest time is
// already counted in user and nice, so it is moved into virtAll.
type times struct {
	user      float64
	nice      float64
	virtAll   float64
	systemAll float64
	idleAll   float64
	steal     float64
	guest     float64
	total     float64
}

func derive(s Sample) times {
	t := times{
		user:      float64(s.User) - float64(s.Guest),
		nice:      float64(s.Nice) - float64(s.GuestNice),
		virtAll:   float64(s.Guest + s.GuestNice),
		systemAll: float64(s.System + s.IRQ + s.SoftIRQ),
		idleAll:   float64(s.Idle + s.IOWait),
		steal:     float64(s.Steal),
		guest:     float64(s.Guest),
	}
	t.total = t.user + t.nice + t.systemAll + t.idleAll + t.steal + t.virtAll
	return t
}

// Usage is the busy share of the period between two samples, in percent.
func Usage(prev, curr Sample) float64 {
	p, c := derive(prev), derive(curr)

	total := c.total - p.total
	if total <= 0 {
		return 0
	}

	busy := (c.user - p.user) + (c.nice - p.nice) + (c.systemAll - p.systemAll) + (c.steal - p.steal) + (c.guest - p.guest)
	return busy / total * 100
}

// ParseStat reads the aggregate cpu line. Kernels that report fewer than
// ten columns leave the rest at zero.
func ParseStat(data []byte) (Sample, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || fields[0] != "cpu" {
			continue
		}

		values := fields[1:]
		if len(values) < 4 {
			return Sample{}, meter.ParseErrorf("/proc/stat cpu line has %d columns", len(values))
		}

		var cols [10]uint64
		for i := 0; i < len(cols) && i < len(values); i++ {
			v, err := strconv.ParseUint(values[i], 10, 64)
			if err != nil {
				return Sample{}, meter.ParseErrorf("/proc/stat column %d: %v", i+1, err)
			}
			cols[i] = v
		}

		return Sample{
			User:      cols[0],
			Nice:      cols[1],
			System:    cols[2],
			Idle:      cols[3],
			IOWait:    cols[4],
			IRQ:       cols[5],
			SoftIRQ:   cols[6],
			Steal:     cols[7],
			Guest:     cols[8],
			GuestNice: cols[9],
		}, nil
	}

	return Sample{}, meter.ParseErrorf("/proc/stat has no cpu line")
}

func (m *Meter) CalculateUsage(ctx context.Context) (float64, error) {
	data, err := m.r.ReadAll(ctx, "/proc/stat")
	if err != nil {
		return 0, err
	}

	curr, err := ParseStat(data)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending = &curr
	return Usage(m.previous, curr), nil
}

func (m *Meter) Commit() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending != nil {
		m.previous = *m.pending
		m.pending = nil
	}
}
