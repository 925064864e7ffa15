package gpu

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"horizonx-meter/internal/file"
	"horizonx-meter/internal/meter"
	"horizonx-meter/internal/task"
)

const nvidiaQuery = "name,utilization.gpu,memory.total,memory.used,temperature.gpu,power.draw,clocks.gr,clocks.mem"

var nvidiaColumns = len(strings.Split(nvidiaQuery, ","))

// Runner executes an external command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands on the host, killing them after Timeout.
type ExecRunner struct {
	Timeout time.Duration
}

// A command killed by Timeout fails with file.ErrTimeout; one stopped by
// ctx fails with ctx's error.
func (e ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	runCtx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		if runCtx.Err() != nil {
			return nil, fmt.Errorf("%s: %w after %s", name, file.ErrTimeout, e.Timeout)
		}
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

type nvidiaReading struct {
	usage    float64
	memTotal uint64
	memUsed  uint64
	temp     float64
	power    float64
	core     float64
	mem      float64
}

func nvidiaArgs(slot string) []string {
	args := []string{"--query-gpu=" + nvidiaQuery, "--format=csv,noheader,nounits"}
	if slot != "" {
		args = append(args, "--id="+slot)
	}
	return args
}

// parseNvidiaCSV decodes the first row of a noheader, nounits query. Fields
// the driver cannot report come back as "[N/A]" and read as zero.
func parseNvidiaCSV(out []byte) (nvidiaReading, error) {
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	if line == "" {
		return nvidiaReading{}, meter.ParseErrorf("nvidia-smi: empty output")
	}

	cols := strings.Split(line, ",")
	if len(cols) != nvidiaColumns {
		return nvidiaReading{}, meter.ParseErrorf("nvidia-smi: got %d columns, want %d; incompatible nvidia-smi version?", len(cols), nvidiaColumns)
	}
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}

	var (
		r    nvidiaReading
		err  error
		mibT float64
		mibU float64
	)
	fields := []*float64{&r.usage, &mibT, &mibU, &r.temp, &r.power, &r.core, &r.mem}
	for i, dst := range fields {
		if *dst, err = nvidiaNumber(cols[i+1]); err != nil {
			return nvidiaReading{}, meter.ParseErrorf("nvidia-smi column %d: %v", i+1, err)
		}
	}

	r.memTotal = uint64(mibT * 1024 * 1024)
	r.memUsed = uint64(mibU * 1024 * 1024)
	return r, nil
}

func nvidiaNumber(s string) (float64, error) {
	if s == "" || strings.HasPrefix(s, "[") {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func (m *Meter) collectNvidia(ctx context.Context, dev Device) (meter.GPUInfo, error) {
	info := identity(dev)

	out, err := task.AwaitTask(ctx, m.tasks, func() ([]byte, error) {
		return m.runner.Run(ctx, m.nvidiaSMI, nvidiaArgs(dev.Slot)...)
	})
	if err != nil {
		if meter.Interrupted(ctx, err) {
			return meter.GPUInfo{}, err
		}
		m.log.Warn("gpu: nvidia-smi failed", "card", dev.Card, "error", err)
		return info, nil
	}

	r, err := parseNvidiaCSV(out)
	if err != nil {
		m.log.Warn("gpu: nvidia-smi output not understood", "card", dev.Card, "error", err)
		return info, nil
	}

	info.UsagePercent = r.usage
	info.MemTotal = r.memTotal
	info.MemUsed = r.memUsed
	info.TempCelsius = r.temp
	info.PowerWatts = r.power
	info.CoreClockMHz = r.core
	info.MemClockMHz = r.mem
	return info, nil
}
