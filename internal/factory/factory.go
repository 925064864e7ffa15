// Package factory builds meters by kind. Every meter gets its own reader
// and task set so destroying one never cancels another's reads.
package factory

import (
	"fmt"

	"horizonx-meter/internal/config"
	"horizonx-meter/internal/file"
	"horizonx-meter/internal/logger"
	"horizonx-meter/internal/meter"
	"horizonx-meter/internal/meter/cpu"
	"horizonx-meter/internal/meter/gpu"
	"horizonx-meter/internal/meter/load"
	"horizonx-meter/internal/meter/memory"
	"horizonx-meter/internal/meter/network"
	"horizonx-meter/internal/meter/storage"
	"horizonx-meter/internal/meter/swap"
	"horizonx-meter/internal/task"
)

type constructor func(f *Factory, r file.Reader, tasks *task.Tasks, log logger.Logger) meter.Source

var constructors = map[meter.Kind]constructor{
	meter.CPU: func(_ *Factory, r file.Reader, _ *task.Tasks, log logger.Logger) meter.Source {
		return cpu.New(r, log)
	},
	meter.Memory: func(f *Factory, r file.Reader, _ *task.Tasks, log logger.Logger) meter.Source {
		return memory.New(r, memory.Calculation(f.cfg.MemoryCalculation), log)
	},
	meter.Swap: func(_ *Factory, r file.Reader, _ *task.Tasks, log logger.Logger) meter.Source {
		return swap.New(r, log)
	},
	meter.Storage: func(f *Factory, r file.Reader, tasks *task.Tasks, log logger.Logger) meter.Source {
		return storage.New(r, f.statter, tasks, f.cfg.ReadTimeout, log)
	},
	meter.Network: func(f *Factory, r file.Reader, _ *task.Tasks, log logger.Logger) meter.Source {
		return network.New(r, f.cfg.Interval.Seconds(), log)
	},
	meter.SystemLoad: func(_ *Factory, r file.Reader, _ *task.Tasks, log logger.Logger) meter.Source {
		return load.New(r, log)
	},
	meter.GPU: func(f *Factory, r file.Reader, tasks *task.Tasks, log logger.Logger) meter.Source {
		return gpu.New(gpu.Config{
			Reader:    r,
			Discovery: f.discovery,
			Runner:    f.runner,
			NvidiaSMI: f.cfg.NvidiaSMI,
			Tasks:     tasks,
			Log:       log,
		})
	},
}

type Factory struct {
	cfg   *config.Config
	queue *task.Queue
	log   logger.Logger

	statter   storage.Statter
	runner    gpu.Runner
	discovery *gpu.Discovery
}

type Option func(*Factory)

// WithStatter replaces the gopsutil filesystem statter.
func WithStatter(s storage.Statter) Option {
	return func(f *Factory) { f.statter = s }
}

// WithRunner replaces the host command runner used for nvidia-smi.
func WithRunner(r gpu.Runner) Option {
	return func(f *Factory) { f.runner = r }
}

func New(cfg *config.Config, queue *task.Queue, log logger.Logger, opts ...Option) *Factory {
	f := &Factory{cfg: cfg, queue: queue, log: log}
	for _, opt := range opts {
		opt(f)
	}

	if f.statter == nil {
		f.statter = storage.NewDiskStatter(cfg.HostRoot)
	}
	if f.runner == nil {
		f.runner = gpu.ExecRunner{Timeout: cfg.CommandTimeout}
	}

	discoveryReader := file.New(cfg.HostRoot, queue.NewTasks(), cfg.ReadTimeout)
	f.discovery = gpu.NewDiscovery(discoveryReader, gpu.Paths{
		PCIIDs:    cfg.PCIIDsPaths,
		Hwdb:      cfg.HwdbPaths,
		AMDGPUIDs: cfg.AMDGPUIDsPath,
	}, log)

	return f
}

// Create returns a new meter of kind. Unknown kinds are an error.
func (f *Factory) Create(kind meter.Kind) (*meter.Subject, error) {
	build, ok := constructors[kind]
	if !ok {
		return nil, fmt.Errorf("factory: unknown meter kind %s", kind)
	}

	tasks := f.queue.NewTasks()
	r := file.New(f.cfg.HostRoot, tasks, f.cfg.ReadTimeout)
	log := f.log.With("meter", kind.String())

	source := build(f, r, tasks, log)
	return meter.New(kind, source, meter.Options{
		Log:               f.log,
		ActivityThreshold: f.cfg.ActivityThreshold,
		Tasks:             tasks,
	}), nil
}

// CreateAll builds one meter for each configured kind, in configuration
// order.
func (f *Factory) CreateAll() ([]*meter.Subject, error) {
	out := make([]*meter.Subject, 0, len(f.cfg.Meters))
	for _, name := range f.cfg.Meters {
		kind, err := meter.ParseKind(name)
		if err != nil {
			return nil, err
		}
		m, err := f.Create(kind)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
