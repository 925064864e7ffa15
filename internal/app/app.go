// Package app wires the meters, the engine and the outer surfaces for one
// run mode.
package app

import (
	"context"
	"io"
	"os"

	"horizonx-meter/internal/config"
	"horizonx-meter/internal/engine"
	"horizonx-meter/internal/factory"
	"horizonx-meter/internal/logger"
	"horizonx-meter/internal/storage/snapshot"
	"horizonx-meter/internal/task"
)

type App struct {
	cfg *config.Config
	log logger.Logger
	out io.Writer

	queue  *task.Queue
	engine *engine.Engine
	store  *snapshot.Updates
}

type Option func(*options)

type options struct {
	out     io.Writer
	factory []factory.Option
}

// WithOutput sets where stream and snapshot modes write. Defaults to
// stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

func WithFactoryOptions(opts ...factory.Option) Option {
	return func(o *options) { o.factory = append(o.factory, opts...) }
}

// New creates every meter named in cfg.Meters and registers it with a new
// engine. Nothing runs until Run.
func New(cfg *config.Config, log logger.Logger, opts ...Option) (*App, error) {
	o := options{out: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	queue := task.NewQueue(cfg.TaskWorkers, log)
	meters, err := factory.New(cfg, queue, log, o.factory...).CreateAll()
	if err != nil {
		return nil, err
	}

	eng := engine.New(cfg.Interval, log)
	for i, m := range meters {
		if err := eng.Register(m); err != nil {
			for _, rest := range meters[i:] {
				rest.Destroy()
			}
			eng.Close()
			return nil, err
		}
	}

	return &App{
		cfg:    cfg,
		log:    log,
		out:    o.out,
		queue:  queue,
		engine: eng,
		store:  snapshot.NewUpdates(),
	}, nil
}

func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Run serves the configured mode until it finishes or ctx is done. Every
// meter is destroyed on return.
func (a *App) Run(ctx context.Context) error {
	a.queue.Start(ctx)
	defer a.queue.Stop()
	defer a.engine.Close()

	a.log.Info("horizonx meter: starting", "mode", a.cfg.Mode, "meters", a.cfg.Meters, "interval", a.cfg.Interval)

	switch a.cfg.Mode {
	case config.ModeSnapshot:
		return a.runSnapshot(ctx)
	case config.ModeStream:
		return a.runStream(ctx)
	case config.ModeServe:
		return a.runServe(ctx)
	default:
		a.log.Info("unknown mode, defaulting to serve", "mode", a.cfg.Mode)
		return a.runServe(ctx)
	}
}
