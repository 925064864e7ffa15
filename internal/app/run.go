package app

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"horizonx-meter/internal/logger"
	"horizonx-meter/internal/meter"
	"horizonx-meter/internal/storage/sqlite"
	"horizonx-meter/internal/transport/rest"
	"horizonx-meter/internal/transport/websocket"
	"horizonx-meter/internal/workers"

	"golang.org/x/sync/errgroup"
)

const recorderBuffer = 256

// runSnapshot ticks twice, one interval apart, so rate based meters have a
// baseline, then prints the latest update of every meter.
func (a *App) runSnapshot(ctx context.Context) error {
	a.attach(a.store)

	a.engine.Tick(ctx)

	select {
	case <-time.After(a.cfg.Interval):
	case <-ctx.Done():
		return ctx.Err()
	}

	a.engine.Tick(ctx)

	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(a.store.List())
}

func (a *App) runStream(ctx context.Context) error {
	a.attach(newStreamObserver(a.out, a.log))
	a.engine.Start(ctx)
	return nil
}

func (a *App) runServe(ctx context.Context) error {
	hub := websocket.NewHub(a.log)

	var (
		history  rest.HistoryReader
		repo     *sqlite.HistoryRepository
		recorder *sqlite.Recorder
	)
	if a.cfg.HistoryEnabled() {
		db, err := sqlite.NewSqliteDB(a.cfg.DBPath, a.log)
		if err != nil {
			return err
		}
		defer db.Close()

		repo = sqlite.NewHistoryRepository(db)
		recorder = sqlite.NewRecorder(repo, recorderBuffer, a.log)
		history = repo
	}

	for _, m := range a.engine.Meters() {
		m.AddObserver(a.store)
		m.AddObserver(hub.Observer(m.Kind()))
		if recorder != nil {
			m.AddObserver(recorder)
		}
	}

	router := rest.NewRouter(a.cfg, &rest.RouterDeps{
		Ws:    websocket.NewHandler(hub, a.log, a.cfg),
		Meter: rest.NewMeterHandler(a.engine, a.store, history),
		Log:   a.log,
	})
	srv := rest.NewServer(router, a.cfg.Address)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		a.engine.Start(gctx)
		return nil
	})

	if recorder != nil {
		g.Go(func() error {
			recorder.Run(gctx)
			return nil
		})

		scheduler := workers.NewScheduler(a.log)
		workers.NewManager(scheduler, a.cfg, a.log, repo).Start(gctx)
		g.Go(func() error {
			scheduler.Wait()
			return nil
		})
	}

	g.Go(func() error {
		return rest.Serve(gctx, srv, a.log)
	})

	return g.Wait()
}

func (a *App) attach(o meter.Observer) {
	for _, m := range a.engine.Meters() {
		m.AddObserver(o)
	}
}

// streamObserver writes one JSON document per update. Meters notify
// concurrently so writes are serialized.
type streamObserver struct {
	mu  sync.Mutex
	enc *json.Encoder
	log logger.Logger
}

func newStreamObserver(w io.Writer, log logger.Logger) *streamObserver {
	return &streamObserver{enc: json.NewEncoder(w), log: log}
}

func (s *streamObserver) Update(u meter.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Encode(u); err != nil {
		s.log.Error("stream encode", "error", err)
	}
}
