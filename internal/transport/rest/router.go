// Package rest
package rest

import (
	"net/http"

	"horizonx-meter/internal/auth"
	"horizonx-meter/internal/config"
	"horizonx-meter/internal/logger"
	"horizonx-meter/internal/transport/rest/middleware"
	"horizonx-meter/internal/transport/websocket"
)

type RouterDeps struct {
	Ws    *websocket.Handler
	Meter *MeterHandler
	Log   logger.Logger
}

func NewRouter(cfg *config.Config, deps *RouterDeps) http.Handler {
	mux := http.NewServeMux()

	globalMw := middleware.New()
	globalMw.Use(middleware.Logging(deps.Log))
	globalMw.Use(middleware.CORS(cfg.AllowedOrigins))

	apiStack := middleware.New()
	apiStack.Use(auth.Middleware(cfg.JWTSecret))

	// HEALTH
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// WEBSOCKET
	mux.HandleFunc("GET /ws", deps.Ws.Serve)

	// METERS
	mux.Handle("GET /meters", apiStack.ThenFunc(deps.Meter.Index))
	mux.Handle("GET /meters/{kind}", apiStack.ThenFunc(deps.Meter.Show))
	mux.Handle("GET /meters/{kind}/history", apiStack.ThenFunc(deps.Meter.History))

	return globalMw.Then(mux)
}
