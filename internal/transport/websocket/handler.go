package websocket

import (
	"net/http"
	"slices"

	"horizonx-meter/internal/auth"
	"horizonx-meter/internal/config"
	"horizonx-meter/internal/logger"

	"github.com/gorilla/websocket"
)

type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	log      logger.Logger
	secret   string
}

// NewHandler accepts connections from cfg.AllowedOrigins, or from any
// origin when the list is empty. Tokens are required when cfg.JWTSecret
// is set.
func NewHandler(hub *Hub, log logger.Logger, cfg *config.Config) *Handler {
	origins := slices.Clone(cfg.AllowedOrigins)

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if len(origins) == 0 || origin == "" {
				return true
			}

			if !slices.Contains(origins, origin) {
				log.Warn("websocket origin rejected", "origin", origin)
				return false
			}
			return true
		},
	}

	return &Handler{
		hub:      hub,
		upgrader: upgrader,
		log:      log,
		secret:   cfg.JWTSecret,
	}
}

func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" {
		if _, err := auth.ValidateToken(auth.TokenFromRequest(r), h.secret); err != nil {
			h.log.Warn("jwt verification failed", "error", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("upgrade failed", "error", err)
		return
	}

	client := NewClient(h.hub, conn, h.log)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()

	h.log.Info("client connected", "remote_addr", conn.RemoteAddr().String(), "client_id", client.ID)
}
