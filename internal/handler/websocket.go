package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/lumen-im/lumen/internal/delivery"
	"github.com/lumen-im/lumen/internal/session"
)

// newUpgrader builds a websocket upgrader restricted to the allowed origins.
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowed["*"] {
				return true
			}
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin header.
			return origin == "" || allowed[origin]
		},
	}
}

// handleWebSocket establishes a live channel. The token is validated before
// the upgrade, and the session is bound to the identity in its claims; the
// channel itself never carries credentials again.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := h.authenticateRequest(r)
	if err != nil {
		h.respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	upgrader := newUpgrader(h.Config.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warnw("websocket upgrade failed", "user", claims.Username, "error", err)
		return
	}

	identity := delivery.Identity{ID: claims.UserID, Username: claims.Username}
	sess := session.New(conn, identity, h.Engine, h.Registry, h.Config.WS, h.Log)
	sess.Run()
}
