// Package handler exposes the HTTP API and the live-channel upgrade
// endpoint.
package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/lumen-im/lumen/internal/auth"
	"github.com/lumen-im/lumen/internal/config"
	"github.com/lumen-im/lumen/internal/delivery"
	"github.com/lumen-im/lumen/internal/registry"
	"github.com/lumen-im/lumen/store/message"
	"github.com/lumen-im/lumen/store/user"
)

const authCookie = "access_token"

// Handler holds the dependencies shared by every endpoint.
type Handler struct {
	Users    user.Store
	Messages message.Store
	Engine   *delivery.Engine
	Registry *registry.Registry
	Auth     *auth.Authenticator
	Config   *config.Config
	Log      *zap.SugaredLogger
}

// New creates a Handler.
func New(users user.Store, messages message.Store, engine *delivery.Engine, reg *registry.Registry, a *auth.Authenticator, cfg *config.Config, log *zap.SugaredLogger) *Handler {
	return &Handler{
		Users:    users,
		Messages: messages,
		Engine:   engine,
		Registry: reg,
		Auth:     a,
		Config:   cfg,
		Log:      log,
	}
}

// Routes builds the router with CORS applied.
func (h *Handler) Routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/register", h.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/api/login", h.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/logout", h.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/api/me", h.requireAuth(h.handleMe)).Methods(http.MethodGet)
	r.HandleFunc("/api/users", h.requireAuth(h.handleListUsers)).Methods(http.MethodGet)
	r.HandleFunc("/api/messages", h.requireAuth(h.handleSendMessage)).Methods(http.MethodPost)
	r.HandleFunc("/api/messages/{username}", h.requireAuth(h.handleConversation)).Methods(http.MethodGet)
	r.HandleFunc("/ws", h.handleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins:   h.Config.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		h.Log.Warnw("health check write error", "error", err)
	}
}

// requireAuth wraps an endpoint so it only runs with verified claims.
func (h *Handler) requireAuth(next func(http.ResponseWriter, *http.Request, *auth.Claims)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := h.authenticateRequest(r)
		if err != nil {
			h.respondError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next(w, r, claims)
	}
}

// authenticateRequest extracts and validates the caller's token. Bearer
// header first, then the auth cookie, then the token query parameter (the
// only channel a browser websocket dial has).
func (h *Handler) authenticateRequest(r *http.Request) (*auth.Claims, error) {
	token := ""
	if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
		token = strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
	}
	if token == "" {
		if c, err := r.Cookie(authCookie); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return nil, auth.ErrInvalidToken
	}
	return h.Auth.ValidateToken(token)
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Log.Warnw("response write error", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, detail string) {
	h.respondJSON(w, status, map[string]string{"detail": detail})
}
