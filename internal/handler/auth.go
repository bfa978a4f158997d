package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lumen-im/lumen/internal/auth"
	"github.com/lumen-im/lumen/store/user"
)

type credentials struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		h.respondError(w, http.StatusBadRequest, "username, email and password are required")
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	newUser := &user.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hashed,
		CreatedAt:    time.Now().UTC(),
	}

	if err := h.Users.Create(r.Context(), newUser); err != nil {
		switch {
		case errors.Is(err, user.ErrDuplicateUsername):
			h.respondError(w, http.StatusBadRequest, "Username already registered")
		case errors.Is(err, user.ErrDuplicateEmail):
			h.respondError(w, http.StatusBadRequest, "Email already registered")
		default:
			h.Log.Errorw("create user failed", "error", err)
			h.respondError(w, http.StatusInternalServerError, "Failed to create user")
		}
		return
	}

	token, err := h.Auth.GenerateToken(newUser.ID, newUser.Username)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to create token")
		return
	}
	h.setAuthCookie(w, token)

	h.respondJSON(w, http.StatusCreated, map[string]string{
		"msg":          "User created",
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	u, err := h.Users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			h.respondError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		h.Log.Errorw("login lookup failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		h.respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := h.Auth.GenerateToken(u.ID, u.Username)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to create token")
		return
	}
	h.setAuthCookie(w, token)

	h.respondJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	h.respondJSON(w, http.StatusOK, map[string]string{"msg": "Logged out"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	u, err := h.Users.GetByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			h.respondError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"id":       u.ID,
		"username": u.Username,
		"email":    u.Email,
	})
}

// decodeCredentials accepts either JSON or an OAuth2-style form body, which
// is what password-form clients post.
func (h *Handler) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	var req credentials
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid request body")
			return req, false
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid request body")
			return req, false
		}
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
	}
	if req.Username == "" || req.Password == "" {
		h.respondError(w, http.StatusBadRequest, "Username and password are required")
		return req, false
	}
	return req, true
}

func (h *Handler) setAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.Auth.Validity().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
