package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lumen-im/lumen/internal/auth"
	"github.com/lumen-im/lumen/internal/delivery"
	"github.com/lumen-im/lumen/store/message"
	"github.com/lumen-im/lumen/store/user"
)

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	users, err := h.Users.ListOthers(r.Context(), claims.Username)
	if err != nil {
		h.Log.Errorw("list users failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.respondJSON(w, http.StatusOK, users)
}

// handleSendMessage is the REST counterpart of the live channel. It runs
// through the same delivery engine, so parties that are connected see the
// message pushed even when it was sent over HTTP.
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	var req struct {
		Recipient string `json:"recipient"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Recipient == "" || req.Message == "" {
		h.respondError(w, http.StatusBadRequest, "recipient and message are required")
		return
	}

	sender := delivery.Identity{ID: claims.UserID, Username: claims.Username}
	msg, err := h.Engine.Deliver(r.Context(), sender, req.Recipient, req.Message)
	if err != nil {
		if errors.Is(err, message.ErrRecipientNotFound) {
			h.respondError(w, http.StatusNotFound, "Recipient not found")
			return
		}
		h.Log.Errorw("send message failed", "sender", claims.Username, "error", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to send message")
		return
	}

	h.respondJSON(w, http.StatusOK, msg)
}

func (h *Handler) handleConversation(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	username := mux.Vars(r)["username"]

	other, err := h.Users.GetByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			h.respondError(w, http.StatusNotFound, "User not found")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	messages, err := h.Messages.Conversation(r.Context(), claims.UserID, other.ID)
	if err != nil {
		h.Log.Errorw("conversation query failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to load conversation")
		return
	}

	h.respondJSON(w, http.StatusOK, messages)
}
