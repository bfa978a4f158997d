// Package delivery turns an inbound message event into a durable record
// plus best-effort live fan-out.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lumen-im/lumen/internal/registry"
	"github.com/lumen-im/lumen/store/message"
	"github.com/lumen-im/lumen/store/user"
)

// Identity is a verified user identity carried through a session or request.
type Identity struct {
	ID       string
	Username string
}

// Frame is the outbound live-channel payload, pushed to whichever of the two
// parties is currently connected.
type Frame struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Engine is the single authoritative path from "a user sent a message" to
// "it is durable and, best-effort, delivered live". It is not idempotent:
// every call appends exactly one new message.
type Engine struct {
	users    user.Store
	messages message.Store
	registry *registry.Registry
	log      *zap.SugaredLogger
}

// NewEngine creates a new Engine.
func NewEngine(users user.Store, messages message.Store, reg *registry.Registry, log *zap.SugaredLogger) *Engine {
	return &Engine{users: users, messages: messages, registry: reg, log: log}
}

// Deliver resolves the recipient, persists the message, and fans the frame
// out to the sender and recipient connections that are currently live.
//
// An unresolvable recipient fails with message.ErrRecipientNotFound before
// anything is persisted. Persistence failure is fatal to this call only and
// is never retried. A party without a live connection is skipped silently;
// the message stays retrievable through Conversation.
func (e *Engine) Deliver(ctx context.Context, sender Identity, recipientName, content string) (*message.Message, error) {
	recipient, err := e.users.GetByUsername(ctx, recipientName)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, message.ErrRecipientNotFound
		}
		return nil, fmt.Errorf("resolve recipient: %w", err)
	}

	msg, err := e.messages.Append(ctx, sender.ID, recipient.ID, content)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	frame := Frame{
		Sender:    sender.Username,
		Recipient: recipient.Username,
		Message:   msg.Content,
		Timestamp: msg.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return msg, fmt.Errorf("encode frame: %w", err)
	}

	// The sender gets its own echo so a client sees sent and received
	// messages arrive through the same channel, in store order.
	e.push(sender.Username, payload)
	if recipient.Username != sender.Username {
		e.push(recipient.Username, payload)
	}

	return msg, nil
}

func (e *Engine) push(identity string, payload []byte) {
	conn := e.registry.Lookup(identity)
	if conn == nil {
		return
	}
	if !conn.Push(payload) {
		e.log.Warnw("dropped live frame", "user", identity)
	}
}
