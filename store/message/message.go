package message

import (
	"context"
	"errors"
	"time"
)

// Message is one persisted chat line between two users. The ID and
// Timestamp are assigned by the store at append time; a message is never
// mutated or deleted afterwards.
type Message struct {
	ID          int64     `json:"id"`
	SenderID    string    `json:"-"`
	RecipientID string    `json:"-"`
	Sender      string    `json:"sender_username"`
	Recipient   string    `json:"recipient_username"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
}

var (
	ErrRecipientNotFound = errors.New("recipient not found")
)

// Store defines message persistence operations.
type Store interface {
	// Append durably persists one message and returns it with the
	// store-assigned ID and timestamp filled in. The write is synchronous;
	// a message that fails to append must never be delivered live.
	Append(ctx context.Context, senderID, recipientID, content string) (*Message, error)
	// Conversation returns every message exchanged between the two users,
	// ordered by timestamp ascending with ties broken by ID. The result is
	// symmetric in its arguments and empty (not an error) when the pair has
	// never exchanged messages.
	Conversation(ctx context.Context, userAID, userBID string) ([]*Message, error)
}
