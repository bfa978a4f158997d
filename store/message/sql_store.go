package message

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
)

// SQLStore implements Store using a database/sql connection.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a new SQLStore.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Append(ctx context.Context, senderID, recipientID, content string) (*Message, error) {
	query := `
		WITH inserted AS (
			INSERT INTO messages (sender_id, recipient_id, content)
			VALUES ($1, $2, $3)
			RETURNING id, sender_id, recipient_id, content, timestamp
		)
		SELECT i.id, i.sender_id, i.recipient_id, su.username, ru.username, i.content, i.timestamp
		FROM inserted i
		JOIN users su ON su.id = i.sender_id
		JOIN users ru ON ru.id = i.recipient_id
	`

	row := s.db.QueryRowContext(ctx, query, senderID, recipientID, content)

	var m Message
	err := row.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Sender, &m.Recipient, &m.Content, &m.Timestamp)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" &&
			strings.Contains(pqErr.Constraint, "recipient") {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}

	return &m, nil
}

func (s *SQLStore) Conversation(ctx context.Context, userAID, userBID string) ([]*Message, error) {
	query := `
		SELECT m.id, m.sender_id, m.recipient_id, su.username, ru.username, m.content, m.timestamp
		FROM messages m
		JOIN users su ON su.id = m.sender_id
		JOIN users ru ON ru.id = m.recipient_id
		WHERE (m.sender_id = $1 AND m.recipient_id = $2)
			OR (m.sender_id = $2 AND m.recipient_id = $1)
		ORDER BY m.timestamp, m.id
	`

	rows, err := s.db.QueryContext(ctx, query, userAID, userBID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	messages := make([]*Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Sender, &m.Recipient, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, &m)
	}

	return messages, rows.Err()
}
