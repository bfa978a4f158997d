package user

import (
	"context"
	"errors"
	"time"
)

// User is an account in the directory. Username is the public identity
// carried by tokens and frames; it is unique and immutable once issued.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateUsername = errors.New("username already registered")
	ErrDuplicateEmail    = errors.New("email already registered")
)

// Store defines user directory persistence operations.
type Store interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	// ListOthers returns every user except the named one, for contact lists.
	ListOthers(ctx context.Context, username string) ([]*User, error)
}
