package store

import (
	"context"
	"crypto/rand"
	"strings"
	"time"
)

// UserRecord is a person who may be granted access.  Optional fields are
// empty strings when unset.
type UserRecord struct {
	ID            string
	Name          string
	Email         string
	PhoneNumber   string
	GroupID       int64
	NukiAccountID string
	CreatedAt     time.Time
}

// UserStore persists users.  CreateUser returns ErrConflict when the e-mail
// or phone number is already taken.  Deleting a user does not cascade: rows
// referencing it keep an empty user reference.
type UserStore interface {
	CreateUser(ctx context.Context, rec UserRecord) (UserRecord, error)
	GetUser(ctx context.Context, id string) (UserRecord, error)
	FindUserByPhoneNumber(ctx context.Context, phone string) (UserRecord, error)
	FindUserByNukiAccountID(ctx context.Context, accountID string) (UserRecord, error)
	DeleteUser(ctx context.Context, id string) error
}

// PlaceholderEmail returns a random address for users created without one
// (phone-only accounts).
func PlaceholderEmail() string {
	return strings.ToLower(rand.Text()[:12]) + "@fake.mail"
}
