package store

import (
	"context"
	"time"
)

// AuthorizationRecord grants UserID access to LockID.  A nil StartAt or
// EndAt is an open side of the window.
type AuthorizationRecord struct {
	ID          int64
	LockID      int64
	UserID      string
	CreatedByID string
	StartAt     *time.Time
	EndAt       *time.Time
	Active      bool
	CreatedAt   time.Time
}

// ValidAt reports whether the grant is usable at t.  Both bounds are
// inclusive.
func (a AuthorizationRecord) ValidAt(t time.Time) bool {
	if !a.Active {
		return false
	}
	if a.StartAt != nil && a.StartAt.After(t) {
		return false
	}
	if a.EndAt != nil && a.EndAt.Before(t) {
		return false
	}
	return true
}

// AuthorizationStore persists grants.  ListAuthorizations returns the grants
// for one (lock, user) pair, most recently created first.
type AuthorizationStore interface {
	CreateAuthorization(ctx context.Context, rec AuthorizationRecord) (AuthorizationRecord, error)
	ListAuthorizations(ctx context.Context, lockID int64, userID string) ([]AuthorizationRecord, error)
	SetAuthorizationActive(ctx context.Context, id int64, active bool) error
	DeleteAuthorization(ctx context.Context, id int64) error
}
