package store

import (
	"context"
	"time"
)

// LogRecord is one audit entry.  Action and Success are nil when unknown
// (denied attempts, pending commands).  UserID is empty when no user is
// attached.
type LogRecord struct {
	ID              int64
	LockID          int64
	UserID          string
	AuthorizationID *int64
	Action          *int
	Success         *bool
	Details         string
	Source          Source
	CreatedAt       time.Time
}

// LogStore appends audit entries.  Updates only happen through
// RequestStore.SettleRequest.
type LogStore interface {
	CreateLog(ctx context.Context, rec LogRecord) (LogRecord, error)
	GetLog(ctx context.Context, id int64) (LogRecord, error)
	ListLogs(ctx context.Context, lockID int64, limit int) ([]LogRecord, error)
}
