package store

import (
	"context"
	"time"
)

// RequestRecord correlates one in-flight vendor command with its eventual
// completion callback.  ID is the vendor-issued request id.  Success is nil
// while pending.
type RequestRecord struct {
	ID        string
	LockID    int64
	UserID    string
	Action    int
	Success   *bool
	Error     string
	LogID     *int64
	CreatedAt time.Time
}

// Settled reports whether the vendor has delivered a terminal state.
func (r RequestRecord) Settled() bool { return r.Success != nil }

// Settlement is the terminal outcome reported by the vendor.
type Settlement struct {
	Success   bool
	ErrorCode string
}

// RequestStore persists correlation records.
//
// CreateRequestWithLog writes the audit log and the request that points at
// it in a single transaction; a duplicate request id yields ErrConflict and
// neither row.  SettleRequest updates the request and, when linked, its log
// in a single transaction.
type RequestStore interface {
	CreateRequestWithLog(ctx context.Context, log LogRecord, req RequestRecord) (RequestRecord, LogRecord, error)
	GetRequest(ctx context.Context, id string) (RequestRecord, error)
	SettleRequest(ctx context.Context, id string, s Settlement) (RequestRecord, error)
	CountRequestsSince(ctx context.Context, lockID int64, since time.Time) (int, error)
	DeleteRequestsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
