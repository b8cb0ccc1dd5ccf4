package store

import (
	"context"
	"time"
)

// LockRecord is one physical device.  NukiID is unique system-wide; NukiAPIKey
// and PhoneNumber are empty when unset.
type LockRecord struct {
	ID          int64
	Name        string
	NukiID      string
	NukiAPIKey  string
	PhoneNumber string
	CreatedAt   time.Time
}

// LockStore resolves locks by each of the identifiers the core needs.
// Deleting a lock removes its logs, authorizations and requests.
type LockStore interface {
	CreateLock(ctx context.Context, rec LockRecord) (LockRecord, error)
	GetLock(ctx context.Context, id int64) (LockRecord, error)
	FindLockByPhoneNumber(ctx context.Context, phone string) (LockRecord, error)
	FindLockByNukiID(ctx context.Context, nukiID string) (LockRecord, error)
	DeleteLock(ctx context.Context, id int64) error
}
