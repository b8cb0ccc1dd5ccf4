package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SeedDevOptions describes the starter rows created by SeedDev.  Empty
// fields fall back to placeholder values.
type SeedDevOptions struct {
	LockName        string
	LockNukiID      string
	LockAPIKey      string
	LockPhoneNumber string
	AdminPhone      string
}

// SeedDev creates one lock, one administrator and a permanent authorization
// between them.  Re-running it is a no-op.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	if opt.LockName == "" {
		opt.LockName = "Local principal"
	}
	if opt.LockNukiID == "" {
		opt.LockNukiID = "100000001"
	}
	if opt.LockPhoneNumber == "" {
		opt.LockPhoneNumber = "+33100000000"
	}
	if opt.AdminPhone == "" {
		opt.AdminPhone = "+33600000000"
	}
	now := time.Now().UTC().UnixMilli()

	var apiKey any
	if opt.LockAPIKey != "" {
		apiKey = opt.LockAPIKey
	}

	if _, err := db.ExecContext(ctx, `
INSERT INTO locks(name, nuki_id, nuki_api_key, phone_number, created_at_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(nuki_id) DO UPDATE SET
  name = excluded.name,
  nuki_api_key = COALESCE(excluded.nuki_api_key, locks.nuki_api_key),
  phone_number = excluded.phone_number;
`, opt.LockName, opt.LockNukiID, apiKey, opt.LockPhoneNumber, now); err != nil {
		return fmt.Errorf("seed lock: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO users(id, name, email, phone_number, group_id, created_at_ms)
VALUES ('dev-admin', 'Dev Admin', 'admin@dev.local', ?, 3, ?);
`, opt.AdminPhone, now); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
INSERT INTO authorizations(lock_id, user_id, created_by_id, active, created_at_ms)
SELECT l.id, 'dev-admin', 'dev-admin', 1, ?
FROM locks l
WHERE l.nuki_id = ?
  AND NOT EXISTS (
    SELECT 1 FROM authorizations a WHERE a.lock_id = l.id AND a.user_id = 'dev-admin'
  );
`, now, opt.LockNukiID); err != nil {
		return fmt.Errorf("seed authorization: %w", err)
	}

	return nil
}
