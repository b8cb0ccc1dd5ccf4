package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbpkg "github.com/crf-paris15/crf.tools/internal/db"
	"github.com/crf-paris15/crf.tools/internal/lockcrf/store"
)

type RequestStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewRequestStore(db *sql.DB, writer *dbpkg.Worker) *RequestStore {
	return &RequestStore{db: db, writer: writer}
}

func (s *RequestStore) CreateRequestWithLog(ctx context.Context, log store.LogRecord, req store.RequestRecord) (store.RequestRecord, store.LogRecord, error) {
	createdMs := toMs(req.CreatedAt)
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := insertLog(ctx, tx, &log); err != nil {
			return fmt.Errorf("CreateRequestWithLog: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO requests(id, lock_id, user_id, action, log_id, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?);
`, req.ID, req.LockID, optString(req.UserID), req.Action, log.ID, createdMs); err != nil {
			switch {
			case isUniqueViolation(err):
				return store.ErrConflict
			case isForeignKeyViolation(err):
				return store.ErrNotFound
			}
			return fmt.Errorf("CreateRequestWithLog insert request: %w", err)
		}
		return nil
	})
	if err != nil {
		return store.RequestRecord{}, store.LogRecord{}, err
	}
	logID := log.ID
	req.LogID = &logID
	req.Success = nil
	req.Error = ""
	req.CreatedAt = fromMs(createdMs)
	return req, log, nil
}

func (s *RequestStore) GetRequest(ctx context.Context, id string) (store.RequestRecord, error) {
	rec, err := scanRequest(s.db.QueryRowContext(ctx, `
SELECT id, lock_id, user_id, action, success, error, log_id, created_at_ms
FROM requests WHERE id = ?;
`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return store.RequestRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.RequestRecord{}, fmt.Errorf("GetRequest: %w", err)
	}
	return rec, nil
}

func scanRequest(row interface{ Scan(...any) error }) (store.RequestRecord, error) {
	var (
		rec          store.RequestRecord
		user, errStr sql.NullString
		succ, logID  sql.NullInt64
		created      int64
	)
	if err := row.Scan(&rec.ID, &rec.LockID, &user, &rec.Action, &succ, &errStr, &logID, &created); err != nil {
		return store.RequestRecord{}, err
	}
	rec.UserID = user.String
	rec.Success = scanBool(succ)
	rec.Error = errStr.String
	rec.LogID = scanInt64(logID)
	rec.CreatedAt = fromMs(created)
	return rec, nil
}

// SettleRequest overwrites the terminal state on every call, so a redelivered
// completion leaves the same final rows.
func (s *RequestStore) SettleRequest(ctx context.Context, id string, st store.Settlement) (store.RequestRecord, error) {
	var out store.RequestRecord
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE requests SET success = ?, error = ? WHERE id = ?;
`, boolInt(st.Success), optString(st.ErrorCode), id)
		if err != nil {
			return fmt.Errorf("SettleRequest update request: %w", err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}

		out, err = scanRequest(tx.QueryRowContext(ctx, `
SELECT id, lock_id, user_id, action, success, error, log_id, created_at_ms
FROM requests WHERE id = ?;
`, id))
		if err != nil {
			return fmt.Errorf("SettleRequest reload: %w", err)
		}
		if out.LogID == nil {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE logs SET success = ?, details = ? WHERE id = ?;
`, boolInt(st.Success), st.ErrorCode, *out.LogID); err != nil {
			return fmt.Errorf("SettleRequest update log: %w", err)
		}
		return nil
	})
	if err != nil {
		return store.RequestRecord{}, err
	}
	return out, nil
}

// CountRequestsSince counts requests for lockID created strictly after since.
func (s *RequestStore) CountRequestsSince(ctx context.Context, lockID int64, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM requests WHERE lock_id = ? AND created_at_ms > ?;
`, lockID, since.UTC().UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountRequestsSince: %w", err)
	}
	return n, nil
}

// DeleteRequestsOlderThan removes requests created strictly before cutoff.
// Linked logs are kept.
func (s *RequestStore) DeleteRequestsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM requests WHERE created_at_ms < ?;`, cutoff.UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("DeleteRequestsOlderThan: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}
