package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	dbpkg "github.com/crf-paris15/crf.tools/internal/db"
	"github.com/crf-paris15/crf.tools/internal/lockcrf/store"
)

type AuthorizationStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAuthorizationStore(db *sql.DB, writer *dbpkg.Worker) *AuthorizationStore {
	return &AuthorizationStore{db: db, writer: writer}
}

func (s *AuthorizationStore) CreateAuthorization(ctx context.Context, rec store.AuthorizationRecord) (store.AuthorizationRecord, error) {
	createdMs := toMs(rec.CreatedAt)
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO authorizations(lock_id, user_id, created_by_id, start_at_ms, end_at_ms, active, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?);
`, rec.LockID, rec.UserID, optString(rec.CreatedByID), optMs(rec.StartAt), optMs(rec.EndAt),
			boolInt(rec.Active), createdMs)
		if err != nil {
			if isForeignKeyViolation(err) {
				return store.ErrNotFound
			}
			return fmt.Errorf("CreateAuthorization insert: %w", err)
		}
		rec.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return store.AuthorizationRecord{}, err
	}
	rec.CreatedAt = fromMs(createdMs)
	return rec, nil
}

func (s *AuthorizationStore) ListAuthorizations(ctx context.Context, lockID int64, userID string) ([]store.AuthorizationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, lock_id, user_id, created_by_id, start_at_ms, end_at_ms, active, created_at_ms
FROM authorizations
WHERE lock_id = ? AND user_id = ?
ORDER BY created_at_ms DESC, id DESC;
`, lockID, userID)
	if err != nil {
		return nil, fmt.Errorf("ListAuthorizations: %w", err)
	}
	defer rows.Close()

	var out []store.AuthorizationRecord
	for rows.Next() {
		var (
			rec        store.AuthorizationRecord
			createdBy  sql.NullString
			start, end sql.NullInt64
			active     int
			created    int64
		)
		if err := rows.Scan(&rec.ID, &rec.LockID, &rec.UserID, &createdBy, &start, &end, &active, &created); err != nil {
			return nil, fmt.Errorf("ListAuthorizations scan: %w", err)
		}
		rec.CreatedByID = createdBy.String
		rec.StartAt = optTime(start)
		rec.EndAt = optTime(end)
		rec.Active = active != 0
		rec.CreatedAt = fromMs(created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *AuthorizationStore) SetAuthorizationActive(ctx context.Context, id int64, active bool) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE authorizations SET active = ? WHERE id = ?;`, boolInt(active), id)
		if err != nil {
			return fmt.Errorf("SetAuthorizationActive: %w", err)
		}
		return requireAffected(res)
	})
}

func (s *AuthorizationStore) DeleteAuthorization(ctx context.Context, id int64) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM authorizations WHERE id = ?;`, id)
		if err != nil {
			return fmt.Errorf("DeleteAuthorization: %w", err)
		}
		return requireAffected(res)
	})
}
