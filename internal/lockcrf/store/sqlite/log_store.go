package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	dbpkg "github.com/crf-paris15/crf.tools/internal/db"
	"github.com/crf-paris15/crf.tools/internal/lockcrf/store"
)

type LogStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewLogStore(db *sql.DB, writer *dbpkg.Worker) *LogStore {
	return &LogStore{db: db, writer: writer}
}

const logColumns = `id, lock_id, user_id, authorization_id, action, success, details, source, created_at_ms`

func scanLog(row interface{ Scan(...any) error }) (store.LogRecord, error) {
	var (
		rec             store.LogRecord
		user            sql.NullString
		auth, act, succ sql.NullInt64
		source          int
		created         int64
	)
	if err := row.Scan(&rec.ID, &rec.LockID, &user, &auth, &act, &succ, &rec.Details, &source, &created); err != nil {
		return store.LogRecord{}, err
	}
	rec.UserID = user.String
	rec.AuthorizationID = scanInt64(auth)
	rec.Action = scanInt(act)
	rec.Success = scanBool(succ)
	rec.Source = store.Source(source)
	rec.CreatedAt = fromMs(created)
	return rec, nil
}

// insertLog must be called inside an existing transaction.
func insertLog(ctx context.Context, tx *sql.Tx, rec *store.LogRecord) error {
	createdMs := toMs(rec.CreatedAt)
	res, err := tx.ExecContext(ctx, `
INSERT INTO logs(lock_id, user_id, authorization_id, action, success, details, source, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`, rec.LockID, optString(rec.UserID), optInt64(rec.AuthorizationID), optInt(rec.Action),
		optBool(rec.Success), rec.Details, int(rec.Source), createdMs)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("insert log: %w", err)
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	rec.CreatedAt = fromMs(createdMs)
	return nil
}

func (s *LogStore) CreateLog(ctx context.Context, rec store.LogRecord) (store.LogRecord, error) {
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return insertLog(ctx, tx, &rec)
	})
	if err != nil {
		return store.LogRecord{}, err
	}
	return rec, nil
}

func (s *LogStore) GetLog(ctx context.Context, id int64) (store.LogRecord, error) {
	rec, err := scanLog(s.db.QueryRowContext(ctx, `SELECT `+logColumns+` FROM logs WHERE id = ?;`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return store.LogRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.LogRecord{}, fmt.Errorf("GetLog: %w", err)
	}
	return rec, nil
}

// ListLogs returns the newest logs for lockID first.  limit <= 0 means all.
func (s *LogStore) ListLogs(ctx context.Context, lockID int64, limit int) ([]store.LogRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+logColumns+`
FROM logs
WHERE lock_id = ?
ORDER BY created_at_ms DESC, id DESC
LIMIT ?;
`, lockID, limit)
	if err != nil {
		return nil, fmt.Errorf("ListLogs: %w", err)
	}
	defer rows.Close()

	var out []store.LogRecord
	for rows.Next() {
		rec, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("ListLogs scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
