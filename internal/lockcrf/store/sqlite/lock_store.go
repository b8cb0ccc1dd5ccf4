package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	dbpkg "github.com/crf-paris15/crf.tools/internal/db"
	"github.com/crf-paris15/crf.tools/internal/lockcrf/store"
)

type LockStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewLockStore(db *sql.DB, writer *dbpkg.Worker) *LockStore {
	return &LockStore{db: db, writer: writer}
}

const lockColumns = `id, name, nuki_id, nuki_api_key, phone_number, created_at_ms`

func scanLock(row interface{ Scan(...any) error }) (store.LockRecord, error) {
	var (
		rec     store.LockRecord
		apiKey  sql.NullString
		phone   sql.NullString
		created int64
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.NukiID, &apiKey, &phone, &created); err != nil {
		return store.LockRecord{}, err
	}
	rec.NukiAPIKey = apiKey.String
	rec.PhoneNumber = phone.String
	rec.CreatedAt = fromMs(created)
	return rec, nil
}

func (s *LockStore) CreateLock(ctx context.Context, rec store.LockRecord) (store.LockRecord, error) {
	createdMs := toMs(rec.CreatedAt)
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO locks(name, nuki_id, nuki_api_key, phone_number, created_at_ms)
VALUES (?, ?, ?, ?, ?);
`, rec.Name, rec.NukiID, optString(rec.NukiAPIKey), optString(rec.PhoneNumber), createdMs)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrConflict
			}
			return fmt.Errorf("CreateLock insert: %w", err)
		}
		rec.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return store.LockRecord{}, err
	}
	rec.CreatedAt = fromMs(createdMs)
	return rec, nil
}

func (s *LockStore) GetLock(ctx context.Context, id int64) (store.LockRecord, error) {
	return s.queryOne(ctx, "GetLock", `SELECT `+lockColumns+` FROM locks WHERE id = ?;`, id)
}

func (s *LockStore) FindLockByPhoneNumber(ctx context.Context, phone string) (store.LockRecord, error) {
	if phone == "" {
		return store.LockRecord{}, store.ErrNotFound
	}
	return s.queryOne(ctx, "FindLockByPhoneNumber", `SELECT `+lockColumns+` FROM locks WHERE phone_number = ?;`, phone)
}

func (s *LockStore) FindLockByNukiID(ctx context.Context, nukiID string) (store.LockRecord, error) {
	return s.queryOne(ctx, "FindLockByNukiID", `SELECT `+lockColumns+` FROM locks WHERE nuki_id = ?;`, nukiID)
}

func (s *LockStore) queryOne(ctx context.Context, op, query string, arg any) (store.LockRecord, error) {
	rec, err := scanLock(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return store.LockRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.LockRecord{}, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

func (s *LockStore) DeleteLock(ctx context.Context, id int64) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM locks WHERE id = ?;`, id)
		if err != nil {
			return fmt.Errorf("DeleteLock: %w", err)
		}
		return requireAffected(res)
	})
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
