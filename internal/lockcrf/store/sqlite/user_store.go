package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	dbpkg "github.com/crf-paris15/crf.tools/internal/db"
	"github.com/crf-paris15/crf.tools/internal/lockcrf/store"
)

type UserStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewUserStore(db *sql.DB, writer *dbpkg.Worker) *UserStore {
	return &UserStore{db: db, writer: writer}
}

const userColumns = `id, name, email, phone_number, group_id, nuki_account_id, created_at_ms`

func scanUser(row interface{ Scan(...any) error }) (store.UserRecord, error) {
	var (
		rec     store.UserRecord
		phone   sql.NullString
		account sql.NullString
		created int64
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Email, &phone, &rec.GroupID, &account, &created); err != nil {
		return store.UserRecord{}, err
	}
	rec.PhoneNumber = phone.String
	rec.NukiAccountID = account.String
	rec.CreatedAt = fromMs(created)
	return rec, nil
}

// CreateUser assigns a uuid and a placeholder e-mail when those are empty.
// Phone-number uniqueness is checked explicitly so the conflict surfaces
// before the insert rather than as a driver error.
func (s *UserStore) CreateUser(ctx context.Context, rec store.UserRecord) (store.UserRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Email == "" {
		rec.Email = store.PlaceholderEmail()
	}
	if rec.GroupID == 0 {
		rec.GroupID = 1
	}
	createdMs := toMs(rec.CreatedAt)

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if rec.PhoneNumber != "" {
			var n int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM users WHERE phone_number = ?;`, rec.PhoneNumber,
			).Scan(&n); err != nil {
				return fmt.Errorf("CreateUser phone check: %w", err)
			}
			if n > 0 {
				return store.ErrConflict
			}
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO users(id, name, email, phone_number, group_id, nuki_account_id, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?);
`, rec.ID, rec.Name, rec.Email, optString(rec.PhoneNumber), rec.GroupID,
			optString(rec.NukiAccountID), createdMs); err != nil {
			if isUniqueViolation(err) {
				return store.ErrConflict
			}
			return fmt.Errorf("CreateUser insert: %w", err)
		}
		return nil
	})
	if err != nil {
		return store.UserRecord{}, err
	}
	rec.CreatedAt = fromMs(createdMs)
	return rec, nil
}

func (s *UserStore) GetUser(ctx context.Context, id string) (store.UserRecord, error) {
	return s.queryOne(ctx, "GetUser", `SELECT `+userColumns+` FROM users WHERE id = ?;`, id)
}

func (s *UserStore) FindUserByPhoneNumber(ctx context.Context, phone string) (store.UserRecord, error) {
	if phone == "" {
		return store.UserRecord{}, store.ErrNotFound
	}
	return s.queryOne(ctx, "FindUserByPhoneNumber", `SELECT `+userColumns+` FROM users WHERE phone_number = ?;`, phone)
}

// FindUserByNukiAccountID returns the earliest-created user linked to the
// vendor account; the column is not unique.
func (s *UserStore) FindUserByNukiAccountID(ctx context.Context, accountID string) (store.UserRecord, error) {
	if accountID == "" {
		return store.UserRecord{}, store.ErrNotFound
	}
	return s.queryOne(ctx, "FindUserByNukiAccountID",
		`SELECT `+userColumns+` FROM users WHERE nuki_account_id = ? ORDER BY created_at_ms, id LIMIT 1;`, accountID)
}

func (s *UserStore) queryOne(ctx context.Context, op, query string, arg any) (store.UserRecord, error) {
	rec, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return store.UserRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.UserRecord{}, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

func (s *UserStore) DeleteUser(ctx context.Context, id string) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?;`, id)
		if err != nil {
			return fmt.Errorf("DeleteUser: %w", err)
		}
		return requireAffected(res)
	})
}
