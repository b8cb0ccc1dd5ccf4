package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crf-paris15/crf.tools/internal/db"
	"github.com/crf-paris15/crf.tools/internal/lockcrf/store"
	sqlitestore "github.com/crf-paris15/crf.tools/internal/lockcrf/store/sqlite"
)

// openTestDB returns an in-memory SQLite connection with the same PRAGMAs
// and schema as production.  Shared cache keeps the database alive while
// the pool recycles its connection.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf(
		"file:test_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		name,
	)

	conn, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)
	t.Cleanup(func() { conn.Close() })

	_, err = db.Migrate(context.Background(), conn)
	require.NoError(t, err)
	return conn
}

type stores struct {
	conn     *sql.DB
	locks    *sqlitestore.LockStore
	users    *sqlitestore.UserStore
	auths    *sqlitestore.AuthorizationStore
	logs     *sqlitestore.LogStore
	requests *sqlitestore.RequestStore
}

func newStores(t *testing.T) stores {
	t.Helper()
	conn := openTestDB(t)
	w := db.NewWorker(conn)
	t.Cleanup(w.Close)
	return stores{
		conn:     conn,
		locks:    sqlitestore.NewLockStore(conn, w),
		users:    sqlitestore.NewUserStore(conn, w),
		auths:    sqlitestore.NewAuthorizationStore(conn, w),
		logs:     sqlitestore.NewLogStore(conn, w),
		requests: sqlitestore.NewRequestStore(conn, w),
	}
}

func (s stores) seed(t *testing.T) (store.LockRecord, store.UserRecord) {
	t.Helper()
	ctx := context.Background()
	l, err := s.locks.CreateLock(ctx, store.LockRecord{Name: "Local", NukiID: "42", NukiAPIKey: "key", PhoneNumber: "+331"})
	require.NoError(t, err)
	u, err := s.users.CreateUser(ctx, store.UserRecord{Name: "Alice", PhoneNumber: "+336", NukiAccountID: "acc-1"})
	require.NoError(t, err)
	return l, u
}
