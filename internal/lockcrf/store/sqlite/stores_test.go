package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crf-paris15/crf.tools/internal/lockcrf/store"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestLockStore_Lookups(t *testing.T) {
	ctx := context.Background()
	s := newStores(t)
	l, _ := s.seed(t)

	byPhone, err := s.locks.FindLockByPhoneNumber(ctx, "+331")
	require.NoError(t, err)
	assert.Equal(t, l.ID, byPhone.ID)
	assert.Equal(t, "key", byPhone.NukiAPIKey)

	byNuki, err := s.locks.FindLockByNukiID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, l.ID, byNuki.ID)

	_, err = s.locks.GetLock(ctx, 999)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.locks.CreateLock(ctx, store.LockRecord{Name: "Dup", NukiID: "42"})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestUserStore_PlaceholderAndConflict(t *testing.T) {
	ctx := context.Background()
	s := newStores(t)
	_, u := s.seed(t)

	assert.Contains(t, u.Email, "@fake.mail")
	assert.EqualValues(t, 1, u.GroupID)

	got, err := s.users.FindUserByNukiAccountID(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.users.CreateUser(ctx, store.UserRecord{Name: "Bob", PhoneNumber: "+336"})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.users.FindUserByPhoneNumber(ctx, "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAuthorizationStore_OrderAndBounds(t *testing.T) {
	ctx := context.Background()
	s := newStores(t)
	l, u := s.seed(t)

	start := t0.Add(-time.Hour)
	first, err := s.auths.CreateAuthorization(ctx, store.AuthorizationRecord{
		LockID: l.ID, UserID: u.ID, StartAt: &start, Active: true, CreatedAt: t0,
	})
	require.NoError(t, err)
	second, err := s.auths.CreateAuthorization(ctx, store.AuthorizationRecord{
		LockID: l.ID, UserID: u.ID, Active: false, CreatedAt: t0.Add(time.Second),
	})
	require.NoError(t, err)

	got, err := s.auths.ListAuthorizations(ctx, l.ID, u.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
	assert.False(t, got[0].Active)
	require.NotNil(t, got[1].StartAt)
	assert.True(t, got[1].StartAt.Equal(start))
	assert.Nil(t, got[1].EndAt)
	assert.Equal(t, first.ID, got[1].ID)

	require.NoError(t, s.auths.SetAuthorizationActive(ctx, second.ID, true))
	assert.ErrorIs(t, s.auths.SetAuthorizationActive(ctx, 999, true), store.ErrNotFound)

	_, err = s.auths.CreateAuthorization(ctx, store.AuthorizationRecord{LockID: 999, UserID: u.ID})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRequestStore_CreateAndSettle(t *testing.T) {
	ctx := context.Background()
	s := newStores(t)
	l, u := s.seed(t)
	action := store.ActionUnlock

	req, lg, err := s.requests.CreateRequestWithLog(ctx,
		store.LogRecord{LockID: l.ID, UserID: u.ID, Action: &action, Source: store.SourcePhone, CreatedAt: t0},
		store.RequestRecord{ID: "r1", LockID: l.ID, UserID: u.ID, Action: action, CreatedAt: t0},
	)
	require.NoError(t, err)
	require.NotNil(t, req.LogID)
	assert.Equal(t, lg.ID, *req.LogID)

	stored, err := s.requests.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, stored.Settled())
	assert.True(t, stored.CreatedAt.Equal(t0))

	for range 2 {
		settled, err := s.requests.SettleRequest(ctx, "r1", store.Settlement{Success: true})
		require.NoError(t, err)
		require.NotNil(t, settled.Success)
		assert.True(t, *settled.Success)
		assert.Empty(t, settled.Error)
	}

	gotLog, err := s.logs.GetLog(ctx, lg.ID)
	require.NoError(t, err)
	require.NotNil(t, gotLog.Success)
	assert.True(t, *gotLog.Success)
	require.NotNil(t, gotLog.Action)
	assert.Equal(t, store.ActionUnlock, *gotLog.Action)
	assert.Equal(t, store.SourcePhone, gotLog.Source)

	_, err = s.requests.SettleRequest(ctx, "nope", store.Settlement{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRequestStore_DuplicateIDLeavesNoLog(t *testing.T) {
	ctx := context.Background()
	s := newStores(t)
	l, _ := s.seed(t)

	for i := range 2 {
		_, _, err := s.requests.CreateRequestWithLog(ctx,
			store.LogRecord{LockID: l.ID, Source: store.SourceAdminPanel},
			store.RequestRecord{ID: "dup", LockID: l.ID, Action: store.ActionLock},
		)
		if i == 0 {
			require.NoError(t, err)
		} else {
			assert.ErrorIs(t, err, store.ErrConflict)
		}
	}

	logs, err := s.logs.ListLogs(ctx, l.ID, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestRequestStore_WindowAndSweep(t *testing.T) {
	ctx := context.Background()
	s := newStores(t)
	l, _ := s.seed(t)

	ages := map[string]time.Duration{"old": 61 * time.Second, "edge": 60 * time.Second, "fresh": 3 * time.Second}
	for id, age := range ages {
		_, _, err := s.requests.CreateRequestWithLog(ctx,
			store.LogRecord{LockID: l.ID, Source: store.SourceAdminPanel, CreatedAt: t0.Add(-age)},
			store.RequestRecord{ID: id, LockID: l.ID, Action: store.ActionLock, CreatedAt: t0.Add(-age)},
		)
		require.NoError(t, err)
	}

	n, err := s.requests.CountRequestsSince(ctx, l.ID, t0.Add(-10*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	deleted, err := s.requests.DeleteRequestsOlderThan(ctx, t0.Add(-60*time.Second))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, err = s.requests.GetRequest(ctx, "edge")
	assert.NoError(t, err)
	_, err = s.requests.GetRequest(ctx, "old")
	assert.ErrorIs(t, err, store.ErrNotFound)

	logs, err := s.logs.ListLogs(ctx, l.ID, 2)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestUserDelete_NullsReferences(t *testing.T) {
	ctx := context.Background()
	s := newStores(t)
	l, u := s.seed(t)

	lg, err := s.logs.CreateLog(ctx, store.LogRecord{LockID: l.ID, UserID: u.ID, Source: store.SourcePhone, Details: "x"})
	require.NoError(t, err)

	require.NoError(t, s.users.DeleteUser(ctx, u.ID))

	got, err := s.logs.GetLog(ctx, lg.ID)
	require.NoError(t, err)
	assert.Empty(t, got.UserID)
	assert.Nil(t, got.Action)
	assert.Nil(t, got.Success)
}

func TestLockDelete_Cascades(t *testing.T) {
	ctx := context.Background()
	s := newStores(t)
	l, u := s.seed(t)

	_, err := s.auths.CreateAuthorization(ctx, store.AuthorizationRecord{LockID: l.ID, UserID: u.ID, Active: true})
	require.NoError(t, err)
	_, _, err = s.requests.CreateRequestWithLog(ctx,
		store.LogRecord{LockID: l.ID, Source: store.SourceAdminPanel},
		store.RequestRecord{ID: "r", LockID: l.ID, Action: store.ActionLock},
	)
	require.NoError(t, err)

	require.NoError(t, s.locks.DeleteLock(ctx, l.ID))

	for _, table := range []string{"logs", "requests", "authorizations"} {
		var n int
		require.NoError(t, s.conn.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
		assert.Zero(t, n, table)
	}
}

func TestUserStore_NukiAccountIDEarliestWins(t *testing.T) {
	ctx := context.Background()
	s := newStores(t)

	_, err := s.users.CreateUser(ctx, store.UserRecord{Name: "Late", PhoneNumber: "+33601", NukiAccountID: "acc", CreatedAt: t0.Add(time.Minute)})
	require.NoError(t, err)
	early, err := s.users.CreateUser(ctx, store.UserRecord{Name: "Early", PhoneNumber: "+33602", NukiAccountID: "acc", CreatedAt: t0})
	require.NoError(t, err)

	got, err := s.users.FindUserByNukiAccountID(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, early.ID, got.ID)
}

func TestAuthorizationStore_DeleteNullsLogReference(t *testing.T) {
	ctx := context.Background()
	s := newStores(t)
	l, u := s.seed(t)

	a, err := s.auths.CreateAuthorization(ctx, store.AuthorizationRecord{LockID: l.ID, UserID: u.ID, Active: true, CreatedAt: t0})
	require.NoError(t, err)
	authID := a.ID
	logRec, err := s.logs.CreateLog(ctx, store.LogRecord{LockID: l.ID, UserID: u.ID, AuthorizationID: &authID, Source: store.SourcePhone, CreatedAt: t0})
	require.NoError(t, err)

	require.NoError(t, s.auths.DeleteAuthorization(ctx, a.ID))

	auths, err := s.auths.ListAuthorizations(ctx, l.ID, u.ID)
	require.NoError(t, err)
	assert.Empty(t, auths)
	got, err := s.logs.GetLog(ctx, logRec.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AuthorizationID)

	assert.ErrorIs(t, s.auths.DeleteAuthorization(ctx, a.ID), store.ErrNotFound)
}
