package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crf-paris15/crf.tools/internal/lockcrf/service"
	"github.com/crf-paris15/crf.tools/internal/lockcrf/store"
	"github.com/crf-paris15/crf.tools/internal/nuki"
)

func TestIssue_CreatesPendingLogAndRequest(t *testing.T) {
	f := newFixture(t)

	req, err := f.actions.Issue(context.Background(), service.ActionCommand{
		Action: store.ActionLock, LockID: f.lock.ID, UserID: f.user.ID, Source: store.SourcePhone,
	})
	require.NoError(t, err)
	assert.Equal(t, "R1", req.ID)

	calls := f.gateway.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, actionCall{deviceID: "D1", apiKey: "lock-key", action: 2}, calls[0])

	logs := f.store.Logs()
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].Action)
	assert.Equal(t, store.ActionLock, *logs[0].Action)
	assert.Nil(t, logs[0].Success)
	assert.Equal(t, store.SourcePhone, logs[0].Source)
	assert.Equal(t, f.user.ID, logs[0].UserID)

	reqs := f.store.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "R1", reqs[0].ID)
	assert.Nil(t, reqs[0].Success)
	require.NotNil(t, reqs[0].LogID)
	assert.Equal(t, logs[0].ID, *reqs[0].LogID)

	assert.Equal(t, []string{"D1"}, f.gateway.invalidated)
	assert.Len(t, f.publisher.logs, 1)
}

func TestIssue_InvalidActionTouchesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.actions.Issue(context.Background(), service.ActionCommand{
		Action: 3, LockID: f.lock.ID, UserID: f.user.ID, Source: store.SourceAdminPanel,
	})
	assert.ErrorIs(t, err, service.ErrInvalidAction)
	assert.Empty(t, f.gateway.Calls())
	assert.Empty(t, f.store.Logs())
	assert.Empty(t, f.store.Requests())
}

func TestIssue_LockNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.actions.Issue(context.Background(), service.ActionCommand{
		Action: store.ActionUnlock, LockID: 999, UserID: f.user.ID, Source: store.SourceAdminPanel,
	})
	assert.ErrorIs(t, err, service.ErrLockNotFound)
	assert.Empty(t, f.gateway.Calls())
	assert.Empty(t, f.store.Logs())
}

func TestIssue_LockNotFoundBeforeActionCheck(t *testing.T) {
	f := newFixture(t)

	_, err := f.actions.Issue(context.Background(), service.ActionCommand{Action: 9, LockID: 999})
	assert.ErrorIs(t, err, service.ErrLockNotFound)
}

func TestIssue_VendorFailures(t *testing.T) {
	cases := []struct {
		name   string
		result nuki.ActionResult
		err    error
		want   *service.Error
	}{
		{"unreachable", nuki.ActionResult{}, nuki.ErrUnreachable, service.ErrVendorUnreachable},
		{"rejected", nuki.ActionResult{RequestID: "R9", Error: "device offline"}, nil, service.ErrVendorRejected},
		{"no request id", nuki.ActionResult{}, nil, service.ErrVendorRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.gateway.result, f.gateway.err = tc.result, tc.err

			_, err := f.actions.Issue(context.Background(), service.ActionCommand{
				Action: store.ActionUnlock, LockID: f.lock.ID, Source: store.SourceAdminPanel,
			})
			require.ErrorIs(t, err, tc.want)
			assert.Empty(t, f.store.Logs())
			assert.Empty(t, f.store.Requests())
			assert.Empty(t, f.gateway.invalidated)
		})
	}
}

func TestIssue_RejectedCarriesVendorMessage(t *testing.T) {
	f := newFixture(t)
	f.gateway.result = nuki.ActionResult{Error: "device offline"}

	_, err := f.actions.Issue(context.Background(), service.ActionCommand{Action: 1, LockID: f.lock.ID})
	var de *service.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "Error from Nuki API: device offline", de.Message)
}

func TestIssue_DuplicateRequestIDIsReported(t *testing.T) {
	f := newFixture(t)
	f.issue(t, "R1", store.ActionUnlock)

	_, err := f.actions.Issue(context.Background(), service.ActionCommand{
		Action: store.ActionLock, LockID: f.lock.ID, Source: store.SourceAdminPanel,
	})
	require.ErrorIs(t, err, service.ErrRequestPersistFailed)
	assert.ErrorIs(t, err, store.ErrConflict)

	require.Len(t, f.reporter.events, 1)
	assert.Equal(t, "REQUEST_PERSIST_FAILED", f.reporter.events[0].tags["code"])
	assert.Len(t, f.store.Logs(), 1)
}

func TestIssue_PersistErrorIsWrapped(t *testing.T) {
	f := newFixture(t)
	actions := service.NewActionService(service.ActionDeps{
		Locks:    f.store,
		Requests: failingRequests{f.store},
		Gateway:  f.gateway,
		Clock:    f.clock,
		Reporter: f.reporter,
	})

	_, err := actions.Issue(context.Background(), service.ActionCommand{Action: 1, LockID: f.lock.ID})
	assert.ErrorIs(t, err, service.ErrRequestPersistFailed)
	assert.Len(t, f.reporter.events, 1)
}

func TestIssue_SweepsByIssuanceInstant(t *testing.T) {
	f := newFixture(t)

	f.issue(t, "old", store.ActionUnlock)
	f.clock.Advance(time.Second)
	f.issue(t, "edge", store.ActionLock)

	// "old" is now 61s old, "edge" exactly 60s.
	f.clock.Advance(60 * time.Second)
	f.issue(t, "new", store.ActionUnlock)

	ids := []string{}
	for _, r := range f.store.Requests() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"edge", "new"}, ids)
	assert.Len(t, f.store.Logs(), 3)
}

func TestRequest_Lookup(t *testing.T) {
	f := newFixture(t)
	f.issue(t, "R1", store.ActionUnlock)

	got, err := f.actions.Request(context.Background(), "R1")
	require.NoError(t, err)
	assert.False(t, got.Settled())

	_, err = f.actions.Request(context.Background(), "missing")
	assert.ErrorIs(t, err, service.ErrRequestNotFound)
}

func TestLockState(t *testing.T) {
	f := newFixture(t)

	doc, err := f.actions.LockState(context.Background(), f.lock.ID)
	require.NoError(t, err)
	assert.Contains(t, doc, "state")

	_, err = f.actions.LockState(context.Background(), 999)
	assert.ErrorIs(t, err, service.ErrLockNotFound)

	f.gateway.err = nuki.ErrUnreachable
	_, err = f.actions.LockState(context.Background(), f.lock.ID)
	assert.ErrorIs(t, err, service.ErrVendorUnreachable)
}

func TestError_IsMatchesCode(t *testing.T) {
	wrapped := service.ErrVendorUnreachable.With(errors.New("timeout"))
	assert.ErrorIs(t, wrapped, service.ErrVendorUnreachable)
	assert.NotErrorIs(t, wrapped, service.ErrVendorRejected)
	assert.Contains(t, wrapped.Error(), "timeout")
	assert.Equal(t, "vendor_unreachable", wrapped.Kind.String())
}
