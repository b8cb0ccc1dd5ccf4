package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/crf-paris15/crf.tools/internal/lockcrf/service"
	"github.com/crf-paris15/crf.tools/internal/lockcrf/store"
	"github.com/crf-paris15/crf.tools/internal/nuki"
)

const statusLocked = `{"feature":"DEVICE_STATUS","smartlockId":"D1","state":{"state":1}}`

func TestIngest_TamperedBodyRejected(t *testing.T) {
	f := newFixture(t)
	req := f.issue(t, "R1", store.ActionUnlock)
	logsBefore := f.store.Logs()

	body := `{"smartlockId":"D1","requestId":"R1","success":true}`
	sig := nuki.Sign([]byte(body), webhookSecret)
	tampered := `{"smartlockId":"D1","requestId":"R1","success":false}`

	_, err := f.webhooks.Ingest(context.Background(), []byte(tampered), sig)
	assert.ErrorIs(t, err, service.ErrInvalidSignature)

	got, err := f.store.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.False(t, got.Settled())
	assert.Equal(t, logsBefore, f.store.Logs())
}

func TestIngest_MissingSignatureRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.webhooks.Ingest(context.Background(), []byte(statusLocked), "")
	assert.ErrorIs(t, err, service.ErrInvalidSignature)
}

func TestIngest_BodyErrors(t *testing.T) {
	cases := map[string]struct {
		body string
		want *service.Error
	}{
		"malformed":     {`{"smartlockId":`, service.ErrMalformedBody},
		"no device":     {`{"feature":"DEVICE_STATUS","state":{"state":1}}`, service.ErrMissingDeviceID},
		"unknown event": {`{"smartlockId":"D1","feature":"BATTERY"}`, service.ErrUnknownEvent},
		"unknown lock":  {`{"feature":"DEVICE_STATUS","smartlockId":"nope","state":{"state":1}}`, service.ErrLockNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.ingest(tc.body)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, f.store.Logs())
		})
	}
}

func TestIngest_DeviceStatusEchoSuppressed(t *testing.T) {
	f := newFixture(t)
	f.issue(t, "R1", store.ActionLock)
	f.clock.Advance(3 * time.Second)

	res, err := f.ingest(statusLocked)
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeSuppressed, res.Outcome)
	assert.Len(t, f.store.Logs(), 1)
}

func TestIngest_DeviceStatusUnsolicitedLogged(t *testing.T) {
	f := newFixture(t)

	res, err := f.ingest(statusLocked)
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeLogged, res.Outcome)

	logs := f.store.Logs()
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].Action)
	assert.Equal(t, store.ActionLock, *logs[0].Action)
	assert.Empty(t, logs[0].UserID)
	assert.Equal(t, store.SourceNuki, logs[0].Source)
	assert.JSONEq(t, statusLocked, logs[0].Details)
	assert.Len(t, f.publisher.logs, 1)
}

func TestIngest_EchoWindowBoundary(t *testing.T) {
	f := newFixture(t)
	f.issue(t, "R1", store.ActionLock)

	// The window is open-ended on its far side: a request exactly 10s old no
	// longer counts.
	f.clock.Advance(10 * time.Second)
	res, err := f.ingest(statusLocked)
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeLogged, res.Outcome)
}

func TestIngest_DeviceStatusStateMapping(t *testing.T) {
	cases := map[string]struct {
		body   string
		action int
		logged bool
	}{
		"unlocked":      {`{"feature":"DEVICE_STATUS","smartlockId":"D1","state":{"state":3}}`, store.ActionUnlock, true},
		"motor blocked": {`{"feature":"DEVICE_STATUS","smartlockId":"D1","state":{"state":254}}`, store.ActionUnknown, true},
		"unlocking":     {`{"feature":"DEVICE_STATUS","smartlockId":"D1","state":{"state":2}}`, 0, false},
		"no state":      {`{"feature":"DEVICE_STATUS","smartlockId":"D1"}`, 0, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			res, err := f.ingest(tc.body)
			require.NoError(t, err)

			logs := f.store.Logs()
			if !tc.logged {
				assert.Equal(t, service.OutcomeIgnored, res.Outcome)
				assert.Empty(t, logs)
				return
			}
			require.Len(t, logs, 1)
			assert.Equal(t, tc.action, *logs[0].Action)
		})
	}
}

func TestIngest_DeviceLog(t *testing.T) {
	t.Run("known account", func(t *testing.T) {
		f := newFixture(t)
		res, err := f.ingest(`{"feature":"DEVICE_LOGS","smartlockId":"D1",
			"smartlockLog":{"action":1,"state":0,"accountUserId":991,"name":"Alice"}}`)
		require.NoError(t, err)
		require.Equal(t, service.OutcomeLogged, res.Outcome)
		require.NotNil(t, res.Log)
		assert.Equal(t, f.user.ID, res.Log.UserID)
		assert.Empty(t, res.Log.Details)
		assert.True(t, *res.Log.Success)
	})

	t.Run("unknown account keeps name", func(t *testing.T) {
		f := newFixture(t)
		res, err := f.ingest(`{"feature":"DEVICE_LOGS","smartlockId":"D1",
			"smartlockLog":{"action":2,"state":5,"accountUserId":7,"name":"Keypad"}}`)
		require.NoError(t, err)
		require.NotNil(t, res.Log)
		assert.Empty(t, res.Log.UserID)
		assert.Equal(t, "Keypad", res.Log.Details)
		assert.False(t, *res.Log.Success)
	})

	t.Run("other actions ignored", func(t *testing.T) {
		f := newFixture(t)
		res, err := f.ingest(`{"feature":"DEVICE_LOGS","smartlockId":"D1",
			"smartlockLog":{"action":3,"state":0,"name":"Unlatch"}}`)
		require.NoError(t, err)
		assert.Equal(t, service.OutcomeIgnored, res.Outcome)
		assert.Empty(t, f.store.Logs())
	})

	t.Run("suppressed after command", func(t *testing.T) {
		f := newFixture(t)
		f.issue(t, "R1", store.ActionUnlock)
		f.clock.Advance(2 * time.Second)
		res, err := f.ingest(`{"feature":"DEVICE_LOGS","smartlockId":"D1",
			"smartlockLog":{"action":1,"state":0,"accountUserId":991}}`)
		require.NoError(t, err)
		assert.Equal(t, service.OutcomeSuppressed, res.Outcome)
		assert.Len(t, f.store.Logs(), 1)
	})
}

func TestIngest_CompletionUnknownRequest(t *testing.T) {
	f := newFixture(t)
	_, err := f.ingest(`{"smartlockId":"D1","requestId":"ghost","success":true}`)
	assert.ErrorIs(t, err, service.ErrRequestNotFound)
}

func TestIngest_CompletionSettlesRequestAndLog(t *testing.T) {
	f := newFixture(t)
	req := f.issue(t, "R1", store.ActionUnlock)
	body := `{"smartlockId":"D1","requestId":"R1","success":false,"errorCode":"42"}`

	for range 2 {
		res, err := f.ingest(body)
		require.NoError(t, err)
		assert.Equal(t, service.OutcomeSettled, res.Outcome)
	}

	got, err := f.store.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Success)
	assert.False(t, *got.Success)
	assert.Equal(t, "42", got.Error)

	logs := f.store.Logs()
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].Success)
	assert.False(t, *logs[0].Success)
	assert.Equal(t, "42", logs[0].Details)
}

func TestIngest_CompletionDefaultsToFailure(t *testing.T) {
	f := newFixture(t)
	f.issue(t, "R1", store.ActionUnlock)

	_, err := f.ingest(`{"smartlockId":"D1","requestId":"R1"}`)
	require.NoError(t, err)

	got, err := f.store.GetRequest(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, ptr(false), got.Success)
}

func TestIngest_LogsUnknownDevice(t *testing.T) {
	f := newFixture(t)
	core, logs := observer.New(zapcore.WarnLevel)
	webhooks := service.NewWebhookService(service.WebhookDeps{
		Locks:    f.store,
		Users:    f.store,
		Logs:     f.store,
		Requests: f.store,
		Clock:    f.clock,
		Secret:   webhookSecret,
		Logger:   zap.New(core),
	})

	body := `{"feature":"DEVICE_STATUS","smartlockId":"D404","state":{"state":1}}`
	_, err := webhooks.Ingest(context.Background(), []byte(body), nuki.Sign([]byte(body), webhookSecret))
	require.ErrorIs(t, err, service.ErrLockNotFound)

	entries := logs.FilterMessage("webhook for unknown device").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "D404", entries[0].ContextMap()["device_id"])
}
