package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/crf-paris15/crf.tools/internal/lockcrf/clock"
	"github.com/crf-paris15/crf.tools/internal/lockcrf/service"
	"github.com/crf-paris15/crf.tools/internal/lockcrf/store"
	"github.com/crf-paris15/crf.tools/internal/lockcrf/store/memory"
	"github.com/crf-paris15/crf.tools/internal/nuki"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const webhookSecret = "whsec"

type actionCall struct {
	deviceID string
	apiKey   string
	action   int
}

type fakeGateway struct {
	mu          sync.Mutex
	result      nuki.ActionResult
	err         error
	calls       []actionCall
	invalidated []string
}

func (g *fakeGateway) AdvancedAction(_ context.Context, deviceID, apiKey string, action int) (nuki.ActionResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, actionCall{deviceID, apiKey, action})
	return g.result, g.err
}

func (g *fakeGateway) Smartlock(context.Context, string, string) (map[string]any, error) {
	if g.err != nil {
		return nil, g.err
	}
	return map[string]any{"state": map[string]any{"state": 1}}, nil
}

func (g *fakeGateway) Invalidate(deviceID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.invalidated = append(g.invalidated, deviceID)
}

func (g *fakeGateway) Calls() []actionCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]actionCall(nil), g.calls...)
}

type captured struct {
	err  error
	msg  string
	tags map[string]string
}

type fakeReporter struct {
	mu     sync.Mutex
	events []captured
}

func (r *fakeReporter) CaptureException(err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, captured{err: err, tags: tags})
}

func (r *fakeReporter) CaptureMessage(msg string, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, captured{msg: msg, tags: tags})
}

func (r *fakeReporter) Flush(context.Context) bool { return true }

type fakePublisher struct {
	mu   sync.Mutex
	logs []store.LogRecord
}

func (p *fakePublisher) PublishLog(_ context.Context, rec store.LogRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logs = append(p.logs, rec)
}

// failingRequests makes every request insert fail.
type failingRequests struct {
	store.RequestStore
}

func (failingRequests) CreateRequestWithLog(context.Context, store.LogRecord, store.RequestRecord) (store.RequestRecord, store.LogRecord, error) {
	return store.RequestRecord{}, store.LogRecord{}, errors.New("disk full")
}

type fixture struct {
	store     *memory.Store
	clock     *clock.Manual
	gateway   *fakeGateway
	reporter  *fakeReporter
	publisher *fakePublisher
	lock      store.LockRecord
	user      store.UserRecord

	actions   *service.ActionService
	webhooks  *service.WebhookService
	evaluator *service.Evaluator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		store:     memory.New(),
		clock:     clock.NewManual(t0),
		gateway:   &fakeGateway{result: nuki.ActionResult{RequestID: "R1"}},
		reporter:  &fakeReporter{},
		publisher: &fakePublisher{},
	}

	var err error
	f.lock, err = f.store.CreateLock(ctx, store.LockRecord{
		Name: "Local", NukiID: "D1", NukiAPIKey: "lock-key", PhoneNumber: "+33100000000", CreatedAt: t0,
	})
	require.NoError(t, err)
	f.user, err = f.store.CreateUser(ctx, store.UserRecord{
		Name: "Alice", PhoneNumber: "+33600000000", NukiAccountID: "991", CreatedAt: t0,
	})
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	f.actions = service.NewActionService(service.ActionDeps{
		Locks:     f.store,
		Requests:  f.store,
		Gateway:   f.gateway,
		Clock:     f.clock,
		Reporter:  f.reporter,
		Publisher: f.publisher,
		Logger:    logger,
	})
	f.webhooks = service.NewWebhookService(service.WebhookDeps{
		Locks:     f.store,
		Users:     f.store,
		Logs:      f.store,
		Requests:  f.store,
		Clock:     f.clock,
		Secret:    webhookSecret,
		Publisher: f.publisher,
		Logger:    logger,
	})
	f.evaluator = service.NewEvaluator(service.EvaluatorDeps{
		Locks:          f.store,
		Users:          f.store,
		Authorizations: f.store,
		Logs:           f.store,
		Clock:          f.clock,
		Publisher:      f.publisher,
		Logger:         logger,
	})
	return f
}

// issue runs a successful command with the given vendor request id.
func (f *fixture) issue(t *testing.T, requestID string, action int) store.RequestRecord {
	t.Helper()
	f.gateway.result = nuki.ActionResult{RequestID: requestID}
	req, err := f.actions.Issue(context.Background(), service.ActionCommand{
		Action: action, LockID: f.lock.ID, UserID: f.user.ID, Source: store.SourceAdminPanel,
	})
	require.NoError(t, err)
	return req
}

func (f *fixture) ingest(body string) (service.IngestResult, error) {
	return f.webhooks.Ingest(context.Background(), []byte(body), nuki.Sign([]byte(body), webhookSecret))
}

func ptr[T any](v T) *T { return &v }
