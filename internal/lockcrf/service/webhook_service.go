package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/crf-paris15/crf.tools/internal/lockcrf/clock"
	"github.com/crf-paris15/crf.tools/internal/lockcrf/store"
	"github.com/crf-paris15/crf.tools/internal/metrics"
	"github.com/crf-paris15/crf.tools/internal/nuki"
)

// DefaultEchoWindow is how long after a command vendor pushes for the same
// lock are treated as its echo.
const DefaultEchoWindow = 10 * time.Second

type Outcome int

const (
	OutcomeLogged Outcome = iota
	OutcomeSuppressed
	OutcomeIgnored
	OutcomeSettled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLogged:
		return "logged"
	case OutcomeSuppressed:
		return "suppressed"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// IngestResult describes what a webhook changed.  Log is set for Logged;
// Request for Settled.
type IngestResult struct {
	Outcome Outcome
	Message string
	Log     *store.LogRecord
	Request *store.RequestRecord
}

type WebhookService struct {
	locks      store.LockStore
	users      store.UserStore
	logs       store.LogStore
	requests   store.RequestStore
	clock      clock.Clock
	secret     string
	echoWindow time.Duration
	publisher  LogPublisher
	metrics    *metrics.Metrics
	log        *zap.Logger
}

type WebhookDeps struct {
	Locks      store.LockStore
	Users      store.UserStore
	Logs       store.LogStore
	Requests   store.RequestStore
	Clock      clock.Clock
	Secret     string
	EchoWindow time.Duration
	Publisher  LogPublisher
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

func NewWebhookService(d WebhookDeps) *WebhookService {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.EchoWindow <= 0 {
		d.EchoWindow = DefaultEchoWindow
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &WebhookService{
		locks:      d.Locks,
		users:      d.Users,
		logs:       d.Logs,
		requests:   d.Requests,
		clock:      d.Clock,
		secret:     d.Secret,
		echoWindow: d.EchoWindow,
		publisher:  orNop(d.Publisher),
		metrics:    d.Metrics,
		log:        d.Logger,
	}
}

// Ingest authenticates, decodes and applies one vendor webhook.  body must
// be the raw request body.
func (s *WebhookService) Ingest(ctx context.Context, body []byte, signature string) (IngestResult, error) {
	arrivedAt := s.clock.Now()

	if !nuki.VerifySignature(body, s.secret, signature) {
		s.log.Warn("webhook signature mismatch", zap.Int("body_bytes", len(body)))
		s.metrics.ObserveWebhook("unknown", "invalid_signature")
		return IngestResult{}, ErrInvalidSignature
	}

	ev, err := nuki.ParseEvent(body)
	if err != nil {
		s.metrics.ObserveWebhook("unknown", "rejected")
		switch {
		case errors.Is(err, nuki.ErrMissingDeviceID):
			return IngestResult{}, ErrMissingDeviceID
		case errors.Is(err, nuki.ErrUnknownEvent):
			return IngestResult{}, ErrUnknownEvent
		default:
			return IngestResult{}, ErrMalformedBody.With(err)
		}
	}

	kind := eventKind(ev)
	lock, err := s.locks.FindLockByNukiID(ctx, ev.DeviceID())
	if errors.Is(err, store.ErrNotFound) {
		s.log.Warn("webhook for unknown device", zap.String("device_id", ev.DeviceID()))
		s.metrics.ObserveWebhook(kind, "lock_not_found")
		return IngestResult{}, ErrLockNotFound
	}
	if err != nil {
		return IngestResult{}, ErrInternal.With(err)
	}

	var res IngestResult
	switch e := ev.(type) {
	case *nuki.DeviceStatus:
		res, err = s.deviceStatus(ctx, lock, e, arrivedAt)
	case *nuki.DeviceLog:
		res, err = s.deviceLog(ctx, lock, e, arrivedAt)
	case *nuki.RequestCompletion:
		res, err = s.completion(ctx, lock, e)
	}
	if err != nil {
		var de *Error
		outcome := "error"
		if errors.As(err, &de) {
			outcome = de.Code
		}
		s.metrics.ObserveWebhook(kind, outcome)
		return IngestResult{}, err
	}
	s.metrics.ObserveWebhook(kind, res.Outcome.String())
	return res, nil
}

func eventKind(ev nuki.Event) string {
	switch ev.(type) {
	case *nuki.DeviceStatus:
		return "device_status"
	case *nuki.DeviceLog:
		return "device_log"
	case *nuki.RequestCompletion:
		return "request_completion"
	}
	return "unknown"
}

// isEcho reports whether a command for lock was issued within the echo
// window before at.
func (s *WebhookService) isEcho(ctx context.Context, lockID int64, at time.Time) (bool, error) {
	n, err := s.requests.CountRequestsSince(ctx, lockID, at.Add(-s.echoWindow))
	if err != nil {
		return false, ErrInternal.With(err)
	}
	return n > 0, nil
}

var suppressed = IngestResult{
	Outcome: OutcomeSuppressed,
	Message: "Log was not added since the request was made by lock.crf",
}

func (s *WebhookService) deviceStatus(ctx context.Context, lock store.LockRecord, ev *nuki.DeviceStatus, at time.Time) (IngestResult, error) {
	echo, err := s.isEcho(ctx, lock.ID, at)
	if err != nil {
		return IngestResult{}, err
	}
	if echo {
		s.log.Debug("device status suppressed as echo", zap.Int64("lock_id", lock.ID))
		return suppressed, nil
	}

	action, ok := ev.Action()
	if !ok {
		return IngestResult{Outcome: OutcomeIgnored, Message: "State not logged"}, nil
	}
	return s.appendLog(ctx, store.LogRecord{
		LockID:    lock.ID,
		Action:    &action,
		Details:   string(ev.Raw),
		Source:    store.SourceNuki,
		CreatedAt: at,
	})
}

func (s *WebhookService) deviceLog(ctx context.Context, lock store.LockRecord, ev *nuki.DeviceLog, at time.Time) (IngestResult, error) {
	echo, err := s.isEcho(ctx, lock.ID, at)
	if err != nil {
		return IngestResult{}, err
	}
	if echo {
		return suppressed, nil
	}
	if ev.Action != store.ActionUnlock && ev.Action != store.ActionLock {
		return IngestResult{Outcome: OutcomeIgnored, Message: "Action not logged"}, nil
	}

	action := ev.Action
	success := ev.Succeeded()
	rec := store.LogRecord{
		LockID:    lock.ID,
		Action:    &action,
		Success:   &success,
		Source:    store.SourceNuki,
		CreatedAt: at,
	}
	user, err := s.users.FindUserByNukiAccountID(ctx, ev.AccountUserID)
	switch {
	case err == nil:
		rec.UserID = user.ID
	case errors.Is(err, store.ErrNotFound):
		rec.Details = ev.Name
	default:
		return IngestResult{}, ErrInternal.With(err)
	}
	return s.appendLog(ctx, rec)
}

func (s *WebhookService) appendLog(ctx context.Context, rec store.LogRecord) (IngestResult, error) {
	saved, err := s.logs.CreateLog(ctx, rec)
	if err != nil {
		return IngestResult{}, ErrInternal.With(err)
	}
	s.publisher.PublishLog(ctx, saved)
	return IngestResult{Outcome: OutcomeLogged, Message: "Log added successfully", Log: &saved}, nil
}

func (s *WebhookService) completion(ctx context.Context, lock store.LockRecord, ev *nuki.RequestCompletion) (IngestResult, error) {
	req, err := s.requests.SettleRequest(ctx, ev.RequestID, store.Settlement{
		Success:   ev.Success,
		ErrorCode: ev.ErrorCode,
	})
	if errors.Is(err, store.ErrNotFound) {
		s.log.Warn("completion for unknown request",
			zap.Int64("lock_id", lock.ID), zap.String("request_id", ev.RequestID))
		return IngestResult{}, ErrRequestNotFound
	}
	if err != nil {
		return IngestResult{}, ErrInternal.With(err)
	}

	if req.LogID != nil {
		if l, err := s.logs.GetLog(ctx, *req.LogID); err == nil {
			s.publisher.PublishLog(ctx, l)
		}
	}
	s.log.Info("request settled",
		zap.String("request_id", req.ID), zap.Bool("success", ev.Success), zap.String("error_code", ev.ErrorCode))
	return IngestResult{Outcome: OutcomeSettled, Message: "Request updated successfully", Request: &req}, nil
}
