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
	"github.com/crf-paris15/crf.tools/internal/telemetry"
)

// DefaultRetention is the age past which Requests are swept.
const DefaultRetention = 60 * time.Second

// Gateway is the slice of the vendor client the services depend on.
type Gateway interface {
	AdvancedAction(ctx context.Context, deviceID, apiKey string, action int) (nuki.ActionResult, error)
	Smartlock(ctx context.Context, deviceID, apiKey string) (map[string]any, error)
	Invalidate(deviceID string)
}

// ActionCommand asks for one physical action.  UserID and AuthorizationID
// are optional.
type ActionCommand struct {
	Action          int
	LockID          int64
	UserID          string
	AuthorizationID *int64
	Source          store.Source
}

type ActionService struct {
	locks     store.LockStore
	requests  store.RequestStore
	gateway   Gateway
	clock     clock.Clock
	reporter  telemetry.Reporter
	publisher LogPublisher
	metrics   *metrics.Metrics
	log       *zap.Logger
	retention time.Duration
}

type ActionDeps struct {
	Locks     store.LockStore
	Requests  store.RequestStore
	Gateway   Gateway
	Clock     clock.Clock
	Reporter  telemetry.Reporter
	Publisher LogPublisher
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Retention time.Duration
}

func NewActionService(d ActionDeps) *ActionService {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Reporter == nil {
		d.Reporter = telemetry.NopReporter{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Retention <= 0 {
		d.Retention = DefaultRetention
	}
	return &ActionService{
		locks:     d.Locks,
		requests:  d.Requests,
		gateway:   d.Gateway,
		clock:     d.Clock,
		reporter:  d.Reporter,
		publisher: orNop(d.Publisher),
		metrics:   d.Metrics,
		log:       d.Logger,
		retention: d.Retention,
	}
}

// Issue sends cmd to the vendor and, once the vendor has accepted it,
// persists the pending log and the request that correlates its completion.
func (s *ActionService) Issue(ctx context.Context, cmd ActionCommand) (store.RequestRecord, error) {
	issuedAt := s.clock.Now()

	req, vendorTook, err := s.issue(ctx, cmd, issuedAt)
	outcome := "accepted"
	var de *Error
	if errors.As(err, &de) {
		outcome = de.Code
	}
	s.metrics.ObserveCommand(cmd.Source.String(), outcome, vendorTook.Seconds())
	return req, err
}

func (s *ActionService) issue(ctx context.Context, cmd ActionCommand, issuedAt time.Time) (store.RequestRecord, time.Duration, error) {
	lock, err := s.locks.GetLock(ctx, cmd.LockID)
	if errors.Is(err, store.ErrNotFound) {
		return store.RequestRecord{}, 0, ErrLockNotFound
	}
	if err != nil {
		return store.RequestRecord{}, 0, ErrInternal.With(err)
	}

	if cmd.Action != store.ActionUnlock && cmd.Action != store.ActionLock {
		return store.RequestRecord{}, 0, ErrInvalidAction
	}

	s.sweep(ctx, issuedAt)

	start := time.Now()
	res, err := s.gateway.AdvancedAction(ctx, lock.NukiID, lock.NukiAPIKey, cmd.Action)
	took := time.Since(start)
	if err != nil {
		s.log.Warn("nuki action failed",
			zap.Int64("lock_id", lock.ID), zap.String("device_id", lock.NukiID), zap.Error(err))
		return store.RequestRecord{}, took, ErrVendorUnreachable.With(err)
	}
	if res.Error != "" {
		return store.RequestRecord{}, took, ErrVendorRejected.Withf("Error from Nuki API: %s", res.Error)
	}
	if res.RequestID == "" {
		return store.RequestRecord{}, took, ErrVendorRejected.Withf("Error from Nuki API: no request id")
	}

	now := s.clock.Now()
	action := cmd.Action
	req, logRec, err := s.requests.CreateRequestWithLog(ctx,
		store.LogRecord{
			LockID:          lock.ID,
			UserID:          cmd.UserID,
			AuthorizationID: cmd.AuthorizationID,
			Action:          &action,
			Source:          cmd.Source,
			CreatedAt:       now,
		},
		store.RequestRecord{
			ID:        res.RequestID,
			LockID:    lock.ID,
			UserID:    cmd.UserID,
			Action:    cmd.Action,
			CreatedAt: now,
		},
	)
	if err != nil {
		// The vendor is already executing the command; without the row its
		// completion webhook cannot be correlated.
		s.log.Error("persist request",
			zap.Int64("lock_id", lock.ID), zap.String("request_id", res.RequestID), zap.Error(err))
		s.reporter.CaptureException(err, map[string]string{
			"code":       ErrRequestPersistFailed.Code,
			"request_id": res.RequestID,
		})
		return store.RequestRecord{}, took, ErrRequestPersistFailed.With(err)
	}

	s.gateway.Invalidate(lock.NukiID)
	s.publisher.PublishLog(ctx, logRec)
	s.log.Info("lock action issued",
		zap.Int64("lock_id", lock.ID),
		zap.Int("action", cmd.Action),
		zap.String("source", cmd.Source.String()),
		zap.String("request_id", req.ID),
	)
	return req, took, nil
}

// sweep deletes requests older than the retention.  Failures are logged;
// the command still goes out.
func (s *ActionService) sweep(ctx context.Context, now time.Time) {
	n, err := s.requests.DeleteRequestsOlderThan(ctx, now.Add(-s.retention))
	if err != nil {
		s.log.Warn("sweep requests", zap.Error(err))
		return
	}
	s.metrics.AddSwept(n)
}

// Request returns the current state of a correlation record.
func (s *ActionService) Request(ctx context.Context, id string) (store.RequestRecord, error) {
	req, err := s.requests.GetRequest(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.RequestRecord{}, ErrRequestNotFound
	}
	if err != nil {
		return store.RequestRecord{}, ErrInternal.With(err)
	}
	return req, nil
}

// LockState returns the vendor's (cached) device document for lockID.
func (s *ActionService) LockState(ctx context.Context, lockID int64) (map[string]any, error) {
	lock, err := s.locks.GetLock(ctx, lockID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrLockNotFound
	}
	if err != nil {
		return nil, ErrInternal.With(err)
	}
	doc, err := s.gateway.Smartlock(ctx, lock.NukiID, lock.NukiAPIKey)
	if err != nil {
		return nil, ErrVendorUnreachable.With(err)
	}
	return doc, nil
}
