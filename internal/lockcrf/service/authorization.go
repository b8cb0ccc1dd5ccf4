package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/crf-paris15/crf.tools/internal/lockcrf/clock"
	"github.com/crf-paris15/crf.tools/internal/lockcrf/store"
	"github.com/crf-paris15/crf.tools/internal/metrics"
)

// Grant is a positive phone access decision.
type Grant struct {
	LockID          int64
	UserID          string
	AuthorizationID int64
}

type Evaluator struct {
	locks     store.LockStore
	users     store.UserStore
	auths     store.AuthorizationStore
	logs      store.LogStore
	clock     clock.Clock
	publisher LogPublisher
	metrics   *metrics.Metrics
	log       *zap.Logger
}

type EvaluatorDeps struct {
	Locks          store.LockStore
	Users          store.UserStore
	Authorizations store.AuthorizationStore
	Logs           store.LogStore
	Clock          clock.Clock
	Publisher      LogPublisher
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
}

func NewEvaluator(d EvaluatorDeps) *Evaluator {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Evaluator{
		locks:     d.Locks,
		users:     d.Users,
		auths:     d.Authorizations,
		logs:      d.Logs,
		clock:     d.Clock,
		publisher: orNop(d.Publisher),
		metrics:   d.Metrics,
		log:       d.Logger,
	}
}

// EvaluatePhone decides whether the caller "from" may operate the lock bound
// to the dialled number "to".  Refusals after the lock is resolved leave an
// audit log.
func (e *Evaluator) EvaluatePhone(ctx context.Context, from, to string) (Grant, error) {
	now := e.clock.Now()

	lock, err := e.locks.FindLockByPhoneNumber(ctx, to)
	if errors.Is(err, store.ErrNotFound) {
		e.metrics.ObservePhoneDecision("lock_not_assigned")
		return Grant{}, ErrLockNotAssigned
	}
	if err != nil {
		return Grant{}, ErrInternal.With(err)
	}

	user, err := e.users.FindUserByPhoneNumber(ctx, from)
	if errors.Is(err, store.ErrNotFound) {
		e.recordDenial(ctx, store.LogRecord{LockID: lock.ID, Details: from, CreatedAt: now})
		e.log.Warn("phone access from unknown caller", zap.Int64("lock_id", lock.ID), zap.String("from", from))
		e.metrics.ObservePhoneDecision("unknown_caller")
		return Grant{}, ErrUnknownCaller
	}
	if err != nil {
		return Grant{}, ErrInternal.With(err)
	}

	auth, ok, err := e.validAt(ctx, lock.ID, user.ID, now)
	if err != nil {
		return Grant{}, ErrInternal.With(err)
	}
	if !ok {
		e.recordDenial(ctx, store.LogRecord{LockID: lock.ID, UserID: user.ID, CreatedAt: now})
		e.log.Warn("phone access outside authorization",
			zap.Int64("lock_id", lock.ID), zap.String("user_id", user.ID))
		e.metrics.ObservePhoneDecision("no_valid_authorization")
		return Grant{}, ErrNoValidAuthorization
	}

	e.metrics.ObservePhoneDecision("granted")
	return Grant{LockID: lock.ID, UserID: user.ID, AuthorizationID: auth.ID}, nil
}

// ValidAuthorization returns the most recently created authorization of
// userID on lockID that is valid now.
func (e *Evaluator) ValidAuthorization(ctx context.Context, lockID int64, userID string) (store.AuthorizationRecord, bool, error) {
	return e.validAt(ctx, lockID, userID, e.clock.Now())
}

func (e *Evaluator) validAt(ctx context.Context, lockID int64, userID string, now time.Time) (store.AuthorizationRecord, bool, error) {
	auths, err := e.auths.ListAuthorizations(ctx, lockID, userID)
	if err != nil {
		return store.AuthorizationRecord{}, false, err
	}
	for _, a := range auths {
		if a.ValidAt(now) {
			return a, true, nil
		}
	}
	return store.AuthorizationRecord{}, false, nil
}

// recordDenial writes the refusal log.  A failed write does not change the
// decision returned to the caller.
func (e *Evaluator) recordDenial(ctx context.Context, rec store.LogRecord) {
	rec.Source = store.SourcePhone
	saved, err := e.logs.CreateLog(ctx, rec)
	if err != nil {
		e.log.Error("record denied phone access", zap.Int64("lock_id", rec.LockID), zap.Error(err))
		return
	}
	e.publisher.PublishLog(ctx, saved)
}
