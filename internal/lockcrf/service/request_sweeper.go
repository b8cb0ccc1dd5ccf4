package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crf-paris15/crf.tools/internal/lockcrf/clock"
	"github.com/crf-paris15/crf.tools/internal/lockcrf/store"
	"github.com/crf-paris15/crf.tools/internal/metrics"
)

// RequestSweeper periodically deletes Requests older than the retention.
// It complements the sweep run before every command, which never happens
// for a lock nobody operates.
//
// An interval of 0 disables the loop.
type RequestSweeper struct {
	store     store.RequestStore
	clock     clock.Clock
	retention time.Duration
	interval  time.Duration
	metrics   *metrics.Metrics
	log       *zap.Logger

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

type SweeperConfig struct {
	Retention time.Duration
	Interval  time.Duration
}

// NewRequestSweeper creates a sweeper but does not start it.
func NewRequestSweeper(s store.RequestStore, cfg SweeperConfig, c clock.Clock, m *metrics.Metrics, logger *zap.Logger) *RequestSweeper {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if c == nil {
		c = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestSweeper{
		store:     s,
		clock:     c,
		retention: cfg.Retention,
		interval:  cfg.Interval,
		metrics:   m,
		log:       logger,
		done:      make(chan struct{}),
	}
}

// Start sweeps once, then on every interval until ctx is cancelled or Stop
// is called.
func (p *RequestSweeper) Start(ctx context.Context) {
	if p.interval <= 0 {
		p.log.Info("request sweeper disabled")
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)

	p.log.Info("request sweeper started",
		zap.Duration("retention", p.retention), zap.Duration("interval", p.interval))
}

// Stop signals the loop to exit and waits for it.  Safe to call twice.
func (p *RequestSweeper) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
	})
	<-p.done
}

// Run blocks until ctx is cancelled.  It is Start plus Stop for callers
// that manage goroutines themselves (errgroup).
func (p *RequestSweeper) Run(ctx context.Context) error {
	p.Start(ctx)
	<-ctx.Done()
	p.Stop()
	return nil
}

func (p *RequestSweeper) loop(ctx context.Context) {
	defer close(p.done)

	_, _ = p.SweepOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = p.SweepOnce(ctx)
		}
	}
}

// SweepOnce deletes every Request created before now minus the retention.
func (p *RequestSweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := p.clock.Now().Add(-p.retention)
	deleted, err := p.store.DeleteRequestsOlderThan(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Error("request sweep", zap.Error(err))
		}
		return 0, err
	}
	p.metrics.AddSwept(deleted)
	if deleted > 0 {
		p.log.Debug("request sweep", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	}
	return deleted, nil
}
