package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/crf-paris15/crf.tools/internal/config"
	dbpkg "github.com/crf-paris15/crf.tools/internal/db"
	"github.com/crf-paris15/crf.tools/internal/lockcrf/clock"
	"github.com/crf-paris15/crf.tools/internal/lockcrf/service"
	sqlitestore "github.com/crf-paris15/crf.tools/internal/lockcrf/store/sqlite"
	"github.com/crf-paris15/crf.tools/internal/logging"
	"github.com/crf-paris15/crf.tools/internal/metrics"
	"github.com/crf-paris15/crf.tools/internal/mqtt"
	"github.com/crf-paris15/crf.tools/internal/telemetry"
)

// app is the process-wide wiring shared by the commands that touch the
// database.
type app struct {
	cfg    config.Config
	log    *zap.Logger
	db     *sql.DB
	writer *dbpkg.Worker
	clock  clock.Clock

	locks          *sqlitestore.LockStore
	users          *sqlitestore.UserStore
	authorizations *sqlitestore.AuthorizationStore
	logs           *sqlitestore.LogStore
	requests       *sqlitestore.RequestStore

	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	reporter  telemetry.Reporter
	publisher *mqtt.Publisher
}

type appOptions struct {
	mqtt bool
}

func openApp(ctx context.Context, opts *RootOptions, ao appOptions) (*app, error) {
	cfg, err := opts.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	a := &app{cfg: cfg, log: logger, clock: clock.Real{}, reporter: telemetry.NopReporter{}}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if a.metrics, err = metrics.New(a.registry); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	if cfg.Sentry.DSN != "" {
		r, err := telemetry.NewSentryReporter(telemetry.SentryOptions{DSN: cfg.Sentry.DSN, Environment: cfg.Env})
		if err != nil {
			return nil, fmt.Errorf("sentry: %w", err)
		}
		a.reporter = r
	}

	a.db, err = dbpkg.Open(ctx, dbpkg.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	a.writer = dbpkg.NewWorker(a.db)

	a.locks = sqlitestore.NewLockStore(a.db, a.writer)
	a.users = sqlitestore.NewUserStore(a.db, a.writer)
	a.authorizations = sqlitestore.NewAuthorizationStore(a.db, a.writer)
	a.logs = sqlitestore.NewLogStore(a.db, a.writer)
	a.requests = sqlitestore.NewRequestStore(a.db, a.writer)

	if ao.mqtt && cfg.MQTT.Broker != "" {
		p, err := mqtt.Connect(ctx, mqtt.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, logger.Named("mqtt"), a.metrics)
		if err != nil {
			// Audit fan-out is optional; run without it.
			logger.Warn("mqtt disabled", zap.String("broker", cfg.MQTT.Broker), zap.Error(err))
		} else {
			a.publisher = p
		}
	}

	return a, nil
}

// logPublisher returns the MQTT publisher or nil, never a typed nil.
func (a *app) logPublisher() service.LogPublisher {
	if a.publisher == nil {
		return nil
	}
	return a.publisher
}

func (a *app) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.writer != nil {
		a.writer.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	a.reporter.Flush(ctx)
	_ = a.log.Sync()
}
