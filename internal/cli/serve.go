package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crf-paris15/crf.tools/internal/httpapi"
	"github.com/crf-paris15/crf.tools/internal/lockcrf/service"
	"github.com/crf-paris15/crf.tools/internal/nuki"
)

const shutdownGrace = 10 * time.Second

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the request sweeper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts)
		},
	}
}

func runServe(ctx context.Context, rootOpts *RootOptions) error {
	a, err := openApp(ctx, rootOpts, appOptions{mqtt: true})
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	gateway := nuki.New(nuki.Config{
		BaseURL:  cfg.Nuki.BaseURL,
		APIKey:   cfg.Nuki.APIKey,
		Timeout:  cfg.Nuki.Timeout,
		CacheTTL: cfg.Nuki.CacheTTL,
	}, &http.Client{Timeout: cfg.Nuki.Timeout}, a.log.Named("nuki"))

	actions := service.NewActionService(service.ActionDeps{
		Locks:     a.locks,
		Requests:  a.requests,
		Gateway:   gateway,
		Clock:     a.clock,
		Reporter:  a.reporter,
		Publisher: a.logPublisher(),
		Metrics:   a.metrics,
		Logger:    a.log.Named("actions"),
		Retention: cfg.Requests.Retention,
	})
	webhooks := service.NewWebhookService(service.WebhookDeps{
		Locks:      a.locks,
		Users:      a.users,
		Logs:       a.logs,
		Requests:   a.requests,
		Clock:      a.clock,
		Secret:     cfg.Nuki.ClientSecret,
		EchoWindow: cfg.Requests.EchoWindow,
		Publisher:  a.logPublisher(),
		Metrics:    a.metrics,
		Logger:     a.log.Named("webhook"),
	})
	evaluator := service.NewEvaluator(service.EvaluatorDeps{
		Locks:          a.locks,
		Users:          a.users,
		Authorizations: a.authorizations,
		Logs:           a.logs,
		Clock:          a.clock,
		Publisher:      a.logPublisher(),
		Metrics:        a.metrics,
		Logger:         a.log.Named("phone"),
	})
	sweeper := service.NewRequestSweeper(a.requests, service.SweeperConfig{
		Retention: cfg.Requests.Retention,
		Interval:  cfg.Requests.SweepInterval,
	}, a.clock, a.metrics, a.log.Named("sweeper"))

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:             a.log,
		Addr:               cfg.HTTPAddr,
		Actions:            actions,
		Evaluator:          evaluator,
		Webhooks:           webhooks,
		Users:              a.users,
		APISecret:          cfg.API.Secret,
		Sessions:           httpapi.NewSessionStore(cfg.Session.Secret, cfg.Env == "prod"),
		PhoneRatePerMinute: cfg.Phone.RatePerMinute,
		Reporter:           a.reporter,
		Metrics:            a.metrics,
		Gatherer:           a.registry,
	})

	a.log.Info("starting",
		zap.String("env", cfg.Env),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("db", cfg.DBPath),
		zap.Bool("mqtt", a.publisher != nil),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx, shutdownGrace) })
	g.Go(func() error { return sweeper.Run(gctx) })
	err = g.Wait()
	a.log.Info("stopped", zap.Error(err))
	return err
}
