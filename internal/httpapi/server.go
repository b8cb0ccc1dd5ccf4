package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/form/v4"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/crf-paris15/crf.tools/internal/lockcrf/service"
	"github.com/crf-paris15/crf.tools/internal/lockcrf/store"
	"github.com/crf-paris15/crf.tools/internal/metrics"
	"github.com/crf-paris15/crf.tools/internal/telemetry"
)

// maxRequestBody caps form and webhook bodies.
const maxRequestBody = 1 << 20

type Dependencies struct {
	Logger    *zap.Logger
	Addr      string
	Actions   *service.ActionService
	Evaluator *service.Evaluator
	Webhooks  *service.WebhookService
	Users     store.UserStore

	// APISecret is shared with the telephony box and the settlement poller.
	APISecret string
	Sessions  sessions.Store

	// PhoneRatePerMinute bounds phone calls per client address; 0 disables
	// the limiter.
	PhoneRatePerMinute int

	Reporter telemetry.Reporter
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

type Server struct {
	httpServer *http.Server
	log        *zap.Logger
	router     chi.Router
	decoder    *form.Decoder
	validate   *validator.Validate

	actions   *service.ActionService
	evaluator *service.Evaluator
	webhooks  *service.WebhookService
	users     store.UserStore
	apiSecret string
	sessions  sessions.Store
	reporter  telemetry.Reporter
	metrics   *metrics.Metrics
}

func NewServer(d Dependencies) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reporter := d.Reporter
	if reporter == nil {
		reporter = telemetry.NopReporter{}
	}

	s := &Server{
		log:       logger.Named("http"),
		decoder:   form.NewDecoder(),
		validate:  newValidator(),
		actions:   d.Actions,
		evaluator: d.Evaluator,
		webhooks:  d.Webhooks,
		users:     d.Users,
		apiSecret: d.APISecret,
		sessions:  d.Sessions,
		reporter:  reporter,
		metrics:   d.Metrics,
	}

	var phoneLimiter *ipLimiter
	if d.PhoneRatePerMinute > 0 {
		phoneLimiter = newIPLimiter(d.PhoneRatePerMinute)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.requireStaff)
			r.Post("/locks/{id}/nuki/action", s.handleDashboardAction)
			r.Get("/locks/{id}/state", s.handleLockState)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit(phoneLimiter))
			r.Post("/phone", s.handlePhoneCheck)
			r.Post("/phone/action", s.handlePhoneAction)
		})

		r.Post("/requests/{id}", s.handleRequestRead)
		r.Post("/webhooks", s.handleWebhook)
		r.Post("/requests", s.handleWebhook)
	})

	s.router = r
	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Run serves until ctx is cancelled, then shuts down within grace.
func (s *Server) Run(ctx context.Context, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.httpServer.Addr))
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
