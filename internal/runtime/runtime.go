package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/loqalabs/aacharya/internal/config"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Check reports whether a dependency is usable. Failing checks make /readyz
// return 503.
type Check func() bool

// Runtime owns telemetry and the local status HTTP server.
type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	listener   net.Listener
	telemetry  *telemetry
	ready      atomic.Bool
	wg         sync.WaitGroup

	mu      sync.RWMutex
	checks  map[string]Check
	session func() any
	updates func() (<-chan struct{}, func())

	stopping chan struct{}
	stopOnce sync.Once
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "runtime")),
		checks:   make(map[string]Check),
		stopping: make(chan struct{}),
	}
}

// AddCheck registers a named readiness check.
func (r *Runtime) AddCheck(name string, check Check) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[name] = check
}

// ServeSession exposes the value returned by fn at GET /session.
func (r *Runtime) ServeSession(fn func() any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = fn
}

// Meter returns a meter from the runtime's provider, or a no-op meter before Start.
func (r *Runtime) Meter(name string) metric.Meter {
	if r.telemetry == nil {
		return metricnoop.NewMeterProvider().Meter(name)
	}
	return r.telemetry.meter.Meter(name)
}

func (r *Runtime) Tracer(name string) trace.Tracer {
	if r.telemetry == nil {
		return tracenoop.NewTracerProvider().Tracer(name)
	}
	return r.telemetry.tracer.Tracer(name)
}

// Start initializes telemetry and, when enabled, begins serving HTTP in the
// background. It returns once the listener is bound.
func (r *Runtime) Start(ctx context.Context) error {
	tel, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetry = tel

	if !r.cfg.HTTP.Enabled {
		r.ready.Store(true)
		return nil
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	r.listener = ln
	r.httpServer = &http.Server{
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", ln.Addr().String()))
	return nil
}

// Addr is the bound HTTP address, empty when HTTP is disabled.
func (r *Runtime) Addr() string {
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

func (r *Runtime) Shutdown(ctx context.Context) error {
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	// hijacked websocket connections are not closed by http.Server.Shutdown
	r.stopOnce.Do(func() { close(r.stopping) })
	var errs []error
	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		r.wg.Wait()
	}
	if r.telemetry != nil {
		if err := r.telemetry.shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Handler builds the status router.
func (r *Runtime) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", r.handleHealth)
	router.Get("/readyz", r.handleReady)
	router.Get("/session", r.handleSession)
	router.Get("/session/stream", r.handleSessionStream)
	if r.telemetry != nil && r.telemetry.metrics != nil {
		router.Handle("/metrics", r.telemetry.metrics)
	}
	return router
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	failing := r.failingChecks()
	if r.ready.Load() && len(failing) == 0 {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	msg := "not ready"
	if len(failing) > 0 {
		msg = fmt.Sprintf("not ready: %v", failing)
	}
	_, _ = w.Write([]byte(msg))
}

func (r *Runtime) failingChecks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var failing []string
	for name, check := range r.checks {
		if !check() {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)
	return failing
}

func (r *Runtime) handleSession(w http.ResponseWriter, _ *http.Request) {
	r.mu.RLock()
	fn := r.session
	r.mu.RUnlock()
	if fn == nil {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}
	data, err := sonic.Marshal(fn())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
