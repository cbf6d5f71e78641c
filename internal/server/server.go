// Package server exposes the batch runner over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/venue-enricher/internal/batch"
	"github.com/sells-group/venue-enricher/internal/metrics"
	"github.com/sells-group/venue-enricher/internal/model"
	"github.com/sells-group/venue-enricher/internal/store"
)

const (
	readyTimeout    = 5 * time.Second
	shutdownTimeout = 30 * time.Second

	// statusClientClosed is the nginx convention for a client that hung up
	// before the response was written.
	statusClientClosed = 499
)

// BatchRunner runs one enrichment batch. *batch.Runner satisfies it.
type BatchRunner interface {
	Run(ctx context.Context, opts batch.Options) (*model.BatchReport, error)
}

// Config controls request validation and CORS.
type Config struct {
	DefaultLimit int
	MaxLimit     int
	CORSOrigins  []string
}

// Server holds the handler dependencies.
type Server struct {
	runner  BatchRunner
	store   store.Store
	cfg     Config
	metrics *metrics.Manager
}

// New creates a Server. A nil metrics manager disables /metrics.
func New(runner BatchRunner, st store.Store, cfg Config, m *metrics.Manager) *Server {
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	if cfg.DefaultLimit <= 0 || cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = min(10, cfg.MaxLimit)
	}
	return &Server{runner: runner, store: st, cfg: cfg, metrics: m}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleBatch)
	r.Get("/ping", plain("pong"))
	r.Get("/healthz", plain("ok"))
	r.Get("/ready", s.handleReady)

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.With(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})).Get("/stats", s.handleStats)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	opts, err := s.parseOptions(r)
	if err != nil {
		report := &model.BatchReport{Limit: opts.Limit, Dry: opts.Dry, Rows: []model.RowOutcome{}}
		report.Finish(model.ReasonError, err.Error(), 0)
		writeJSON(w, http.StatusBadRequest, report)
		return
	}

	report, err := s.runner.Run(r.Context(), opts)
	if report == nil {
		report = &model.BatchReport{Limit: opts.Limit, Dry: opts.Dry, Rows: []model.RowOutcome{}}
		if err != nil {
			report.Finish(model.ReasonError, err.Error(), 0)
		}
	}
	if err != nil {
		code := errorStatus(err)
		if code == statusClientClosed || code == http.StatusGatewayTimeout {
			zap.L().Warn("server: batch aborted", zap.String("run_id", report.RunID), zap.Int("status", code), zap.Error(err))
		} else {
			zap.L().Error("server: batch failed", zap.String("run_id", report.RunID), zap.Error(err))
		}
		writeJSON(w, code, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// errorStatus maps a handler error to its response code. A client that went
// away or a request that ran out of time is not a server fault.
func errorStatus(err error) int {
	switch {
	case store.IsBackendUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return statusClientClosed
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// parseOptions validates the query. The returned options are usable for an
// error report even when err is set.
func (s *Server) parseOptions(r *http.Request) (batch.Options, error) {
	q := r.URL.Query()
	opts := batch.Options{
		Limit: s.cfg.DefaultLimit,
		Dry:   truthy(q.Get("dry")),
		After: strings.TrimSpace(q.Get("after")),
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return opts, eris.Errorf("limit must be an integer, got %q", raw)
		}
		opts.Limit = n
		if n < 1 || n > s.cfg.MaxLimit {
			return opts, eris.Errorf("limit must be between 1 and %d", s.cfg.MaxLimit)
		}
	}
	return opts, nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	info := s.store.Info()
	if err := s.store.Ping(ctx); err != nil {
		zap.L().Warn("server: backend not ready", zap.String("table", info.Table), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"table":  info.Table,
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"table":    info.Table,
		"location": info.Location,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	cov, err := s.store.Coverage(r.Context())
	if err != nil {
		writeJSON(w, errorStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, cov)
}

func plain(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

// logRequests logs every request through zap and counts it by route.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			s.metrics.RecordHTTP(route, status)
			zap.L().Info("server: request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.String("remote", r.RemoteAddr),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

// ListenAndServe serves h on addr until ctx is cancelled, then shuts down
// gracefully. In-flight batches get shutdownTimeout to finish.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("server: listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server: listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("server: shutting down")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return eris.Wrap(err, "server: shutdown")
		}
		return nil
	})
	return g.Wait()
}
