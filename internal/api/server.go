package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/eleven-am/specter/internal/core"
	"github.com/eleven-am/specter/internal/domain"
)

// Server exposes the agent manager over HTTP.
type Server struct {
	manager   *core.Manager
	config    domain.HTTPConfig
	server    *http.Server
	logger    *slog.Logger
	startTime time.Time
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	Agents    []string  `json:"agents,omitempty"`
}

func NewServer(manager *core.Manager, config domain.HTTPConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		manager:   manager,
		config:    config,
		logger:    logger.With("component", "http-api"),
		startTime: time.Now(),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("POST /webhook/{channel}", s.handleWebhook)
	mux.HandleFunc("POST /skills/forge", s.handleForge)
	mux.HandleFunc("POST /skills/install", s.handleInstallSkill)
	mux.HandleFunc("POST /skills/run", s.handleRunSkill)
	mux.HandleFunc("GET /skills", s.handleListSkills)
	mux.HandleFunc("POST /tools/invoke", s.handleInvokeTool)
	mux.HandleFunc("GET /tools", s.handleListTools)
	mux.HandleFunc("GET /executions", s.handleListExecutions)
	mux.HandleFunc("GET /executions/{id}", s.handleGetExecution)
	mux.HandleFunc("GET /executions/{id}/audit", s.handleListAudit)
	mux.HandleFunc("POST /executions/{id}/replay", s.handleReplay)
	mux.HandleFunc("POST /healing/override", s.handleHealOverride)
	mux.HandleFunc("GET /ui", s.handleUI)

	return s.withLogging(mux)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting http api", "addr", s.config.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			s.logger.Error("http api error", "error", err)
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("shutting down http api")
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
