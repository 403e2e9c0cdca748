// Package server provides the control API: one workflow controller per
// project, driven over HTTP, with job progress streamed as Server-Sent Events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/api"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/auth"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/bulkjob"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/db"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/logger"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/metrics"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/server/middleware"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/server/ratelimit"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/workflow"
)

// JobHistory journals jobs and lists them. *db.DB implements it.
type JobHistory interface {
	bulkjob.Journal
	ListJobs(ctx context.Context, filters db.JobFilters) ([]db.Job, error)
	GetJob(ctx context.Context, jobID string) (*db.Job, error)
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	handler     http.Handler
	sessions    *sessions
	history     JobHistory
	metrics     *metrics.Metrics
	rateLimiter *ratelimit.Limiter
	log         logger.Logger
	defaultUser string
}

// Config holds server configuration
type Config struct {
	Port int
	// Sessions builds each project's controller.
	Sessions SessionFactory
	// DefaultUserID is recorded on status updates when the request carries no token.
	DefaultUserID string
	// History is optional; /jobs/history answers 503 without it.
	History JobHistory
	// JWT, when set, requires a bearer token on every route but /health and /metrics.
	JWT       *auth.JWTService
	RateLimit *ratelimit.Config
	Metrics   *metrics.Metrics
	Logger    logger.Logger
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("session factory is required")
	}
	log := logger.OrNop(cfg.Logger)

	s := &Server{
		sessions:    newSessions(cfg.Sessions, log),
		history:     cfg.History,
		metrics:     cfg.Metrics,
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
		log:         log,
		defaultUser: cfg.DefaultUserID,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", cfg.Metrics.Handler())
	mux.HandleFunc("GET /jobs/history", s.handleJobHistory)
	mux.HandleFunc("GET /jobs/history/{job_id}", s.handleJobHistoryItem)
	mux.HandleFunc("GET /projects", s.handleListSessions)
	mux.HandleFunc("DELETE /projects/{project_id}", s.handleCloseSession)

	// Records and view
	mux.HandleFunc("GET /projects/{project_id}/domains", s.handleListDomains)
	mux.HandleFunc("POST /projects/{project_id}/domains/more", s.handleShowMore)
	mux.HandleFunc("POST /projects/{project_id}/reload", s.handleReload)
	mux.HandleFunc("PUT /projects/{project_id}/domains/{id}/status", s.handleSetStatus)
	mux.HandleFunc("DELETE /projects/{project_id}/domains/{id}", s.handleDeleteDomain)

	// Selection
	mux.HandleFunc("GET /projects/{project_id}/selection", s.handleGetSelection)
	mux.HandleFunc("POST /projects/{project_id}/selection", s.handleSelect)
	mux.HandleFunc("DELETE /projects/{project_id}/selection", s.handleClearSelection)
	mux.HandleFunc("POST /projects/{project_id}/selection/smart", s.handleSmartSelect)

	// Bulk operations
	mux.HandleFunc("POST /projects/{project_id}/bulk/status", s.handleBulkStatus)
	mux.HandleFunc("POST /projects/{project_id}/bulk/delete", s.handleBulkDelete)
	mux.HandleFunc("POST /projects/{project_id}/bulk/move", s.handleBulkMove)
	mux.HandleFunc("POST /projects/{project_id}/workflows", s.handleCreateWorkflows)

	// Jobs
	mux.HandleFunc("POST /projects/{project_id}/jobs/analysis", s.handleStartAnalysis)
	mux.HandleFunc("POST /projects/{project_id}/jobs/qualification", s.handleStartQualification)
	mux.HandleFunc("GET /projects/{project_id}/jobs/current", s.handleCurrentJob)
	mux.HandleFunc("DELETE /projects/{project_id}/jobs/current", s.handleCancelJob)
	mux.HandleFunc("GET /projects/{project_id}/events", s.handleEvents)
	mux.HandleFunc("POST /projects/{project_id}/keywords/clusters", s.handleKeywordClusters)

	// Adding domains
	mux.HandleFunc("POST /projects/{project_id}/domains", s.handleAddDomains)
	mux.HandleFunc("GET /projects/{project_id}/duplicates", s.handlePendingDuplicates)
	mux.HandleFunc("POST /projects/{project_id}/duplicates/resolve", s.handleResolveDuplicates)
	mux.HandleFunc("POST /projects/{project_id}/duplicates/cancel", s.handleCancelDuplicates)

	// Triage
	mux.HandleFunc("POST /projects/{project_id}/triage", s.handleOpenTriage)
	mux.HandleFunc("GET /projects/{project_id}/triage", s.handleGetTriage)
	mux.HandleFunc("POST /projects/{project_id}/triage/status", s.handleTriageStatus)
	mux.HandleFunc("POST /projects/{project_id}/triage/analyze", s.handleTriageAnalyze)
	mux.HandleFunc("POST /projects/{project_id}/triage/{direction}", s.handleTriageMove)
	mux.HandleFunc("DELETE /projects/{project_id}/triage", s.handleCloseTriage)

	// Export
	mux.HandleFunc("GET /projects/{project_id}/export.csv", s.handleExport)
	mux.HandleFunc("GET /projects/{project_id}/export.xlsx", s.handleExport)

	var h http.Handler = s.withActingUser(mux)
	if cfg.JWT != nil {
		h = middleware.AuthMiddleware(jwtValidator{svc: cfg.JWT}, "/health", "/metrics")(h)
	}
	s.handler = s.withRateLimit(s.withLogging(s.withCORS(h)))

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: the event stream stays open for the session.
		IdleTimeout: 60 * time.Second,
	}

	return s, nil
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens until ctx ends, then shuts down, closing every session.
func (s *Server) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info("server starting", logger.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			s.Close()
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Sessions first so event streams end and Shutdown does not wait on them.
	s.sessions.closeAll()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.Close()
	s.log.Info("server stopped")
	return nil
}

// Close releases sessions and the rate limiter without touching the listener.
func (s *Server) Close() {
	s.sessions.closeAll()
	s.rateLimiter.Stop()
}

// jwtValidator adapts auth.JWTService to the middleware.
type jwtValidator struct {
	svc *auth.JWTService
}

func (v jwtValidator) ValidateToken(tokenString string) (middleware.UserIDGetter, error) {
	claims, err := v.svc.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// withActingUser puts the caller on the request context. Status updates made
// through the shared project session are recorded against it.
func (s *Server) withActingUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(workflow.WithUserID(r.Context(), s.userID(r))))
	})
}

// userID returns the authenticated user, or the default user when auth is off.
func (s *Server) userID(r *http.Request) string {
	if id, err := middleware.GetUserID(r); err == nil {
		return id
	}
	return s.defaultUser
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(s.extractClientID(r), r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for logging. It forwards
// Flush so the event stream keeps working behind it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Duration("duration", time.Since(start)),
			logger.String("remote", r.RemoteAddr),
		)
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": len(s.sessions.projects()),
		"journal":  s.history != nil,
	})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("encoding JSON response failed", logger.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// fail maps err to its status and writes the user-facing message.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Warn("request failed", logger.Int("status", status), logger.Error(err))
	}
	s.errorResponse(w, status, api.Message(err))
}

// extractClientID uses the IP from RemoteAddr.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		seconds := int(info.RetryAfter.Seconds()) + 1
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	}

	s.log.Warn("rate limit exceeded",
		logger.String("path", r.URL.Path),
		logger.String("client", s.extractClientID(r)),
		logger.Int("limit", info.Limit),
	)

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
