package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/contract-processor/internal/blocks"
	"github.com/jonathan/contract-processor/internal/dataset"
	"github.com/jonathan/contract-processor/internal/db"
	"github.com/jonathan/contract-processor/internal/generation"
	"github.com/jonathan/contract-processor/internal/merge"
	"github.com/jonathan/contract-processor/internal/rendering"
	"github.com/jonathan/contract-processor/internal/server/middleware"
	"github.com/jonathan/contract-processor/internal/server/ratelimit"
	"github.com/jonathan/contract-processor/internal/storage"
	"github.com/jonathan/contract-processor/internal/types"
)

// RecordStore is the read side of the record store used by the API.
type RecordStore interface {
	blocks.Loader
	generation.TemplateStore
	GetProvider(ctx context.Context, id string) (*types.Provider, error)
	ListProviders(ctx context.Context, ids []string) ([]types.Provider, error)
	ListTemplates(ctx context.Context) ([]types.Template, error)
	ListTemplateAssignments(ctx context.Context) (map[string]string, error)
}

// LogStore persists and lists generation logs.
type LogStore interface {
	generation.LogStore
	ListGenerationLogs(ctx context.Context, filter types.GenerationLogFilter) (*types.GenerationLogPage, error)
	DeleteGenerationLog(ctx context.Context, id uuid.UUID) (bool, error)
}

// RunStore persists run summaries so they outlive the process.
type RunStore interface {
	CreateRun(ctx context.Context, runID uuid.UUID, total int) error
	CompleteRun(ctx context.Context, runID uuid.UUID, summary db.RunSummary) error
	GetRun(ctx context.Context, runID uuid.UUID) (*db.Run, error)
	ListRuns(ctx context.Context, limit int) ([]db.Run, error)
}

// Config holds server configuration
type Config struct {
	Port             int
	DefaultTemplate  string
	LegacyFTEBlock   string
	BatchSize        int
	StatusRetries    int
	StatusRetryDelay time.Duration
	Verbose          bool
}

// Dependencies are the stores and services the server runs on. Records is
// required; Logs defaults to an in-memory log book. Auth nil disables bearer
// authentication and RateLimiter nil disables rate limiting.
type Dependencies struct {
	Records     RecordStore
	Logs        LogStore
	Runs        RunStore
	Blobs       storage.Store
	Converter   rendering.Converter
	Cache       *blocks.Cache
	Auth        *JWTService
	RateLimiter *ratelimit.Limiter
	Closers     []func()
}

// Server represents the HTTP server
type Server struct {
	httpServer   *http.Server
	cfg          Config
	records      RecordStore
	logs         LogStore
	runStore     RunStore
	blobs        storage.Store
	cache        *blocks.Cache
	merger       *merge.Merger
	orchestrator *generation.Orchestrator
	auth         *JWTService
	rateLimiter  *ratelimit.Limiter
	runs         *runRegistry
	closers      []func()
}

// New creates a new server instance
func New(cfg Config, deps Dependencies) (*Server, error) {
	if deps.Records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if deps.Logs == nil {
		deps.Logs = dataset.NewLogBook()
	}
	if deps.Cache == nil {
		deps.Cache = blocks.NewCache()
	}

	s := &Server{
		cfg:         cfg,
		records:     deps.Records,
		logs:        deps.Logs,
		runStore:    deps.Runs,
		blobs:       deps.Blobs,
		cache:       deps.Cache,
		auth:        deps.Auth,
		rateLimiter: deps.RateLimiter,
		runs:        newRunRegistry(),
		closers:     deps.Closers,
	}

	evaluator := blocks.NewEvaluator(deps.Records, deps.Cache)
	s.merger = merge.New(evaluator, merge.WithLegacyFTEBlock(cfg.LegacyFTEBlock))

	opts := []generation.Option{
		generation.WithLogStore(deps.Logs),
		generation.WithVerbose(cfg.Verbose),
	}
	if deps.Blobs != nil {
		opts = append(opts, generation.WithBlobStore(deps.Blobs))
	}
	s.orchestrator = generation.New(deps.Records, s.merger, deps.Converter, opts...)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Minute, // streamed runs hold the connection
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the full middleware-wrapped route tree.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /generations", s.handleCreateGeneration)
	api.HandleFunc("GET /generations", s.handleListGenerations)
	api.HandleFunc("POST /generations/stream", s.handleStreamGeneration)
	api.HandleFunc("GET /generations/{id}", s.handleGetGeneration)
	api.HandleFunc("POST /generations/{id}/cancel", s.handleCancelGeneration)
	api.HandleFunc("GET /generations/{id}/archive", s.handleGenerationArchive)
	api.HandleFunc("POST /preview", s.handlePreview)
	api.HandleFunc("GET /logs", s.handleListLogs)
	api.HandleFunc("DELETE /logs/{id}", s.handleDeleteLog)
	api.HandleFunc("POST /dynamic-blocks/cache/clear", s.handleClearBlockCache)

	var protected http.Handler = api
	if s.auth != nil {
		protected = middleware.AuthMiddleware(s.auth.AsTokenValidator())(api)
	} else {
		log.Println("WARNING: API authentication disabled (no signing config)")
	}

	// Public routes
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /files/{token}", s.handleFile)
	mux.Handle("/", protected)

	return s.withRateLimit(s.withLogging(s.withCORS(mux)))
}

// Start begins listening for requests
func (s *Server) Start() error {
	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	// Running generations stop at their next batch boundary
	for _, state := range s.runs.list() {
		if !state.finished() {
			state.cancel.Cancel()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	for _, closeFn := range s.closers {
		closeFn()
	}
	log.Println("Server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth returns server health status. Record stores that can be
// pinged are checked.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.records.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			log.Printf("[SERVER] Health check failed: %v", err)
			s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// writeError maps err to its status code. Internal errors are logged and
// reported without detail.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("Internal error: %v", err)
		s.errorResponse(w, status, "Internal server error")
		return
	}
	s.errorResponse(w, status, err.Error())
}

// extractClientID uses the IP address from RemoteAddr. X-Forwarded-For is
// not trusted.
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
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]interface{}{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		response["retry_after"] = int(info.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}

	log.Printf("[rate-limit] Rate limit exceeded: Limit=%d Remaining=%d Reset=%s",
		info.Limit, info.Remaining, info.ResetTime.Format(time.RFC3339))

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
