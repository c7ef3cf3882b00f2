// Package rest provides the REST API server implementation
package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/authz-engine/trading-pdp/internal/audit"
	"github.com/authz-engine/trading-pdp/internal/engine"
	"github.com/authz-engine/trading-pdp/internal/metrics"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// Server is the REST API server
type Server struct {
	engine     *engine.Engine
	audit      audit.Logger
	metrics    metrics.Metrics
	router     *mux.Router
	httpServer *http.Server
	logger     *zap.Logger
	config     Config
	startTime  time.Time
}

// Config configures the REST API server
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	EnableCORS   bool
	MaxBodyBytes int64
	MaxBatchSize int
	Version      string
}

// DefaultConfig returns default REST server configuration
func DefaultConfig() Config {
	return Config{
		Port:         8080,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		EnableCORS:   false,
		MaxBodyBytes: 1 << 20,
		MaxBatchSize: 100,
		Version:      "1.0.0",
	}
}

// New creates a new REST API server. auditLogger and m may be nil.
func New(cfg Config, eng *engine.Engine, auditLogger audit.Logger, m metrics.Metrics, logger *zap.Logger) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if auditLogger == nil {
		auditLogger = audit.NewNoopLogger()
	}
	if m == nil {
		m = metrics.NewNoOpMetrics()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultConfig().MaxBatchSize
	}

	s := &Server{
		engine:    eng,
		audit:     auditLogger,
		metrics:   m,
		router:    mux.NewRouter(),
		logger:    logger,
		config:    cfg,
		startTime: time.Now(),
	}

	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s, nil
}

// registerRoutes registers all REST API routes
func (s *Server) registerRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)

	if s.config.EnableCORS {
		s.router.Use(s.corsMiddleware)
		// mux only runs middleware on a matched route, so preflights need one
		s.router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}

	s.router.HandleFunc("/health", s.healthCheckHandler).Methods("GET")
	s.router.Handle("/metrics", s.metrics.HTTPHandler()).Methods("GET")

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/status", s.statusHandler).Methods("GET")

	decisions := v1.PathPrefix("/decision").Subrouter()
	decisions.HandleFunc("", s.decisionHandler).Methods("POST")
	decisions.HandleFunc("/batch", s.batchDecisionHandler).Methods("POST")
	decisions.HandleFunc("/explain", s.explainHandler).Methods("POST")

	v1.HandleFunc("/policy", s.getPolicyHandler).Methods("GET")
	v1.HandleFunc("/policy/validate", s.validatePolicyHandler).Methods("POST")
}

// Start starts the REST API server
func (s *Server) Start() error {
	s.logger.Info("Starting REST API server",
		zap.Int("port", s.config.Port),
		zap.Bool("cors_enabled", s.config.EnableCORS),
	)

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the REST API server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP implements http.Handler interface for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestIDMiddleware propagates X-Request-ID, minting one when absent
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := audit.WithTransport(audit.WithRequestID(r.Context(), id), "http")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.metrics.IncActiveRequests()
		defer s.metrics.DecActiveRequests()

		wrappedWriter := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrappedWriter, r)

		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrappedWriter.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("request_id", audit.RequestIDFromContext(r.Context())),
		)
	})
}

// recoveryMiddleware recovers from panics
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("Panic recovered",
					zap.Any("error", err),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
				)
				s.metrics.RecordTransportError("http", "panic")
				WriteError(w, http.StatusInternalServerError, "Internal server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// healthCheckHandler handles health check requests
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	checks := map[string]interface{}{
		"engine": "ok",
		"policy": s.engine.Config().Fingerprint(),
	}

	_ = WriteJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    checks,
	})
}

// statusHandler handles service status requests
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	cfg := s.engine.Config()

	_ = WriteJSON(w, http.StatusOK, StatusResponse{
		Version:           s.config.Version,
		Uptime:            time.Since(s.startTime).String(),
		PolicyFingerprint: cfg.Fingerprint(),
		ConfigSwaps:       s.engine.ConfigSwaps(),
		Roles:             cfg.Roles(),
		CanaryVenues:      cfg.CanaryVenues(),
		Checks:            engine.CheckNames(),
		Timestamp:         time.Now(),
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
