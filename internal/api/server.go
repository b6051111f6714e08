// Package api provides the HTTP API server for acctdash.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/usernameweb/acctdash/internal/auth"
	"github.com/usernameweb/acctdash/internal/config"
	"github.com/usernameweb/acctdash/internal/duration"
	"github.com/usernameweb/acctdash/internal/export"
	"github.com/usernameweb/acctdash/internal/query"
	"github.com/usernameweb/acctdash/internal/scheduler"
)

// ExportScheduler defines the scheduler operations the API needs.
type ExportScheduler interface {
	IsScheduled(name string) bool
	TriggerExport(name string) error
	Status() []ExportStatus
	IsRunning() bool
}

// ExportStatus is an alias for scheduler.ExportStatus.
type ExportStatus = scheduler.ExportStatus

// Server represents the HTTP API server.
type Server struct {
	cfg         *config.Config
	backend     query.Backend
	scheduler   ExportScheduler
	guard       *auth.Guard
	classifier  *duration.Classifier
	profile     export.Profile
	logger      *slog.Logger
	router      chi.Router
	server      *http.Server
	rateLimiter *RateLimiter
}

// Option configures a Server.
type Option func(*Server)

// WithClassifier sets the duration classifier used by the grid and exports.
func WithClassifier(c *duration.Classifier) Option {
	return func(s *Server) { s.classifier = c }
}

// WithExportProfile sets the XLSX schema constants.
func WithExportProfile(p export.Profile) Option {
	return func(s *Server) { s.profile = p }
}

// NewServer creates a new API server. guard may be nil, in which case every
// request acts as the configured [account] email; Start refuses that setup
// on non-loopback addresses.
func NewServer(cfg *config.Config, backend query.Backend, sched ExportScheduler, guard *auth.Guard, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		backend:    backend,
		scheduler:  sched,
		guard:      guard,
		classifier: duration.New(),
		profile:    export.DefaultProfile,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.setupRouter()
	return s
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	// CORS (disabled when no origins are configured)
	corsConfig := CORSConfig{
		AllowedOrigins:   s.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: s.cfg.Server.CORSCredentials,
		MaxAge:           s.cfg.Server.CORSMaxAge,
	}
	if corsConfig.MaxAge == 0 && len(corsConfig.AllowedOrigins) > 0 {
		corsConfig.MaxAge = 86400
	}
	r.Use(CORSMiddleware(corsConfig))

	rps, burst := s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 20
	}
	s.rateLimiter = NewRateLimiter(rps, burst)
	r.Use(RateLimitMiddleware(s.rateLimiter))

	// Health check (no auth required)
	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/session", s.handleSession)
		r.Delete("/session", s.handleSignOut)

		r.Group(func(r chi.Router) {
			r.Use(s.requireBackend)

			r.Post("/accounts", s.handleImport)
			r.Post("/accounts/query", s.handleQuery)
			r.Post("/accounts/bulk-update", s.handleBulkUpdate)
			r.Post("/accounts/bulk-delete", s.handleBulkDelete)
			r.Get("/accounts/{id}", s.handleGetAccount)
			r.Patch("/accounts/{id}", s.handleUpdateAccount)
			r.Delete("/accounts/{id}", s.handleDeleteAccount)

			r.Get("/grid", s.handleGrid)
			r.Get("/suggestions/{field}", s.handleSuggestions)

			r.Post("/export", s.handleExport)
		})

		r.Get("/exports/status", s.handleExportStatus)
		r.Post("/exports/{name}", s.handleTriggerExport)
	})

	return r
}

// Start begins listening for HTTP requests.
// Returns an error if the security posture is invalid.
func (s *Server) Start() error {
	if err := s.cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	bindAddr := s.cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	addr := net.JoinHostPort(bindAddr, strconv.Itoa(s.cfg.Server.APIPort))

	if s.guard == nil {
		s.logger.Warn("API server running without authentication; set [server] api_key in config.toml",
			"acting_as", s.cfg.Account.Email)
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// loggerMiddleware logs HTTP requests.
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

type tokenKey struct{}

// bearerToken reads the credential from Authorization or X-API-Key.
func bearerToken(r *http.Request) string {
	token := r.Header.Get("Authorization")
	if token == "" {
		token = r.Header.Get("X-API-Key")
	}
	if len(token) > 7 && strings.EqualFold(token[:7], "Bearer ") {
		token = token[7:]
	}
	return strings.TrimSpace(token)
}

// authMiddleware resolves the owner for the request and stores it in the
// request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if s.guard == nil {
			owner := strings.TrimSpace(s.cfg.Account.Email)
			if owner == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "No owner configured; set [account] email in config.toml")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithUser(ctx, auth.User{Email: owner, Method: "local"})))
			return
		}

		token := bearerToken(r)
		user, err := s.guard.Authenticate(ctx, token)
		if err != nil {
			s.logger.Warn("unauthorized API request",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"error", err,
			)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing credentials")
			return
		}

		ctx = auth.WithUser(ctx, user)
		ctx = context.WithValue(ctx, tokenKey{}, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireBackend rejects account routes when no store is attached.
func (s *Server) requireBackend(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.backend == nil {
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Database not available")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
