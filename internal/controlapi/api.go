package controlapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"

	"github.com/rafaeljc/phishguard/internal/analyzer"
	"github.com/rafaeljc/phishguard/internal/store"
	"github.com/rafaeljc/phishguard/internal/validation"
)

// Notifier announces rule changes so every instance reloads its rule sets.
type Notifier interface {
	PublishRulesChanged(ctx context.Context, kind string) error
}

// Config holds the HTTP-facing settings of the API.
type Config struct {
	// APIKeyHash is the SHA-256 hex digest of the key accepted on rule endpoints.
	APIKeyHash string

	// SkipAuth disables rule endpoint authentication (development and tests only).
	SkipAuth bool

	// CORSAllowedOrigins lists the browser origins allowed to call the API.
	CORSAllowedOrigins []string

	// MaxBodyBytes caps request bodies. Zero means no limit.
	MaxBodyBytes int64
}

// Option customizes an API.
type Option func(*API)

// WithRuleManagement mounts the authenticated rule CRUD endpoints.
func WithRuleManagement(repo store.RuleRepository, notifier Notifier) Option {
	return func(a *API) {
		a.rules = repo
		a.notifier = notifier
	}
}

// WithNotifyRetry configures how often a failed rule change notification is retried
// and the delay before the first retry (doubled on every attempt).
func WithNotifyRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(a *API) {
		a.notifyRetries = maxRetries
		a.notifyBackoff = baseDelay
	}
}

// API is the main struct that holds dependencies and the router.
type API struct {
	// Router is the Chi multiplexer that handles HTTP requests.
	Router *chi.Mux

	logger   *slog.Logger
	analyzer *analyzer.Service
	cfg      Config

	// rules and notifier are nil unless rule management is enabled.
	rules    store.RuleRepository
	notifier Notifier

	notifyRetries int
	notifyBackoff time.Duration
}

// NewAPI creates the API and registers its routes.
//
// Panics if:
//   - svc is nil
//   - rule management is enabled without a notifier
//   - rule management is enabled, cfg.APIKeyHash is empty and cfg.SkipAuth is false
func NewAPI(logger *slog.Logger, svc *analyzer.Service, cfg Config, opts ...Option) *API {
	validation.AssertNotNil(svc, "controlapi", "analyzer")
	if logger == nil {
		logger = slog.Default()
	}

	cfg.APIKeyHash = strings.ToLower(strings.TrimSpace(cfg.APIKeyHash))

	api := &API{
		Router:        chi.NewRouter(),
		logger:        logger,
		analyzer:      svc,
		cfg:           cfg,
		notifyRetries: 3,
		notifyBackoff: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(api)
	}

	if api.rules != nil {
		if api.notifier == nil {
			panic("controlapi: notifier cannot be nil when rule management is enabled")
		}
		if !cfg.SkipAuth && cfg.APIKeyHash == "" {
			panic("controlapi: apiKeyHash cannot be empty when authentication is enabled")
		}
	}

	api.configureRoutes()
	return api
}

// RuleManagementEnabled reports whether the rule CRUD endpoints are mounted.
func (a *API) RuleManagementEnabled() bool {
	return a.rules != nil
}

// configureRoutes registers the global middleware stack and API endpoints.
func (a *API) configureRoutes() {
	// 1. Global Middleware Stack
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.RealIP)
	a.Router.Use(a.RequestLogger)
	a.Router.Use(Metrics)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", apiKeyHeader, middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))
	a.Router.Use(render.SetContentType(render.ContentTypeJSON))
	if a.cfg.MaxBodyBytes > 0 {
		a.Router.Use(middleware.RequestSize(a.cfg.MaxBodyBytes))
	}

	// 2. Public Routes
	a.Router.Get("/health", a.handleHealthCheck)
	a.Router.Post("/api/analyze", a.handleLegacyAnalyze)

	a.Router.Route("/api/v1", func(r chi.Router) {
		r.Post("/analyze", a.handleAnalyze)
		r.Get("/rulesets/{kind}", a.handleGetRuleSet)

		if a.analyzer.History() != nil {
			r.Get("/history", a.handleListHistory)
			r.Delete("/history", a.handleClearHistory)
		}

		// 3. Protected Routes (authentication required)
		if a.rules != nil {
			r.Route("/rules", func(r chi.Router) {
				r.Use(a.authenticateAPIKey)

				r.Post("/", a.handleCreateRule)
				r.Get("/", a.handleListRules)
				r.Post("/validate", a.handleValidateRule)

				r.Route("/{kind}/{name}", func(r chi.Router) {
					r.Get("/", a.handleGetRule)
					r.Patch("/", a.handleUpdateRule)
					r.Delete("/", a.handleDeleteRule)
				})
			})
		}
	})
}

// handleHealthCheck reports that the API is serving. Dependency checks live on the observability server.
func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// writeError renders a structured error with the given status.
func writeError(w http.ResponseWriter, r *http.Request, status int, resp *ErrorResponse) {
	render.Status(r, status)
	render.JSON(w, r, resp)
}
