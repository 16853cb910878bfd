package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/13879107157/wyclient/internal/analysis"
	"github.com/13879107157/wyclient/internal/api"
	"github.com/13879107157/wyclient/internal/config"
	"github.com/13879107157/wyclient/internal/lookup"
	"github.com/13879107157/wyclient/internal/metadata"
	"github.com/13879107157/wyclient/internal/observability"
	"github.com/13879107157/wyclient/internal/resource"
	"github.com/13879107157/wyclient/internal/session"
	"github.com/13879107157/wyclient/internal/templates"
	"github.com/13879107157/wyclient/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Readiness observability.ReadinessChecks

	Sessions *session.Manager
	Gate     *Gate
	Auth     *api.Auth

	Types     *resource.Service[model.PlatformType, model.PlatformTypeInput]
	Groups    *resource.Service[model.PlatformGroup, model.PlatformGroupInput]
	Platforms *resource.Platforms
	Lookups   *lookup.Provider

	Analysis  *analysis.Registry
	Templates *templates.Service
	Menu      *metadata.MenuProvider
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, metrics and the login routes
// bypass the session gate.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := deps.Config

	r := chi.NewRouter()

	r.Use(Recovery(logger))
	r.Use(CORS(cfg.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	r.Get("/healthz", observability.HandleHealth())
	r.Get("/readyz", observability.HandleReady(deps.Readiness))
	if cfg.Observability.Metrics.Enabled {
		r.Handle(cfg.Observability.Metrics.Path, observability.Handler())
	}

	r.Route("/console", func(r chi.Router) {
		r.Use(observability.TracingMiddleware)
		r.Use(HandlerTimeout(cfg.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		r.Post("/auth/login", handleLogin(deps.Auth, deps.Sessions, deps.Gate))
		r.Post("/auth/register", handleRegister(deps.Auth))
		r.Post("/auth/logout", handleLogout(deps.Sessions, deps.Gate))

		r.Group(func(r chi.Router) {
			r.Use(deps.Gate.Require)

			r.Get("/session", handleSession(deps.Auth, deps.Sessions, deps.Gate))
			r.Get("/navigation", handleNavigation(deps.Menu))
			r.Get("/breadcrumbs", handleBreadcrumbs(deps.Menu))
			r.Get("/lookups/{lookupId}", handleLookup(deps.Lookups))

			r.Route("/platform-types", func(r chi.Router) {
				mountResource(r, deps.Types, nil)
			})
			r.Route("/platform-groups", func(r chi.Router) {
				mountResource(r, deps.Groups, nil)
			})
			r.Route("/platforms", func(r chi.Router) {
				r.Get("/grouped", handlePlatformsGrouped(deps.Platforms))
				mountResource(r, deps.Platforms.Service, handlePlatformList(deps.Platforms))
			})

			r.Route("/analysis", func(r chi.Router) {
				r.Get("/", handleSnapshot(deps.Analysis))
				r.Delete("/", handleClearFile(deps.Analysis))
				r.Post("/upload", handleUpload(deps.Analysis, cfg.Server.MaxUploadBytes))
				r.Post("/reset", handleResetQuery(deps.Analysis))
				r.Put("/filters", handleSetFilters(deps.Analysis))
				r.Post("/query", handleDimensionQuery(deps.Analysis))
				r.Get("/statistics", handleStatistics(deps.Analysis))
				r.Get("/rows", handleRows(deps.Analysis, cfg.Analysis))
				r.Get("/export", handleExport(deps.Analysis, cfg.Analysis))
			})

			r.Route("/templates", func(r chi.Router) {
				r.Get("/", handleListTemplates(deps.Templates))
				r.Post("/", handleSaveTemplate(deps.Templates))
				r.Delete("/", handleDeleteTemplates(deps.Templates))
				r.Get("/{id}", handleApplyTemplate(deps.Templates))
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, model.NewNotFoundError("route not found"))
	})
	return r
}
