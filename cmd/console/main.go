// Package main is the entry point for the console server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/13879107157/wyclient/internal/analysis"
	"github.com/13879107157/wyclient/internal/api"
	"github.com/13879107157/wyclient/internal/backend"
	"github.com/13879107157/wyclient/internal/config"
	"github.com/13879107157/wyclient/internal/lookup"
	"github.com/13879107157/wyclient/internal/metadata"
	"github.com/13879107157/wyclient/internal/observability"
	"github.com/13879107157/wyclient/internal/resource"
	"github.com/13879107157/wyclient/internal/session"
	"github.com/13879107157/wyclient/internal/templates"
	"github.com/13879107157/wyclient/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

const lookupSweepSchedule = "@every 5m"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "wyclient-console", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	client := backend.NewClient(cfg.Backend,
		backend.WithLogger(logger.Named("backend")),
		backend.WithMetrics(metrics),
	)
	services := api.NewServices(client, cfg.Backend)

	sessionStore, sessionCloser, err := buildSessionStore(ctx, cfg.Session.Store, logger)
	if err != nil {
		logger.Error("session store initialization failed", zap.Error(err))
		return 1
	}
	sessions := session.NewManager(sessionStore, cfg.Session.TTL,
		session.WithLogger(logger.Named("session")),
		session.WithMetrics(metrics),
	)
	client.SetSessionExpiry(sessions.HandleExpiry)

	signer, err := session.NewSigner(cfg.Session.Secret)
	if err != nil {
		logger.Error("session signer initialization failed", zap.Error(err))
		return 1
	}

	templateStore, templateCloser, err := buildTemplateStore(ctx, cfg.Templates, logger)
	if err != nil {
		logger.Error("template store initialization failed", zap.Error(err))
		return 1
	}

	lookups := lookup.NewProvider(services.Groups, services.Types, cfg.Lookup.Cache, metrics)
	types := resource.NewTypes(services.Types, logger.Named("types"))
	groups := resource.NewGroups(services.Groups, logger.Named("groups"))
	platforms := resource.NewPlatforms(services.Platforms, lookups, logger.Named("platforms"))
	types.OnChange(func() { lookups.Invalidate(lookup.Types) })
	groups.OnChange(func() { lookups.Invalidate(lookup.Groups) })

	workspaces := analysis.NewRegistry(services.Matching, cfg.Analysis, logger.Named("analysis"), metrics)
	sessions.Subscribe(workspaces)

	scheduler := cron.New()
	if _, err := workspaces.Schedule(scheduler, cfg.Analysis.SweepSchedule); err != nil {
		logger.Error("invalid analysis sweep schedule", zap.String("schedule", cfg.Analysis.SweepSchedule), zap.Error(err))
		return 1
	}
	if _, err := lookups.Schedule(scheduler, lookupSweepSchedule); err != nil {
		logger.Error("lookup sweep schedule failed", zap.Error(err))
		return 1
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
		Readiness: observability.ReadinessChecks{
			Backend:       client,
			SessionStore:  sessions,
			TemplateStore: templateStore,
		},
		Sessions:  sessions,
		Gate:      transport.NewGate(sessions, signer, cfg.Session, logger.Named("gate")),
		Auth:      services.Auth,
		Types:     types,
		Groups:    groups,
		Platforms: platforms,
		Lookups:   lookups,
		Analysis:  workspaces,
		Templates: templates.NewService(templateStore, logger.Named("templates")),
		Menu:      metadata.NewMenuProvider(cfg.Menu),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	scheduler.Start()

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("backend", cfg.Backend.BaseURL),
		zap.String("session_store", cfg.Session.Store.Driver),
		zap.String("template_store", cfg.Templates.Driver),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	<-scheduler.Stop().Done()

	if sessionCloser != nil {
		sessionCloser()
	}
	if templateCloser != nil {
		templateCloser()
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildSessionStore creates the session store based on config.
func buildSessionStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (session.Store, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory session store")
		return session.NewMemoryStore(), nil, nil
	case "redis":
		addr := "localhost:6379"
		if cfg.AddrEnv != "" {
			if v := os.Getenv(cfg.AddrEnv); v != "" {
				addr = v
			}
		}
		rdb := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("session store: ping redis %s: %w", addr, err)
		}
		logger.Info("using redis session store", zap.String("addr", addr), zap.Int("db", cfg.DB))
		return session.NewRedisStore(rdb), func() { rdb.Close() }, nil
	case "file":
		path := cfg.Path
		if path == "" {
			p, err := session.DefaultFilePath()
			if err != nil {
				return nil, nil, fmt.Errorf("session store: %w", err)
			}
			path = p
		}
		logger.Info("using file session store", zap.String("path", path))
		return session.NewFileStore(path), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported session store driver: %q", cfg.Driver)
	}
}

// buildTemplateStore creates the template store based on config.
func buildTemplateStore(ctx context.Context, cfg config.TemplatesConfig, logger *zap.Logger) (templates.Store, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory template store")
		return templates.NewMemoryStore(), nil, nil
	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("template store: %s environment variable not set", cfg.DSNEnv)
		}
		pool, err := templates.OpenPool(ctx, dsn, cfg)
		if err != nil {
			return nil, nil, err
		}
		store := templates.NewPgStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("using postgres template store")
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported template store driver: %q", cfg.Driver)
	}
}
