package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/13879107157/wyclient/internal/config"
	"github.com/13879107157/wyclient/internal/observability"
	"github.com/13879107157/wyclient/internal/session"
)

// Registry holds one Workspace per session. Workspaces are dropped when
// their session closes or after they sit idle for longer than the idle TTL.
type Registry struct {
	matcher Matcher
	idleTTL time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	ws       *Workspace
	lastUsed time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(m Matcher, cfg config.AnalysisConfig, logger *zap.Logger, metrics *observability.Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		matcher: m,
		idleTTL: cfg.IdleTTL,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		entries: make(map[string]*registryEntry),
	}
}

// Workspace returns the session's workspace, creating it on first use.
func (r *Registry) Workspace(sessionID string) *Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	if !ok {
		e = &registryEntry{ws: NewWorkspace(r.matcher, r.logger, r.metrics)}
		r.entries[sessionID] = e
		r.metrics.SetWorkspaces(len(r.entries))
	}
	e.lastUsed = r.now()
	return e.ws
}

// Drop discards the session's workspace.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[sessionID]; !ok {
		return
	}
	delete(r.entries, sessionID)
	r.metrics.SetWorkspaces(len(r.entries))
}

// SessionClosed drops the workspace of a closed session.
func (r *Registry) SessionClosed(ctx context.Context, s *session.Session, reason string) {
	r.Drop(s.ID)
	observability.LoggerFrom(ctx, r.logger).Debug("analysis workspace dropped",
		zap.String("session_id", s.ID),
		zap.String("reason", reason),
	)
}

// Sweep drops workspaces idle for longer than the idle TTL and returns how
// many it dropped. A non-positive TTL keeps everything.
func (r *Registry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTTL)
	r.mu.Lock()
	dropped := 0
	for id, e := range r.entries {
		if e.lastUsed.Before(cutoff) {
			delete(r.entries, id)
			dropped++
		}
	}
	n := len(r.entries)
	r.mu.Unlock()

	r.metrics.SetWorkspaces(n)
	if dropped > 0 {
		r.logger.Info("idle analysis workspaces swept", zap.Int("dropped", dropped), zap.Int("remaining", n))
	}
	return dropped
}

// Schedule registers Sweep on c with the given cron spec.
func (r *Registry) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() { r.Sweep() })
}

// Len returns the number of live workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
