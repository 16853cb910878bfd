// Package lookup caches the platform group and platform type lists that the
// platform pages use for display labels and form options.
package lookup

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/13879107157/wyclient/internal/config"
	"github.com/13879107157/wyclient/internal/observability"
	"github.com/13879107157/wyclient/model"
)

// Lookup names, used as cache keys and metric labels.
const (
	Groups = "platform_groups"
	Types  = "platform_types"
)

// GroupSource lists platform groups from the backend.
type GroupSource interface {
	List(ctx context.Context) model.Result[[]model.PlatformGroup]
}

// TypeSource lists platform types from the backend.
type TypeSource interface {
	List(ctx context.Context) model.Result[[]model.PlatformType]
}

// Option is one entry of a form select.
type Option struct {
	Value int64  `json:"value"`
	Label string `json:"label"`
}

// Provider serves the group and type lists from a TTL cache, fetching from
// the backend on a miss. Failed fetches are not cached.
type Provider struct {
	groups     GroupSource
	types      TypeSource
	ttl        time.Duration
	maxEntries int
	metrics    *observability.Metrics
	now        func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// NewProvider creates a Provider.
func NewProvider(groups GroupSource, types TypeSource, cfg config.CacheConfig, metrics *observability.Metrics) *Provider {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Provider{
		groups:     groups,
		types:      types,
		ttl:        ttl,
		maxEntries: maxEntries,
		metrics:    metrics,
		now:        time.Now,
		cache:      make(map[string]cacheEntry),
	}
}

// Groups returns every platform group.
func (p *Provider) Groups(ctx context.Context) model.Result[[]model.PlatformGroup] {
	return cached(ctx, p, Groups, p.groups.List)
}

// Types returns every platform type.
func (p *Provider) Types(ctx context.Context) model.Result[[]model.PlatformType] {
	return cached(ctx, p, Types, p.types.List)
}

// GroupOptions returns the groups whose name contains query, as select
// options.
func (p *Provider) GroupOptions(ctx context.Context, query string) model.Result[[]Option] {
	return model.Map(p.Groups(ctx), func(groups []model.PlatformGroup) []Option {
		opts := make([]Option, 0, len(groups))
		for _, g := range groups {
			opts = append(opts, Option{Value: g.ID, Label: g.Name})
		}
		return filterOptions(opts, query)
	})
}

// TypeOptions returns the types whose name contains query, as select
// options.
func (p *Provider) TypeOptions(ctx context.Context, query string) model.Result[[]Option] {
	return model.Map(p.Types(ctx), func(types []model.PlatformType) []Option {
		opts := make([]Option, 0, len(types))
		for _, t := range types {
			opts = append(opts, Option{Value: t.ID, Label: t.Name})
		}
		return filterOptions(opts, query)
	})
}

func cached[T any](ctx context.Context, p *Provider, name string, fetch func(context.Context) model.Result[[]T]) model.Result[[]T] {
	ctx, span := observability.StartSpan(ctx, "lookup."+name, observability.AttrLookup.String(name))

	if v, ok := p.get(name); ok {
		span.SetAttributes(observability.AttrCacheHit.Bool(true))
		span.End()
		p.metrics.RecordLookupCacheHit(name)
		return model.Ok(v.([]T), nil)
	}
	span.SetAttributes(observability.AttrCacheHit.Bool(false))
	p.metrics.RecordLookupCacheMiss(name)

	res := fetch(ctx)
	if !res.OK() {
		observability.EndSpanWithError(span, res.Err)
		return model.Result[[]T]{Err: res.Err}
	}
	span.End()
	p.put(name, res.Value)
	return model.Ok(res.Value, nil)
}

func (p *Provider) get(key string) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, ok := p.cache[key]
	if !ok || !p.now().Before(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

func (p *Provider) put(key string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.cache) >= p.maxEntries {
		p.evictExpired()
	}
	p.cache[key] = cacheEntry{value: value, expiresAt: p.now().Add(p.ttl)}
}

// evictExpired removes expired entries. Must be called with mu held.
func (p *Provider) evictExpired() {
	now := p.now()
	for k, v := range p.cache {
		if !now.Before(v.expiresAt) {
			delete(p.cache, k)
		}
	}
}

// Sweep drops expired entries.
func (p *Provider) Sweep() {
	p.mu.Lock()
	p.evictExpired()
	p.mu.Unlock()
}

// Schedule registers Sweep on c with the given cron spec.
func (p *Provider) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, p.Sweep)
}

// Invalidate drops the named lookup so the next read refetches it.
func (p *Provider) Invalidate(name string) {
	p.mu.Lock()
	delete(p.cache, name)
	p.mu.Unlock()
}

// CacheLen returns the number of cached entries.
func (p *Provider) CacheLen() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.cache)
}

// filterOptions keeps options whose label contains query, ignoring case.
func filterOptions(options []Option, query string) []Option {
	if query == "" {
		return options
	}
	q := strings.ToLower(query)
	filtered := []Option{}
	for _, opt := range options {
		if strings.Contains(strings.ToLower(opt.Label), q) {
			filtered = append(filtered, opt)
		}
	}
	return filtered
}
