package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/13879107157/wyclient/internal/observability"
	"github.com/13879107157/wyclient/model"
)

// Manager opens, reads and tears down sessions over a Store.
type Manager struct {
	store   Store
	ttl     time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu        sync.RWMutex
	observers []Observer
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics records session opens and closes.
func WithMetrics(metrics *observability.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates a Manager. A non-positive ttl keeps sessions until
// logout or expiry by the backend.
func NewManager(store Store, ttl time.Duration, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:  store,
		ttl:    ttl,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers o to be told about every teardown.
func (m *Manager) Subscribe(o Observer) {
	m.mu.Lock()
	m.observers = append(m.observers, o)
	m.mu.Unlock()
}

// Open creates and stores a session for a freshly logged-in user.
func (m *Manager) Open(ctx context.Context, token string, user model.User) (*Session, error) {
	if token == "" {
		return nil, errors.New("session: open: empty backend token")
	}
	now := m.now()
	sess := &Session{
		ID:        uuid.NewString(),
		Token:     token,
		User:      user,
		CreatedAt: now,
	}
	if m.ttl > 0 {
		sess.ExpiresAt = now.Add(m.ttl)
	}
	if err := m.store.Save(ctx, sess, m.ttl); err != nil {
		return nil, fmt.Errorf("session: open: %w", err)
	}
	m.metrics.RecordSessionOpened()
	m.logger.Info("session opened",
		zap.String("session_id", sess.ID),
		zap.Int64("user_id", user.ID),
	)
	return sess, nil
}

// Get returns the live session with id. A session whose backend token has
// been cleared counts as absent.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Token == "" || sess.Expired(m.now()) {
		return nil, ErrNotFound
	}
	return sess, nil
}

// SetProfile caches the fetched user profile on the session.
func (m *Manager) SetProfile(ctx context.Context, id string, user model.User) error {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.Profile = &user
	return m.store.Save(ctx, sess, m.remaining(sess))
}

// Expire tears down a session whose backend token is no longer accepted.
func (m *Manager) Expire(ctx context.Context, id string) error {
	return m.teardown(ctx, id, ReasonExpired)
}

// Close tears down a session on logout.
func (m *Manager) Close(ctx context.Context, id string) error {
	return m.teardown(ctx, id, ReasonLogout)
}

// HandleExpiry is the backend client's session expiry hook. It expires the
// session of the calling request when that session still holds token.
func (m *Manager) HandleExpiry(ctx context.Context, token string) {
	rctx := model.RequestContextFrom(ctx)
	if rctx == nil || rctx.SessionID == "" || rctx.Token != token {
		return
	}
	if err := m.Expire(ctx, rctx.SessionID); err != nil {
		observability.LoggerFrom(ctx, m.logger).Warn("session expiry failed",
			zap.String("session_id", rctx.SessionID),
			zap.Error(err),
		)
	}
}

// HealthCheck checks the underlying store.
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.store.HealthCheck(ctx)
}

func (m *Manager) teardown(ctx context.Context, id string, reason string) error {
	sess, err := m.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("session: %s: %w", reason, err)
	}
	m.metrics.RecordSessionClosed(reason)
	m.logger.Info("session closed",
		zap.String("session_id", id),
		zap.String("reason", reason),
	)

	m.mu.RLock()
	observers := append([]Observer(nil), m.observers...)
	m.mu.RUnlock()
	for _, o := range observers {
		o.SessionClosed(ctx, sess, reason)
	}
	return nil
}

func (m *Manager) remaining(sess *Session) time.Duration {
	if sess.ExpiresAt.IsZero() {
		return 0
	}
	d := sess.ExpiresAt.Sub(m.now())
	if d <= 0 {
		return time.Millisecond
	}
	return d
}
