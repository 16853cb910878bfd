// Package session holds console sessions: the backend token and the cached
// user of a logged-in browser or CLI. A Manager is the only way to open,
// read and tear down sessions; teardown notifies registered observers.
package session

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/13879107157/wyclient/model"
)

// Close reasons passed to observers.
const (
	ReasonLogout  = "logout"
	ReasonExpired = "expired"
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("session: not found")

// Session is one logged-in console user.
type Session struct {
	ID        string      `json:"id"`
	Token     string      `json:"token"`
	User      model.User  `json:"user"`
	Profile   *model.User `json:"profile,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// CachedUser returns the fetched profile, falling back to the login user.
func (s *Session) CachedUser() model.User {
	if s.Profile != nil {
		return *s.Profile
	}
	return s.User
}

// RequestContext builds the per-request identity for this session.
func (s *Session) RequestContext(correlationID string) *model.RequestContext {
	return &model.RequestContext{
		SessionID:     s.ID,
		UserID:        strconv.FormatInt(s.User.ID, 10),
		Username:      s.User.Username,
		Token:         s.Token,
		CorrelationID: correlationID,
	}
}

// Store persists sessions. Implementations are last-writer-wins.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	HealthCheck(ctx context.Context) error
}

// Observer is notified after a session is torn down.
type Observer interface {
	SessionClosed(ctx context.Context, s *Session, reason string)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, s *Session, reason string)

// SessionClosed calls f.
func (f ObserverFunc) SessionClosed(ctx context.Context, s *Session, reason string) {
	f(ctx, s, reason)
}
