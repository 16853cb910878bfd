package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/13879107157/wyclient/internal/config"
	"github.com/13879107157/wyclient/internal/observability"
	"github.com/13879107157/wyclient/internal/session"
	"github.com/13879107157/wyclient/model"
)

type sessionKey struct{}
type gateKey struct{}

// SessionFrom returns the session the gate attached to the request.
func SessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey{}).(*session.Session)
	return s
}

// Gate resolves the console session of a request. The session token comes
// from the session cookie or an Authorization bearer header; it is a signed
// JWT naming a session held by the Manager.
type Gate struct {
	manager *session.Manager
	signer  *session.Signer
	cfg     config.SessionConfig
	logger  *zap.Logger
}

// NewGate creates a Gate.
func NewGate(manager *session.Manager, signer *session.Signer, cfg config.SessionConfig, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{manager: manager, signer: signer, cfg: cfg, logger: logger}
}

// Require rejects requests without a live session with 401 and the login
// redirect, clearing the cookie. Accepted requests carry the session and its
// model.RequestContext in their context.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := g.resolve(r)
		if err != nil {
			observability.LoggerFrom(r.Context(), g.logger).Debug("session rejected", zap.Error(err))
			g.ClearCookie(w)
			WriteError(w, r, loginRequired())
			return
		}
		next.ServeHTTP(w, r.WithContext(g.attach(r, sess)))
	})
}

func (g *Gate) resolve(r *http.Request) (*session.Session, error) {
	token := tokenFrom(r, g.cfg.CookieName)
	if token == "" {
		return nil, errors.New("no session token")
	}
	id, err := g.signer.Parse(token)
	if err != nil {
		return nil, err
	}
	return g.manager.Get(r.Context(), id)
}

func (g *Gate) attach(r *http.Request, sess *session.Session) context.Context {
	ctx := r.Context()
	rctx := sess.RequestContext(CorrelationIDFrom(ctx))
	rctx.TraceID = observability.TraceIDFromContext(ctx)
	rctx.Locale = r.Header.Get("Accept-Language")

	ctx = model.WithRequestContext(ctx, rctx)
	ctx = context.WithValue(ctx, sessionKey{}, sess)
	ctx = context.WithValue(ctx, gateKey{}, g)
	ctx = observability.WithLogger(ctx, observability.LoggerFrom(ctx, g.logger).With(observability.SessionFields(rctx)...))
	observability.AnnotateSession(ctx, rctx)
	return ctx
}

// Issue signs a token for sess and sets it as the session cookie.
func (g *Gate) Issue(w http.ResponseWriter, sess *session.Session) (string, error) {
	token, err := g.signer.Sign(sess)
	if err != nil {
		return "", err
	}
	cookie := &http.Cookie{
		Name:     g.cfg.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   g.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if !sess.ExpiresAt.IsZero() {
		cookie.Expires = sess.ExpiresAt
	}
	http.SetCookie(w, cookie)
	return token, nil
}

// ClearCookie expires the session cookie.
func (g *Gate) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.cfg.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   g.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}

// SessionID returns the id named by the request's session token, whether or
// not the session still exists.
func (g *Gate) SessionID(r *http.Request) string {
	token := tokenFrom(r, g.cfg.CookieName)
	if token == "" {
		return ""
	}
	id, err := g.signer.Parse(token)
	if err != nil {
		return ""
	}
	return id
}

// gateFrom returns the gate that admitted the request, so error responses
// can clear the cookie of a session the backend expired.
func gateFrom(ctx context.Context) *Gate {
	g, _ := ctx.Value(gateKey{}).(*Gate)
	return g
}

func tokenFrom(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}
	return ""
}

func loginRequired() *model.ErrorEnvelope {
	env := model.NewUnauthorizedError(model.MsgAuthRequired)
	env.Redirect = model.LoginRoute
	return env
}
