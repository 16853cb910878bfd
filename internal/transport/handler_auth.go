package transport

import (
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/13879107157/wyclient/internal/api"
	"github.com/13879107157/wyclient/internal/observability"
	"github.com/13879107157/wyclient/internal/session"
	"github.com/13879107157/wyclient/model"
)

// HomeRoute is where the browser goes after logging in.
const HomeRoute = "/DataAnalysis/3++"

// Credential form messages.
const (
	MsgUsernameRequired = "请输入用户名"
	MsgPasswordRequired = "请输入密码"
	MsgRegistered       = "注册成功，请登录"
	MsgLoggedOut        = "已退出登录"
)

type loginResponse struct {
	User         model.User `json:"user"`
	Redirect     string     `json:"redirect"`
	SessionToken string     `json:"session_token"`
}

type sessionResponse struct {
	User model.User `json:"user"`
}

func decodeCredentials(r *http.Request) (model.Credentials, error) {
	var creds model.Credentials
	if err := render.DecodeJSON(r.Body, &creds); err != nil {
		return creds, model.NewBadRequestError("Invalid JSON request body")
	}
	creds.Username = strings.TrimSpace(creds.Username)
	var details []model.FieldError
	if creds.Username == "" {
		details = append(details, model.FieldError{Field: "username", Code: "REQUIRED", Message: MsgUsernameRequired})
	}
	if creds.Password == "" {
		details = append(details, model.FieldError{Field: "password", Code: "REQUIRED", Message: MsgPasswordRequired})
	}
	if len(details) > 0 {
		return creds, model.NewValidationError(details)
	}
	return creds, nil
}

// handleLogin exchanges credentials for a backend token, opens a session,
// caches the user profile on it and sets the session cookie.
func handleLogin(auth *api.Auth, sessions *session.Manager, gate *Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		creds, err := decodeCredentials(r)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		ctx := r.Context()
		logger := observability.LoggerFrom(ctx, nil)

		res := auth.Login(ctx, creds)
		if !res.OK() {
			logger.Info("login rejected", zap.String("username", creds.Username), zap.String("code", res.Err.Code))
			WriteError(w, r, res.Err)
			return
		}

		sess, err := sessions.Open(ctx, res.Value.Token, res.Value.User)
		if err != nil {
			logger.Error("opening session", zap.Error(err))
			WriteError(w, r, model.NewInternalError())
			return
		}

		profile := auth.User(ctx, sess.Token, sess.User.ID)
		if profile.OK() {
			if err := sessions.SetProfile(ctx, sess.ID, profile.Value); err != nil {
				logger.Warn("caching user profile", zap.Error(err))
			} else {
				sess.Profile = &profile.Value
			}
		} else {
			logger.Warn("fetching user profile", zap.String("code", profile.Err.Code))
		}

		token, err := gate.Issue(w, sess)
		if err != nil {
			logger.Error("signing session token", zap.Error(err))
			WriteError(w, r, model.NewInternalError())
			return
		}
		WriteData(w, http.StatusOK, loginResponse{
			User:         sess.CachedUser(),
			Redirect:     HomeRoute,
			SessionToken: token,
		}, res.Notice)
	}
}

func handleRegister(auth *api.Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		creds, err := decodeCredentials(r)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		res := auth.Register(r.Context(), creds)
		if !res.OK() {
			WriteError(w, r, res.Err)
			return
		}
		WriteData(w, http.StatusCreated, struct{}{}, &model.Notice{Level: model.NoticeSuccess, Message: MsgRegistered})
	}
}

// handleLogout tears down the named session, if any, and clears the cookie.
func handleLogout(sessions *session.Manager, gate *Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id := gate.SessionID(r); id != "" {
			if err := sessions.Close(r.Context(), id); err != nil {
				observability.LoggerFrom(r.Context(), nil).Warn("closing session", zap.Error(err))
			}
		}
		gate.ClearCookie(w)
		WriteData(w, http.StatusOK, struct {
			Redirect string `json:"redirect"`
		}{model.LoginRoute}, &model.Notice{Level: model.NoticeInfo, Message: MsgLoggedOut})
	}
}

// handleSession is the shell's auth gate: it re-validates the backend token
// with the quiet probe. Any failure ends the session and redirects to login.
func handleSession(auth *api.Auth, sessions *session.Manager, gate *Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFrom(r.Context())
		if sess == nil {
			WriteError(w, r, loginRequired())
			return
		}
		probe := auth.Probe(r.Context(), sess.Token)
		if !probe.OK() {
			observability.LoggerFrom(r.Context(), nil).Info("stored token rejected", zap.String("code", probe.Err.Code))
			if err := sessions.Expire(r.Context(), sess.ID); err != nil {
				observability.LoggerFrom(r.Context(), nil).Warn("expiring session", zap.Error(err))
			}
			gate.ClearCookie(w)
			WriteError(w, r, model.NewSessionExpiredError())
			return
		}
		WriteData(w, http.StatusOK, sessionResponse{User: sess.CachedUser()}, nil)
	}
}
