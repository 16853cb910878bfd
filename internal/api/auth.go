package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/13879107157/wyclient/internal/backend"
	"github.com/13879107157/wyclient/model"
)

// Backend user endpoints.
const (
	LoginPath    = "/api/users/login"
	RegisterPath = "/api/users/register"
	UsersPath    = "/api/users"
)

// Auth is the account resource module.
type Auth struct {
	client    *backend.Client
	probePath string
}

// NewAuth creates the module. probePath is the quiet liveness endpoint used
// to validate a stored token.
func NewAuth(c *backend.Client, probePath string) *Auth {
	return &Auth{client: c, probePath: probePath}
}

// Login exchanges credentials for a token and the user.
func (a *Auth) Login(ctx context.Context, creds model.Credentials) model.Result[model.LoginResponse] {
	return backend.Post[model.LoginResponse](ctx, a.client, LoginPath, creds)
}

// Register creates an account.
func (a *Auth) Register(ctx context.Context, creds model.Credentials) model.Result[struct{}] {
	return backend.Post[struct{}](ctx, a.client, RegisterPath, creds)
}

// User fetches a user profile with token.
func (a *Auth) User(ctx context.Context, token string, id int64) model.Result[model.User] {
	return backend.Call[model.User](ctx, a.client, backend.Request{
		Method: http.MethodGet,
		Path:   UsersPath,
		Query:  url.Values{"id": []string{strconv.FormatInt(id, 10)}},
		Token:  token,
	})
}

// Probe validates token against the liveness endpoint. Its message is never
// surfaced.
func (a *Auth) Probe(ctx context.Context, token string) model.Result[struct{}] {
	res := backend.Call[any](ctx, a.client, backend.Request{
		Method: http.MethodGet,
		Path:   a.probePath,
		Token:  token,
		Quiet:  true,
	})
	if !res.OK() {
		return model.Result[struct{}]{Err: res.Err}
	}
	return model.Ok(struct{}{}, nil)
}
