package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/13879107157/wyclient/internal/api"
	"github.com/13879107157/wyclient/internal/backend"
	"github.com/13879107157/wyclient/internal/config"
	"github.com/13879107157/wyclient/internal/session"
	"github.com/13879107157/wyclient/model"
)

// env is what every command needs: the backend services and the login
// remembered in the session file.
type env struct {
	out      io.Writer
	logger   *zap.Logger
	cfg      config.BackendConfig
	services *api.Services
	sessions *session.Manager
	store    *session.FileStore
}

func newEnv(c *cli.Command, out io.Writer, logger *zap.Logger) (*env, error) {
	base := c.String("backend")
	if base == "" {
		return nil, errors.New("backend URL is required (--backend or WYCLIENT_BACKEND_BASE_URL)")
	}
	path := c.String("session-file")
	if path == "" {
		p, err := session.DefaultFilePath()
		if err != nil {
			return nil, fmt.Errorf("session file: %w", err)
		}
		path = p
	}

	cfg := config.Defaults().Backend
	cfg.BaseURL = base
	cfg.Timeout = c.Duration("timeout")

	client := backend.NewClient(cfg, backend.WithLogger(logger.Named("backend")))
	store := session.NewFileStore(path)
	sessions := session.NewManager(store, config.Defaults().Session.TTL, session.WithLogger(logger.Named("session")))
	client.SetSessionExpiry(sessions.HandleExpiry)

	return &env{
		out:      out,
		logger:   logger,
		cfg:      cfg,
		services: api.NewServices(client, cfg),
		sessions: sessions,
		store:    store,
	}, nil
}

// authed returns a context carrying the stored login.
func (e *env) authed(ctx context.Context) (context.Context, *session.Session, error) {
	sess, err := e.store.Latest(ctx)
	if errors.Is(err, session.ErrNotFound) {
		return nil, nil, errors.New("not logged in; run `wyctl auth login`")
	}
	if err != nil {
		return nil, nil, err
	}
	return model.WithRequestContext(ctx, sess.RequestContext("")), sess, nil
}

// failure turns a failed result into a command error. An expired login
// points the user back to auth login.
func failure(ee *model.ErrorEnvelope) error {
	if ee.Code == model.ErrSessionExpired {
		return fmt.Errorf("%s; run `wyctl auth login`", ee.Message)
	}
	return ee
}
