package templates

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/13879107157/wyclient/internal/config"
	"github.com/13879107157/wyclient/model"
)

// Schema creates the template table. EnsureSchema applies it.
const Schema = `
CREATE TABLE IF NOT EXISTS info_templates (
	id            TEXT        NOT NULL,
	owner_id      TEXT        NOT NULL,
	source        TEXT        NOT NULL,
	info_source   TEXT        NOT NULL,
	key_url       TEXT        NOT NULL,
	template_name TEXT        NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (owner_id, id)
)`

// PgStore is a PostgreSQL-backed Store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a store over an open pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// OpenPool connects a pool sized from cfg and pings it.
func OpenPool(ctx context.Context, dsn string, cfg config.TemplatesConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("template store: parse DSN: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("template store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("template store: ping: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the table if it is missing.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create info_templates: %w", err)
	}
	return nil
}

// List returns the owner's templates, oldest first.
func (s *PgStore) List(ctx context.Context, ownerID string) ([]model.InfoTemplate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, source, info_source, key_url, template_name, created_at
		FROM info_templates
		WHERE owner_id = $1
		ORDER BY created_at, id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	out := []model.InfoTemplate{}
	for rows.Next() {
		var t model.InfoTemplate
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Source, &t.InfoSource, &t.KeyURL, &t.TemplateName, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return out, nil
}

// Get returns one template.
func (s *PgStore) Get(ctx context.Context, ownerID, id string) (model.InfoTemplate, error) {
	var t model.InfoTemplate
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, source, info_source, key_url, template_name, created_at
		FROM info_templates
		WHERE owner_id = $1 AND id = $2`,
		ownerID, id,
	).Scan(&t.ID, &t.OwnerID, &t.Source, &t.InfoSource, &t.KeyURL, &t.TemplateName, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.InfoTemplate{}, errNotFound(id)
	}
	if err != nil {
		return model.InfoTemplate{}, fmt.Errorf("query template: %w", err)
	}
	return t, nil
}

// Save inserts or replaces a template.
func (s *PgStore) Save(ctx context.Context, t model.InfoTemplate) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO info_templates (
			id, owner_id, source, info_source, key_url, template_name, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner_id, id) DO UPDATE SET
			source = EXCLUDED.source,
			info_source = EXCLUDED.info_source,
			key_url = EXCLUDED.key_url,
			template_name = EXCLUDED.template_name`,
		t.ID, t.OwnerID, t.Source, t.InfoSource, t.KeyURL, t.TemplateName, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	return nil
}

// Delete removes the listed templates and reports how many existed.
func (s *PgStore) Delete(ctx context.Context, ownerID string, ids []string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM info_templates
		WHERE owner_id = $1 AND id = ANY($2)`,
		ownerID, ids,
	)
	if err != nil {
		return 0, fmt.Errorf("delete templates: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// HealthCheck pings the database.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
