package templates

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/13879107157/wyclient/internal/config"
	"github.com/13879107157/wyclient/model"
)

// runStoreContract checks the Store behaviour the service relies on. Each
// subtest uses its own owner so stores may be shared between runs.
func runStoreContract(t *testing.T, store Store) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	tmpl := func(owner, id string, at time.Time) model.InfoTemplate {
		return model.InfoTemplate{
			ID: id, OwnerID: owner,
			Source: "微博", InfoSource: "热搜", KeyURL: "https://weibo.com/" + id,
			TemplateName: model.TemplateName("微博", "热搜", "https://weibo.com/"+id),
			CreatedAt:    at,
		}
	}

	t.Run("list is oldest first and scoped to the owner", func(t *testing.T) {
		owner, other := uuid.NewString(), uuid.NewString()
		require.NoError(t, store.Save(ctx, tmpl(owner, "b", base.Add(time.Minute))))
		require.NoError(t, store.Save(ctx, tmpl(owner, "a", base)))
		require.NoError(t, store.Save(ctx, tmpl(other, "c", base)))

		list, err := store.List(ctx, owner)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "a", list[0].ID)
		assert.Equal(t, "b", list[1].ID)
		assert.Equal(t, owner, list[0].OwnerID)
		assert.True(t, base.Equal(list[0].CreatedAt), "created_at = %v", list[0].CreatedAt)

		empty, err := store.List(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("get and upsert", func(t *testing.T) {
		owner := uuid.NewString()
		saved := tmpl(owner, "t1", base)
		require.NoError(t, store.Save(ctx, saved))

		saved.KeyURL = "https://weibo.com/changed"
		saved.TemplateName = model.TemplateName(saved.Source, saved.InfoSource, saved.KeyURL)
		require.NoError(t, store.Save(ctx, saved))

		got, err := store.Get(ctx, owner, "t1")
		require.NoError(t, err)
		assert.Equal(t, "https://weibo.com/changed", got.KeyURL)
		assert.Equal(t, "微博-热搜-https://weibo.com/changed", got.TemplateName)

		_, err = store.Get(ctx, uuid.NewString(), "t1")
		assert.True(t, model.IsCode(err, model.ErrNotFound), "err = %v", err)
	})

	t.Run("delete counts only existing rows", func(t *testing.T) {
		owner := uuid.NewString()
		require.NoError(t, store.Save(ctx, tmpl(owner, "x", base)))
		require.NoError(t, store.Save(ctx, tmpl(owner, "y", base)))

		n, err := store.Delete(ctx, owner, []string{"x", "missing"})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = store.Delete(ctx, uuid.NewString(), []string{"y"})
		require.NoError(t, err)
		assert.Zero(t, n)

		list, err := store.List(ctx, owner)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "y", list[0].ID)
	})

	t.Run("health", func(t *testing.T) {
		assert.NoError(t, store.HealthCheck(ctx))
	})
}

func TestMemoryStore_contract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

// TestPgStore_contract runs against WYCLIENT_TEST_DSN when set, otherwise
// against a throwaway postgres container.
func TestPgStore_contract(t *testing.T) {
	if testing.Short() {
		t.Skip("postgres store test skipped in -short mode")
	}
	ctx := context.Background()

	dsn := os.Getenv("WYCLIENT_TEST_DSN")
	if dsn == "" {
		testcontainers.SkipIfProviderIsNotHealthy(t)
		ctr, err := postgres.Run(ctx, "postgres:16-alpine",
			postgres.WithDatabase("wyclient"),
			postgres.WithUsername("wyclient"),
			postgres.WithPassword("wyclient"),
			postgres.BasicWaitStrategies(),
		)
		testcontainers.CleanupContainer(t, ctr)
		require.NoError(t, err)
		dsn, err = ctr.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	pool, err := OpenPool(ctx, dsn, config.TemplatesConfig{MaxOpenConns: 4, MaxIdleConns: 1, ConnMaxLifetime: time.Minute})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := NewPgStore(pool)
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.EnsureSchema(ctx), "schema must be re-runnable")

	runStoreContract(t, store)
}

func TestOpenPool_badDSN(t *testing.T) {
	_, err := OpenPool(context.Background(), "postgres://%zz", config.TemplatesConfig{})
	assert.ErrorContains(t, err, "parse DSN")
}

func TestSchema(t *testing.T) {
	assert.Contains(t, Schema, "CREATE TABLE IF NOT EXISTS info_templates")
	assert.Contains(t, Schema, "PRIMARY KEY (owner_id, id)")
	for _, col := range []string{"id", "owner_id", "source", "info_source", "key_url", "template_name", "created_at"} {
		assert.Regexp(t, `(?m)^\s*`+col+`\s+\w+\s+NOT NULL`, Schema, col)
	}
}
