package templates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/13879107157/wyclient/model"
)

type failingStore struct{ *MemoryStore }

func (f *failingStore) List(context.Context, string) ([]model.InfoTemplate, error) {
	return nil, errors.New("connection refused")
}

func newTestService() *Service {
	svc := NewService(NewMemoryStore(), nil)
	tick := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return svc
}

func TestService_Save(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	res := svc.Save(ctx, "u1", Input{Source: "微博", InfoSource: "热搜", KeyURL: " weibo.com "})

	require.True(t, res.OK(), "err = %v", res.Err)
	assert.Equal(t, "微博-热搜-weibo.com", res.Value.TemplateName)
	assert.NotEmpty(t, res.Value.ID)
	assert.Equal(t, MsgSaved, res.Message())

	list := svc.List(ctx, "u1")
	require.Len(t, list.Value, 1)
	assert.Empty(t, svc.List(ctx, "u2").Value)
}

func TestService_Save_requiresAllFields(t *testing.T) {
	svc := newTestService()

	res := svc.Save(context.Background(), "u1", Input{Source: "微博", KeyURL: "  "})

	require.False(t, res.OK())
	assert.Equal(t, model.ErrValidationError, res.Err.Code)
	assert.Equal(t, MsgMissingFields, res.Err.Message)
	require.Len(t, res.Err.Details, 2)
	assert.Equal(t, "infoSource", res.Err.Details[0].Field)
	assert.Equal(t, "keyUrl", res.Err.Details[1].Field)
}

func TestService_Apply(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	saved := svc.Save(ctx, "u1", Input{Source: "a", InfoSource: "b", KeyURL: "c"})

	got := svc.Apply(ctx, "u1", saved.Value.ID)
	require.True(t, got.OK())
	assert.Equal(t, "b", got.Value.InfoSource)

	other := svc.Apply(ctx, "u2", saved.Value.ID)
	require.False(t, other.OK())
	assert.Equal(t, model.ErrNotFound, other.Err.Code)
}

func TestService_Delete(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	empty := svc.Delete(ctx, "u1", []string{"x"})
	require.True(t, empty.OK())
	assert.Equal(t, MsgNothingToDelete, empty.Message())

	a := svc.Save(ctx, "u1", Input{Source: "a", InfoSource: "a", KeyURL: "a"}).Value
	b := svc.Save(ctx, "u1", Input{Source: "b", InfoSource: "b", KeyURL: "b"}).Value
	c := svc.Save(ctx, "u1", Input{Source: "c", InfoSource: "c", KeyURL: "c"}).Value

	none := svc.Delete(ctx, "u1", nil)
	require.True(t, none.OK())
	assert.Equal(t, MsgNoneSelected, none.Message())
	assert.Len(t, none.Value, 3)

	left := svc.Delete(ctx, "u1", []string{a.ID, c.ID, "unknown"})
	require.True(t, left.OK())
	assert.Equal(t, MsgDeleted, left.Message())
	require.Len(t, left.Value, 1)
	assert.Equal(t, b.ID, left.Value[0].ID)
}

func TestService_storeFailure(t *testing.T) {
	svc := NewService(&failingStore{MemoryStore: NewMemoryStore()}, nil)

	res := svc.List(context.Background(), "u1")
	require.False(t, res.OK())
	assert.Equal(t, model.ErrInternalError, res.Err.Code)
}

func TestMemoryStore_listOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, model.InfoTemplate{ID: "2", OwnerID: "u", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, store.Save(ctx, model.InfoTemplate{ID: "1", OwnerID: "u", CreatedAt: base}))

	list, err := store.List(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, "1", list[0].ID)
	assert.Equal(t, "2", list[1].ID)

	n, err := store.Delete(ctx, "u", []string{"1", "1", "9"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
