// Package api holds the resource modules: thin pass-throughs from the
// console to fixed backend paths, each returning a model.Result.
package api

import (
	"context"
	"strconv"

	"github.com/13879107157/wyclient/internal/backend"
	"github.com/13879107157/wyclient/model"
)

// collection is the list/get/create/update/delete shape shared by every
// backend CRUD resource. T is the wire entity, In the create/patch payload.
type collection[T, In any] struct {
	client *backend.Client
	path   string
}

func (c collection[T, In]) itemPath(id int64) string {
	return c.path + "/" + strconv.FormatInt(id, 10)
}

func (c collection[T, In]) list(ctx context.Context) model.Result[[]T] {
	res := backend.Get[[]T](ctx, c.client, c.path, nil)
	if res.OK() && res.Value == nil {
		res.Value = []T{}
	}
	return res
}

func (c collection[T, In]) get(ctx context.Context, id int64) model.Result[T] {
	return backend.Get[T](ctx, c.client, c.itemPath(id), nil)
}

func (c collection[T, In]) create(ctx context.Context, in In) model.Result[T] {
	return backend.Post[T](ctx, c.client, c.path, in)
}

// update sends a partial payload: nil pointer fields of In are omitted.
func (c collection[T, In]) update(ctx context.Context, id int64, patch In) model.Result[T] {
	return backend.Put[T](ctx, c.client, c.itemPath(id), patch)
}

func (c collection[T, In]) remove(ctx context.Context, id int64) model.Result[struct{}] {
	return backend.Delete[struct{}](ctx, c.client, c.itemPath(id))
}
