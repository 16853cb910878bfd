package api

import (
	"context"

	"github.com/13879107157/wyclient/internal/backend"
	"github.com/13879107157/wyclient/model"
)

// PlatformTypesPath is the backend collection for platform types.
const PlatformTypesPath = "/api/platform-types"

// PlatformTypes is the platform type resource module.
type PlatformTypes struct {
	col collection[model.PlatformType, model.PlatformTypeInput]
}

// NewPlatformTypes creates the module.
func NewPlatformTypes(c *backend.Client) *PlatformTypes {
	return &PlatformTypes{col: collection[model.PlatformType, model.PlatformTypeInput]{client: c, path: PlatformTypesPath}}
}

func (p *PlatformTypes) List(ctx context.Context) model.Result[[]model.PlatformType] {
	return p.col.list(ctx)
}

func (p *PlatformTypes) Get(ctx context.Context, id int64) model.Result[model.PlatformType] {
	return p.col.get(ctx, id)
}

func (p *PlatformTypes) Create(ctx context.Context, in model.PlatformTypeInput) model.Result[model.PlatformType] {
	return p.col.create(ctx, in)
}

func (p *PlatformTypes) Update(ctx context.Context, id int64, patch model.PlatformTypeInput) model.Result[model.PlatformType] {
	return p.col.update(ctx, id, patch)
}

func (p *PlatformTypes) Delete(ctx context.Context, id int64) model.Result[struct{}] {
	return p.col.remove(ctx, id)
}
