package api

import (
	"context"

	"github.com/13879107157/wyclient/internal/backend"
	"github.com/13879107157/wyclient/model"
)

// PlatformGroupsPath is the backend collection for platform groups.
const PlatformGroupsPath = "/api/platform-groups"

// PlatformGroups is the platform group resource module.
type PlatformGroups struct {
	col collection[model.PlatformGroup, model.PlatformGroupInput]
}

// NewPlatformGroups creates the module.
func NewPlatformGroups(c *backend.Client) *PlatformGroups {
	return &PlatformGroups{col: collection[model.PlatformGroup, model.PlatformGroupInput]{client: c, path: PlatformGroupsPath}}
}

func (p *PlatformGroups) List(ctx context.Context) model.Result[[]model.PlatformGroup] {
	return p.col.list(ctx)
}

func (p *PlatformGroups) Get(ctx context.Context, id int64) model.Result[model.PlatformGroup] {
	return p.col.get(ctx, id)
}

func (p *PlatformGroups) Create(ctx context.Context, in model.PlatformGroupInput) model.Result[model.PlatformGroup] {
	return p.col.create(ctx, in)
}

func (p *PlatformGroups) Update(ctx context.Context, id int64, patch model.PlatformGroupInput) model.Result[model.PlatformGroup] {
	return p.col.update(ctx, id, patch)
}

func (p *PlatformGroups) Delete(ctx context.Context, id int64) model.Result[struct{}] {
	return p.col.remove(ctx, id)
}
