package resource

import (
	"context"

	"go.uber.org/zap"

	"github.com/13879107157/wyclient/internal/observability"
	"github.com/13879107157/wyclient/model"
)

// Lookups supplies the group and type lists used to label platforms.
type Lookups interface {
	Groups(ctx context.Context) model.Result[[]model.PlatformGroup]
	Types(ctx context.Context) model.Result[[]model.PlatformType]
}

// Platforms adds labelled and grouped listings to the platform Service.
type Platforms struct {
	*Service[model.Platform, model.PlatformInput]
	lookups Lookups
}

// NewPlatforms creates the platform list layer.
func NewPlatforms(b Backend[model.Platform, model.PlatformInput], lookups Lookups, logger *zap.Logger) *Platforms {
	svc := NewService(b, ValidatePlatform, "平台创建成功", logger)
	svc.Prepare(WithPlatformDefaults)
	return &Platforms{Service: svc, lookups: lookups}
}

// names loads groups and types. A failed lookup leaves the labels at "-".
func (p *Platforms) names(ctx context.Context) ([]model.PlatformGroup, []model.PlatformType) {
	log := observability.LoggerFrom(ctx, p.logger)
	groups := p.lookups.Groups(ctx)
	if !groups.OK() {
		log.Warn("platform group lookup failed", zap.String("code", groups.Err.Code))
	}
	types := p.lookups.Types(ctx)
	if !types.OK() {
		log.Warn("platform type lookup failed", zap.String("code", types.Err.Code))
	}
	return groups.Value, types.Value
}

// Labeled lists platforms with their group and type labels.
func (p *Platforms) Labeled(ctx context.Context, q Query) model.Result[Page[PlatformRow]] {
	res := p.backend.List(ctx)
	if !res.OK() {
		return model.Result[Page[PlatformRow]]{Err: res.Err}
	}
	groups, types := p.names(ctx)
	rows := NamesFrom(groups, types).Label(Search(res.Value, q.Search))
	return model.Ok(Paginate(rows, q.Page, q.PageSize), nil)
}

// Grouped lists the searched platforms grouped by platform group.
func (p *Platforms) Grouped(ctx context.Context, search string) model.Result[[]PlatformSection] {
	res := p.backend.List(ctx)
	if !res.OK() {
		return model.Result[[]PlatformSection]{Err: res.Err}
	}
	groups, types := p.names(ctx)
	return model.Ok(GroupPlatforms(Search(res.Value, search), groups, types), nil)
}
