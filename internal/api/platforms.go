package api

import (
	"context"

	"go.uber.org/zap"

	"github.com/13879107157/wyclient/internal/backend"
	"github.com/13879107157/wyclient/internal/observability"
	"github.com/13879107157/wyclient/model"
)

// PlatformsPath is the backend collection for platforms.
const PlatformsPath = "/api/platforms"

// platformWire is a platform as the backend stores it: rules are JSON text.
type platformWire struct {
	ID            int64  `json:"id"`
	GroupID       int64  `json:"platform_group_id"`
	TypeID        int64  `json:"platform_type_id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Order         int    `json:"order"`
	MatchRule     string `json:"match_rule"`
	ExclusionRule string `json:"exclusion_rule"`
	CreatedAt     string `json:"createdAt,omitempty"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}

type platformInputWire struct {
	GroupID       *int64  `json:"platform_group_id,omitempty"`
	TypeID        *int64  `json:"platform_type_id,omitempty"`
	Name          *string `json:"name,omitempty"`
	Description   *string `json:"description,omitempty"`
	Order         *int    `json:"order,omitempty"`
	MatchRule     *string `json:"match_rule,omitempty"`
	ExclusionRule *string `json:"exclusion_rule,omitempty"`
}

// decode converts a stored row. Rule text that is not in the JSON array form
// is read leniently and the row is logged so it can be re-saved.
func (w platformWire) decode(ctx context.Context, logger *zap.Logger) model.Platform {
	match, legacyMatch := model.ParseStoredRules(w.MatchRule)
	exclusion, legacyExclusion := model.ParseStoredRules(w.ExclusionRule)
	if legacyMatch || legacyExclusion {
		observability.RequestLogger(ctx, logger).Warn("platform rules not stored as a JSON array",
			zap.Int64("platform_id", w.ID),
			zap.Bool("match_rule", legacyMatch),
			zap.Bool("exclusion_rule", legacyExclusion),
		)
	}
	return model.Platform{
		ID:            w.ID,
		GroupID:       w.GroupID,
		TypeID:        w.TypeID,
		Name:          w.Name,
		Description:   w.Description,
		Order:         w.Order,
		MatchRule:     match,
		ExclusionRule: exclusion,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}
}

func encodeRulePtr(r *model.RuleList) (*string, error) {
	if r == nil {
		return nil, nil
	}
	text, err := model.EncodeRules(r.Compact())
	if err != nil {
		return nil, err
	}
	return &text, nil
}

func encodePlatformInput(in model.PlatformInput) (platformInputWire, error) {
	match, err := encodeRulePtr(in.MatchRule)
	if err != nil {
		return platformInputWire{}, err
	}
	exclusion, err := encodeRulePtr(in.ExclusionRule)
	if err != nil {
		return platformInputWire{}, err
	}
	return platformInputWire{
		GroupID:       in.GroupID,
		TypeID:        in.TypeID,
		Name:          in.Name,
		Description:   in.Description,
		Order:         in.Order,
		MatchRule:     match,
		ExclusionRule: exclusion,
	}, nil
}

// Platforms is the platform resource module. Rules are written with
// model.EncodeRules after blank entries are dropped and read back with
// model.ParseStoredRules.
type Platforms struct {
	col collection[platformWire, platformInputWire]
}

// NewPlatforms creates the module.
func NewPlatforms(c *backend.Client) *Platforms {
	return &Platforms{col: collection[platformWire, platformInputWire]{client: c, path: PlatformsPath}}
}

func (p *Platforms) decodeOne(ctx context.Context, res model.Result[platformWire]) model.Result[model.Platform] {
	if !res.OK() {
		return model.Result[model.Platform]{Err: res.Err, Notice: res.Notice}
	}
	return model.Ok(res.Value.decode(ctx, p.col.client.Logger()), res.Notice)
}

func (p *Platforms) List(ctx context.Context) model.Result[[]model.Platform] {
	res := p.col.list(ctx)
	if !res.OK() {
		return model.Result[[]model.Platform]{Err: res.Err}
	}
	out := make([]model.Platform, 0, len(res.Value))
	for _, w := range res.Value {
		out = append(out, w.decode(ctx, p.col.client.Logger()))
	}
	return model.Ok(out, res.Notice)
}

func (p *Platforms) Get(ctx context.Context, id int64) model.Result[model.Platform] {
	return p.decodeOne(ctx, p.col.get(ctx, id))
}

func (p *Platforms) Create(ctx context.Context, in model.PlatformInput) model.Result[model.Platform] {
	wire, err := encodePlatformInput(in)
	if err != nil {
		return model.Fail[model.Platform](model.NewBadRequestError(err.Error()))
	}
	return p.decodeOne(ctx, p.col.create(ctx, wire))
}

func (p *Platforms) Update(ctx context.Context, id int64, patch model.PlatformInput) model.Result[model.Platform] {
	wire, err := encodePlatformInput(patch)
	if err != nil {
		return model.Fail[model.Platform](model.NewBadRequestError(err.Error()))
	}
	return p.decodeOne(ctx, p.col.update(ctx, id, wire))
}

func (p *Platforms) Delete(ctx context.Context, id int64) model.Result[struct{}] {
	return p.col.remove(ctx, id)
}
