package resource

import (
	"context"

	"go.uber.org/zap"

	"github.com/13879107157/wyclient/internal/observability"
	"github.com/13879107157/wyclient/model"
)

// Notice messages for list mutations.
const (
	MsgUpdated      = "更新成功"
	MsgDeleted      = "删除成功"
	MsgDeleteFailed = "删除失败"
)

// Backend is the resource module a Service fronts; the api package's
// PlatformTypes, PlatformGroups and Platforms satisfy it.
type Backend[T Item, In any] interface {
	List(ctx context.Context) model.Result[[]T]
	Get(ctx context.Context, id int64) model.Result[T]
	Create(ctx context.Context, in In) model.Result[T]
	Update(ctx context.Context, id int64, patch In) model.Result[T]
	Delete(ctx context.Context, id int64) model.Result[struct{}]
}

// Service is the list/form layer for one resource.
type Service[T Item, In any] struct {
	backend  Backend[T, In]
	validate func(In, bool) error
	prepare  func(In) In
	created  string
	logger   *zap.Logger
	onChange []func()
}

// NewService creates a Service. created is the notice shown after a
// successful create.
func NewService[T Item, In any](b Backend[T, In], validate func(In, bool) error, created string, logger *zap.Logger) *Service[T, In] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service[T, In]{backend: b, validate: validate, created: created, logger: logger}
}

// Prepare sets a hook that fills defaults into create payloads before
// validation.
func (s *Service[T, In]) Prepare(fn func(In) In) { s.prepare = fn }

// OnChange registers fn to run after every successful mutation.
func (s *Service[T, In]) OnChange(fn func()) { s.onChange = append(s.onChange, fn) }

func (s *Service[T, In]) changed() {
	for _, fn := range s.onChange {
		fn()
	}
}

// All fetches the complete list from the backend.
func (s *Service[T, In]) All(ctx context.Context) model.Result[[]T] {
	return s.backend.List(ctx)
}

// List fetches every row then searches and paginates in memory.
func (s *Service[T, In]) List(ctx context.Context, q Query) model.Result[Page[T]] {
	res := s.backend.List(ctx)
	if !res.OK() {
		observability.LoggerFrom(ctx, s.logger).Warn("list fetch failed",
			zap.String("code", res.Err.Code),
			zap.String("message", res.Err.Message),
		)
		return model.Result[Page[T]]{Err: res.Err}
	}
	return model.Ok(Apply(res.Value, q), nil)
}

// Get fetches one row for the edit form.
func (s *Service[T, In]) Get(ctx context.Context, id int64) model.Result[T] {
	if id <= 0 {
		return model.Fail[T](model.NewBadRequestError("无效的ID"))
	}
	return s.backend.Get(ctx, id)
}

// Create validates then creates. Invalid input never reaches the backend.
func (s *Service[T, In]) Create(ctx context.Context, in In) model.Result[T] {
	if s.prepare != nil {
		in = s.prepare(in)
	}
	if err := s.validate(in, true); err != nil {
		return model.Fail[T](err)
	}
	res := s.backend.Create(ctx, in)
	if res.OK() {
		res.Notice = &model.Notice{Level: model.NoticeSuccess, Message: s.created}
		s.changed()
	}
	return res
}

// Update validates the fields present in patch then sends it.
func (s *Service[T, In]) Update(ctx context.Context, id int64, patch In) model.Result[T] {
	if id <= 0 {
		return model.Fail[T](model.NewBadRequestError("无效的ID"))
	}
	if err := s.validate(patch, false); err != nil {
		return model.Fail[T](err)
	}
	res := s.backend.Update(ctx, id, patch)
	if res.OK() {
		res.Notice = &model.Notice{Level: model.NoticeSuccess, Message: MsgUpdated}
		s.changed()
	}
	return res
}

// Delete removes the row exactly once, then returns the refreshed list with
// that row spliced out.
func (s *Service[T, In]) Delete(ctx context.Context, id int64, q Query) model.Result[Page[T]] {
	if id <= 0 {
		return model.Fail[Page[T]](model.NewBadRequestError("无效的ID"))
	}
	del := s.backend.Delete(ctx, id)
	if !del.OK() {
		return model.Result[Page[T]]{
			Err:    del.Err,
			Notice: &model.Notice{Level: model.NoticeError, Message: MsgDeleteFailed},
		}
	}
	s.changed()

	deleted := &model.Notice{Level: model.NoticeSuccess, Message: MsgDeleted}
	list := s.backend.List(ctx)
	if !list.OK() {
		return model.Result[Page[T]]{Err: list.Err, Notice: deleted}
	}
	return model.Ok(Apply(Splice(list.Value, id), q), deleted)
}

// NewTypes creates the platform type list layer.
func NewTypes(b Backend[model.PlatformType, model.PlatformTypeInput], logger *zap.Logger) *Service[model.PlatformType, model.PlatformTypeInput] {
	return NewService(b, ValidateType, "平台类型创建成功", logger)
}

// NewGroups creates the platform group list layer.
func NewGroups(b Backend[model.PlatformGroup, model.PlatformGroupInput], logger *zap.Logger) *Service[model.PlatformGroup, model.PlatformGroupInput] {
	return NewService(b, ValidateGroup, "平台组创建成功", logger)
}
