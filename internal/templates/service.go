package templates

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/13879107157/wyclient/internal/observability"
	"github.com/13879107157/wyclient/model"
)

// User-facing messages.
const (
	MsgSaved           = "模板保存成功"
	MsgMissingFields   = "请填写所有必填字段"
	MsgDeleted         = "模板删除成功"
	MsgNoneSelected    = "请选择要删除的模板"
	MsgNothingToDelete = "没有可删除的模板"
)

// Input is the save-as-template form.
type Input struct {
	Source     string `json:"source"`
	InfoSource string `json:"infoSource"`
	KeyURL     string `json:"keyUrl"`
}

// Service applies the template rules over a Store.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a Service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// List returns the owner's templates.
func (s *Service) List(ctx context.Context, ownerID string) model.Result[[]model.InfoTemplate] {
	list, err := s.store.List(ctx, ownerID)
	if err != nil {
		return s.fail(ctx, "list", err)
	}
	return model.Ok(list, nil)
}

// Save stores the form as a new template named source-infoSource-keyUrl.
// All three fields are required.
func (s *Service) Save(ctx context.Context, ownerID string, in Input) model.Result[model.InfoTemplate] {
	in.Source = strings.TrimSpace(in.Source)
	in.InfoSource = strings.TrimSpace(in.InfoSource)
	in.KeyURL = strings.TrimSpace(in.KeyURL)

	var missing []model.FieldError
	for _, f := range []struct{ name, value string }{
		{"source", in.Source},
		{"infoSource", in.InfoSource},
		{"keyUrl", in.KeyURL},
	} {
		if f.value == "" {
			missing = append(missing, model.FieldError{Field: f.name, Code: "REQUIRED", Message: MsgMissingFields})
		}
	}
	if len(missing) > 0 {
		env := model.NewValidationError(missing)
		env.Message = MsgMissingFields
		return model.Fail[model.InfoTemplate](env)
	}

	t := model.InfoTemplate{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Source:       in.Source,
		InfoSource:   in.InfoSource,
		KeyURL:       in.KeyURL,
		TemplateName: model.TemplateName(in.Source, in.InfoSource, in.KeyURL),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.Save(ctx, t); err != nil {
		return model.Result[model.InfoTemplate]{Err: s.fail(ctx, "save", err).Err}
	}
	return model.Ok(t, &model.Notice{Level: model.NoticeSuccess, Message: MsgSaved})
}

// Apply returns one template so its values can fill the form.
func (s *Service) Apply(ctx context.Context, ownerID, id string) model.Result[model.InfoTemplate] {
	t, err := s.store.Get(ctx, ownerID, id)
	if err != nil {
		if model.IsCode(err, model.ErrNotFound) {
			return model.Fail[model.InfoTemplate](err)
		}
		return model.Result[model.InfoTemplate]{Err: s.fail(ctx, "get", err).Err}
	}
	return model.Ok(t, nil)
}

// Delete removes the selected templates and returns what is left. Having no
// templates, or selecting none, is reported as an info notice.
func (s *Service) Delete(ctx context.Context, ownerID string, ids []string) model.Result[[]model.InfoTemplate] {
	current := s.List(ctx, ownerID)
	if !current.OK() {
		return current
	}
	if len(current.Value) == 0 {
		return model.Ok(current.Value, &model.Notice{Level: model.NoticeInfo, Message: MsgNothingToDelete})
	}
	if len(ids) == 0 {
		return model.Ok(current.Value, &model.Notice{Level: model.NoticeInfo, Message: MsgNoneSelected})
	}

	if _, err := s.store.Delete(ctx, ownerID, ids); err != nil {
		return s.fail(ctx, "delete", err)
	}
	left := s.List(ctx, ownerID)
	if !left.OK() {
		return left
	}
	left.Notice = &model.Notice{Level: model.NoticeSuccess, Message: MsgDeleted}
	return left
}

func (s *Service) fail(ctx context.Context, op string, err error) model.Result[[]model.InfoTemplate] {
	observability.LoggerFrom(ctx, s.logger).Error("template store failed",
		zap.String("op", op),
		zap.Error(err),
	)
	return model.Fail[[]model.InfoTemplate](err)
}
