package resource

import (
	"unicode/utf8"

	"github.com/13879107157/wyclient/model"
)

// Field limits shared by the console forms.
const (
	MaxNameLen        = 50
	MaxDescriptionLen = 200
	MaxOrder          = 9999
	DefaultOrder      = 100
)

// Field error codes.
const (
	CodeRequired   = "REQUIRED"
	CodeTooLong    = "TOO_LONG"
	CodeOutOfRange = "OUT_OF_RANGE"
	CodeInvalid    = "INVALID_VALUE"
)

type validator struct {
	errs []model.FieldError
}

func (v *validator) add(field, code, msg string) {
	v.errs = append(v.errs, model.FieldError{Field: field, Code: code, Message: msg})
}

// required checks a string that must be present on create and, when set,
// must not be blank on update.
func (v *validator) required(field string, s *string, create bool, msg string) {
	if s == nil {
		if create {
			v.add(field, CodeRequired, msg)
		}
		return
	}
	if *s == "" {
		v.add(field, CodeRequired, msg)
	}
}

func (v *validator) maxLen(field string, s *string, limit int, msg string) {
	if s != nil && utf8.RuneCountInString(*s) > limit {
		v.add(field, CodeTooLong, msg)
	}
}

func (v *validator) err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return model.NewValidationError(v.errs)
}

// ValidateType checks a platform type form. On update (create false) only
// the fields present in the patch are checked.
func ValidateType(in model.PlatformTypeInput, create bool) error {
	var v validator
	v.required("name", in.Name, create, "请输入平台类型名称")
	v.maxLen("name", in.Name, MaxNameLen, "名称长度不能超过50个字符")
	v.maxLen("description", in.Description, MaxDescriptionLen, "描述长度不能超过200个字符")
	return v.err()
}

// ValidateGroup checks a platform group form.
func ValidateGroup(in model.PlatformGroupInput, create bool) error {
	var v validator
	v.required("name", in.Name, create, "请输入平台组名称")
	v.maxLen("name", in.Name, MaxNameLen, "名称长度不能超过50个字符")
	v.maxLen("description", in.Description, MaxDescriptionLen, "描述长度不能超过200个字符")

	switch {
	case in.Status == nil:
		if create {
			v.add("status", CodeRequired, "请选择平台组状态")
		}
	case !in.Status.Valid():
		v.add("status", CodeInvalid, "请选择平台组状态")
	}

	switch {
	case in.Order == nil:
		if create {
			v.add("order", CodeRequired, "请输入排序值")
		}
	case *in.Order < 0:
		v.add("order", CodeOutOfRange, "排序值必须为非负整数")
	case *in.Order > MaxOrder:
		v.add("order", CodeOutOfRange, "排序值不能超过9999")
	}
	return v.err()
}

// ValidatePlatform checks a platform form. The match rules must hold at
// least one non-blank entry; blank entries are dropped when encoding.
func ValidatePlatform(in model.PlatformInput, create bool) error {
	var v validator
	if in.GroupID == nil && create || in.GroupID != nil && *in.GroupID <= 0 {
		v.add("platform_group_id", CodeRequired, "请选择平台组")
	}
	if in.TypeID == nil && create || in.TypeID != nil && *in.TypeID <= 0 {
		v.add("platform_type_id", CodeRequired, "请选择平台类型")
	}
	v.required("name", in.Name, create, "请输入平台名称")
	v.maxLen("name", in.Name, MaxNameLen, "名称长度不能超过50个字符")
	v.maxLen("description", in.Description, MaxDescriptionLen, "描述长度不能超过200个字符")
	if in.Order != nil && *in.Order < 0 {
		v.add("order", CodeOutOfRange, "排序值必须为非负整数")
	}
	if in.MatchRule == nil && create || in.MatchRule != nil && len(in.MatchRule.Compact()) == 0 {
		v.add("match_rule", CodeRequired, "请输入至少一个匹配规则")
	}
	return v.err()
}

// WithPlatformDefaults fills the form defaults of a new platform.
func WithPlatformDefaults(in model.PlatformInput) model.PlatformInput {
	if in.Order == nil {
		order := DefaultOrder
		in.Order = &order
	}
	return in
}
