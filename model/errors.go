package model

import (
	"errors"
	"fmt"
)

// Standard error codes.
const (
	ErrBadRequest         = "BAD_REQUEST"
	ErrUnauthorized       = "UNAUTHORIZED"
	ErrForbidden          = "FORBIDDEN"
	ErrNotFound           = "NOT_FOUND"
	ErrConflict           = "CONFLICT"
	ErrValidationError    = "VALIDATION_ERROR"
	ErrInternalError      = "INTERNAL_ERROR"
	ErrBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrBackendTimeout     = "BACKEND_TIMEOUT"
)

// Backend client error codes.
const (
	ErrSessionExpired = "SESSION_EXPIRED"
	ErrNetworkError   = "NETWORK_ERROR"
	ErrBusinessError  = "BUSINESS_ERROR"
	ErrResponseTooBig = "BACKEND_RESPONSE_TOO_LARGE"
)

// User-facing messages shared by the backend client and the handlers.
const (
	MsgSessionExpired = "登录已过期，请重新登录"
	MsgNetworkError   = "网络错误，请检查网络连接"
	MsgTimeout        = "请求超时，请稍后重试"
	MsgUnknownError   = "未知错误"
	MsgAuthRequired   = "认证失败，请重新登录"
	MsgResponseTooBig = "返回数据过大，请缩小文件或减少统计维度后重试"
)

// LoginRoute is where the shell sends a browser whose session is gone.
const LoginRoute = "/auth"

// ErrorEnvelope is the standard error response envelope returned by the BFF.
// It implements the error interface.
type ErrorEnvelope struct {
	Code     string       `json:"code"`
	Message  string       `json:"message"`
	Details  []FieldError `json:"details,omitempty"`
	TraceID  string       `json:"trace_id,omitempty"`
	Redirect string       `json:"redirect,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AsEnvelope unwraps err into an *ErrorEnvelope. Anything else becomes an
// INTERNAL_ERROR.
func AsEnvelope(err error) *ErrorEnvelope {
	if err == nil {
		return nil
	}
	var ee *ErrorEnvelope
	if errors.As(err, &ee) {
		return ee
	}
	return NewInternalError()
}

// IsCode reports whether err is an *ErrorEnvelope with the given code.
func IsCode(err error, code string) bool {
	var ee *ErrorEnvelope
	return errors.As(err, &ee) && ee.Code == code
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewBackendUnavailableError returns a BACKEND_UNAVAILABLE error.
func NewBackendUnavailableError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrBackendUnavailable,
		Message: "The backend service is temporarily unavailable",
	}
}

// NewResponseTooLargeError returns a BACKEND_RESPONSE_TOO_LARGE error for a
// backend answer that exceeded the configured read limit.
func NewResponseTooLargeError() *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrResponseTooBig, Message: MsgResponseTooBig}
}

// NewBackendTimeoutError returns a BACKEND_TIMEOUT error.
func NewBackendTimeoutError() *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBackendTimeout, Message: MsgTimeout}
}

// NewSessionExpiredError returns a SESSION_EXPIRED error pointing the
// browser at the login route.
func NewSessionExpiredError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:     ErrSessionExpired,
		Message:  MsgSessionExpired,
		Redirect: LoginRoute,
	}
}

// NewNetworkError returns a NETWORK_ERROR.
func NewNetworkError() *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNetworkError, Message: MsgNetworkError}
}

// NewBusinessError returns a BUSINESS_ERROR carrying the backend message
// verbatim, or the unknown-error fallback when the backend sent none.
func NewBusinessError(msg string) *ErrorEnvelope {
	if msg == "" {
		msg = MsgUnknownError
	}
	return &ErrorEnvelope{Code: ErrBusinessError, Message: msg}
}
