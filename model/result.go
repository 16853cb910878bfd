package model

// Notice levels.
const (
	NoticeSuccess = "success"
	NoticeInfo    = "info"
	NoticeWarning = "warning"
	NoticeError   = "error"
)

// Notice is a transient, user-facing message (a toast in the browser).
type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Result is the tagged outcome of a backend call: either a Value or an Err,
// never both. Notice carries the backend's success message unless the call
// was made quietly.
type Result[T any] struct {
	Value  T
	Err    *ErrorEnvelope
	Notice *Notice
}

// Ok builds a successful Result.
func Ok[T any](v T, notice *Notice) Result[T] {
	return Result[T]{Value: v, Notice: notice}
}

// Fail builds a failed Result.
func Fail[T any](err error) Result[T] {
	return Result[T]{Err: AsEnvelope(err)}
}

// OK reports whether the call succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// Unwrap converts the Result back into Go's (value, error) pair.
func (r Result[T]) Unwrap() (T, error) {
	if r.Err != nil {
		var zero T
		return zero, r.Err
	}
	return r.Value, nil
}

// Message returns the notice text, or "" when there is none.
func (r Result[T]) Message() string {
	if r.Notice == nil {
		return ""
	}
	return r.Notice.Message
}

// Map converts a successful Result[T] into Result[U], carrying the notice
// and error through untouched.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	if r.Err != nil {
		return Result[U]{Err: r.Err, Notice: r.Notice}
	}
	return Result[U]{Value: fn(r.Value), Notice: r.Notice}
}

// Envelope is the success body returned by the BFF, mirroring the backend's
// {success, message, data} convention.
type Envelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Notices []Notice `json:"notices,omitempty"`
	Data    any      `json:"data"`
}
