package model

import (
	"context"
	"errors"
	"fmt"
)

// RequestContext carries the session identity and tracing information for
// the lifetime of an authenticated console request. It is built by the
// session gate and is safe for concurrent reads.
type RequestContext struct {
	SessionID     string
	UserID        string
	Username      string
	Token         string
	CorrelationID string
	TraceID       string
	Locale        string
}

// Validate checks that all mandatory fields are present.
func (rc *RequestContext) Validate() error {
	var errs []error
	if rc.SessionID == "" {
		errs = append(errs, fmt.Errorf("SessionID is required"))
	}
	if rc.Token == "" {
		errs = append(errs, fmt.Errorf("Token is required"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

type contextKey struct{}

// WithRequestContext attaches a RequestContext to the given context.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom extracts the RequestContext from the context, or returns nil
// if not present.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}

// MustRequestContext extracts the RequestContext from the context, panicking if
// it is not present. Only call it behind the session gate.
func MustRequestContext(ctx context.Context) *RequestContext {
	rctx := RequestContextFrom(ctx)
	if rctx == nil {
		panic("model: RequestContext not found in context")
	}
	return rctx
}
