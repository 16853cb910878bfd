// Package backend is the HTTP client for the platform REST service. It
// attaches the session token, unwraps the {success, message, data}
// envelope and maps every failure onto a console error code. It never
// retries.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/13879107157/wyclient/internal/config"
	"github.com/13879107157/wyclient/internal/observability"
	"github.com/13879107157/wyclient/model"
)

// DefaultMaxResponseBytes is the response read limit when the config sets none.
const DefaultMaxResponseBytes = 64 << 20

// SessionExpiryFunc is called when the backend answers 403 for a request
// made with token. Implementations clear the stored token and notify
// whoever holds the session.
type SessionExpiryFunc func(ctx context.Context, token string)

// Request describes one backend call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is JSON-encoded when non-nil. Ignored when Form is set.
	Body any
	// Form sends a multipart/form-data body.
	Form *Form
	// Token overrides the token in the request context.
	Token string
	// Quiet suppresses the success notice (liveness probe).
	Quiet bool
}

// Form is a multipart payload: one file part followed by plain fields.
type Form struct {
	FileField string
	FileName  string
	File      []byte
	Fields    []FormField
}

// FormField is a plain multipart field. Order is preserved.
type FormField struct {
	Name  string
	Value string
}

// Response is an unwrapped successful envelope.
type Response struct {
	Status  int
	Message string
	Data    json.RawMessage
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client talks to the platform backend.
type Client struct {
	baseURL   string
	probePath string
	http      *http.Client
	breaker   *CircuitBreaker
	logger    *zap.Logger
	metrics   *observability.Metrics
	onExpiry  SessionExpiryFunc
	maxBody   int64
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records backend request metrics and breaker state.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithSessionExpiry installs the 403 hook.
func WithSessionExpiry(fn SessionExpiryFunc) Option {
	return func(c *Client) { c.onExpiry = fn }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient builds a client for cfg. The circuit breaker is enabled when
// cfg.CircuitBreaker.FailureThreshold is positive.
func NewClient(cfg config.BackendConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		probePath: cfg.ProbePath,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		logger:  zap.NewNop(),
		maxBody: cfg.MaxResponseBytes,
	}
	if c.maxBody <= 0 {
		c.maxBody = DefaultMaxResponseBytes
	}
	for _, opt := range opts {
		opt(c)
	}
	if cb := cfg.CircuitBreaker; cb.FailureThreshold > 0 {
		c.breaker = NewCircuitBreaker(cb.FailureThreshold, cb.SuccessThreshold, cb.Timeout)
		c.breaker.OnChange(func(s BreakerState) {
			c.metrics.SetBackendCircuitBreakerState(float64(s))
			if s == BreakerOpen {
				c.logger.Warn("backend circuit breaker opened")
			} else {
				c.logger.Info("backend circuit breaker state changed", zap.Stringer("state", s))
			}
		})
	}
	return c
}

// Logger returns the client logger, for modules that log about the data they
// read through the client.
func (c *Client) Logger() *zap.Logger {
	return c.logger
}

// SetSessionExpiry installs the 403 hook after construction, for wiring
// cycles between the client and the session manager.
func (c *Client) SetSessionExpiry(fn SessionExpiryFunc) {
	c.onExpiry = fn
}

// Do performs req and returns the unwrapped envelope. Every error is a
// *model.ErrorEnvelope.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	endpoint := endpointLabel(req.Path)
	ctx, span := observability.StartSpan(ctx, "backend.request",
		observability.AttrEndpoint.String(endpoint),
	)
	start := time.Now()

	resp, err := c.do(ctx, req)

	outcome := "ok"
	if err != nil {
		outcome = model.AsEnvelope(err).Code
		span.SetAttributes(observability.AttrErrorCode.String(outcome))
	}
	c.metrics.RecordBackendRequest(endpoint, outcome, time.Since(start))
	observability.EndSpanWithError(span, err)
	return resp, err
}

func (c *Client) do(ctx context.Context, req Request) (*Response, error) {
	logger := observability.RequestLogger(ctx, c.logger).With(
		zap.String("method", req.Method),
		zap.String("path", req.Path),
	)

	if c.breaker != nil {
		if err := c.breaker.Allow(); err != nil {
			return nil, model.NewBackendUnavailableError()
		}
	}

	token := req.Token
	if token == "" {
		if rctx := model.RequestContextFrom(ctx); rctx != nil {
			token = rctx.Token
		}
	}

	httpReq, err := c.buildRequest(ctx, req, token)
	if err != nil {
		logger.Error("building backend request", zap.Error(err))
		return nil, model.NewInternalError()
	}
	if req.Body != nil && logger.Core().Enabled(zap.DebugLevel) {
		logger.Debug("backend request body", zap.Any("body", redactedPayload(req.Body)))
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.recordFailure()
		if isTimeout(ctx, err) {
			logger.Warn("backend request timed out", zap.Error(err))
			return nil, model.NewBackendTimeoutError()
		}
		logger.Warn("backend request failed", zap.Error(err))
		return nil, model.NewNetworkError()
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, c.maxBody+1))
	if err != nil {
		c.recordFailure()
		if isTimeout(ctx, err) {
			return nil, model.NewBackendTimeoutError()
		}
		logger.Warn("reading backend response", zap.Error(err))
		return nil, model.NewNetworkError()
	}

	if httpResp.StatusCode >= 500 {
		c.recordFailure()
	} else {
		c.recordSuccess()
	}

	tooLarge := int64(len(body)) > c.maxBody
	var (
		env      envelope
		parseErr error
	)
	if !tooLarge {
		parseErr = json.Unmarshal(body, &env)
	}
	if len(body) > 0 && parseErr != nil && httpResp.StatusCode < 300 {
		logger.Warn("malformed backend envelope", zap.Int("status", httpResp.StatusCode), zap.Error(parseErr))
	}

	switch {
	case httpResp.StatusCode == http.StatusUnauthorized:
		msg := env.Message
		if msg == "" {
			msg = model.MsgAuthRequired
		}
		logger.Info("backend rejected credentials", zap.String("message", msg))
		return nil, model.NewUnauthorizedError(msg)

	case httpResp.StatusCode == http.StatusForbidden:
		logger.Warn("backend session expired")
		if c.onExpiry != nil && token != "" {
			c.onExpiry(ctx, token)
		}
		return nil, model.NewSessionExpiredError()

	case httpResp.StatusCode < 200 || httpResp.StatusCode >= 300:
		logger.Info("backend returned error status",
			zap.Int("status", httpResp.StatusCode),
			zap.String("message", env.Message),
		)
		return nil, model.NewBusinessError(env.Message)
	}

	if tooLarge {
		logger.Error("backend response exceeds read limit", zap.Int64("limit_bytes", c.maxBody))
		return nil, model.NewResponseTooLargeError()
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return &Response{Status: httpResp.StatusCode}, nil
	}
	if parseErr != nil {
		return nil, model.NewBusinessError("")
	}
	if !env.Success {
		logger.Info("backend reported failure", zap.String("message", env.Message))
		return nil, model.NewBusinessError(env.Message)
	}

	logger.Debug("backend request succeeded", zap.Int("status", httpResp.StatusCode))
	return &Response{
		Status:  httpResp.StatusCode,
		Message: env.Message,
		Data:    env.Data,
	}, nil
}

func (c *Client) buildRequest(ctx context.Context, req Request, token string) (*http.Request, error) {
	reqURL := c.baseURL + req.Path
	if len(req.Query) > 0 {
		reqURL += "?" + req.Query.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case req.Form != nil:
		buf, ct, err := encodeForm(req.Form)
		if err != nil {
			return nil, err
		}
		body, contentType = buf, ct
	case req.Body != nil:
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("backend: marshal body: %w", err)
		}
		body, contentType = bytes.NewReader(data), "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+sanitizeHeader(token))
	}
	if rctx := model.RequestContextFrom(ctx); rctx != nil && rctx.CorrelationID != "" {
		httpReq.Header.Set("X-Correlation-Id", sanitizeHeader(rctx.CorrelationID))
	}
	observability.InjectTraceHeaders(ctx, httpReq.Header)
	return httpReq, nil
}

func encodeForm(f *Form) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	if f.FileField != "" {
		part, err := mw.CreateFormFile(f.FileField, f.FileName)
		if err != nil {
			return nil, "", fmt.Errorf("backend: multipart file: %w", err)
		}
		if _, err := part.Write(f.File); err != nil {
			return nil, "", fmt.Errorf("backend: multipart file: %w", err)
		}
	}
	for _, field := range f.Fields {
		if err := mw.WriteField(field.Name, field.Value); err != nil {
			return nil, "", fmt.Errorf("backend: multipart field %s: %w", field.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("backend: multipart close: %w", err)
	}
	return buf, mw.FormDataContentType(), nil
}

// HealthCheck reports whether the backend answers HTTP at all. Any status
// below 500 counts as reachable, since the probe is sent without a token.
func (c *Client) HealthCheck(ctx context.Context) error {
	path := c.probePath
	if path == "" {
		path = "/"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBody))
	if resp.StatusCode >= 500 {
		return fmt.Errorf("backend returned %d", resp.StatusCode)
	}
	return nil
}

// BreakerState returns the breaker state, or closed when there is no breaker.
func (c *Client) BreakerState() BreakerState {
	if c.breaker == nil {
		return BreakerClosed
	}
	return c.breaker.State()
}

func (c *Client) recordFailure() {
	if c.breaker != nil {
		c.breaker.RecordFailure()
	}
}

func (c *Client) recordSuccess() {
	if c.breaker != nil {
		c.breaker.RecordSuccess()
	}
}

// Call performs req and decodes the envelope data into T. The backend
// message becomes a success notice unless the request is quiet.
func Call[T any](ctx context.Context, c *Client, req Request) model.Result[T] {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return model.Fail[T](err)
	}
	var v T
	if data := bytes.TrimSpace(resp.Data); len(data) > 0 && !bytes.Equal(data, []byte("null")) {
		if err := json.Unmarshal(data, &v); err != nil {
			observability.RequestLogger(ctx, c.logger).Warn("decoding backend data",
				zap.String("path", req.Path),
				zap.Error(err),
			)
			return model.Fail[T](model.NewBusinessError(""))
		}
	}
	var notice *model.Notice
	if !req.Quiet && resp.Message != "" {
		notice = &model.Notice{Level: model.NoticeSuccess, Message: resp.Message}
	}
	return model.Ok(v, notice)
}

// Get is Call with GET.
func Get[T any](ctx context.Context, c *Client, path string, query url.Values) model.Result[T] {
	return Call[T](ctx, c, Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post is Call with POST and a JSON body.
func Post[T any](ctx context.Context, c *Client, path string, body any) model.Result[T] {
	return Call[T](ctx, c, Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put is Call with PUT and a JSON body.
func Put[T any](ctx context.Context, c *Client, path string, body any) model.Result[T] {
	return Call[T](ctx, c, Request{Method: http.MethodPut, Path: path, Body: body})
}

// Delete is Call with DELETE.
func Delete[T any](ctx context.Context, c *Client, path string) model.Result[T] {
	return Call[T](ctx, c, Request{Method: http.MethodDelete, Path: path})
}

// PostMultipart is Call with POST and a multipart body.
func PostMultipart[T any](ctx context.Context, c *Client, path string, form *Form) model.Result[T] {
	return Call[T](ctx, c, Request{Method: http.MethodPost, Path: path, Form: form})
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// endpointLabel replaces numeric path segments with :id to bound metric
// label cardinality.
func endpointLabel(path string) string {
	segs := strings.Split(path, "/")
	for i, s := range segs {
		if _, err := strconv.ParseInt(s, 10, 64); err == nil {
			segs[i] = ":id"
		}
	}
	return strings.Join(segs, "/")
}

// sanitizeHeader strips CR and LF to prevent header injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", "")
}

// redactedPayload renders a JSON body as a map with credentials masked.
func redactedPayload(body any) any {
	data, err := json.Marshal(body)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return string(data)
	}
	return observability.RedactBody(m)
}
