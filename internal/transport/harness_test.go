package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/13879107157/wyclient/internal/analysis"
	"github.com/13879107157/wyclient/internal/api"
	"github.com/13879107157/wyclient/internal/backend"
	"github.com/13879107157/wyclient/internal/config"
	"github.com/13879107157/wyclient/internal/lookup"
	"github.com/13879107157/wyclient/internal/metadata"
	"github.com/13879107157/wyclient/internal/observability"
	"github.com/13879107157/wyclient/internal/resource"
	"github.com/13879107157/wyclient/internal/session"
	"github.com/13879107157/wyclient/internal/templates"
)

type backendCall struct {
	Method string
	Path   string
	Auth   string
}

// fakeBackend answers "METHOD /path" with the registered data in a success
// envelope, or with the registered status.
type fakeBackend struct {
	mu        sync.Mutex
	calls     []backendCall
	responses map[string]any
	statuses  map[string]int
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	f.mu.Lock()
	f.calls = append(f.calls, backendCall{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization")})
	status, hasStatus := f.statuses[key]
	data, hasData := f.responses[key]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case hasStatus:
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "rejected"})
	case hasData:
		json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "操作成功", "data": data})
	default:
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "not found"})
	}
}

func (f *fakeBackend) set(key string, data any) {
	f.mu.Lock()
	f.responses[key] = data
	f.mu.Unlock()
}

func (f *fakeBackend) fail(key string, status int) {
	f.mu.Lock()
	f.statuses[key] = status
	f.mu.Unlock()
}

func (f *fakeBackend) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

type harness struct {
	t        *testing.T
	router   http.Handler
	backend  *fakeBackend
	sessions *session.Manager
	signer   *session.Signer
	registry *analysis.Registry
	metrics  *observability.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fb := &fakeBackend{
		responses: map[string]any{
			"POST /api/users/login":     map[string]any{"token": "backend-token", "user": map[string]any{"id": 5, "username": "alice"}},
			"GET /api/users":            map[string]any{"id": 5, "username": "alice-profile"},
			"GET /api/platform-types/1": map[string]any{"id": 1},
		},
		statuses: map[string]int{},
	}
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)

	cfg := config.Defaults()
	cfg.Backend.BaseURL = srv.URL
	cfg.Backend.Timeout = 2 * time.Second
	cfg.Server.CORS.AllowedOrigins = []string{"https://app.example.com"}
	cfg.Server.HandlerTimeout = 5 * time.Second
	cfg.Observability.Metrics.Enabled = false

	metrics := observability.InitMetrics(prometheus.NewRegistry())
	client := backend.NewClient(cfg.Backend, backend.WithMetrics(metrics))
	services := api.NewServices(client, cfg.Backend)

	sessions := session.NewManager(session.NewMemoryStore(), time.Hour, session.WithMetrics(metrics))
	client.SetSessionExpiry(sessions.HandleExpiry)
	signer, err := session.NewSigner("test-secret")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	lookups := lookup.NewProvider(services.Groups, services.Types, cfg.Lookup.Cache, metrics)
	registry := analysis.NewRegistry(services.Matching, cfg.Analysis, nil, metrics)
	sessions.Subscribe(registry)

	router := NewRouter(Dependencies{
		Config:    cfg,
		Metrics:   metrics,
		Sessions:  sessions,
		Gate:      NewGate(sessions, signer, cfg.Session, nil),
		Auth:      services.Auth,
		Types:     resource.NewTypes(services.Types, nil),
		Groups:    resource.NewGroups(services.Groups, nil),
		Platforms: resource.NewPlatforms(services.Platforms, lookups, nil),
		Lookups:   lookups,
		Analysis:  registry,
		Templates: templates.NewService(templates.NewMemoryStore(), nil),
		Menu:      metadata.NewMenuProvider(cfg.Menu),
	})
	return &harness{t: t, router: router, backend: fb, sessions: sessions, signer: signer, registry: registry, metrics: metrics}
}

func (h *harness) do(req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) json(method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return h.do(req, cookie)
}

// login signs in as alice and returns the session cookie.
func (h *harness) login() *http.Cookie {
	h.t.Helper()
	w := h.json("POST", "/console/auth/login", map[string]string{"username": "alice", "password": "pw"}, nil)
	if w.Code != http.StatusOK {
		h.t.Fatalf("login status = %d, body = %s", w.Code, w.Body)
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == "wy_session" {
			return c
		}
	}
	h.t.Fatal("login set no session cookie")
	return nil
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code     string `json:"code"`
		Message  string `json:"message"`
		Redirect string `json:"redirect"`
		Details  []struct {
			Field string `json:"field"`
		} `json:"details"`
	} `json:"error"`
	Notices []struct {
		Level   string `json:"level"`
		Message string `json:"message"`
	} `json:"notices"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v", w.Body, err)
	}
	return env
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, v any) envelope {
	t.Helper()
	env := decode(t, w)
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
	return env
}

func clearedCookie(w *httptest.ResponseRecorder) bool {
	for _, c := range w.Result().Cookies() {
		if c.Name == "wy_session" && c.MaxAge < 0 {
			return true
		}
	}
	return false
}
