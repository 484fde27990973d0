package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/asheshgoplani/shelldeck/internal/ptyhost/ptyhosttest"
	"github.com/asheshgoplani/shelldeck/internal/session"
	"github.com/asheshgoplani/shelldeck/internal/tabs"
	"github.com/asheshgoplani/shelldeck/internal/workspace"
)

type testEnv struct {
	srv  *Server
	ws   *workspace.Workspace
	host *ptyhosttest.FakeHost
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	host := ptyhosttest.NewFakeHost()
	reg := session.NewRegistry(host, session.Config{Shell: "/bin/sh", HomeDir: "/home/test"})
	ws := workspace.New(workspace.Options{Registry: reg, Policy: tabs.DefaultTitlePolicy()})
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	srv := NewServer(cfg, ws)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		reg.Shutdown()
	})
	return &testEnv{srv: srv, ws: ws, host: host}
}

func (e *testEnv) do(method, target, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealthzEndpoint(t *testing.T) {
	env := newTestEnv(t, Config{ReadOnly: true})

	rr := env.do(http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `"ok":true`) {
		t.Fatalf("expected ok=true, got: %s", body)
	}
	if !strings.Contains(body, `"readOnly":true`) {
		t.Fatalf("expected readOnly=true, got: %s", body)
	}

	if rr := env.do(http.MethodPost, "/healthz", "", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rr.Code)
	}
}

func TestTabsRequiresToken(t *testing.T) {
	env := newTestEnv(t, Config{Token: "secret"})

	if rr := env.do(http.MethodGet, "/api/tabs", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	if rr := env.do(http.MethodGet, "/api/tabs?token=wrong", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rr.Code)
	}
	if rr := env.do(http.MethodGet, "/api/tabs?token=secret", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with query token, got %d", rr.Code)
	}
	rr := env.do(http.MethodGet, "/api/tabs", "", http.Header{"Authorization": {"Bearer secret"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with bearer token, got %d", rr.Code)
	}
}

func TestTabsSnapshot(t *testing.T) {
	env := newTestEnv(t, Config{})
	id, err := env.ws.OpenTab(context.Background(), workspace.OpenOptions{Dir: "/srv/api"})
	if err != nil {
		t.Fatalf("OpenTab: %v", err)
	}

	rr := env.do(http.MethodGet, "/api/tabs", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var msg wsServerMessage
	if err := json.Unmarshal(rr.Body.Bytes(), &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != "tabs" || msg.Active != id {
		t.Fatalf("unexpected snapshot header: %+v", msg)
	}
	if len(msg.Tabs) != 2 {
		t.Fatalf("expected 2 tabs, got %d", len(msg.Tabs))
	}
	last := msg.Tabs[1]
	if last.ID != id || last.Title != "api" || last.State != "alive" {
		t.Fatalf("unexpected tab view: %+v", last)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, Config{})
	if _, err := env.ws.OpenTab(context.Background(), workspace.OpenOptions{}); err != nil {
		t.Fatalf("OpenTab: %v", err)
	}
	env.host.FailNextSpawn(context.DeadlineExceeded)
	if _, err := env.ws.OpenTab(context.Background(), workspace.OpenOptions{}); err == nil {
		t.Fatal("expected spawn failure")
	}

	rr := env.do(http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		"shelldeck_sessions_live 1",
		"shelldeck_spawn_failures_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics:\n%s", want, body)
		}
	}
}

func TestPushEndpointsWithoutPush(t *testing.T) {
	env := newTestEnv(t, Config{})

	rr := env.do(http.MethodGet, "/api/push/config", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"enabled":false`) {
		t.Fatalf("unexpected push config: %d %s", rr.Code, rr.Body.String())
	}
	rr = env.do(http.MethodPost, "/api/push/subscribe", `{}`, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestPushSubscribeEndpoint(t *testing.T) {
	dir := t.TempDir()
	push := NewPushService(dir, VAPIDKeys{PublicKey: "pub", PrivateKey: "priv", Subject: "mailto:a@b"}, PushOptions{})
	env := newTestEnv(t, Config{Push: push})

	rr := env.do(http.MethodPost, "/api/push/subscribe", `{"endpoint":"https://push.example/1"}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing keys, got %d", rr.Code)
	}

	rr = env.do(http.MethodPost, "/api/push/subscribe",
		`{"endpoint":"https://push.example/1","keys":{"p256dh":"k","auth":"a"}}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = env.do(http.MethodGet, "/api/push/config", "", nil)
	body := rr.Body.String()
	if !strings.Contains(body, `"vapidPublicKey":"pub"`) || !strings.Contains(body, `"subscriptionCount":1`) {
		t.Fatalf("unexpected push config: %s", body)
	}

	rr = env.do(http.MethodPost, "/api/push/unsubscribe", `{"endpoint":"https://push.example/1"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if n, _ := push.SubscriptionCount(); n != 0 {
		t.Fatalf("expected no subscriptions, got %d", n)
	}

	if rr := env.do(http.MethodGet, "/api/push/subscribe", "", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestPushTestEndpoint(t *testing.T) {
	push := NewPushService(t.TempDir(), VAPIDKeys{PublicKey: "pub", PrivateKey: "priv", Subject: "mailto:a@b"}, PushOptions{Token: "secret"})
	env := newTestEnv(t, Config{Push: push, Token: "secret"})

	tabID, err := env.ws.OpenTab(context.Background(), workspace.OpenOptions{Dir: "/srv/api"})
	if err != nil {
		t.Fatalf("open tab: %v", err)
	}

	rr := env.do(http.MethodPost, "/api/push/test?token=secret", `{}`, nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	select {
	case msg := <-push.queue:
		if msg.TabID != tabID || msg.Kind != "test" {
			t.Fatalf("unexpected queued message: %+v", msg)
		}
		if !strings.Contains(msg.Path, "token=secret") {
			t.Fatalf("expected token in click-through path, got %q", msg.Path)
		}
	default:
		t.Fatal("expected a queued test push")
	}

	rr = env.do(http.MethodPost, "/api/push/test?token=secret", `{"tabId":"missing"}`, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown tab, got %d", rr.Code)
	}

	for push.SendTest(tabID, "fill") {
	}
	rr = env.do(http.MethodPost, "/api/push/test?token=secret", `{}`, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 with a full queue, got %d", rr.Code)
	}
}

func TestAllowWSOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://deck.local:8420", true},
		{"http://evil.example", false},
		{"::not a url", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "http://deck.local:8420/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := allowWSOrigin(req); got != tt.want {
			t.Fatalf("origin %q: got %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestServerMessageTimeOnlyWhenSet(t *testing.T) {
	raw, err := json.Marshal(wsServerMessage{Type: "output", TabID: "t1", Data: []byte("hi")})
	if err != nil {
		t.Fatalf("marshal output: %v", err)
	}
	if strings.Contains(string(raw), `"time"`) {
		t.Fatalf("output frame should not carry a time: %s", raw)
	}

	raw, err = json.Marshal(wsServerMessage{Type: "status", Event: "pong", Time: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)})
	if err != nil {
		t.Fatalf("marshal status: %v", err)
	}
	if !strings.Contains(string(raw), `"time":"2026-01-02T03:04:05Z"`) {
		t.Fatalf("status frame should carry its time: %s", raw)
	}
}
