package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/asheshgoplani/shelldeck/internal/workspace"
)

func wsURL(serverURL, path string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + path
}

func dialWS(t *testing.T, env *testEnv, path string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(env.srv.Handler())
	t.Cleanup(ts.Close)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts.URL, path), nil)
	if err != nil {
		if resp != nil {
			t.Fatalf("dial failed with status %d: %v", resp.StatusCode, err)
		}
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(200*time.Millisecond))
		_ = conn.Close()
	})
	return conn
}

// readUntil reads messages until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(wsServerMessage) bool) wsServerMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for {
		var msg wsServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func TestWSHandshakeSendsSnapshot(t *testing.T) {
	env := newTestEnv(t, Config{})
	conn := dialWS(t, env, "/ws")

	status := readUntil(t, conn, func(m wsServerMessage) bool { return m.Type == "status" })
	if status.Event != "connected" {
		t.Fatalf("expected connected status, got %+v", status)
	}
	snap := readUntil(t, conn, func(m wsServerMessage) bool { return m.Type == "tabs" })
	if len(snap.Tabs) != 1 || snap.Active != snap.Tabs[0].ID {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestWSRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t, Config{Token: "secret"})
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts.URL, "/ws"), nil)
	if err == nil {
		t.Fatal("expected dial to fail without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}

	conn := dialWS(t, env, "/ws?token=secret")
	readUntil(t, conn, func(m wsServerMessage) bool { return m.Type == "tabs" })
}

func TestWSOpenInputAndOutput(t *testing.T) {
	env := newTestEnv(t, Config{})
	conn := dialWS(t, env, "/ws")
	readUntil(t, conn, func(m wsServerMessage) bool { return m.Type == "tabs" })

	if err := conn.WriteJSON(wsClientMessage{Type: msgOpen, Dir: "/srv/api", Cols: 120, Rows: 30}); err != nil {
		t.Fatalf("write open: %v", err)
	}
	created := readUntil(t, conn, func(m wsServerMessage) bool {
		return m.Type == "tab" && m.Event == string(workspace.EventCreated)
	})
	if created.Tab == nil || created.Tab.Title != "api" {
		t.Fatalf("unexpected created message: %+v", created)
	}
	tabID := created.TabID
	readUntil(t, conn, func(m wsServerMessage) bool {
		return m.Type == "tab" && m.TabID == tabID && m.Tab != nil && m.Tab.State == "alive"
	})

	proc := env.host.Last()
	if proc == nil {
		t.Fatal("no process spawned")
	}
	if proc.Options.Cols != 120 || proc.Options.Rows != 30 {
		t.Fatalf("unexpected geometry %dx%d", proc.Options.Cols, proc.Options.Rows)
	}

	proc.Emit("\x1b[32mhello\x1b[0m")
	out := readUntil(t, conn, func(m wsServerMessage) bool { return m.Type == "output" && m.TabID == tabID })
	if string(out.Data) != "\x1b[32mhello\x1b[0m" {
		t.Fatalf("unexpected output %q", out.Data)
	}

	if err := conn.WriteJSON(wsClientMessage{Type: msgInput, TabID: tabID, Data: "ls\r"}); err != nil {
		t.Fatalf("write input: %v", err)
	}
	if err := conn.WriteJSON(wsClientMessage{Type: msgPing}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	readUntil(t, conn, func(m wsServerMessage) bool { return m.Type == "status" && m.Event == "pong" })
	if got := proc.Written(); got != "ls\r" {
		t.Fatalf("expected input to reach shell, got %q", got)
	}

	proc.Exit(0)
	exit := readUntil(t, conn, func(m wsServerMessage) bool { return m.Type == "exit" })
	if exit.Code == nil || *exit.Code != 0 || exit.TabID != tabID {
		t.Fatalf("unexpected exit message: %+v", exit)
	}
}

func TestWSCloseUnknownTab(t *testing.T) {
	env := newTestEnv(t, Config{})
	conn := dialWS(t, env, "/ws")
	readUntil(t, conn, func(m wsServerMessage) bool { return m.Type == "tabs" })

	if err := conn.WriteJSON(wsClientMessage{Type: msgClose, TabID: "nope"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readUntil(t, conn, func(m wsServerMessage) bool { return m.Type == "error" })
	if msg.Error != "TAB_NOT_FOUND" {
		t.Fatalf("expected TAB_NOT_FOUND, got %+v", msg)
	}
}

func TestWSReadOnlyRejectsInput(t *testing.T) {
	env := newTestEnv(t, Config{ReadOnly: true})
	id, err := env.ws.OpenTab(context.Background(), workspace.OpenOptions{})
	if err != nil {
		t.Fatalf("OpenTab: %v", err)
	}
	conn := dialWS(t, env, "/ws")
	status := readUntil(t, conn, func(m wsServerMessage) bool { return m.Type == "status" })
	if !status.ReadOnly {
		t.Fatalf("expected read-only status, got %+v", status)
	}

	if err := conn.WriteJSON(wsClientMessage{Type: msgInput, TabID: id, Data: "rm -rf /\r"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readUntil(t, conn, func(m wsServerMessage) bool { return m.Type == "error" })
	if msg.Error != "READ_ONLY" {
		t.Fatalf("expected READ_ONLY, got %+v", msg)
	}
	if got := env.host.Last().Written(); got != "" {
		t.Fatalf("input leaked to shell: %q", got)
	}

	// Switching tabs is still allowed.
	if err := conn.WriteJSON(wsClientMessage{Type: msgActivate, TabID: id}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(t, conn, func(m wsServerMessage) bool {
		return m.Type == "tab" && m.Event == string(workspace.EventActivated) && m.Active == id
	})
}

func TestWSUnsupportedAndInvalidMessages(t *testing.T) {
	env := newTestEnv(t, Config{})
	conn := dialWS(t, env, "/ws")
	readUntil(t, conn, func(m wsServerMessage) bool { return m.Type == "tabs" })

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readUntil(t, conn, func(m wsServerMessage) bool { return m.Type == "error" })
	if msg.Error != "INVALID_MESSAGE" {
		t.Fatalf("expected INVALID_MESSAGE, got %+v", msg)
	}

	if err := conn.WriteJSON(wsClientMessage{Type: "teleport"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg = readUntil(t, conn, func(m wsServerMessage) bool { return m.Type == "error" })
	if msg.Error != "UNSUPPORTED_MESSAGE" {
		t.Fatalf("expected UNSUPPORTED_MESSAGE, got %+v", msg)
	}
}
