package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/asheshgoplani/shelldeck/internal/logging"
	"github.com/asheshgoplani/shelldeck/internal/tabs"
	"github.com/asheshgoplani/shelldeck/internal/workspace"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsOutboxSize   = 1024
	wsMaxMessage   = 1 << 20
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     allowWSOrigin,
}

// allowWSOrigin accepts same-host origins and non-browser clients.
func allowWSOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}

// wsClient owns the write side of one connection. Messages are queued and
// written by a single goroutine so per-tab order survives concurrent
// producers. A client that falls a full outbox behind is disconnected.
type wsClient struct {
	conn   *websocket.Conn
	out    chan wsServerMessage
	done   chan struct{}
	closed sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn: conn,
		out:  make(chan wsServerMessage, wsOutboxSize),
		done: make(chan struct{}),
	}
}

func (c *wsClient) send(msg wsServerMessage) {
	select {
	case <-c.done:
	case c.out <- msg:
	default:
		logging.Aggregate(logging.CompWeb, "ws_client_too_slow")
		c.close()
	}
}

func (c *wsClient) close() {
	c.closed.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *wsClient) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				webLog.Debug("ws_write_failed", slog.String("error", err.Error()))
				c.close()
				return
			}
		}
	}
}

func (c *wsClient) fail(tabID, code, message string) {
	c.send(wsServerMessage{Type: "error", TabID: tabID, Error: code, Message: message, Time: time.Now().UTC()})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(wsMaxMessage)

	c := newWSClient(conn)
	defer c.close()
	go c.writeLoop()

	s.metrics.WSConnections.Inc()
	defer s.metrics.WSConnections.Dec()

	unsub := s.ws.Subscribe(func(ev workspace.Event) {
		if msg, ok := eventMessage(ev); ok {
			c.send(msg)
		}
	})
	defer unsub()

	c.send(wsServerMessage{Type: "status", Event: "connected", ReadOnly: s.cfg.ReadOnly, Time: time.Now().UTC()})
	c.send(snapshotMessage(s.ws.Snapshot()))

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				webLog.Warn("websocket_closed_unexpectedly", slog.String("error", err.Error()))
			}
			return
		}

		var msg wsClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.fail("", "INVALID_MESSAGE", "invalid json payload")
			continue
		}
		s.metrics.WSMessages.WithLabelValues(metricLabel(msg.Type)).Inc()
		s.dispatch(c, msg)
	}
}

func (s *Server) dispatch(c *wsClient, msg wsClientMessage) {
	if s.cfg.ReadOnly && mutates(msg.Type) {
		c.fail(msg.TabID, "READ_ONLY", "this server is read-only")
		return
	}

	var err error
	switch msg.Type {
	case msgPing:
		c.send(wsServerMessage{Type: "status", Event: "pong", Time: time.Now().UTC()})
	case msgSnapshot:
		c.send(snapshotMessage(s.ws.Snapshot()))
	case msgOpen:
		// Spawn failures already reach every client as an error event.
		_, err = s.ws.OpenTab(s.baseCtx, workspace.OpenOptions{
			Dir:      msg.Dir,
			Elevated: msg.Elevated,
			Cols:     msg.Cols,
			Rows:     msg.Rows,
		})
		if err != nil {
			webLog.Debug("ws_open_failed", slog.String("error", err.Error()))
			err = nil
		}
	case msgClose:
		err = s.ws.CloseTab(s.baseCtx, msg.TabID)
	case msgActivate:
		err = s.ws.Activate(msg.TabID)
	case msgRename:
		err = s.ws.Rename(msg.TabID, msg.Data)
	case msgInput:
		err = s.ws.Input(msg.TabID, []byte(msg.Data))
	case msgResize:
		if msg.Cols <= 0 || msg.Rows <= 0 {
			c.fail(msg.TabID, "INVALID_REQUEST", "cols and rows must be positive")
			return
		}
		err = s.ws.Resize(msg.TabID, msg.Cols, msg.Rows)
	case msgTitle:
		s.ws.ApplyTitle(msg.TabID, msg.Data)
	default:
		c.fail(msg.TabID, "UNSUPPORTED_MESSAGE", "unsupported message type "+msg.Type)
		return
	}
	if err != nil {
		c.fail(msg.TabID, errorCode(err), err.Error())
	}
}

func mutates(typ string) bool {
	switch typ {
	case msgOpen, msgClose, msgRename, msgInput, msgResize, msgTitle:
		return true
	}
	return false
}

func errorCode(err error) string {
	if errors.Is(err, tabs.ErrTabNotFound) {
		return "TAB_NOT_FOUND"
	}
	return "REQUEST_FAILED"
}

// metricLabel bounds the label set to known message types.
func metricLabel(typ string) string {
	switch typ {
	case msgOpen, msgClose, msgActivate, msgRename, msgInput, msgResize, msgTitle, msgPing, msgSnapshot:
		return typ
	}
	return "unknown"
}
