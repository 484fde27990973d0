package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/asheshgoplani/shelldeck/internal/tabs"
	"github.com/asheshgoplani/shelldeck/internal/workspace"
)

// Client message types.
const (
	msgOpen     = "open"
	msgClose    = "close"
	msgActivate = "activate"
	msgRename   = "rename"
	msgInput    = "input"
	msgResize   = "resize"
	msgTitle    = "title"
	msgPing     = "ping"
	msgSnapshot = "snapshot"
)

type wsClientMessage struct {
	Type     string `json:"type"`
	TabID    string `json:"tabId,omitempty"`
	Data     string `json:"data,omitempty"`
	Cols     int    `json:"cols,omitempty"`
	Rows     int    `json:"rows,omitempty"`
	Dir      string `json:"dir,omitempty"`
	Elevated bool   `json:"elevated,omitempty"`
}

// wsServerMessage is sent as JSON. Data is raw terminal output and is
// base64 encoded by encoding/json.
type wsServerMessage struct {
	Type     string    `json:"type"` // output, exit, tab, tabs, error, status
	Event    string    `json:"event,omitempty"`
	TabID    string    `json:"tabId,omitempty"`
	Data     []byte    `json:"data,omitempty"`
	Tab      *tabView  `json:"tab,omitempty"`
	Tabs     []tabView `json:"tabs,omitempty"`
	Active   string    `json:"active,omitempty"`
	Code     *int      `json:"code,omitempty"`
	Killed   bool      `json:"killed,omitempty"`
	Kind     string    `json:"kind,omitempty"`
	Error    string    `json:"error,omitempty"`
	Message  string    `json:"message,omitempty"`
	ReadOnly bool      `json:"readOnly,omitempty"`
	Time     time.Time `json:"time,omitzero"`
}

type tabView struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Dir          string `json:"dir,omitempty"`
	State        string `json:"state"`
	ManualTitle  bool   `json:"manualTitle,omitempty"`
	Alert        bool   `json:"alert,omitempty"`
	Confirmation bool   `json:"confirmation,omitempty"`
	Elevated     bool   `json:"elevated,omitempty"`
	ExitCode     int    `json:"exitCode,omitempty"`
	Error        string `json:"error,omitempty"`
}

func viewOf(t tabs.Tab) tabView {
	return tabView{
		ID:           t.ID,
		Title:        t.Title,
		Dir:          t.Dir,
		State:        t.State.String(),
		ManualTitle:  t.ManualTitle,
		Alert:        t.Alert,
		Confirmation: t.Confirmation,
		Elevated:     t.Elevated,
		ExitCode:     t.ExitCode,
		Error:        t.Error,
	}
}

func snapshotMessage(snap workspace.Snapshot) wsServerMessage {
	views := make([]tabView, 0, len(snap.Tabs))
	for _, t := range snap.Tabs {
		views = append(views, viewOf(t))
	}
	return wsServerMessage{Type: "tabs", Tabs: views, Active: snap.Active}
}

// eventMessage translates a workspace event for the wire.
func eventMessage(ev workspace.Event) (wsServerMessage, bool) {
	switch ev.Type {
	case workspace.EventOutput:
		return wsServerMessage{Type: "output", TabID: ev.TabID, Data: ev.Data}, true
	case workspace.EventExit:
		msg := wsServerMessage{Type: "exit", TabID: ev.TabID}
		if ev.Exit != nil {
			code := ev.Exit.Code
			msg.Code = &code
			msg.Killed = ev.Exit.Killed
		}
		return msg, true
	case workspace.EventError:
		return wsServerMessage{Type: "error", TabID: ev.TabID, Error: "SPAWN_FAILED", Message: ev.Err}, true
	case workspace.EventClosed:
		return wsServerMessage{Type: "tab", Event: string(ev.Type), TabID: ev.TabID}, true
	case workspace.EventCreated, workspace.EventUpdated, workspace.EventActivated, workspace.EventNotification:
		msg := wsServerMessage{Type: "tab", Event: string(ev.Type), TabID: ev.TabID}
		if ev.Tab != nil {
			v := viewOf(*ev.Tab)
			msg.Tab = &v
		}
		if ev.Type == workspace.EventActivated {
			msg.Active = ev.TabID
		}
		if ev.Type == workspace.EventNotification {
			msg.Kind = ev.Kind.String()
		}
		return msg, true
	}
	return wsServerMessage{}, false
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{Error: apiError{Code: code, Message: message}})
}
