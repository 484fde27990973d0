package workspace

import (
	"log/slog"

	"github.com/asheshgoplani/shelldeck/internal/notify"
	"github.com/asheshgoplani/shelldeck/internal/session"
	"github.com/asheshgoplani/shelldeck/internal/tabs"
)

// EventType names a workspace change.
type EventType string

const (
	EventCreated      EventType = "created"
	EventClosed       EventType = "closed"
	EventActivated    EventType = "activated"
	EventUpdated      EventType = "updated"
	EventNotification EventType = "notification"
	EventOutput       EventType = "output"
	EventExit         EventType = "exit"
	EventError        EventType = "error"
)

// Event is delivered to listeners. Tab is a snapshot taken when the event
// was produced.
type Event struct {
	Type  EventType
	TabID string
	Tab   *tabs.Tab
	// Data is set for EventOutput and must not be modified.
	Data []byte
	// Kind is set for EventNotification.
	Kind notify.Kind
	// Exit is set for EventExit.
	Exit *session.Exit
	// Err is set for EventError.
	Err string
}

func tabEvent(typ EventType, t tabs.Tab) Event {
	return Event{Type: typ, TabID: t.ID, Tab: &t}
}

// Subscribe registers fn for every event and returns a function that
// removes it. fn runs on the goroutine that caused the event and must not
// block.
func (w *Workspace) Subscribe(fn func(Event)) func() {
	w.lmu.Lock()
	w.nextListener++
	id := w.nextListener
	w.listeners[id] = fn
	w.lmu.Unlock()

	return func() {
		w.lmu.Lock()
		delete(w.listeners, id)
		w.lmu.Unlock()
	}
}

// Attach forwards the output of one tab to render until the returned
// function is called.
func (w *Workspace) Attach(tabID string, render func([]byte)) func() {
	return w.Subscribe(func(ev Event) {
		if ev.Type == EventOutput && ev.TabID == tabID {
			render(ev.Data)
		}
	})
}

func (w *Workspace) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	w.lmu.RLock()
	fns := make([]func(Event), 0, len(w.listeners))
	for _, fn := range w.listeners {
		fns = append(fns, fn)
	}
	w.lmu.RUnlock()

	for _, ev := range events {
		for _, fn := range fns {
			w.deliver(fn, ev)
		}
	}
}

func (w *Workspace) deliver(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			wsLog.Error("listener_panic",
				slog.String("event", string(ev.Type)),
				slog.String("tab", ev.TabID),
				slog.Any("panic", r))
		}
	}()
	fn(ev)
}
