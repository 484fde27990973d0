// Package tabs holds the ordered set of tabs, which one is active, and the
// per-tab title and notification state. A Model is not safe for concurrent
// use; the workspace serializes access to it.
package tabs

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/asheshgoplani/shelldeck/internal/logging"
	"github.com/asheshgoplani/shelldeck/internal/notify"
	"github.com/asheshgoplani/shelldeck/internal/session"
)

var tabLog = logging.ForComponent(logging.CompTabs)

var (
	ErrTabNotFound     = errors.New("tab not found")
	ErrBlankTitle      = errors.New("title must not be blank")
	ErrAlreadyBound    = errors.New("tab already bound to a session")
	ErrSessionInUse    = errors.New("session already bound to another tab")
	ErrSpawnInProgress = errors.New("tab shell is already starting")
)

// State is where a tab is in its lifecycle.
type State int

const (
	StateUnbound State = iota
	StateSpawning
	StateAlive
	StateExited
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateSpawning:
		return "spawning"
	case StateAlive:
		return "alive"
	case StateExited:
		return "exited"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Tab is one entry in the tab strip.
type Tab struct {
	ID           string
	Title        string
	SessionID    session.ID // zero while unbound
	Dir          string     // working directory hint
	ManualTitle  bool
	Alert        bool
	Confirmation bool
	Elevated     bool
	State        State
	ExitCode     int
	// Error is the last spawn failure, shown inline on the tab.
	Error string
}

// Bound reports whether the tab has ever been attached to a session.
func (t Tab) Bound() bool {
	return t.State == StateAlive || t.State == StateExited
}

// Flags returns the tab's notification flags.
func (t Tab) Flags() notify.Flags {
	return notify.Flags{Alert: t.Alert, Confirmation: t.Confirmation}
}

// NewID returns a fresh tab id.
func NewID() string {
	return uuid.NewString()
}

// Model is the ordered tab list. It is never empty.
type Model struct {
	tabs   []*Tab
	active string
	policy TitlePolicy
	newID  func() string
}

// New returns a model holding a single default tab.
func New(policy TitlePolicy) *Model {
	m := &Model{policy: policy, newID: NewID}
	m.tabs = []*Tab{m.defaultTab()}
	m.active = m.tabs[0].ID
	return m
}

func (m *Model) defaultTab() *Tab {
	return &Tab{ID: m.newID(), Title: DefaultTitle}
}

// Tabs returns a copy of all tabs in order.
func (m *Model) Tabs() []Tab {
	out := make([]Tab, len(m.tabs))
	for i, t := range m.tabs {
		out[i] = *t
	}
	return out
}

// Get returns a copy of the tab with id.
func (m *Model) Get(id string) (Tab, bool) {
	t := m.find(id)
	if t == nil {
		return Tab{}, false
	}
	return *t, true
}

// Len returns the number of tabs.
func (m *Model) Len() int { return len(m.tabs) }

// Active returns the active tab id.
func (m *Model) Active() string { return m.active }

// IsActive reports whether id is the active tab.
func (m *Model) IsActive(id string) bool { return m.active == id }

// BySession returns the tab bound to sid.
func (m *Model) BySession(sid session.ID) (Tab, bool) {
	if sid == 0 {
		return Tab{}, false
	}
	for _, t := range m.tabs {
		if t.SessionID == sid {
			return *t, true
		}
	}
	return Tab{}, false
}

// AddTab appends an unbound tab and makes it active.
func (m *Model) AddTab(dir string, elevated bool) Tab {
	t := &Tab{
		ID:       m.newID(),
		Title:    DirTitle(dir),
		Dir:      dir,
		Elevated: elevated,
	}
	m.tabs = append(m.tabs, t)
	m.active = t.ID
	tabLog.Debug("tab_added", slog.String("tab", t.ID), slog.String("dir", dir))
	return *t
}

// CloseResult describes what CloseTab did.
type CloseResult struct {
	// Closed is the removed tab; its SessionID, if any, must be killed.
	Closed Tab
	// Replacement is set when the last tab was closed and a default tab was
	// synthesized in its place.
	Replacement *Tab
}

// CloseTab removes id. Closing the active tab activates the last remaining
// tab; closing the only tab leaves a fresh default tab.
func (m *Model) CloseTab(id string) (CloseResult, error) {
	idx := m.index(id)
	if idx < 0 {
		return CloseResult{}, fmt.Errorf("close %s: %w", id, ErrTabNotFound)
	}
	closed := *m.tabs[idx]
	closed.State = StateClosed
	m.tabs = append(m.tabs[:idx], m.tabs[idx+1:]...)

	res := CloseResult{Closed: closed}
	if len(m.tabs) == 0 {
		t := m.defaultTab()
		m.tabs = []*Tab{t}
		m.active = t.ID
		replacement := *t
		res.Replacement = &replacement
	} else if m.active == id {
		m.active = m.tabs[len(m.tabs)-1].ID
	}
	tabLog.Debug("tab_closed", slog.String("tab", id), slog.String("active", m.active))
	return res, nil
}

// RenameTab sets a manual title, which shell titles never override.
func (m *Model) RenameTab(id, title string) error {
	t := m.find(id)
	if t == nil {
		return fmt.Errorf("rename %s: %w", id, ErrTabNotFound)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrBlankTitle
	}
	t.Title = title
	t.ManualTitle = true
	return nil
}

// ApplyDerivedTitle applies a shell-reported title unless the tab was
// renamed by hand. It reports whether the title changed.
func (m *Model) ApplyDerivedTitle(id, raw string) bool {
	t := m.find(id)
	if t == nil || t.ManualTitle {
		return false
	}
	title, changed := m.policy.Derive(t.Title, raw)
	if changed {
		t.Title = title
	}
	return changed
}

// SetNotification ORs kind onto the tab's flags. The active tab never
// collects flags. It reports whether anything changed.
func (m *Model) SetNotification(id string, kind notify.Kind) bool {
	t := m.find(id)
	if t == nil || id == m.active || kind == notify.None {
		return false
	}
	before := t.Flags()
	after := before.Merge(kind)
	t.Alert, t.Confirmation = after.Alert, after.Confirmation
	return after != before
}

// ClearNotifications resets both flags.
func (m *Model) ClearNotifications(id string) {
	if t := m.find(id); t != nil {
		t.Alert, t.Confirmation = false, false
	}
}

// Activate focuses id and clears its flags.
func (m *Model) Activate(id string) error {
	t := m.find(id)
	if t == nil {
		return fmt.Errorf("activate %s: %w", id, ErrTabNotFound)
	}
	m.active = id
	t.Alert, t.Confirmation = false, false
	return nil
}

// Next activates the tab after the active one, wrapping around.
func (m *Model) Next() string {
	return m.step(1)
}

// Prev activates the tab before the active one, wrapping around.
func (m *Model) Prev() string {
	return m.step(-1)
}

func (m *Model) step(delta int) string {
	idx := m.index(m.active)
	if idx < 0 {
		idx = 0
	}
	n := len(m.tabs)
	next := m.tabs[((idx+delta)%n+n)%n]
	_ = m.Activate(next.ID)
	return next.ID
}

// MarkSpawning records that a session is being created for id. Only one
// spawn may be in flight per tab.
func (m *Model) MarkSpawning(id string) error {
	t := m.find(id)
	if t == nil {
		return fmt.Errorf("spawn %s: %w", id, ErrTabNotFound)
	}
	switch t.State {
	case StateAlive:
		return fmt.Errorf("spawn %s: %w", id, ErrAlreadyBound)
	case StateSpawning:
		return fmt.Errorf("spawn %s: %w", id, ErrSpawnInProgress)
	}
	t.State = StateSpawning
	t.Error = ""
	return nil
}

// Bind attaches a live session to id.
func (m *Model) Bind(id string, sid session.ID) error {
	t := m.find(id)
	if t == nil {
		return fmt.Errorf("bind %s: %w", id, ErrTabNotFound)
	}
	if t.State == StateAlive {
		return fmt.Errorf("bind %s: %w", id, ErrAlreadyBound)
	}
	if other, ok := m.BySession(sid); ok && other.ID != id {
		return fmt.Errorf("bind %s to %d: %w", id, sid, ErrSessionInUse)
	}
	t.SessionID = sid
	t.State = StateAlive
	t.Error = ""
	return nil
}

// SpawnFailed returns id to unbound with err shown inline.
func (m *Model) SpawnFailed(id string, err error) {
	if t := m.find(id); t != nil {
		t.State = StateUnbound
		t.Error = err.Error()
	}
}

// MarkExited makes the tab bound to sid inert. It returns the tab id.
func (m *Model) MarkExited(sid session.ID, code int) (string, bool) {
	for _, t := range m.tabs {
		if t.SessionID == sid && t.State == StateAlive {
			t.State = StateExited
			t.ExitCode = code
			return t.ID, true
		}
	}
	return "", false
}

// Restore replaces the tab set with persisted tabs. Runtime state is
// reset: sessions are never restored, only recreated. An empty set yields
// the default tab.
func (m *Model) Restore(saved []Tab, active string) {
	m.tabs = m.tabs[:0]
	seen := make(map[string]bool, len(saved))
	for _, s := range saved {
		if s.ID == "" || seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		title := strings.TrimSpace(s.Title)
		if title == "" {
			title = DirTitle(s.Dir)
		}
		m.tabs = append(m.tabs, &Tab{
			ID:          s.ID,
			Title:       title,
			Dir:         s.Dir,
			ManualTitle: s.ManualTitle,
			Elevated:    s.Elevated,
		})
	}
	if len(m.tabs) == 0 {
		m.tabs = []*Tab{m.defaultTab()}
	}
	if m.index(active) < 0 {
		active = m.tabs[0].ID
	}
	m.active = active
}

func (m *Model) find(id string) *Tab {
	if i := m.index(id); i >= 0 {
		return m.tabs[i]
	}
	return nil
}

func (m *Model) index(id string) int {
	for i, t := range m.tabs {
		if t.ID == id {
			return i
		}
	}
	return -1
}
