// Package workspace ties sessions to tabs. It owns the tab model, spawns and
// kills sessions as tabs come and go, routes session output to listeners,
// classifies background output and persists the tab set.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/asheshgoplani/shelldeck/internal/logging"
	"github.com/asheshgoplani/shelldeck/internal/notify"
	"github.com/asheshgoplani/shelldeck/internal/project"
	"github.com/asheshgoplani/shelldeck/internal/session"
	"github.com/asheshgoplani/shelldeck/internal/statedb"
	"github.com/asheshgoplani/shelldeck/internal/tabs"
)

var wsLog = logging.ForComponent(logging.CompWorkspace)

// ExitMarker is appended to a tab's output when its shell exits on its own.
const ExitMarker = "\r\n\x1b[31mProcess exited.\x1b[0m\r\n"

// ErrTabClosed is returned by OpenTab when the tab was closed while its
// shell was starting. The new shell has already been killed.
var ErrTabClosed = errors.New("tab closed during spawn")

// Store persists the tab set and layout preferences.
type Store interface {
	SaveTabs(tabs []statedb.TabRow) error
	LoadTabs() ([]statedb.TabRow, error)
	GetPreference(key string) (string, error)
	SetPreference(key, value string) error
}

// ProjectLister supplies projects to Search.
type ProjectLister interface {
	List() []project.Project
}

// Options configures a Workspace.
type Options struct {
	Registry   *session.Registry
	Classifier *notify.Classifier
	Policy     tabs.TitlePolicy
	// Store is optional; without it nothing is persisted.
	Store Store
	// Projects is optional and only feeds Search.
	Projects ProjectLister
	// Cols and Rows are the default geometry for new sessions.
	Cols int
	Rows int
}

// OpenOptions describe a new tab.
type OpenOptions struct {
	Dir      string
	Elevated bool
	Cols     int
	Rows     int
}

// Snapshot is a consistent copy of the tab strip.
type Snapshot struct {
	Tabs   []tabs.Tab
	Active string
}

// Workspace serializes every tab mutation behind one mutex. Session output
// arrives on per-session delivery goroutines and is applied under the same
// mutex; listeners are called after it is released.
type Workspace struct {
	reg        *session.Registry
	classifier *notify.Classifier
	store      Store
	projects   ProjectLister
	cols, rows int

	mu       sync.Mutex
	model    *tabs.Model
	unsubs   map[string]func()
	scanners map[string]*tabs.TitleScanner
	closed   bool

	lmu          sync.RWMutex
	listeners    map[int]func(Event)
	nextListener int
}

// New returns a workspace holding one default tab with no session yet.
// Call Restore to load persisted tabs and start their shells.
func New(opts Options) *Workspace {
	classifier := opts.Classifier
	if classifier == nil {
		classifier = notify.NewClassifier(nil)
	}
	return &Workspace{
		reg:        opts.Registry,
		classifier: classifier,
		store:      opts.Store,
		projects:   opts.Projects,
		cols:       opts.Cols,
		rows:       opts.Rows,
		model:      tabs.New(opts.Policy),
		unsubs:     make(map[string]func()),
		scanners:   make(map[string]*tabs.TitleScanner),
		listeners:  make(map[int]func(Event)),
	}
}

// Registry returns the session registry behind the workspace.
func (w *Workspace) Registry() *session.Registry {
	return w.reg
}

// Restore replaces the tab set with the persisted one and starts a fresh
// shell for every tab in its remembered directory. Spawn failures leave
// the affected tabs showing the error; they are joined into the result.
func (w *Workspace) Restore(ctx context.Context) error {
	if w.store != nil {
		rows, err := w.store.LoadTabs()
		if err != nil {
			return fmt.Errorf("load tabs: %w", err)
		}
		active, err := w.store.GetPreference(statedb.PrefActiveTab)
		if err != nil {
			return fmt.Errorf("load active tab: %w", err)
		}
		saved := make([]tabs.Tab, 0, len(rows))
		for _, r := range rows {
			saved = append(saved, tabs.Tab{
				ID:          r.ID,
				Title:       r.Title,
				Dir:         r.Dir,
				ManualTitle: r.ManualTitle,
				Elevated:    r.Elevated,
			})
		}
		w.mu.Lock()
		w.model.Restore(saved, active)
		w.mu.Unlock()
	}

	w.mu.Lock()
	var pending []tabs.Tab
	for _, t := range w.model.Tabs() {
		if t.State == tabs.StateUnbound && w.model.MarkSpawning(t.ID) == nil {
			t.State = tabs.StateSpawning
			pending = append(pending, t)
		}
	}
	w.mu.Unlock()

	var errs []error
	for _, t := range pending {
		w.emit(tabEvent(EventCreated, t))
		if err := w.spawn(ctx, t.ID, t.Dir, t.Elevated, 0, 0); err != nil && !errors.Is(err, ErrTabClosed) {
			errs = append(errs, fmt.Errorf("tab %s: %w", t.ID, err))
		}
	}
	wsLog.Info("workspace_restored", slog.Int("tabs", len(pending)), slog.Int("failed", len(errs)))
	return errors.Join(errs...)
}

// OpenTab appends a tab, makes it active and starts its shell. On a spawn
// failure the tab stays, carrying the error, and the error is returned.
func (w *Workspace) OpenTab(ctx context.Context, opts OpenOptions) (string, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return "", errors.New("workspace is shut down")
	}
	t := w.model.AddTab(opts.Dir, opts.Elevated)
	_ = w.model.MarkSpawning(t.ID)
	t, _ = w.model.Get(t.ID)
	w.mu.Unlock()

	w.emit(tabEvent(EventCreated, t), tabEvent(EventActivated, t))
	w.save()
	return t.ID, w.spawn(ctx, t.ID, opts.Dir, opts.Elevated, opts.Cols, opts.Rows)
}

// Respawn starts a new shell for a tab whose shell exited or never started.
func (w *Workspace) Respawn(ctx context.Context, tabID string) error {
	w.mu.Lock()
	t, ok := w.model.Get(tabID)
	if !ok {
		w.mu.Unlock()
		return fmt.Errorf("respawn %s: %w", tabID, tabs.ErrTabNotFound)
	}
	if err := w.model.MarkSpawning(tabID); err != nil {
		w.mu.Unlock()
		return err
	}
	w.scanners[tabID] = &tabs.TitleScanner{}
	t, _ = w.model.Get(tabID)
	w.mu.Unlock()

	w.emit(tabEvent(EventUpdated, t))
	return w.spawn(ctx, tabID, t.Dir, t.Elevated, 0, 0)
}

// spawn creates a session for a tab already marked spawning. No lock is
// held across Create, so the tab may be closed meanwhile; the new session
// is then killed straight away.
func (w *Workspace) spawn(ctx context.Context, tabID, dir string, elevated bool, cols, rows int) error {
	if cols <= 0 {
		cols = w.cols
	}
	if rows <= 0 {
		rows = w.rows
	}
	sid, err := w.reg.Create(ctx, session.CreateOptions{Cols: cols, Rows: rows, Dir: dir, Elevated: elevated})
	if err != nil {
		w.mu.Lock()
		_, ok := w.model.Get(tabID)
		if ok {
			w.model.SpawnFailed(tabID, err)
		}
		t, _ := w.model.Get(tabID)
		w.mu.Unlock()
		if ok {
			w.emit(Event{Type: EventError, TabID: tabID, Tab: &t, Err: err.Error()}, tabEvent(EventUpdated, t))
		}
		return err
	}

	w.mu.Lock()
	t, ok := w.model.Get(tabID)
	if !ok || t.State != tabs.StateSpawning || w.closed {
		w.mu.Unlock()
		w.reg.Kill(sid)
		wsLog.Info("spawn_raced_close", slog.String("tab", tabID), slog.Int("session", int(sid)))
		return ErrTabClosed
	}
	if err := w.model.Bind(tabID, sid); err != nil {
		w.mu.Unlock()
		w.reg.Kill(sid)
		return err
	}
	w.scanners[tabID] = &tabs.TitleScanner{}
	t, _ = w.model.Get(tabID)
	w.mu.Unlock()

	// Subscribing replays early output through handleOutput, which takes
	// w.mu, so it must happen unlocked.
	unsub, err := w.reg.Router().Subscribe(sid,
		func(data []byte) { w.handleOutput(tabID, sid, data) },
		func(e session.Exit) { w.handleExit(tabID, sid, e) })
	if err != nil {
		// The session died and was reaped before anyone listened.
		w.handleExit(tabID, sid, session.Exit{Code: -1})
		return nil
	}

	w.mu.Lock()
	current, ok := w.model.Get(tabID)
	if ok && current.SessionID == sid && current.State == tabs.StateAlive {
		w.unsubs[tabID] = unsub
		unsub = nil
	}
	w.mu.Unlock()
	if unsub != nil {
		unsub()
	}

	wsLog.Info("tab_bound", slog.String("tab", tabID), slog.Int("session", int(sid)))
	w.emit(tabEvent(EventUpdated, t))
	return nil
}

func (w *Workspace) handleOutput(tabID string, sid session.ID, data []byte) {
	w.mu.Lock()
	t, ok := w.model.Get(tabID)
	if !ok || t.SessionID != sid {
		w.mu.Unlock()
		return
	}

	titleChanged := false
	if sc := w.scanners[tabID]; sc != nil {
		for _, title := range sc.Scan(data) {
			if w.model.ApplyDerivedTitle(tabID, title) {
				titleChanged = true
			}
		}
	}
	kind := w.classifier.Classify(data, w.model.IsActive(tabID))
	flagged := w.model.SetNotification(tabID, kind)
	t, _ = w.model.Get(tabID)
	w.mu.Unlock()

	events := []Event{{Type: EventOutput, TabID: tabID, Data: data}}
	if flagged {
		wsLog.Debug("tab_flagged", slog.String("tab", tabID), slog.String("kind", kind.String()), slog.Any("flags", t.Flags()))
		events = append(events, Event{Type: EventNotification, TabID: tabID, Tab: &t, Kind: kind})
	}
	if titleChanged || flagged {
		events = append(events, tabEvent(EventUpdated, t))
	}
	w.emit(events...)
}

func (w *Workspace) handleExit(tabID string, sid session.ID, e session.Exit) {
	w.mu.Lock()
	if cur, ok := w.model.Get(tabID); ok && cur.SessionID == sid {
		delete(w.unsubs, tabID)
		delete(w.scanners, tabID)
	}
	if e.Killed {
		// Only the workspace kills, and only for tabs it is discarding.
		w.mu.Unlock()
		return
	}
	_, ok := w.model.MarkExited(sid, e.Code)
	t, _ := w.model.Get(tabID)
	w.mu.Unlock()
	if !ok {
		return
	}

	wsLog.Info("tab_exited", slog.String("tab", tabID), slog.Int("session", int(sid)), slog.Int("code", e.Code))
	exit := e
	w.emit(
		Event{Type: EventOutput, TabID: tabID, Data: []byte(ExitMarker)},
		Event{Type: EventExit, TabID: tabID, Tab: &t, Exit: &exit},
		tabEvent(EventUpdated, t),
	)
}

// CloseTab removes a tab and kills its shell. Closing the last tab leaves
// a fresh default tab, whose shell is started with ctx.
func (w *Workspace) CloseTab(ctx context.Context, tabID string) error {
	w.mu.Lock()
	res, err := w.model.CloseTab(tabID)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	unsub := w.unsubs[tabID]
	delete(w.unsubs, tabID)
	delete(w.scanners, tabID)
	active, _ := w.model.Get(w.model.Active())
	if res.Replacement != nil {
		_ = w.model.MarkSpawning(res.Replacement.ID)
		active, _ = w.model.Get(res.Replacement.ID)
	}
	w.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if res.Closed.SessionID != 0 {
		w.reg.Kill(res.Closed.SessionID)
	}
	wsLog.Info("tab_closed", slog.String("tab", tabID), slog.Int("session", int(res.Closed.SessionID)))

	events := []Event{tabEvent(EventClosed, res.Closed)}
	if res.Replacement != nil {
		events = append(events, tabEvent(EventCreated, active))
	}
	events = append(events, tabEvent(EventActivated, active))
	w.emit(events...)
	w.save()

	if res.Replacement != nil {
		if err := w.spawn(ctx, active.ID, "", false, 0, 0); err != nil && !errors.Is(err, ErrTabClosed) {
			return fmt.Errorf("start default tab: %w", err)
		}
	}
	return nil
}

// Activate focuses a tab and clears its notification flags.
func (w *Workspace) Activate(tabID string) error {
	w.mu.Lock()
	if err := w.model.Activate(tabID); err != nil {
		w.mu.Unlock()
		return err
	}
	t, _ := w.model.Get(tabID)
	w.mu.Unlock()

	w.emit(tabEvent(EventActivated, t))
	w.saveActive(tabID)
	return nil
}

// Next activates the following tab, wrapping around.
func (w *Workspace) Next() string {
	return w.cycle((*tabs.Model).Next)
}

// Prev activates the preceding tab, wrapping around.
func (w *Workspace) Prev() string {
	return w.cycle((*tabs.Model).Prev)
}

func (w *Workspace) cycle(step func(*tabs.Model) string) string {
	w.mu.Lock()
	id := step(w.model)
	t, _ := w.model.Get(id)
	w.mu.Unlock()

	w.emit(tabEvent(EventActivated, t))
	w.saveActive(id)
	return id
}

// Rename sets a manual title.
func (w *Workspace) Rename(tabID, title string) error {
	w.mu.Lock()
	if err := w.model.RenameTab(tabID, title); err != nil {
		w.mu.Unlock()
		return err
	}
	t, _ := w.model.Get(tabID)
	w.mu.Unlock()

	w.emit(tabEvent(EventUpdated, t))
	w.save()
	return nil
}

// ApplyTitle feeds a title reported by the client's emulator.
func (w *Workspace) ApplyTitle(tabID, raw string) bool {
	w.mu.Lock()
	changed := w.model.ApplyDerivedTitle(tabID, raw)
	t, _ := w.model.Get(tabID)
	w.mu.Unlock()

	if changed {
		w.emit(tabEvent(EventUpdated, t))
	}
	return changed
}

// Input forwards keystrokes to a tab's shell. Tabs without a live shell
// drop input.
func (w *Workspace) Input(tabID string, data []byte) error {
	sid, err := w.liveSession(tabID)
	if err != nil || sid == 0 {
		return err
	}
	w.reg.Write(sid, data)
	return nil
}

// Resize changes a tab's shell geometry.
func (w *Workspace) Resize(tabID string, cols, rows int) error {
	sid, err := w.liveSession(tabID)
	if err != nil || sid == 0 {
		return err
	}
	w.reg.Resize(sid, cols, rows)
	return nil
}

func (w *Workspace) liveSession(tabID string) (session.ID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.model.Get(tabID)
	if !ok {
		return 0, fmt.Errorf("tab %s: %w", tabID, tabs.ErrTabNotFound)
	}
	if t.State != tabs.StateAlive {
		return 0, nil
	}
	return t.SessionID, nil
}

// Snapshot returns the current tabs and active id.
func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{Tabs: w.model.Tabs(), Active: w.model.Active()}
}

// Tab returns one tab.
func (w *Workspace) Tab(tabID string) (tabs.Tab, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.model.Get(tabID)
}

// Save persists the tab set and active tab.
func (w *Workspace) Save() error {
	if w.store == nil {
		return nil
	}
	w.mu.Lock()
	all := w.model.Tabs()
	active := w.model.Active()
	w.mu.Unlock()

	rows := make([]statedb.TabRow, 0, len(all))
	for _, t := range all {
		rows = append(rows, statedb.TabRow{
			ID:          t.ID,
			Title:       t.Title,
			Dir:         t.Dir,
			ManualTitle: t.ManualTitle,
			Elevated:    t.Elevated,
		})
	}
	if err := w.store.SaveTabs(rows); err != nil {
		return fmt.Errorf("save tabs: %w", err)
	}
	if err := w.store.SetPreference(statedb.PrefActiveTab, active); err != nil {
		return fmt.Errorf("save active tab: %w", err)
	}
	return nil
}

func (w *Workspace) save() {
	if err := w.Save(); err != nil {
		wsLog.Warn("save_failed", slog.String("error", err.Error()))
	}
}

func (w *Workspace) saveActive(tabID string) {
	if w.store == nil {
		return
	}
	if err := w.store.SetPreference(statedb.PrefActiveTab, tabID); err != nil {
		wsLog.Warn("save_active_failed", slog.String("error", err.Error()))
	}
}

// Shutdown saves the workspace, stops routing and kills every shell.
// Later OpenTab calls fail.
func (w *Workspace) Shutdown() error {
	err := w.Save()

	w.mu.Lock()
	w.closed = true
	unsubs := w.unsubs
	w.unsubs = make(map[string]func())
	w.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	w.reg.Shutdown()
	return err
}
