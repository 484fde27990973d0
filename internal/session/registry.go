// Package session owns live shell sessions: spawning them on a ptyhost,
// forwarding input and resizes, killing them, and routing their output and
// exit notifications to subscribers.
package session

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/asheshgoplani/shelldeck/internal/logging"
	"github.com/asheshgoplani/shelldeck/internal/ptyhost"
)

var sessionLog = logging.ForComponent(logging.CompSession)

// ID is the host's process identifier for a session.
type ID int

// Info is a read-only view of a live session.
type Info struct {
	ID        ID
	Command   string
	Dir       string
	Cols      int
	Rows      int
	Elevated  bool
	StartedAt time.Time
}

// CreateOptions are the per-session spawn parameters.
type CreateOptions struct {
	Cols     int
	Rows     int
	Dir      string
	Elevated bool
}

// Config fixes how shells are launched.
type Config struct {
	// Shell defaults to ptyhost.DefaultShell().
	Shell string
	Args  []string
	Env   []string
	// ElevatedCommand wraps the shell for elevated sessions, e.g.
	// ["sudo", "-E"]. Empty means elevation is ignored.
	ElevatedCommand []string
	// HomeDir is the fallback working directory; defaults to the user's
	// home directory.
	HomeDir string
	// BacklogBytes bounds unsubscribed output per session.
	BacklogBytes int
}

// Registry tracks live sessions by ID. A session is present from a
// successful Create until it is killed or its process exits.
type Registry struct {
	host   ptyhost.Host
	router *Router
	cfg    Config

	mu       sync.RWMutex
	sessions map[ID]*entry
}

type entry struct {
	proc   ptyhost.Process
	stream *stream
	info   Info
}

// NewRegistry returns an empty registry spawning on host.
func NewRegistry(host ptyhost.Host, cfg Config) *Registry {
	if cfg.Shell == "" {
		cfg.Shell = ptyhost.DefaultShell()
	}
	if cfg.HomeDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.HomeDir = home
		}
	}
	return &Registry{
		host:     host,
		router:   NewRouter(cfg.BacklogBytes),
		cfg:      cfg,
		sessions: make(map[ID]*entry),
	}
}

// Router returns the router carrying this registry's output.
func (r *Registry) Router() *Router {
	return r.router
}

// Create spawns a shell and registers it. Output starts flowing only after
// the session is registered, so nothing the shell prints early is lost.
func (r *Registry) Create(ctx context.Context, opts CreateOptions) (ID, error) {
	dir := opts.Dir
	if dir == "" {
		dir = r.cfg.HomeDir
	}

	command := r.cfg.Shell
	args := append([]string(nil), r.cfg.Args...)
	if opts.Elevated && len(r.cfg.ElevatedCommand) > 0 {
		args = append(append(append([]string(nil), r.cfg.ElevatedCommand[1:]...), command), args...)
		command = r.cfg.ElevatedCommand[0]
	}

	cols, rows := opts.Cols, opts.Rows
	if cols <= 0 {
		cols = ptyhost.DefaultCols
	}
	if rows <= 0 {
		rows = ptyhost.DefaultRows
	}

	proc, err := r.host.Spawn(ctx, ptyhost.SpawnOptions{
		Command: command,
		Args:    args,
		Dir:     dir,
		Env:     r.cfg.Env,
		Cols:    cols,
		Rows:    rows,
	})
	if err != nil {
		sessionLog.Error("spawn_failed",
			slog.String("command", command),
			slog.String("dir", dir),
			slog.String("error", err.Error()))
		return 0, &SpawnError{Command: command, Dir: dir, Err: err}
	}

	id := ID(proc.PID())
	e := &entry{
		proc: proc,
		info: Info{
			ID:        id,
			Command:   command,
			Dir:       dir,
			Cols:      cols,
			Rows:      rows,
			Elevated:  opts.Elevated,
			StartedAt: time.Now(),
		},
	}

	r.mu.Lock()
	if _, stale := r.sessions[id]; stale {
		sessionLog.Warn("session_id_reused", slog.Int("session", int(id)))
	}
	e.stream = r.router.open(id)
	r.sessions[id] = e
	r.mu.Unlock()

	proc.Stream(ptyhost.Handler{
		OnData: func(data []byte) { r.handleData(e, data) },
		OnExit: func(code int) { r.handleExit(e, code) },
	})

	sessionLog.Info("session_created",
		slog.Int("session", int(id)),
		slog.String("command", command),
		slog.String("dir", dir),
		slog.Bool("elevated", opts.Elevated))
	return id, nil
}

// Write forwards input to a live session. Unknown or dead ids are ignored.
func (r *Registry) Write(id ID, data []byte) {
	e, ok := r.lookup(id)
	if !ok {
		logging.Aggregate(logging.CompSession, "write_dropped", slog.Int("session", int(id)))
		return
	}
	if err := e.proc.Write(data); err != nil {
		// Usually a race with exit; the exit notification follows.
		sessionLog.Debug("write_failed", slog.Int("session", int(id)), slog.String("error", err.Error()))
	}
}

// Resize changes a live session's geometry. Failures are logged only.
func (r *Registry) Resize(id ID, cols, rows int) {
	e, ok := r.lookup(id)
	if !ok {
		return
	}
	if err := e.proc.Resize(cols, rows); err != nil {
		sessionLog.Warn("resize_failed",
			slog.Int("session", int(id)),
			slog.Int("cols", cols),
			slog.Int("rows", rows),
			slog.String("error", err.Error()))
		return
	}
	r.mu.Lock()
	if r.sessions[id] == e {
		e.info.Cols, e.info.Rows = cols, rows
	}
	r.mu.Unlock()
}

// Kill terminates a session and removes it. Subscribers get one exit
// notification with Killed set; a second Kill and the process's own exit
// report are no-ops.
func (r *Registry) Kill(id ID) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	if err := e.proc.Kill(); err != nil {
		sessionLog.Warn("kill_failed", slog.Int("session", int(id)), slog.String("error", err.Error()))
	}
	e.stream.publishExit(Exit{Code: -1, Killed: true})
	sessionLog.Info("session_killed", slog.Int("session", int(id)))
}

// Get returns the live session with id.
func (r *Registry) Get(id ID) (Info, bool) {
	e, ok := r.lookup(id)
	if !ok {
		return Info{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return e.info, true
}

// Alive reports whether id is a live session.
func (r *Registry) Alive(id ID) bool {
	_, ok := r.lookup(id)
	return ok
}

// List returns live sessions, oldest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.info)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown kills every live session.
func (r *Registry) Shutdown() {
	for _, info := range r.List() {
		r.Kill(info.ID)
	}
}

func (r *Registry) lookup(id ID) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	return e, ok
}

// current reports whether e is still the registered session for its id.
func (r *Registry) current(e *entry) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[e.info.ID] == e
}

func (r *Registry) handleData(e *entry, data []byte) {
	// Output still draining after Kill belongs to nobody.
	if !r.current(e) {
		return
	}
	e.stream.publish(data)
}

func (r *Registry) handleExit(e *entry, code int) {
	r.mu.Lock()
	if r.sessions[e.info.ID] != e {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, e.info.ID)
	r.mu.Unlock()

	sessionLog.Info("session_exited", slog.Int("session", int(e.info.ID)), slog.Int("code", code))
	e.stream.publishExit(Exit{Code: code})
}
