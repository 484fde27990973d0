package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/asheshgoplani/shelldeck/internal/statedb"
)

// ErrNotFound is returned for paths that are not registered.
var ErrNotFound = errors.New("project not found")

// Store persists projects.
type Store interface {
	AddProject(p statedb.ProjectRow) (bool, error)
	RemoveProject(path string) error
	SetProjectType(path, typ string) error
	LoadProjects() ([]statedb.ProjectRow, error)
}

// Project is a registered directory.
type Project struct {
	Name string
	Path string
	// Type is empty until resolved.
	Type Type
}

// Registry is the ordered set of projects, unique by path.
type Registry struct {
	store    Store
	detector *Detector

	mu       sync.RWMutex
	projects []Project
}

// NewRegistry loads projects from store.
func NewRegistry(store Store, detector *Detector) (*Registry, error) {
	if detector == nil {
		detector = NewDetector()
	}
	rows, err := store.LoadProjects()
	if err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}
	r := &Registry{store: store, detector: detector}
	for _, row := range rows {
		r.projects = append(r.projects, Project{Name: row.Name, Path: row.Path, Type: Type(row.Type)})
	}
	return r, nil
}

// Name derives a project name from its path.
func Name(path string) string {
	p := strings.TrimRight(path, `/\`)
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		p = p[i+1:]
	}
	if p == "" {
		return path
	}
	return p
}

// Add registers path. It reports false, without error, when the path is
// already registered.
func (r *Registry) Add(path string) (Project, bool, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Project{}, false, errors.New("project path is required")
	}
	if !strings.Contains(path, `\`) {
		path = filepath.Clean(path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.projects {
		if p.Path == path {
			return p, false, nil
		}
	}

	p := Project{Name: Name(path), Path: path}
	added, err := r.store.AddProject(statedb.ProjectRow{Path: p.Path, Name: p.Name})
	if err != nil {
		return Project{}, false, fmt.Errorf("add project %s: %w", path, err)
	}
	if !added {
		// Another process added it first; keep our view consistent.
		projectLog.Debug("project_already_stored", slog.String("path", path))
	}
	r.projects = append(r.projects, p)
	projectLog.Info("project_added", slog.String("path", path), slog.String("name", p.Name))
	return p, true, nil
}

// Remove unregisters path.
func (r *Registry) Remove(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := -1
	for i, p := range r.projects {
		if p.Path == path {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("remove %s: %w", path, ErrNotFound)
	}
	if err := r.store.RemoveProject(path); err != nil && !errors.Is(err, statedb.ErrProjectNotFound) {
		return fmt.Errorf("remove project %s: %w", path, err)
	}
	r.projects = append(r.projects[:idx], r.projects[idx+1:]...)
	r.detector.Invalidate(path)
	return nil
}

// List returns a copy of the projects in order.
func (r *Registry) List() []Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Project, len(r.projects))
	copy(out, r.projects)
	return out
}

// Get returns the project at path.
func (r *Registry) Get(path string) (Project, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.projects {
		if p.Path == path {
			return p, true
		}
	}
	return Project{}, false
}

// Resolve returns the project's type, detecting and storing it on first use.
func (r *Registry) Resolve(path string) (Type, error) {
	p, ok := r.Get(path)
	if !ok {
		return "", fmt.Errorf("resolve %s: %w", path, ErrNotFound)
	}
	if p.Type != "" {
		return p.Type, nil
	}

	t := r.detector.Type(path)
	r.mu.Lock()
	for i := range r.projects {
		if r.projects[i].Path == path {
			r.projects[i].Type = t
		}
	}
	r.mu.Unlock()

	if err := r.store.SetProjectType(path, string(t)); err != nil && !errors.Is(err, statedb.ErrProjectNotFound) {
		return t, fmt.Errorf("store type for %s: %w", path, err)
	}
	return t, nil
}

// ResolveAll resolves every project without a type, a few at a time.
func (r *Registry) ResolveAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, p := range r.List() {
		if p.Type != "" {
			continue
		}
		path := p.Path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := r.Resolve(path)
			return err
		})
	}
	return g.Wait()
}

// Invalidate forgets the type of path so the next Resolve detects again.
func (r *Registry) Invalidate(path string) {
	r.detector.Invalidate(path)
	r.mu.Lock()
	for i := range r.projects {
		if r.projects[i].Path == path {
			r.projects[i].Type = ""
		}
	}
	r.mu.Unlock()
}
