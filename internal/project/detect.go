// Package project tracks project directories, detects what kind of project
// each one is from marker files, and watches markers for changes.
package project

import (
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/asheshgoplani/shelldeck/internal/logging"
)

var projectLog = logging.ForComponent(logging.CompProject)

// Type is a detected project kind.
type Type string

const (
	TypeReact  Type = "react"
	TypePython Type = "python"
	TypeRust   Type = "rust"
	TypeGo     Type = "go"
	TypeGit    Type = "git"
	TypeFolder Type = "folder"
)

// markers are checked in order; the first hit wins.
var markers = []struct {
	names []string
	typ   Type
}{
	{[]string{"package.json"}, TypeReact},
	{[]string{"requirements.txt", "main.py"}, TypePython},
	{[]string{"Cargo.toml"}, TypeRust},
	{[]string{"go.mod"}, TypeGo},
	{[]string{".git"}, TypeGit},
}

// IsMarker reports whether a file name influences detection.
func IsMarker(name string) bool {
	for _, m := range markers {
		for _, n := range m.names {
			if n == name {
				return true
			}
		}
	}
	return false
}

// Detect classifies dir by its marker files. Unreadable directories are
// plain folders.
func Detect(dir string) Type {
	entries, err := os.ReadDir(dir)
	if err != nil {
		projectLog.Debug("detect_failed", slog.String("dir", dir), slog.String("error", err.Error()))
		return TypeFolder
	}
	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		present[e.Name()] = true
	}
	for _, m := range markers {
		for _, n := range m.names {
			if present[n] {
				return m.typ
			}
		}
	}
	return TypeFolder
}

// Detector caches detection results. Concurrent lookups of the same
// directory share one scan.
type Detector struct {
	detect func(string) Type
	group  singleflight.Group

	mu    sync.RWMutex
	cache map[string]Type
}

// NewDetector returns an empty cache over Detect.
func NewDetector() *Detector {
	return &Detector{detect: Detect, cache: make(map[string]Type)}
}

// Type returns the cached or freshly detected type of dir.
func (d *Detector) Type(dir string) Type {
	d.mu.RLock()
	t, ok := d.cache[dir]
	d.mu.RUnlock()
	if ok {
		return t
	}

	v, _, _ := d.group.Do(dir, func() (any, error) {
		t := d.detect(dir)
		d.mu.Lock()
		d.cache[dir] = t
		d.mu.Unlock()
		return t, nil
	})
	return v.(Type)
}

// Invalidate drops the cached type for dir.
func (d *Detector) Invalidate(dir string) {
	d.mu.Lock()
	delete(d.cache, dir)
	d.mu.Unlock()
	d.group.Forget(dir)
}
