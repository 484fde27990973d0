package workspace

import (
	"github.com/sahilm/fuzzy"

	"github.com/asheshgoplani/shelldeck/internal/notify"
	"github.com/asheshgoplani/shelldeck/internal/project"
	"github.com/asheshgoplani/shelldeck/internal/tabs"
)

// ResultKind says what a search result points at.
type ResultKind string

const (
	ResultTab     ResultKind = "tab"
	ResultProject ResultKind = "project"
)

// Result is one quick-switcher candidate.
type Result struct {
	Kind  ResultKind
	Label string
	// TabID and Flags are set for tabs, Path for projects.
	TabID string
	Flags notify.Flags
	Path  string
	// Matched holds byte offsets of the matched characters in Label.
	Matched []int
	Score   int
}

type candidates []Result

func (c candidates) String(i int) string { return c[i].Label }
func (c candidates) Len() int            { return len(c) }

// Search fuzzy-matches query against tab titles and project names. Tabs
// come first for an empty query, in strip order, followed by projects.
func (w *Workspace) Search(query string) []Result {
	snap := w.Snapshot()
	var projects []project.Project
	if w.projects != nil {
		projects = w.projects.List()
	}
	return Match(query, snap.Tabs, projects)
}

// Match ranks tabs and projects against query without a live workspace.
func Match(query string, ts []tabs.Tab, projects []project.Project) []Result {
	all := make(candidates, 0, len(ts)+len(projects))
	for _, t := range ts {
		all = append(all, Result{Kind: ResultTab, Label: t.Title, TabID: t.ID, Flags: t.Flags()})
	}
	for _, p := range projects {
		all = append(all, Result{Kind: ResultProject, Label: p.Name, Path: p.Path})
	}
	if query == "" {
		return all
	}

	matches := fuzzy.FindFrom(query, all)
	out := make([]Result, 0, len(matches))
	for _, m := range matches {
		r := all[m.Index]
		r.Matched = m.MatchedIndexes
		r.Score = m.Score
		out = append(out, r)
	}
	return out
}
