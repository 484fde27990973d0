package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"

	"github.com/asheshgoplani/shelldeck/internal/tabs"
)

func TestTabLabel(t *testing.T) {
	tab := tabs.Tab{Title: "a-really-long-directory-name", Elevated: true, Alert: true}
	got := TabLabel(tab, 10)
	if !strings.HasPrefix(got, elevatedMark+" ") {
		t.Fatalf("expected elevated marker, got %q", got)
	}
	if !strings.Contains(got, truncationTail) {
		t.Fatalf("expected truncated title, got %q", got)
	}
	if !strings.HasSuffix(got, alertBadge) {
		t.Fatalf("expected alert badge, got %q", got)
	}
}

func TestRenderTabStripFitsWidth(t *testing.T) {
	ts := []tabs.Tab{
		{ID: "a", Title: "api"},
		{ID: "b", Title: "web frontend with a long name"},
		{ID: "c", Title: "logs"},
	}
	for _, width := range []int{20, 40, 200} {
		strip := RenderTabStrip(ts, "b", width)
		if w := lipgloss.Width(strip); w > width {
			t.Fatalf("width %d: strip is %d cells wide: %q", width, w, strip)
		}
	}
	if !strings.Contains(RenderTabStrip(ts, "b", 200), "api") {
		t.Fatal("expected titles in a wide strip")
	}
	if RenderTabStrip(nil, "", 80) != "" {
		t.Fatal("expected empty strip for no tabs")
	}
}

func TestRenderTabTable(t *testing.T) {
	ts := []tabs.Tab{
		{ID: "a", Title: "api", Dir: "/srv/api"},
		{ID: "b", Title: "Terminal", Elevated: true, Confirmation: true},
	}
	out := RenderTabTable(ts, "b")
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "   1  api") || !strings.Contains(lines[0], "/srv/api") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "*  2  Terminal") {
		t.Fatalf("unexpected active line %q", lines[1])
	}
	if !strings.Contains(lines[1], "elevated") || !strings.Contains(lines[1], confirmBadge) {
		t.Fatalf("expected markers on %q", lines[1])
	}
	if !strings.Contains(lines[1], "~") {
		t.Fatalf("expected home placeholder on %q", lines[1])
	}
}

func TestInitTheme(t *testing.T) {
	defer InitTheme("dark")
	InitTheme("light")
	if GetCurrentTheme() != ThemeLight {
		t.Fatal("expected light theme")
	}
	InitTheme("solarized")
	if GetCurrentTheme() != ThemeDark {
		t.Fatal("unknown themes fall back to dark")
	}
}
