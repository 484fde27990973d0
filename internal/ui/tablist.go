package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"

	"github.com/asheshgoplani/shelldeck/internal/notify"
	"github.com/asheshgoplani/shelldeck/internal/tabs"
)

const (
	maxTabTitle    = 24
	minTabTitle    = 6
	alertBadge     = "!"
	confirmBadge   = "?"
	elevatedMark   = "#"
	truncationTail = "…"
)

// Badges renders the notification markers of a tab, confirmation first.
func Badges(f notify.Flags) string {
	var parts []string
	if f.Confirmation {
		parts = append(parts, ConfirmBadgeStyle.Render(confirmBadge))
	}
	if f.Alert {
		parts = append(parts, AlertBadgeStyle.Render(alertBadge))
	}
	return strings.Join(parts, "")
}

// TabLabel is a tab's title cut to maxWidth cells, with markers.
func TabLabel(t tabs.Tab, maxWidth int) string {
	title := runewidth.Truncate(t.Title, maxWidth, truncationTail)
	if t.Elevated {
		title = ElevatedStyle.Render(elevatedMark) + " " + title
	}
	if b := Badges(t.Flags()); b != "" {
		title += " " + b
	}
	return title
}

// RenderTabStrip draws the tabs on one line no wider than width. Titles
// shrink before the strip is cut.
func RenderTabStrip(ts []tabs.Tab, active string, width int) string {
	if len(ts) == 0 || width <= 0 {
		return ""
	}
	titleWidth := maxTabTitle
	if per := width/len(ts) - 4; per < titleWidth {
		titleWidth = max(per, minTabTitle)
	}

	cells := make([]string, 0, len(ts))
	for _, t := range ts {
		style := InactiveTabStyle
		if t.ID == active {
			style = ActiveTabStyle
		}
		cells = append(cells, style.Render(TabLabel(t, titleWidth)))
	}
	strip := lipgloss.JoinHorizontal(lipgloss.Top, cells...)
	if lipgloss.Width(strip) > width {
		strip = ansi.Truncate(strip, width, truncationTail)
	}
	return strip
}

// RenderTabTable lists tabs one per line for the CLI: marker, index,
// title, directory and state.
func RenderTabTable(ts []tabs.Tab, active string) string {
	titleCol := 5
	for _, t := range ts {
		titleCol = max(titleCol, min(runewidth.StringWidth(t.Title), maxTabTitle))
	}

	var b strings.Builder
	for i, t := range ts {
		marker := " "
		if t.ID == active {
			marker = "*"
		}
		title := runewidth.FillRight(runewidth.Truncate(t.Title, maxTabTitle, truncationTail), titleCol)
		dir := t.Dir
		if dir == "" {
			dir = "~"
		}
		line := fmt.Sprintf("%s %2d  %s  %s", marker, i+1, title, DimStyle.Render(dir))
		if t.Elevated {
			line += "  " + ElevatedStyle.Render("elevated")
		}
		if badges := Badges(t.Flags()); badges != "" {
			line += "  " + badges
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
