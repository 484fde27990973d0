package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"github.com/asheshgoplani/shelldeck/internal/workspace"
)

const maxSwitcherResults = 10

// SearchFunc ranks candidates for a query.
type SearchFunc func(query string) []workspace.Result

// Switcher is the quick switcher over tabs and projects. It quits the
// program once a choice is made or the user cancels.
type Switcher struct {
	input   textinput.Model
	search  SearchFunc
	results []workspace.Result
	cursor  int
	width   int

	chosen    *workspace.Result
	cancelled bool
}

// NewSwitcher creates a switcher populated with the empty-query results.
func NewSwitcher(search SearchFunc) *Switcher {
	ti := textinput.New()
	ti.Placeholder = "Switch to tab or project..."
	ti.Focus()
	ti.CharLimit = 100
	ti.Width = 50

	s := &Switcher{input: ti, search: search, width: 60}
	s.refresh()
	return s
}

// Selected returns the chosen result once the program has quit.
func (s *Switcher) Selected() (workspace.Result, bool) {
	if s.chosen == nil {
		return workspace.Result{}, false
	}
	return *s.chosen, true
}

// Cancelled reports whether the user backed out.
func (s *Switcher) Cancelled() bool {
	return s.cancelled
}

func (s *Switcher) Init() tea.Cmd {
	return textinput.Blink
}

func (s *Switcher) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		return s, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "ctrl+c":
			s.cancelled = true
			return s, tea.Quit

		case "enter":
			if len(s.results) == 0 {
				return s, nil
			}
			chosen := s.results[s.cursor]
			s.chosen = &chosen
			return s, tea.Quit

		case "up", "ctrl+k", "ctrl+p":
			if s.cursor > 0 {
				s.cursor--
			}
			return s, nil

		case "down", "ctrl+j", "ctrl+n":
			if s.cursor < min(len(s.results), maxSwitcherResults)-1 {
				s.cursor++
			}
			return s, nil
		}
	}

	var cmd tea.Cmd
	before := s.input.Value()
	s.input, cmd = s.input.Update(msg)
	if s.input.Value() != before {
		s.refresh()
	}
	return s, cmd
}

func (s *Switcher) refresh() {
	s.results = s.search(s.input.Value())
	s.cursor = 0
}

func (s *Switcher) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Switch"))
	b.WriteString("\n")
	b.WriteString(SearchBoxStyle.Render(s.input.View()))
	b.WriteString("\n")

	if len(s.results) == 0 {
		b.WriteString(DimStyle.Render("  no matches"))
		b.WriteString("\n")
		return b.String()
	}

	labelWidth := max(s.width-12, 10)
	for i, r := range s.results {
		if i == maxSwitcherResults {
			b.WriteString(DimStyle.Render("  ..."))
			b.WriteString("\n")
			break
		}
		line := kindTag(r.Kind) + " " + highlight(r, labelWidth)
		if r.Kind == workspace.ResultTab {
			if badges := Badges(r.Flags); badges != "" {
				line += " " + badges
			}
		}
		if i == s.cursor {
			b.WriteString(SelectedStyle.Render("› " + line))
		} else {
			b.WriteString(ResultStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}
	b.WriteString(DimStyle.Render("  enter select · esc cancel"))
	return b.String()
}

func kindTag(k workspace.ResultKind) string {
	if k == workspace.ResultProject {
		return DimStyle.Render("proj")
	}
	return DimStyle.Render("tab ")
}

// highlight renders the label with matched runes emphasized, cut to width
// cells.
func highlight(r workspace.Result, width int) string {
	label := runewidth.Truncate(r.Label, width, truncationTail)
	if len(r.Matched) == 0 {
		return label
	}
	matched := make(map[int]bool, len(r.Matched))
	for _, i := range r.Matched {
		matched[i] = true
	}

	var b strings.Builder
	for i, ch := range label {
		if matched[i] {
			b.WriteString(SearchMatchStyle.Render(string(ch)))
		} else {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
