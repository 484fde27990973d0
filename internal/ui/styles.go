// Package ui holds the terminal front ends: the tab strip renderer and the
// quick switcher.
package ui

import (
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Theme represents the current color scheme
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

type palette struct {
	Bg, Surface, Border, Text, TextDim lipgloss.Color
	Accent, Yellow, Red, Green         lipgloss.Color
}

// Tokyo Night
var darkColors = palette{
	Bg:      lipgloss.Color("#1a1b26"),
	Surface: lipgloss.Color("#24283b"),
	Border:  lipgloss.Color("#414868"),
	Text:    lipgloss.Color("#c0caf5"),
	TextDim: lipgloss.Color("#787fa0"),
	Accent:  lipgloss.Color("#7aa2f7"),
	Yellow:  lipgloss.Color("#e0af68"),
	Red:     lipgloss.Color("#f7768e"),
	Green:   lipgloss.Color("#9ece6a"),
}

// Tokyo Night Light
var lightColors = palette{
	Bg:      lipgloss.Color("#d5d6db"),
	Surface: lipgloss.Color("#e9e9ec"),
	Border:  lipgloss.Color("#9699a3"),
	Text:    lipgloss.Color("#343b58"),
	TextDim: lipgloss.Color("#6a6d7c"),
	Accent:  lipgloss.Color("#34548a"),
	Yellow:  lipgloss.Color("#8f5e15"),
	Red:     lipgloss.Color("#8c4351"),
	Green:   lipgloss.Color("#485e30"),
}

var (
	themeMu      sync.RWMutex
	currentTheme = ThemeDark
	colors       = darkColors
)

var (
	TitleStyle        lipgloss.Style
	DimStyle          lipgloss.Style
	ErrorStyle        lipgloss.Style
	SearchBoxStyle    lipgloss.Style
	SearchMatchStyle  lipgloss.Style
	ResultStyle       lipgloss.Style
	SelectedStyle     lipgloss.Style
	ActiveTabStyle    lipgloss.Style
	InactiveTabStyle  lipgloss.Style
	AlertBadgeStyle   lipgloss.Style
	ConfirmBadgeStyle lipgloss.Style
	ElevatedStyle     lipgloss.Style
)

// InitTheme sets the palette. Anything but "light" selects dark.
func InitTheme(theme string) {
	themeMu.Lock()
	defer themeMu.Unlock()
	if theme == string(ThemeLight) {
		currentTheme, colors = ThemeLight, lightColors
	} else {
		currentTheme, colors = ThemeDark, darkColors
	}
	initStyles()
}

// GetCurrentTheme returns the active theme
func GetCurrentTheme() Theme {
	themeMu.RLock()
	defer themeMu.RUnlock()
	return currentTheme
}

func init() {
	InitTheme(string(ThemeDark))
}

func initStyles() {
	TitleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(colors.Accent)

	DimStyle = lipgloss.NewStyle().
		Foreground(colors.TextDim)

	ErrorStyle = lipgloss.NewStyle().
		Foreground(colors.Red).
		Bold(true)

	SearchBoxStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colors.Accent).
		Padding(0, 1)

	SearchMatchStyle = lipgloss.NewStyle().
		Foreground(colors.Yellow).
		Bold(true)

	ResultStyle = lipgloss.NewStyle().
		Padding(0, 2).
		Foreground(colors.Text)

	SelectedStyle = lipgloss.NewStyle().
		Padding(0, 2).
		Background(colors.Accent).
		Foreground(colors.Bg)

	ActiveTabStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(colors.Bg).
		Background(colors.Accent).
		Padding(0, 1)

	InactiveTabStyle = lipgloss.NewStyle().
		Foreground(colors.Text).
		Background(colors.Surface).
		Padding(0, 1)

	AlertBadgeStyle = lipgloss.NewStyle().
		Foreground(colors.Red).
		Bold(true)

	ConfirmBadgeStyle = lipgloss.NewStyle().
		Foreground(colors.Yellow).
		Bold(true)

	ElevatedStyle = lipgloss.NewStyle().
		Foreground(colors.Green)
}
