// Package notify classifies shell output from background tabs into
// confirmation prompts and alerts.
package notify

import (
	"log/slog"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/asheshgoplani/shelldeck/internal/logging"
)

// Kind is the outcome of classifying one chunk.
type Kind int

const (
	None Kind = iota
	Confirmation
	Alert
)

func (k Kind) String() string {
	switch k {
	case Confirmation:
		return "confirmation"
	case Alert:
		return "alert"
	default:
		return "none"
	}
}

// Classifier matches output chunks against confirmation and alert patterns.
// Chunks are judged alone: a phrase split across two reads is missed.
type Classifier struct {
	patterns *ResolvedPatterns
	disabled bool
}

// NewClassifier returns a classifier using p, or the defaults when p is nil.
func NewClassifier(p *ResolvedPatterns) *Classifier {
	if p == nil {
		p, _ = CompilePatterns(DefaultRawPatterns())
	}
	return &Classifier{patterns: p}
}

// Disabled returns a classifier that never reports anything.
func Disabled() *Classifier {
	return &Classifier{patterns: &ResolvedPatterns{}, disabled: true}
}

// Classify inspects chunk. Focused tabs are never classified. Confirmation
// is checked first and wins when both kinds match.
func (c *Classifier) Classify(chunk []byte, focused bool) Kind {
	if focused || c.disabled || len(chunk) == 0 {
		return None
	}
	if c.patterns.Confirmation.empty() && c.patterns.Alert.empty() {
		return None
	}

	text := strings.ToLower(ansi.Strip(string(chunk)))
	switch {
	case c.patterns.Confirmation.match(text):
		logging.Aggregate(logging.CompNotif, "confirmation_detected")
		return Confirmation
	case c.patterns.Alert.match(text):
		logging.Aggregate(logging.CompNotif, "alert_detected")
		return Alert
	default:
		return None
	}
}

// Flags is the pair of notification flags a tab carries.
type Flags struct {
	Alert        bool
	Confirmation bool
}

// Merge ORs k onto f. Nothing here ever clears a flag.
func (f Flags) Merge(k Kind) Flags {
	switch k {
	case Confirmation:
		f.Confirmation = true
	case Alert:
		f.Alert = true
	}
	return f
}

// LogValue renders flags compactly in structured logs.
func (f Flags) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("alert", f.Alert),
		slog.Bool("confirmation", f.Confirmation))
}
