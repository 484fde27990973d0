package notify

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/asheshgoplani/shelldeck/internal/logging"
)

var patternLog = logging.ForComponent(logging.CompNotif)

// RawPatterns holds string-form patterns before compilation.
// Patterns prefixed with "re:" are compiled as regex and matched against the
// lower-cased chunk; everything else is a case-insensitive substring.
type RawPatterns struct {
	Confirmation []string
	Alert        []string
}

// ResolvedPatterns holds the compiled patterns for one classifier.
type ResolvedPatterns struct {
	Confirmation matcher
	Alert        matcher
}

type matcher struct {
	strings []string
	regexps []*regexp.Regexp
}

func (m matcher) match(lower string) bool {
	for _, s := range m.strings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	for _, re := range m.regexps {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

func (m matcher) empty() bool {
	return len(m.strings) == 0 && len(m.regexps) == 0
}

// DefaultRawPatterns returns the built-in prompt and failure phrasing.
func DefaultRawPatterns() *RawPatterns {
	return &RawPatterns{
		Confirmation: []string{
			"password",
			"passphrase",
			"[sudo]",
			"are you sure",
			"do you want to continue",
			"confirm",
			"(yes/no)",
			"press any key",
			`re:[\[(]y/n[\])]`,
		},
		Alert: []string{
			"permission denied",
			"error:",
			"fatal:",
			"failed",
			"exception",
		},
	}
}

// MergeRawPatterns returns defaults with extras appended, or only extras
// when override is set.
func MergeRawPatterns(defaults, extras *RawPatterns, override bool) *RawPatterns {
	result := &RawPatterns{}
	if defaults != nil && !override {
		result.Confirmation = copySlice(defaults.Confirmation)
		result.Alert = copySlice(defaults.Alert)
	}
	if extras != nil {
		result.Confirmation = append(result.Confirmation, extras.Confirmation...)
		result.Alert = append(result.Alert, extras.Alert...)
	}
	return result
}

// CompilePatterns compiles raw patterns. Invalid regex patterns are logged
// and skipped.
func CompilePatterns(raw *RawPatterns) (*ResolvedPatterns, error) {
	if raw == nil {
		return nil, fmt.Errorf("nil RawPatterns")
	}
	return &ResolvedPatterns{
		Confirmation: compile("confirmation", raw.Confirmation),
		Alert:        compile("alert", raw.Alert),
	}, nil
}

func compile(kind string, patterns []string) matcher {
	var m matcher
	for _, p := range patterns {
		if strings.HasPrefix(p, "re:") {
			re, err := regexp.Compile(p[3:])
			if err != nil {
				patternLog.Warn("invalid_"+kind+"_regex",
					slog.String("pattern", p),
					slog.String("error", err.Error()))
				continue
			}
			m.regexps = append(m.regexps, re)
			continue
		}
		if p = strings.ToLower(p); p != "" {
			m.strings = append(m.strings, p)
		}
	}
	return m
}

func copySlice(s []string) []string {
	if s == nil {
		return nil
	}
	c := make([]string, len(s))
	copy(c, s)
	return c
}
