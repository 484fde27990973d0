package tabs

import (
	"strings"
)

// DefaultTitle is used for tabs without a directory.
const DefaultTitle = "Terminal"

// DefaultElevationPrefix is what elevated shells put in front of their title.
const DefaultElevationPrefix = "Administrator: "

// defaultGenericTitles are shell names that carry no information worth
// replacing a meaningful title with.
var defaultGenericTitles = []string{
	"Windows PowerShell",
	"powershell.exe",
	"pwsh.exe",
	"pwsh",
	"cmd.exe",
	"Command Prompt",
	DefaultTitle,
	"bash",
	"zsh",
	"sh",
	"fish",
}

// TitlePolicy decides how shell-reported titles map onto tab titles.
type TitlePolicy struct {
	ElevationPrefix string
	generic         map[string]struct{}
}

// DefaultTitlePolicy returns the built-in policy.
func DefaultTitlePolicy() TitlePolicy {
	return NewTitlePolicy(DefaultElevationPrefix, nil)
}

// NewTitlePolicy builds a policy with extra generic titles on top of the
// defaults. An empty prefix disables elevation stripping.
func NewTitlePolicy(prefix string, extraGeneric []string) TitlePolicy {
	p := TitlePolicy{
		ElevationPrefix: prefix,
		generic:         make(map[string]struct{}, len(defaultGenericTitles)+len(extraGeneric)),
	}
	for _, g := range defaultGenericTitles {
		p.generic[g] = struct{}{}
	}
	for _, g := range extraGeneric {
		if g = strings.TrimSpace(g); g != "" {
			p.generic[g] = struct{}{}
		}
	}
	return p
}

// IsGeneric reports whether title is a bare shell name.
func (p TitlePolicy) IsGeneric(title string) bool {
	_, ok := p.generic[title]
	return ok
}

// Derive returns the title a tab currently titled current should take for
// the shell-reported raw title, and whether it differs from current.
func (p TitlePolicy) Derive(current, raw string) (string, bool) {
	title := strings.TrimSpace(raw)
	if p.ElevationPrefix != "" {
		title = strings.TrimPrefix(title, p.ElevationPrefix)
	}
	if title == "" {
		return current, false
	}
	if p.IsGeneric(title) && current != "" && !p.IsGeneric(current) {
		return current, false
	}
	title = lastPathSegment(title)
	if title == current {
		return current, false
	}
	return title, true
}

// lastPathSegment shortens Windows paths always, and slash paths only when
// the whole title is a path, so "vim a/b.go" stays intact.
func lastPathSegment(title string) string {
	if strings.Contains(title, `\`) {
		if seg := title[strings.LastIndex(title, `\`)+1:]; seg != "" {
			return seg
		}
		return title
	}
	if strings.ContainsRune(title, '/') && !strings.ContainsAny(title, " \t") {
		trimmed := strings.TrimRight(title, "/")
		if seg := trimmed[strings.LastIndex(trimmed, "/")+1:]; seg != "" {
			return seg
		}
	}
	return title
}

// DirTitle is the initial title for a tab opened in dir.
func DirTitle(dir string) string {
	if dir == "" {
		return DefaultTitle
	}
	if seg := lastPathSegment(dir); seg != "" && seg != "/" && seg != "~" {
		return seg
	}
	return DefaultTitle
}

const maxPendingTitle = 4096

// TitleScanner pulls OSC 0 and OSC 2 window titles out of a byte stream.
// Sequences split across chunks are reassembled.
type TitleScanner struct {
	pending []byte
}

// Scan returns the titles completed by chunk, in order.
func (s *TitleScanner) Scan(chunk []byte) []string {
	var titles []string
	data := chunk
	if len(s.pending) > 0 {
		data = append(s.pending, chunk...)
		s.pending = nil
	}

	for i := 0; i < len(data); i++ {
		if data[i] != 0x1b {
			continue
		}
		if i+1 >= len(data) {
			s.keep(data[i:])
			break
		}
		if data[i+1] != ']' {
			continue
		}
		body, end, ok := oscBody(data[i+2:])
		if !ok {
			s.keep(data[i:])
			break
		}
		if title, isTitle := titleFromOSC(body); isTitle {
			titles = append(titles, title)
		}
		i += 1 + end
	}
	return titles
}

func (s *TitleScanner) keep(rest []byte) {
	if len(rest) > maxPendingTitle {
		s.pending = nil
		return
	}
	s.pending = append([]byte(nil), rest...)
}

// oscBody finds the BEL or ST terminator. end is the offset just past it.
func oscBody(b []byte) (body []byte, end int, ok bool) {
	for j := 0; j < len(b); j++ {
		switch b[j] {
		case 0x07:
			return b[:j], j + 1, true
		case 0x1b:
			if j+1 < len(b) && b[j+1] == '\\' {
				return b[:j], j + 2, true
			}
			if j+1 >= len(b) {
				return nil, 0, false
			}
		}
	}
	return nil, 0, false
}

func titleFromOSC(body []byte) (string, bool) {
	semi := -1
	for k, c := range body {
		if c == ';' {
			semi = k
			break
		}
	}
	if semi < 0 {
		return "", false
	}
	switch string(body[:semi]) {
	case "0", "2":
		return string(body[semi+1:]), true
	}
	return "", false
}
