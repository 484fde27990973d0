package tabs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerive(t *testing.T) {
	p := NewTitlePolicy(DefaultElevationPrefix, []string{"nu"})

	tests := []struct {
		name    string
		current string
		raw     string
		want    string
		changed bool
	}{
		{"plain", "Terminal", "htop", "htop", true},
		{"same", "htop", "htop", "htop", false},
		{"blank", "htop", "   ", "htop", false},
		{"elevation prefix", "Terminal", "Administrator: ops", "ops", true},
		{"windows path", "Terminal", `C:\src\shelldeck`, "shelldeck", true},
		{"unix path", "Terminal", "/home/dev/shelldeck/", "shelldeck", true},
		{"command with path kept", "Terminal", "vim internal/tabs/model.go", "vim internal/tabs/model.go", true},
		{"generic over meaningful", "MyProject", "powershell.exe", "MyProject", false},
		{"generic over generic", "Terminal", "bash", "bash", true},
		{"extra generic", "api", "nu", "api", false},
		{"generic over empty", "", "zsh", "zsh", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := p.Derive(tt.current, tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestDirTitle(t *testing.T) {
	assert.Equal(t, DefaultTitle, DirTitle(""))
	assert.Equal(t, DefaultTitle, DirTitle("/"))
	assert.Equal(t, "proj", DirTitle("/home/dev/proj"))
	assert.Equal(t, "proj", DirTitle(`D:\work\proj`))
}

func TestTitleScanner(t *testing.T) {
	var s TitleScanner

	assert.Equal(t, []string{"dev@box: ~/src"},
		s.Scan([]byte("\x1b]0;dev@box: ~/src\x07$ ")))
	assert.Equal(t, []string{"vim", "top"},
		s.Scan([]byte("a\x1b]2;vim\x1b\\b\x1b]0;top\x07")))
	assert.Empty(t, s.Scan([]byte("\x1b]7;file:///tmp\x07\x1b[31mred\x1b[0m")))
}

func TestTitleScannerAcrossChunks(t *testing.T) {
	var s TitleScanner
	assert.Empty(t, s.Scan([]byte("out\x1b]0;long ti")))
	assert.Equal(t, []string{"long title"}, s.Scan([]byte("tle\x07more")))

	assert.Empty(t, s.Scan([]byte("x\x1b")))
	assert.Equal(t, []string{"t"}, s.Scan([]byte("]2;t\x1b\\")))
}

func TestTitleScannerDropsRunaway(t *testing.T) {
	var s TitleScanner
	assert.Empty(t, s.Scan([]byte("\x1b]0;"+strings.Repeat("x", maxPendingTitle+10))))
	assert.Nil(t, s.pending)
	assert.Equal(t, []string{"ok"}, s.Scan([]byte("\x1b]0;ok\x07")))
}
