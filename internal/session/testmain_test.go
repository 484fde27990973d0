package session

import (
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	// Keep tests away from the real ~/.shelldeck.
	dir, err := os.MkdirTemp("", "shelldeck-session-test")
	if err != nil {
		panic(err)
	}
	os.Setenv("SHELLDECK_HOME", dir)

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}
