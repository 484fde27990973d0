// Package ptyhost spawns shell processes attached to pseudo-terminals.
//
// A Host starts processes; each Process exposes write/resize/kill and
// delivers its output through a Handler once Stream is called. Output
// produced before Stream is held by the terminal device, so callers can
// register the process before any byte is read.
package ptyhost

import (
	"context"
	"errors"
	"os"
	"runtime"
)

const (
	DefaultCols = 80
	DefaultRows = 30
)

// ErrProcessGone is returned by Write/Resize after the process has exited.
var ErrProcessGone = errors.New("process has exited")

// SpawnOptions describes the shell process to start.
type SpawnOptions struct {
	Command string
	Args    []string
	Dir     string
	Env     []string
	Cols    int
	Rows    int
}

// Handler receives a process's output. OnData is called once per read, in
// production order, from a single goroutine. OnExit is called exactly once on
// that same goroutine after the last OnData.
type Handler struct {
	OnData func(data []byte)
	OnExit func(exitCode int)
}

// Process is a running shell attached to a pseudo-terminal.
type Process interface {
	PID() int
	Write(data []byte) error
	Resize(cols, rows int) error
	Kill() error
	// Stream starts the output pump. Calling it more than once is a no-op.
	Stream(h Handler)
}

// Host spawns processes.
type Host interface {
	Spawn(ctx context.Context, opts SpawnOptions) (Process, error)
}

// DefaultShell returns the shell used when none is configured.
func DefaultShell() string {
	if runtime.GOOS == "windows" {
		return "powershell.exe"
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "bash"
}

func normalizeSize(cols, rows int) (int, int) {
	if cols <= 0 {
		cols = DefaultCols
	}
	if rows <= 0 {
		rows = DefaultRows
	}
	return cols, rows
}
