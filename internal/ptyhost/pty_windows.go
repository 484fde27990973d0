//go:build windows

package ptyhost

import (
	"context"
	"errors"
)

// PTYHost is unavailable on Windows; creack/pty has no ConPTY backend.
type PTYHost struct{}

func NewPTYHost() *PTYHost {
	return &PTYHost{}
}

func (h *PTYHost) Spawn(ctx context.Context, opts SpawnOptions) (Process, error) {
	return nil, errors.New("pseudo-terminals are not supported on windows")
}
