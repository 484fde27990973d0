//go:build !windows

package ptyhost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/asheshgoplani/shelldeck/internal/logging"
)

var ptyLog = logging.ForComponent(logging.CompPty)

// killGrace is how long a process gets after SIGTERM before SIGKILL.
const killGrace = 3 * time.Second

const readBufferSize = 32 * 1024

// PTYHost spawns local processes with creack/pty.
type PTYHost struct{}

// NewPTYHost returns a host backed by the local OS.
func NewPTYHost() *PTYHost {
	return &PTYHost{}
}

// Spawn starts opts.Command on a new pseudo-terminal.
func (h *PTYHost) Spawn(ctx context.Context, opts SpawnOptions) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Command == "" {
		return nil, errors.New("command is required")
	}
	if opts.Dir != "" {
		info, err := os.Stat(opts.Dir)
		if err != nil {
			return nil, fmt.Errorf("working directory: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("working directory %s is not a directory", opts.Dir)
		}
	}

	cols, rows := normalizeSize(opts.Cols, opts.Rows)

	// The process outlives the request context, so no CommandContext here.
	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color", "COLORTERM=truecolor")
	cmd.Env = append(cmd.Env, opts.Env...)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	p := &ptyProcess{
		cmd:  cmd,
		ptmx: ptmx,
		done: make(chan struct{}),
	}
	ptyLog.Debug("pty_started",
		slog.Int("pid", cmd.Process.Pid),
		slog.String("command", opts.Command),
		slog.String("dir", opts.Dir),
		slog.Int("cols", cols),
		slog.Int("rows", rows))
	return p, nil
}

type ptyProcess struct {
	cmd  *exec.Cmd
	ptmx *os.File

	// mu guards the fields below; ptmx is used under the read lock and
	// closed under the write lock.
	mu        sync.RWMutex
	exited    bool
	streaming bool

	streamOnce sync.Once
	killOnce   sync.Once
	reapOnce   sync.Once
	exitCode   int
	done       chan struct{}
}

func (p *ptyProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *ptyProcess) Write(data []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.exited {
		return ErrProcessGone
	}
	if len(data) == 0 {
		return nil
	}
	_, err := p.ptmx.Write(data)
	return err
}

func (p *ptyProcess) Resize(cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("invalid dimensions: cols=%d rows=%d", cols, rows)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.exited {
		return ErrProcessGone
	}
	return pty.Setsize(p.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// Kill sends SIGTERM to the process group, escalating to SIGKILL after
// killGrace. The exit is still reported through the Handler.
func (p *ptyProcess) Kill() error {
	var err error
	p.killOnce.Do(func() {
		err = p.signal(syscall.SIGTERM)
		time.AfterFunc(killGrace, func() {
			select {
			case <-p.done:
			default:
				_ = p.signal(syscall.SIGKILL)
			}
		})

		p.mu.Lock()
		streaming := p.streaming
		p.mu.Unlock()
		if !streaming {
			// Nobody is pumping output, so reap here.
			go p.reap()
		}
	})
	return err
}

func (p *ptyProcess) signal(sig syscall.Signal) error {
	pid := p.cmd.Process.Pid
	if pgid, err := syscall.Getpgid(pid); err == nil {
		return syscall.Kill(-pgid, sig)
	}
	return p.cmd.Process.Signal(sig)
}

func (p *ptyProcess) Stream(h Handler) {
	p.streamOnce.Do(func() {
		p.mu.Lock()
		p.streaming = true
		p.mu.Unlock()
		go p.pump(h)
	})
}

func (p *ptyProcess) pump(h Handler) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 && h.OnData != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			h.OnData(chunk)
		}
		if err != nil {
			// EIO on Linux once the slave side closes; EOF elsewhere.
			break
		}
	}

	code := p.reap()
	if h.OnExit != nil {
		h.OnExit(code)
	}
}

// reap waits for the process and releases the terminal. The pump and an
// unstreamed Kill may both call it; only the first does the work.
func (p *ptyProcess) reap() int {
	p.reapOnce.Do(func() {
		err := p.cmd.Wait()

		code := 0
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
		}

		p.mu.Lock()
		p.exited = true
		p.exitCode = code
		_ = p.ptmx.Close()
		p.mu.Unlock()
		close(p.done)
		ptyLog.Debug("pty_exited", slog.Int("pid", p.cmd.Process.Pid), slog.Int("code", code))
	})

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitCode
}
