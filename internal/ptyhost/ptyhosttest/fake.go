// Package ptyhosttest provides a scripted ptyhost.Host for tests.
package ptyhosttest

import (
	"context"
	"errors"
	"sync"

	"github.com/asheshgoplani/shelldeck/internal/ptyhost"
)

// FakeHost hands out FakeProcesses with increasing PIDs.
type FakeHost struct {
	mu       sync.Mutex
	nextPID  int
	procs    []*FakeProcess
	spawnErr error

	// Gate, when non-nil, blocks Spawn until a value is received.
	Gate chan struct{}
}

func NewFakeHost() *FakeHost {
	return &FakeHost{nextPID: 1000}
}

// FailNextSpawn makes the next Spawn return err.
func (h *FakeHost) FailNextSpawn(err error) {
	h.mu.Lock()
	h.spawnErr = err
	h.mu.Unlock()
}

func (h *FakeHost) Spawn(ctx context.Context, opts ptyhost.SpawnOptions) (ptyhost.Process, error) {
	if h.Gate != nil {
		select {
		case <-h.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.spawnErr != nil {
		err := h.spawnErr
		h.spawnErr = nil
		return nil, err
	}
	h.nextPID++
	p := &FakeProcess{
		pid:     h.nextPID,
		Options: opts,
		cols:    opts.Cols,
		rows:    opts.Rows,
		events:  make(chan event, 256),
	}
	h.procs = append(h.procs, p)
	return p, nil
}

// Processes returns every process spawned so far.
func (h *FakeHost) Processes() []*FakeProcess {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*FakeProcess, len(h.procs))
	copy(out, h.procs)
	return out
}

// Process returns the process with the given pid, or nil.
func (h *FakeHost) Process(pid int) *FakeProcess {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.procs {
		if p.pid == pid {
			return p
		}
	}
	return nil
}

// Last returns the most recently spawned process, or nil.
func (h *FakeHost) Last() *FakeProcess {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.procs) == 0 {
		return nil
	}
	return h.procs[len(h.procs)-1]
}

type event struct {
	data []byte
	exit bool
	code int
}

// FakeProcess records input and lets tests emit output and exits. Emitted
// events queue until Stream is called and are then delivered in order by a
// single goroutine, like the real pump.
type FakeProcess struct {
	pid     int
	Options ptyhost.SpawnOptions

	mu        sync.Mutex
	written   []byte
	cols      int
	rows      int
	killed    int
	resizeErr error
	exited    bool

	streamOnce sync.Once
	events     chan event
	pumpDone   chan struct{}
}

func (p *FakeProcess) PID() int { return p.pid }

func (p *FakeProcess) Write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return ptyhost.ErrProcessGone
	}
	p.written = append(p.written, data...)
	return nil
}

func (p *FakeProcess) Resize(cols, rows int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resizeErr != nil {
		return p.resizeErr
	}
	p.cols, p.rows = cols, rows
	return nil
}

// FailResize makes every later Resize return err.
func (p *FakeProcess) FailResize(err error) {
	p.mu.Lock()
	p.resizeErr = err
	p.mu.Unlock()
}

// Size returns the last applied geometry.
func (p *FakeProcess) Size() (cols, rows int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cols, p.rows
}

// Kill counts the call and reports an exit with code -1.
func (p *FakeProcess) Kill() error {
	p.mu.Lock()
	p.killed++
	first := p.killed == 1
	p.mu.Unlock()
	if first {
		p.Exit(-1)
	}
	return nil
}

func (p *FakeProcess) Stream(h ptyhost.Handler) {
	p.streamOnce.Do(func() {
		p.mu.Lock()
		p.pumpDone = make(chan struct{})
		done := p.pumpDone
		p.mu.Unlock()
		go func() {
			defer close(done)
			for ev := range p.events {
				if ev.exit {
					if h.OnExit != nil {
						h.OnExit(ev.code)
					}
					return
				}
				if h.OnData != nil {
					h.OnData(ev.data)
				}
			}
		}()
	})
}

// Emit queues an output chunk.
func (p *FakeProcess) Emit(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return
	}
	p.events <- event{data: []byte(s)}
}

// Exit queues the exit event. Later Emits are dropped.
func (p *FakeProcess) Exit(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return
	}
	p.exited = true
	p.events <- event{exit: true, code: code}
}

// WaitDrained blocks until the pump has delivered the exit event.
func (p *FakeProcess) WaitDrained(ctx context.Context) error {
	p.mu.Lock()
	done := p.pumpDone
	p.mu.Unlock()
	if done == nil {
		return errors.New("process was never streamed")
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *FakeProcess) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.written)
}

func (p *FakeProcess) KillCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}
