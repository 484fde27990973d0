package session

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/asheshgoplani/shelldeck/internal/logging"
)

var routerLog = logging.ForComponent(logging.CompRouter)

// DefaultBacklogBytes bounds the output kept for a session nobody has
// subscribed to yet. Oldest chunks are dropped first.
const DefaultBacklogBytes = 256 * 1024

// Exit describes how a session ended.
type Exit struct {
	Code   int
	Killed bool
}

// DataFunc receives one output chunk. The slice must not be retained
// past the call unless copied.
type DataFunc func(data []byte)

// ExitFunc receives the single exit notification for a session.
type ExitFunc func(Exit)

// Router fans session output and exits out to subscribers. Deliveries for
// one session are serialized and arrive in production order; different
// sessions never block each other.
type Router struct {
	backlogLimit int

	mu      sync.Mutex
	streams map[ID]*stream
}

// NewRouter returns a router that buffers up to backlogBytes per session
// before its first subscriber. Zero or negative means DefaultBacklogBytes.
func NewRouter(backlogBytes int) *Router {
	if backlogBytes <= 0 {
		backlogBytes = DefaultBacklogBytes
	}
	return &Router{
		backlogLimit: backlogBytes,
		streams:      make(map[ID]*stream),
	}
}

// Subscribe registers callbacks for id and returns a function that stops
// delivery. Output produced before the first subscriber is replayed to it.
// Callbacks run on the session's delivery goroutine and must not block for
// long; they may unsubscribe but should not subscribe to the same session.
func (r *Router) Subscribe(id ID, onData DataFunc, onExit ExitFunc) (func(), error) {
	r.mu.Lock()
	s, ok := r.streams[id]
	r.mu.Unlock()
	if !ok {
		return func() {}, fmt.Errorf("subscribe %d: %w", id, ErrSessionNotFound)
	}

	sub := &subscription{onData: onData, onExit: onExit}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return func() {}, fmt.Errorf("subscribe %d: %w", id, ErrSessionNotFound)
	}
	s.nextSub++
	sub.id = s.nextSub
	s.subs[sub.id] = sub
	s.mu.Unlock()

	s.enqueue(item{replay: sub})

	return func() { s.unsubscribe(sub) }, nil
}

// Subscribers returns the number of live subscriptions for id.
func (r *Router) Subscribers(id ID) int {
	r.mu.Lock()
	s, ok := r.streams[id]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// open starts routing for id, replacing any stale stream with the same id.
func (r *Router) open(id ID) *stream {
	s := &stream{
		id:      id,
		limit:   r.backlogLimit,
		subs:    make(map[uint64]*subscription),
		onClose: func(st *stream) { r.remove(id, st) },
	}
	r.mu.Lock()
	r.streams[id] = s
	r.mu.Unlock()
	return s
}

func (r *Router) remove(id ID, s *stream) {
	r.mu.Lock()
	if r.streams[id] == s {
		delete(r.streams, id)
	}
	r.mu.Unlock()
}

type subscription struct {
	id      uint64
	onData  DataFunc
	onExit  ExitFunc
	active  bool // set once the backlog replay has run
	retired atomic.Bool
}

type item struct {
	data   []byte
	exit   *Exit
	replay *subscription
}

// stream is a per-session serial executor. Whoever enqueues into an idle
// stream drains it; re-entrant enqueues from callbacks are picked up by the
// running drain, so order holds without holding a lock across callbacks.
type stream struct {
	id      ID
	limit   int
	onClose func(*stream)

	mu           sync.Mutex
	queue        []item
	draining     bool
	subs         map[uint64]*subscription
	nextSub      uint64
	backlog      [][]byte
	backlogBytes int
	exited       *Exit
	closed       bool
}

func (s *stream) publish(data []byte) {
	if len(data) == 0 {
		return
	}
	s.enqueue(item{data: data})
}

func (s *stream) publishExit(e Exit) {
	s.enqueue(item{exit: &e})
}

func (s *stream) enqueue(it item) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, it)
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()
	s.drain()
}

func (s *stream) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		it := s.queue[0]
		s.queue[0] = item{}
		s.queue = s.queue[1:]

		switch {
		case it.replay != nil:
			s.runReplay(it.replay)
		case it.exit != nil:
			s.runExit(*it.exit)
		default:
			s.runData(it.data)
		}
	}
}

// runData is called with s.mu held and releases it.
func (s *stream) runData(data []byte) {
	targets := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.active {
			targets = append(targets, sub)
		}
	}
	if len(targets) == 0 {
		s.appendBacklog(data)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	for _, sub := range targets {
		if sub.retired.Load() {
			continue
		}
		s.callData(sub, data)
	}
}

// runExit is called with s.mu held and releases it.
func (s *stream) runExit(e Exit) {
	if s.exited != nil {
		s.mu.Unlock()
		return
	}
	s.exited = &e
	targets := make([]*subscription, 0, len(s.subs))
	for id, sub := range s.subs {
		if sub.active {
			targets = append(targets, sub)
			sub.retired.Store(true)
			delete(s.subs, id)
		}
	}
	// A pending subscriber still gets backlog then exit from its replay.
	// With nobody listening, a natural exit is kept for a late subscriber;
	// a killed session is dropped outright.
	closeNow := len(s.subs) == 0 && (len(targets) > 0 || e.Killed)
	if closeNow {
		s.close()
	}
	s.mu.Unlock()

	for _, sub := range targets {
		s.callExit(sub, e)
	}
	if closeNow {
		s.onClose(s)
	}
}

// runReplay is called with s.mu held and releases it.
func (s *stream) runReplay(sub *subscription) {
	if sub.retired.Load() {
		s.mu.Unlock()
		return
	}
	sub.active = true
	backlog := s.backlog
	s.backlog = nil
	s.backlogBytes = 0

	var exit *Exit
	closeNow := false
	if s.exited != nil {
		exit = s.exited
		sub.retired.Store(true)
		delete(s.subs, sub.id)
		if len(s.subs) == 0 {
			s.close()
			closeNow = true
		}
	}
	s.mu.Unlock()

	for _, chunk := range backlog {
		if sub.retired.Load() && exit == nil {
			break
		}
		s.callData(sub, chunk)
	}
	if exit != nil {
		s.callExit(sub, *exit)
	}
	if closeNow {
		s.onClose(s)
	}
}

// close is called with s.mu held.
func (s *stream) close() {
	s.closed = true
	s.queue = nil
	s.backlog = nil
	s.backlogBytes = 0
}

func (s *stream) appendBacklog(data []byte) {
	s.backlog = append(s.backlog, data)
	s.backlogBytes += len(data)
	dropped := 0
	for s.backlogBytes > s.limit && len(s.backlog) > 1 {
		s.backlogBytes -= len(s.backlog[0])
		s.backlog[0] = nil
		s.backlog = s.backlog[1:]
		dropped++
	}
	if dropped > 0 {
		logging.Aggregate(logging.CompRouter, "backlog_dropped", slog.Int("session", int(s.id)))
	}
}

func (s *stream) unsubscribe(sub *subscription) {
	if sub.retired.Swap(true) {
		return
	}
	s.mu.Lock()
	delete(s.subs, sub.id)
	s.mu.Unlock()
}

func (s *stream) callData(sub *subscription, data []byte) {
	if sub.onData == nil {
		return
	}
	defer s.recoverCallback("data")
	sub.onData(data)
}

func (s *stream) callExit(sub *subscription, e Exit) {
	if sub.onExit == nil {
		return
	}
	defer s.recoverCallback("exit")
	sub.onExit(e)
}

func (s *stream) recoverCallback(kind string) {
	if r := recover(); r != nil {
		routerLog.Error("subscriber_panic",
			slog.Int("session", int(s.id)),
			slog.String("callback", kind),
			slog.Any("panic", r))
	}
}
