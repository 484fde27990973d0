package logging

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

type aggregateKey struct {
	component string
	event     string
}

type aggregateEntry struct {
	count  int64
	fields []slog.Attr
}

// Aggregator batches high-frequency events (per-chunk classifier hits,
// dropped writes) and emits one summary record per key each interval.
type Aggregator struct {
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	entries map[aggregateKey]*aggregateEntry

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewAggregator creates an aggregator flushing every intervalSecs seconds.
// A nil logger drops everything.
func NewAggregator(logger *slog.Logger, intervalSecs int) *Aggregator {
	if intervalSecs <= 0 {
		intervalSecs = 30
	}
	return &Aggregator{
		logger:   logger,
		interval: time.Duration(intervalSecs) * time.Second,
		entries:  make(map[aggregateKey]*aggregateEntry),
		stop:     make(chan struct{}),
	}
}

func (a *Aggregator) Start() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.Flush()
			case <-a.stop:
				return
			}
		}
	}()
}

// Stop halts the flush loop and emits whatever is pending. Safe to call twice.
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
	a.wg.Wait()
	a.Flush()
}

// Record counts one occurrence of event. The most recent fields win.
func (a *Aggregator) Record(component, event string, fields ...slog.Attr) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := aggregateKey{component: component, event: event}
	e, ok := a.entries[key]
	if !ok {
		e = &aggregateEntry{}
		a.entries[key] = e
	}
	e.count++
	if len(fields) > 0 {
		e.fields = fields
	}
}

// Flush emits one event_summary per pending key, in stable order.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	pending := a.entries
	a.entries = make(map[aggregateKey]*aggregateEntry)
	a.mu.Unlock()

	if a.logger == nil || len(pending) == 0 {
		return
	}

	keys := make([]aggregateKey, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].component != keys[j].component {
			return keys[i].component < keys[j].component
		}
		return keys[i].event < keys[j].event
	})

	for _, k := range keys {
		e := pending[k]
		attrs := []any{
			slog.String("component", k.component),
			slog.String("event", k.event),
			slog.Int64("count", e.count),
			slog.Int("window_seconds", int(a.interval.Seconds())),
		}
		for _, f := range e.fields {
			attrs = append(attrs, f)
		}
		a.logger.Info("event_summary", attrs...)
	}
}
