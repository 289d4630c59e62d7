package logging

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Counters the router maintains in its Metrics.
const (
	MetricEventsTotal      = "logging_events_total"
	MetricEventsFiltered   = "logging_events_filtered_total"
	MetricEventsDropped    = "logging_events_dropped_total"
	MetricSinkDroppedTotal = "logging_sink_dropped_total"
)

type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

// Router fans published events out to the configured sinks. Publish never
// blocks the caller: a full queue drops the event and counts it.
type Router struct {
	cfg      Config
	clock    Clock
	fallback *log.Logger
	metrics  *Metrics
	fields   map[string]any

	queue   chan Event
	workers []*sinkWorker
	stop    chan struct{}
	wg      sync.WaitGroup
	closed  atomic.Bool

	forwarded   atomic.Uint64
	dropped     atomic.Uint64
	dropLimiter rateLimiter
}

type RouterStats struct {
	EventsTotal  uint64
	DroppedTotal uint64
}

// NewRouter starts a router delivering to every sink named in
// cfg.EnabledSinks. Every enabled name must be present in sinks.
func NewRouter(cfg Config, clock Clock, fallback *log.Logger, sinks map[string]Sink) (*Router, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	if fallback == nil {
		fallback = log.New(os.Stderr, "[logging] ", log.LstdFlags)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 512
	}
	if cfg.DropWarnInterval <= 0 {
		cfg.DropWarnInterval = 5 * time.Second
	}

	r := &Router{
		cfg:         cfg,
		clock:       clock,
		fallback:    fallback,
		metrics:     NewMetrics(),
		fields:      cfg.CloneFields(),
		queue:       make(chan Event, cfg.BufferSize),
		stop:        make(chan struct{}),
		dropLimiter: rateLimiter{interval: cfg.DropWarnInterval},
	}

	backlog := min(max(cfg.BufferSize, 32), 1024)
	for _, name := range cfg.EnabledSinks {
		sink := sinks[name]
		if sink == nil {
			return nil, fmt.Errorf("logging: sink %s enabled but not provided", name)
		}
		r.workers = append(r.workers, newSinkWorker(name, sink, backlog, fallback, r.metrics, cfg.DropWarnInterval))
	}

	for _, w := range r.workers {
		r.wg.Add(1)
		go func(w *sinkWorker) {
			defer r.wg.Done()
			w.run()
		}(w)
	}
	r.wg.Add(1)
	go r.dispatch()
	return r, nil
}

// dispatch moves events from the shared queue to every sink until Close,
// then flushes whatever is still queued.
func (r *Router) dispatch() {
	defer r.wg.Done()
	defer func() {
		for _, w := range r.workers {
			close(w.events)
		}
	}()
	for {
		select {
		case event := <-r.queue:
			r.forward(event)
		case <-r.stop:
			for {
				select {
				case event := <-r.queue:
					r.forward(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Router) forward(event Event) {
	if event.Severity < r.cfg.MinimumSeverity {
		r.metrics.TelemetryAdd(MetricEventsFiltered, 1)
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	event = withDefaultFields(event, r.fields)
	r.forwarded.Add(1)
	r.metrics.TelemetryAdd(MetricEventsTotal, 1)
	for _, w := range r.workers {
		w.offer(cloneForFields(event))
	}
}

// Publish queues event for delivery. Events without a type and events
// published after Close are discarded.
func (r *Router) Publish(_ context.Context, event Event) {
	if event.Type == "" || r.closed.Load() {
		return
	}
	select {
	case r.queue <- event:
	default:
		r.dropped.Add(1)
		r.metrics.TelemetryAdd(MetricEventsDropped, 1)
		if r.dropLimiter.allow() {
			r.fallback.Printf("queue full, dropping event type=%s tick=%d (dropped=%d)", event.Type, event.Tick, r.dropped.Load())
		}
	}
}

// Close stops dispatch, waits for the sink workers to drain and closes every
// sink. A second call only waits for ctx.
func (r *Router) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		<-ctx.Done()
		return ctx.Err()
	}
	close(r.stop)
	drained := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		return ctx.Err()
	}
	var firstErr error
	for _, w := range r.workers {
		if err := w.sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close sink %s: %w", w.name, err)
		}
	}
	return firstErr
}

func (r *Router) Stats() RouterStats {
	return RouterStats{
		EventsTotal:  r.forwarded.Load(),
		DroppedTotal: r.dropped.Load(),
	}
}

// Metrics exposes the counters shared with the rest of the server.
func (r *Router) Metrics() *Metrics {
	if r == nil {
		return nil
	}
	return r.metrics
}

func (r *Router) Sink(name string) Sink {
	for _, w := range r.workers {
		if w.name == name {
			return w.sink
		}
	}
	return nil
}

// rateLimiter admits at most one event per interval.
type rateLimiter struct {
	interval time.Duration
	next     atomic.Int64
}

func (l *rateLimiter) allow() bool {
	now := time.Now().UnixNano()
	next := l.next.Load()
	if next != 0 && now < next {
		return false
	}
	return l.next.CompareAndSwap(next, now+l.interval.Nanoseconds())
}
