package logging

import (
	"log"
	"time"
)

const maxSinkBackoff = 32 * time.Second

// sinkWorker delivers events to one sink from its own goroutine. A failing
// sink is retried with exponential backoff while its backlog absorbs new
// events; once the backlog is full events are dropped for that sink only.
type sinkWorker struct {
	name     string
	sink     Sink
	events   chan Event
	fallback *log.Logger
	metrics  *Metrics
	limiter  rateLimiter

	failures int
	backoff  time.Duration
}

func newSinkWorker(name string, sink Sink, backlog int, fallback *log.Logger, metrics *Metrics, warnInterval time.Duration) *sinkWorker {
	return &sinkWorker{
		name:     name,
		sink:     sink,
		events:   make(chan Event, backlog),
		fallback: fallback,
		metrics:  metrics,
		limiter:  rateLimiter{interval: warnInterval},
	}
}

func (w *sinkWorker) offer(event Event) {
	select {
	case w.events <- event:
	default:
		w.metrics.TelemetryAdd(MetricSinkDroppedTotal, 1)
		if w.limiter.allow() {
			w.fallback.Printf("sink %s backlog full, dropping event type=%s", w.name, event.Type)
		}
	}
}

func (w *sinkWorker) run() {
	for event := range w.events {
		if w.backoff > 0 {
			time.Sleep(w.backoff)
		}
		if err := w.sink.Write(event); err != nil {
			w.failures++
			w.backoff = min(time.Second<<min(w.failures-1, 5), maxSinkBackoff)
			w.fallback.Printf("sink %s failed: %v (retry in %s)", w.name, err, w.backoff)
			continue
		}
		w.failures = 0
		w.backoff = 0
	}
}
