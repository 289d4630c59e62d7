// Package hub tracks attached observers and fans telemetry frames out to them
// without ever blocking the caller.
package hub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AMR-Platform/Interface/internal/telemetry"
	"github.com/AMR-Platform/Interface/logging"
	"github.com/AMR-Platform/Interface/logging/lifecycle"
)

// ObserverListener is told the observer count after every attach and detach.
// Sequence stamps the hub's lifecycle events with the current cycle.
type ObserverListener interface {
	SetObservers(n int)
	Sequence() uint64
}

// Config tunes per-observer delivery.
type Config struct {
	OutboundBuffer   int
	DropWarnInterval time.Duration
	Logger           telemetry.Logger
	Metrics          telemetry.Metrics
	Publisher        logging.Publisher
}

// Observer is one attached connection. Frames are queued on a bounded channel
// that the connection's writer drains.
type Observer struct {
	ID     string
	Remote string

	out     chan []byte
	done    chan struct{}
	once    sync.Once
	reason  string
	dropped atomic.Uint64
}

// Reasons an observer is closed by the hub.
const (
	ReasonReplaced = "replaced"
	ReasonShutdown = "shutdown"
)

// Outbound yields frames queued for this observer.
func (o *Observer) Outbound() <-chan []byte { return o.out }

// Done is closed once the observer has been detached or replaced.
func (o *Observer) Done() <-chan struct{} { return o.done }

// Dropped reports how many frames this observer missed because its buffer was full.
func (o *Observer) Dropped() uint64 { return o.dropped.Load() }

// Reason reports why the hub closed the observer. It is empty until Done is
// closed and stays empty when the connection detached on its own.
func (o *Observer) Reason() string {
	<-o.done
	return o.reason
}

func (o *Observer) close() { o.closeFor("") }

func (o *Observer) closeFor(reason string) {
	o.once.Do(func() {
		o.reason = reason
		close(o.done)
	})
}

// Hub is the observer registry.
type Hub struct {
	cfg Config

	mu        sync.Mutex
	observers map[string]*Observer
	listener  ObserverListener

	dropTotal   atomic.Uint64
	lastDropLog atomic.Int64
}

func New(cfg Config) *Hub {
	if cfg.OutboundBuffer <= 0 {
		cfg.OutboundBuffer = 4
	}
	if cfg.DropWarnInterval <= 0 {
		cfg.DropWarnInterval = 5 * time.Second
	}
	cfg.Logger = telemetry.LoggerOrDiscard(cfg.Logger)
	cfg.Metrics = telemetry.OrNop(cfg.Metrics)
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	return &Hub{cfg: cfg, observers: make(map[string]*Observer)}
}

// SetListener installs the observer count listener and reports the current count.
func (h *Hub) SetListener(l ObserverListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listener = l
	if l != nil {
		l.SetObservers(len(h.observers))
	}
}

// Attach registers an observer under id. An existing observer with the same
// id is replaced and its Done channel closed.
func (h *Hub) Attach(id, remote string) *Observer {
	obs := &Observer{
		ID:     id,
		Remote: remote,
		out:    make(chan []byte, h.cfg.OutboundBuffer),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	if existing, ok := h.observers[id]; ok {
		existing.closeFor(ReasonReplaced)
	}
	h.observers[id] = obs
	count := len(h.observers)
	h.notifyLocked(count)
	tick := h.sequenceLocked()
	h.mu.Unlock()

	lifecycle.ObserverAttached(context.Background(), h.cfg.Publisher, tick, observerRef(id), lifecycle.ObserverPayload{Remote: remote, Observers: count}, nil)
	return obs
}

// Detach removes obs if it is still the registered observer for its id.
func (h *Hub) Detach(obs *Observer, reason string) {
	if obs == nil {
		return
	}
	h.mu.Lock()
	current, ok := h.observers[obs.ID]
	if !ok || current != obs {
		h.mu.Unlock()
		obs.close()
		return
	}
	delete(h.observers, obs.ID)
	count := len(h.observers)
	h.notifyLocked(count)
	tick := h.sequenceLocked()
	h.mu.Unlock()
	obs.close()

	lifecycle.ObserverDetached(context.Background(), h.cfg.Publisher, tick, observerRef(obs.ID), lifecycle.ObserverPayload{Remote: obs.Remote, Reason: reason, Observers: count}, nil)
}

// notifyLocked runs under h.mu so listeners see counts in order.
func (h *Hub) notifyLocked(count int) {
	h.cfg.Metrics.Store(telemetry.MetricObservers, uint64(count))
	if h.listener != nil {
		h.listener.SetObservers(count)
	}
}

func (h *Hub) sequenceLocked() uint64 {
	if h.listener == nil {
		return 0
	}
	return h.listener.Sequence()
}

// Shutdown closes every attached observer. Their connections detach
// themselves as they wind down.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	targets := make([]*Observer, 0, len(h.observers))
	for _, obs := range h.observers {
		targets = append(targets, obs)
	}
	h.mu.Unlock()
	for _, obs := range targets {
		obs.closeFor(ReasonShutdown)
	}
}

// Count returns the number of attached observers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Broadcast offers frame to every observer. Observers whose buffers are full
// miss this frame.
func (h *Hub) Broadcast(frame []byte) (delivered, dropped int) {
	h.mu.Lock()
	targets := make([]*Observer, 0, len(h.observers))
	for _, obs := range h.observers {
		targets = append(targets, obs)
	}
	h.mu.Unlock()

	for _, obs := range targets {
		select {
		case obs.out <- frame:
			delivered++
		default:
			dropped++
			obs.dropped.Add(1)
			h.reportDrop(obs)
		}
	}
	return delivered, dropped
}

// DroppedTotal reports frames dropped across all observers.
func (h *Hub) DroppedTotal() uint64 {
	return h.dropTotal.Load()
}

func (h *Hub) reportDrop(obs *Observer) {
	h.dropTotal.Add(1)
	h.cfg.Metrics.Add(telemetry.MetricBroadcastDropTotal, 1)
	now := time.Now().UnixNano()
	next := h.lastDropLog.Load()
	if next != 0 && now < next {
		return
	}
	if h.lastDropLog.CompareAndSwap(next, now+h.cfg.DropWarnInterval.Nanoseconds()) {
		h.cfg.Logger.Printf("[hub] observer %s is slow, dropping frames (dropped=%d)", obs.ID, obs.Dropped())
	}
}

func observerRef(id string) logging.EntityRef {
	return logging.EntityRef{ID: id, Kind: logging.EntityKindObserver}
}
