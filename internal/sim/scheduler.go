package sim

import (
	"context"
	"sync"
	"time"

	"github.com/AMR-Platform/Interface/internal/telemetry"
	"github.com/AMR-Platform/Interface/logging/lifecycle"
	logsim "github.com/AMR-Platform/Interface/logging/simulation"
)

// CommandRejectQueueFull indicates the command buffer is saturated.
const CommandRejectQueueFull = "queue_full"

// SchedulerState is whether cycles are currently being executed.
type SchedulerState int

const (
	Idle SchedulerState = iota
	Active
)

func (s SchedulerState) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// SchedulerConfig tunes the command buffer and wake-up cadence.
type SchedulerConfig struct {
	TickRate        int
	CommandCapacity int
	// WarningStep logs the queue depth each time it crosses a multiple of
	// this value. Zero disables the warning.
	WarningStep int
}

// StepResult describes one executed cycle. Session numbers the active period
// the cycle ran in.
type StepResult struct {
	Tick     uint64
	Session  uint64
	Snapshot Snapshot
	Commands []Command
	Duration time.Duration
	Budget   time.Duration
}

// IdleEvent reports the end of an active period.
type IdleEvent struct {
	Tick    uint64
	Session uint64
}

// SchedulerHooks observe scheduler activity. Hooks run on the driver
// goroutine and must not block.
type SchedulerHooks struct {
	AfterStep     []func(StepResult)
	OnIdle        []func(IdleEvent)
	OnCommandDrop func(reason string, cmd Command)
}

// Scheduler drives the engine at a fixed cadence while at least one observer
// is attached. With no observers it stays idle: nothing is drained, stepped
// or advanced.
type Scheduler struct {
	engine *Engine
	buffer *CommandBuffer
	cfg    SchedulerConfig
	deps   Deps

	mu        sync.Mutex
	hooks     SchedulerHooks
	state     SchedulerState
	observers int
	session   uint64

	overrunStreak uint64
	dropCount     uint64
}

func NewScheduler(engine *Engine, cfg SchedulerConfig, deps Deps) *Scheduler {
	if cfg.TickRate <= 0 {
		cfg.TickRate = engine.TickRate()
	}
	if cfg.CommandCapacity <= 0 {
		cfg.CommandCapacity = 256
	}
	deps = deps.withDefaults()
	return &Scheduler{
		engine: engine,
		buffer: NewCommandBuffer(cfg.CommandCapacity, deps.Metrics),
		cfg:    cfg,
		deps:   deps,
	}
}

// OnAfterStep registers fn to run after every executed cycle.
func (s *Scheduler) OnAfterStep(fn func(StepResult)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.hooks.AfterStep = append(s.hooks.AfterStep, fn)
	s.mu.Unlock()
}

// OnIdle registers fn to run when the last observer leaves and cycles stop.
// It runs on the goroutine that reported the observer count.
func (s *Scheduler) OnIdle(fn func(IdleEvent)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.hooks.OnIdle = append(s.hooks.OnIdle, fn)
	s.mu.Unlock()
}

// OnCommandDrop registers fn to run whenever Enqueue rejects a command.
func (s *Scheduler) OnCommandDrop(fn func(reason string, cmd Command)) {
	s.mu.Lock()
	s.hooks.OnCommandDrop = fn
	s.mu.Unlock()
}

// SetObservers records the attached observer count, switching to Active on
// the first observer and back to Idle when the last one leaves.
func (s *Scheduler) SetObservers(n int) {
	if n < 0 {
		n = 0
	}
	s.mu.Lock()
	prev := s.state
	s.observers = n
	if n > 0 {
		s.state = Active
	} else {
		s.state = Idle
	}
	next := s.state
	if prev == Idle && next == Active {
		s.session++
	}
	session := s.session
	onIdle := make([]func(IdleEvent), len(s.hooks.OnIdle))
	copy(onIdle, s.hooks.OnIdle)
	s.mu.Unlock()

	if prev == next {
		return
	}
	tick := s.engine.Sequence()
	payload := lifecycle.SchedulerPayload{Observers: n}
	if next == Active {
		lifecycle.SchedulerActive(context.Background(), s.deps.Publisher, tick, payload)
		return
	}
	lifecycle.SchedulerIdle(context.Background(), s.deps.Publisher, tick, payload)
	for _, hook := range onIdle {
		hook(IdleEvent{Tick: tick, Session: session})
	}
}

func (s *Scheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) Observers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observers
}

// Pending reports the number of staged commands.
func (s *Scheduler) Pending() int {
	return s.buffer.Len()
}

func (s *Scheduler) Engine() *Engine { return s.engine }

// Sequence returns the number of completed cycles.
func (s *Scheduler) Sequence() uint64 { return s.engine.Sequence() }

// Enqueue stages cmd for the next cycle boundary. It is safe to call from any
// goroutine and never blocks.
func (s *Scheduler) Enqueue(cmd Command) (bool, string) {
	if cmd.IssuedAt.IsZero() {
		cmd.IssuedAt = s.deps.Clock.Now()
	}
	if !s.buffer.Push(cmd) {
		s.reportDrop(cmd)
		return false, CommandRejectQueueFull
	}
	s.deps.Metrics.Add(telemetry.MetricCommandAcceptTotal, 1)
	if step := s.cfg.WarningStep; step > 0 {
		if n := s.buffer.Len(); n >= step && n%step == 0 {
			s.deps.Logger.Printf("[backpressure] command queue depth=%d capacity=%d", n, s.buffer.Capacity())
		}
	}
	return true, ""
}

func (s *Scheduler) reportDrop(cmd Command) {
	s.deps.Metrics.Add(telemetry.MetricCommandRejectTotal, 1)
	s.mu.Lock()
	s.dropCount++
	count := s.dropCount
	onDrop := s.hooks.OnCommandDrop
	s.mu.Unlock()
	if onDrop != nil {
		onDrop(CommandRejectQueueFull, cmd)
	}
	if count&(count-1) == 0 {
		s.deps.Logger.Printf("[backpressure] dropping command origin=%s type=%s count=%d", cmd.OriginID, cmd.Type, count)
		logsim.CommandDropped(context.Background(), s.deps.Publisher, s.engine.Sequence(), robotRef, logsim.CommandDroppedPayload{
			Command: string(cmd.Type),
			Reason:  CommandRejectQueueFull,
		})
	}
}

// Advance performs one wake-up. When idle it does nothing and reports false.
// When active it drains the queue, applies the commands, steps the engine and
// runs the AfterStep hooks.
func (s *Scheduler) Advance() (StepResult, bool) {
	s.mu.Lock()
	state := s.state
	session := s.session
	hooks := make([]func(StepResult), len(s.hooks.AfterStep))
	copy(hooks, s.hooks.AfterStep)
	s.mu.Unlock()
	if state != Active {
		return StepResult{}, false
	}

	budget := time.Second / time.Duration(s.cfg.TickRate)
	start := s.deps.Clock.Now()
	commands := s.buffer.Drain()
	s.engine.Apply(commands)
	s.engine.Step()
	snap := s.engine.Snapshot()
	result := StepResult{
		Tick:     snap.Sequence,
		Session:  session,
		Snapshot: snap,
		Commands: commands,
		Duration: s.deps.Clock.Now().Sub(start),
		Budget:   budget,
	}
	s.checkBudget(result)
	for _, hook := range hooks {
		hook(result)
	}
	return result, true
}

func (s *Scheduler) checkBudget(result StepResult) {
	s.deps.Metrics.Store(telemetry.MetricTickDurationMillis, uint64(result.Duration.Milliseconds()))
	if result.Budget <= 0 || result.Duration <= result.Budget {
		s.overrunStreak = 0
		return
	}
	s.overrunStreak++
	s.deps.Metrics.Add(telemetry.MetricTickOverrunTotal, 1)
	if s.overrunStreak&(s.overrunStreak-1) != 0 {
		return
	}
	logsim.TickBudgetOverrun(context.Background(), s.deps.Publisher, result.Tick, logsim.TickBudgetOverrunPayload{
		DurationMillis: result.Duration.Milliseconds(),
		BudgetMillis:   result.Budget.Milliseconds(),
		Ratio:          float64(result.Duration) / float64(result.Budget),
		Streak:         s.overrunStreak,
	}, nil)
}

// Run wakes at the configured cadence until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.TickRate))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Advance()
		}
	}
}
