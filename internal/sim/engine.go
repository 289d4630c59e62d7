package sim

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AMR-Platform/Interface/internal/kinematics"
	"github.com/AMR-Platform/Interface/internal/nav"
	"github.com/AMR-Platform/Interface/internal/perception"
	"github.com/AMR-Platform/Interface/internal/telemetry"
	"github.com/AMR-Platform/Interface/internal/world"
	"github.com/AMR-Platform/Interface/logging"
	lognav "github.com/AMR-Platform/Interface/logging/navigation"
	logsim "github.com/AMR-Platform/Interface/logging/simulation"
)

// Config parameterises the engine.
type Config struct {
	TickRate     int
	Lidar        perception.Lidar
	Follower     nav.Config
	Drive        kinematics.Drive
	BodyRadius   float64
	StartPose    kinematics.Pose
	BatteryStart float64
	BatteryDrain float64
}

// DefaultConfig starts the robot at (2, 2) facing +x with a full battery.
func DefaultConfig() Config {
	return Config{
		TickRate:     10,
		Lidar:        perception.DefaultLidar(),
		Follower:     nav.DefaultConfig(),
		Drive:        kinematics.DefaultDrive(),
		BodyRadius:   0.18,
		StartPose:    kinematics.Pose{X: 2, Y: 2},
		BatteryStart: 100,
		BatteryDrain: 0.002,
	}
}

var errNilGrid = errors.New("engine requires a grid")

// Engine owns the simulation state and advances it one cycle at a time.
type Engine struct {
	mu        sync.Mutex
	cfg       Config
	deps      Deps
	state     *State
	footprint world.Footprint
	dt        float64
	staticMap []byte
	sequence  atomic.Uint64

	unreachableReported bool
	rejecting           bool
	depletedReported    bool
}

// NewEngine builds an engine over grid. The grid bytes at this point are kept
// as the static map payload.
func NewEngine(grid *world.Grid, cfg Config, deps Deps) (*Engine, error) {
	if grid == nil {
		return nil, errNilGrid
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = 10
	}
	fp := world.NewFootprint(cfg.BodyRadius, grid.Resolution())
	return &Engine{
		cfg:       cfg,
		deps:      deps.withDefaults(),
		footprint: fp,
		dt:        1 / float64(cfg.TickRate),
		staticMap: grid.Bytes(),
		state: &State{
			Grid:     grid,
			Pose:     cfg.StartPose,
			Follower: nav.NewFollower(cfg.Follower, fp),
			Runtime:  Runtime{Battery: cfg.BatteryStart},
		},
	}, nil
}

// StaticMap returns the raw grid captured at construction along with its
// dimensions and resolution.
func (e *Engine) StaticMap() (data []byte, width, height int, resolution float64) {
	g := e.state.Grid
	return e.staticMap, g.Width(), g.Height(), g.Resolution()
}

func (e *Engine) TickRate() int { return e.cfg.TickRate }

// Sequence returns the number of completed cycles without taking the engine lock.
func (e *Engine) Sequence() uint64 { return e.sequence.Load() }

// Apply applies commands in order. Commands missing their payload are skipped.
func (e *Engine) Apply(cmds []Command) {
	if len(cmds) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx := context.Background()
	tick := e.state.Runtime.Sequence
	follower := e.state.Follower
	for _, cmd := range cmds {
		actor := logging.EntityRef{ID: cmd.OriginID, Kind: logging.EntityKindObserver}
		switch cmd.Type {
		case CommandMode:
			if cmd.Mode == nil {
				continue
			}
			prev := follower.Mode()
			follower.SetMode(cmd.Mode.Mode)
			if prev != cmd.Mode.Mode {
				lognav.ModeChanged(ctx, e.deps.Publisher, tick, actor, lognav.ModeChangedPayload{From: string(prev), To: string(cmd.Mode.Mode)}, nil)
			}
		case CommandVelocity:
			if cmd.Velocity == nil {
				continue
			}
			follower.SetManual(nav.Velocity{Linear: cmd.Velocity.Linear, Angular: cmd.Velocity.Angular})
		case CommandGoal:
			if cmd.Goal == nil {
				continue
			}
			follower.SetGoal(world.Point{X: cmd.Goal.X, Y: cmd.Goal.Y})
			e.unreachableReported = false
			lognav.GoalSet(ctx, e.deps.Publisher, tick, actor, lognav.GoalPayload{X: cmd.Goal.X, Y: cmd.Goal.Y}, nil)
		}
	}
}

// Step runs one cycle: sense, map, decide, integrate, then advance the
// runtime counters.
func (e *Engine) Step() {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx := context.Background()
	s := e.state
	tick := s.Runtime.Sequence + 1

	s.Scan = e.cfg.Lidar.Scan(s.Grid, s.Pose)
	perception.Integrate(s.Grid, s.Pose, s.Scan)

	cmd, decision := s.Follower.Command(s.Grid, s.Pose)
	e.reportDecision(ctx, tick, decision)

	res := kinematics.Integrate(s.Grid, e.footprint, s.Pose, cmd.Linear, cmd.Angular, e.dt)
	if res.Rejected && !e.rejecting {
		e.deps.Metrics.Add(telemetry.MetricMotionRejectedTotal, 1)
		lognav.MotionRejected(ctx, e.deps.Publisher, tick, robotRef, lognav.MotionRejectedPayload{
			X:          s.Pose.X,
			Y:          s.Pose.Y,
			CandidateX: res.Candidate.X,
			CandidateY: res.Candidate.Y,
		}, nil)
	}
	e.rejecting = res.Rejected

	s.Pose = res.Pose
	s.Commanded = cmd
	s.Effective = nav.Velocity{Linear: res.Linear, Angular: cmd.Angular}
	s.Collision = res.Rejected
	s.SimTime += time.Duration(e.dt * float64(time.Second))

	s.Runtime.Sequence = tick
	e.sequence.Store(tick)
	s.Runtime.Battery = math.Max(0, s.Runtime.Battery-e.cfg.BatteryDrain)
	if s.Runtime.Battery == 0 && !e.depletedReported {
		e.depletedReported = true
		logsim.BatteryDepleted(ctx, e.deps.Publisher, tick, robotRef)
	}
	e.deps.Metrics.Add(telemetry.MetricTicksTotal, 1)
}

func (e *Engine) reportDecision(ctx context.Context, tick uint64, d nav.Decision) {
	if !d.Replanned {
		return
	}
	e.deps.Metrics.Add(telemetry.MetricReplanTotal, 1)
	goal, _ := e.state.Follower.Goal()
	if d.Unreachable {
		if !e.unreachableReported {
			e.unreachableReported = true
			lognav.GoalUnreachable(ctx, e.deps.Publisher, tick, robotRef, lognav.GoalPayload{X: goal.X, Y: goal.Y}, nil)
		}
		return
	}
	e.unreachableReported = false
	lognav.Replanned(ctx, e.deps.Publisher, tick, robotRef, lognav.ReplannedPayload{
		Reason:    string(d.Reason),
		Waypoints: d.Waypoints,
		GoalX:     goal.X,
		GoalY:     goal.Y,
	}, nil)
}

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.snapshot(e.deps.Clock.Now(), e.cfg.Drive)
}
