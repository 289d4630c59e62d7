package nav

import (
	"fmt"
	"math"

	"github.com/AMR-Platform/Interface/internal/kinematics"
	"github.com/AMR-Platform/Interface/internal/world"
)

// Mode selects who drives the robot.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// ParseMode accepts the wire names of the navigation modes.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAuto, ModeManual:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Velocity is a body twist. Linear is m/s, Angular is rad/s.
type Velocity struct {
	Linear  float64
	Angular float64
}

// Path is a planned waypoint list and the index of the current target.
// A path is replaced as a whole, never edited.
type Path struct {
	Waypoints []world.Point
	Index     int
}

// Empty reports whether the path has no waypoints.
func (p Path) Empty() bool { return len(p.Waypoints) == 0 }

// Consumed reports whether the target has reached the final waypoint.
func (p Path) Consumed() bool { return p.Index >= len(p.Waypoints)-1 }

// Remaining returns a copy of the unconsumed suffix starting at the target.
func (p Path) Remaining() []world.Point {
	if p.Index >= len(p.Waypoints) {
		return nil
	}
	return append([]world.Point(nil), p.Waypoints[p.Index:]...)
}

// Config tunes the pursuit controller.
type Config struct {
	ProximityThreshold float64 `yaml:"proximityThreshold"`
	Lookahead          int     `yaml:"lookahead"`
	LinearGain         float64 `yaml:"linearGain"`
	AngularGain        float64 `yaml:"angularGain"`
}

func DefaultConfig() Config {
	return Config{
		ProximityThreshold: 0.25,
		Lookahead:          3,
		LinearGain:         0.6,
		AngularGain:        1.4,
	}
}

// ReplanReason explains why the follower asked the planner for a new path.
type ReplanReason string

const (
	ReasonExhausted ReplanReason = "path_exhausted"
	ReasonBlocked   ReplanReason = "path_blocked"
)

// Decision records what the follower did during one Command call.
type Decision struct {
	Replanned bool
	Reason    ReplanReason
	// Waypoints is the length of the path after replanning.
	Waypoints   int
	Unreachable bool
	Advanced    bool
}

// Follower is the navigation mode state machine and pure pursuit controller.
// It is not safe for concurrent use; the engine owns it.
type Follower struct {
	cfg       Config
	footprint world.Footprint

	mode    Mode
	goal    world.Point
	hasGoal bool
	manual  Velocity
	path    Path
}

// NewFollower returns a follower in AUTO mode with no goal.
func NewFollower(cfg Config, fp world.Footprint) *Follower {
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 1
	}
	return &Follower{cfg: cfg, footprint: fp, mode: ModeAuto}
}

func (f *Follower) Mode() Mode { return f.mode }

// Goal returns the current goal and whether one is set.
func (f *Follower) Goal() (world.Point, bool) { return f.goal, f.hasGoal }

func (f *Follower) Manual() Velocity { return f.manual }

func (f *Follower) Path() Path { return f.path }

// SetMode switches between AUTO and MANUAL.
func (f *Follower) SetMode(m Mode) {
	f.mode = m
}

// SetGoal replaces the goal, forces AUTO and drops the current path so the
// next AUTO cycle plans toward the new goal.
func (f *Follower) SetGoal(p world.Point) {
	f.goal = p
	f.hasGoal = true
	f.mode = ModeAuto
	f.path = Path{}
}

// SetManual stores the manual twist. It only takes effect in MANUAL.
func (f *Follower) SetManual(v Velocity) {
	f.manual = v
}

// Command produces the velocity for this cycle from the current grid and pose.
func (f *Follower) Command(g *world.Grid, pose kinematics.Pose) (Velocity, Decision) {
	var d Decision
	if f.mode == ModeManual {
		return f.manual, d
	}

	if f.hasGoal && (f.path.Empty() || f.path.Consumed()) {
		f.replan(g, pose, ReasonExhausted, &d)
	}
	if !f.path.Empty() && f.lookaheadBlocked(g) {
		f.replan(g, pose, ReasonBlocked, &d)
	}
	if f.path.Empty() {
		return Velocity{}, d
	}

	target := f.path.Waypoints[f.path.Index]
	if math.Hypot(target.X-pose.X, target.Y-pose.Y) < f.cfg.ProximityThreshold && !f.path.Consumed() {
		f.path.Index++
		target = f.path.Waypoints[f.path.Index]
		d.Advanced = true
	}
	return f.pursue(pose, target), d
}

func (f *Follower) replan(g *world.Grid, pose kinematics.Pose, reason ReplanReason, d *Decision) {
	f.path = Path{Waypoints: Plan(g, f.footprint, pose.Point(), f.goal)}
	d.Replanned = true
	d.Reason = reason
	d.Waypoints = len(f.path.Waypoints)
	d.Unreachable = f.path.Empty()
}

func (f *Follower) lookaheadBlocked(g *world.Grid) bool {
	end := f.path.Index + f.cfg.Lookahead
	if end > len(f.path.Waypoints) {
		end = len(f.path.Waypoints)
	}
	for _, p := range f.path.Waypoints[f.path.Index:end] {
		if f.footprint.Occupied(g, p) {
			return true
		}
	}
	return false
}

func (f *Follower) pursue(pose kinematics.Pose, target world.Point) Velocity {
	heading := math.Atan2(target.Y-pose.Y, target.X-pose.X)
	err := kinematics.WrapAngle(heading - pose.Yaw)
	return Velocity{
		Linear:  f.cfg.LinearGain * math.Max(0, 1-math.Abs(err)),
		Angular: f.cfg.AngularGain * err,
	}
}
