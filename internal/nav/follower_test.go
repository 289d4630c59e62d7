package nav

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AMR-Platform/Interface/internal/kinematics"
	"github.com/AMR-Platform/Interface/internal/world"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode("manual")
	require.NoError(t, err)
	require.Equal(t, ModeManual, m)
	_, err = ParseMode("drive")
	require.Error(t, err)
}

func TestManualModeReturnsLastCommand(t *testing.T) {
	g, err := world.NewGrid(10, 10, 1, world.Point{})
	require.NoError(t, err)
	f := NewFollower(DefaultConfig(), world.Footprint{})
	f.SetMode(ModeManual)
	f.SetManual(Velocity{Linear: 0.5, Angular: -1.2})

	v, d := f.Command(g, kinematics.Pose{X: 2, Y: 2})
	require.Equal(t, Velocity{Linear: 0.5, Angular: -1.2}, v)
	require.False(t, d.Replanned)
}

func TestModePrecedence(t *testing.T) {
	g, err := world.NewGrid(20, 20, 1, world.Point{})
	require.NoError(t, err)
	f := NewFollower(DefaultConfig(), world.Footprint{})
	pose := kinematics.Pose{X: 2.5, Y: 2.5}

	f.SetMode(ModeManual)
	f.SetGoal(world.Point{X: 10.5, Y: 2.5})
	require.Equal(t, ModeAuto, f.Mode(), "a goal forces AUTO")

	auto, _ := f.Command(g, pose)
	f.SetManual(Velocity{Linear: -0.5, Angular: 1.2})
	stillAuto, _ := f.Command(g, pose)
	require.Equal(t, auto, stillAuto, "manual commands are ignored while in AUTO")

	f.SetMode(ModeManual)
	manual, _ := f.Command(g, pose)
	require.Equal(t, Velocity{Linear: -0.5, Angular: 1.2}, manual)
}

func TestNoGoalProducesZeroVelocity(t *testing.T) {
	g, err := world.NewGrid(10, 10, 1, world.Point{})
	require.NoError(t, err)
	f := NewFollower(DefaultConfig(), world.Footprint{})
	v, d := f.Command(g, kinematics.Pose{X: 2, Y: 2})
	require.Equal(t, Velocity{}, v)
	require.False(t, d.Replanned)
}

func TestUnreachableGoalHoldsAndRetries(t *testing.T) {
	g, err := world.NewGrid(10, 10, 1, world.Point{})
	require.NoError(t, err)
	for y := 0; y < 10; y++ {
		g.MarkOccupied(world.Cell{X: 5, Y: y})
	}
	f := NewFollower(DefaultConfig(), world.Footprint{})
	f.SetGoal(world.Point{X: 8.5, Y: 2.5})

	for i := 0; i < 3; i++ {
		v, d := f.Command(g, kinematics.Pose{X: 2.5, Y: 2.5})
		require.Equal(t, Velocity{}, v)
		require.True(t, d.Replanned, "cycle %d should retry planning", i)
		require.True(t, d.Unreachable)
	}
}

func TestReplansWhenLookaheadBlocked(t *testing.T) {
	g, err := world.NewGrid(12, 7, 1, world.Point{})
	require.NoError(t, err)
	f := NewFollower(DefaultConfig(), world.Footprint{})
	pose := kinematics.Pose{X: 1.5, Y: 3.5}
	f.SetGoal(world.Point{X: 9.5, Y: 3.5})

	_, d := f.Command(g, pose)
	require.True(t, d.Replanned)
	require.Equal(t, ReasonExhausted, d.Reason)
	require.Equal(t, 9, d.Waypoints)

	g.MarkOccupied(world.Cell{X: 2, Y: 3})
	_, d = f.Command(g, pose)
	require.True(t, d.Replanned)
	require.Equal(t, ReasonBlocked, d.Reason)
	require.Equal(t, 11, d.Waypoints, "detour adds two lateral steps")
	for _, p := range f.Path().Waypoints {
		require.NotEqual(t, world.Cell{X: 2, Y: 3}, g.CellOf(p))
	}
}

func TestSetGoalDiscardsPath(t *testing.T) {
	g, err := world.NewGrid(12, 7, 1, world.Point{})
	require.NoError(t, err)
	f := NewFollower(DefaultConfig(), world.Footprint{})
	f.SetGoal(world.Point{X: 9.5, Y: 3.5})
	f.Command(g, kinematics.Pose{X: 1.5, Y: 3.5})
	require.False(t, f.Path().Empty())

	f.SetGoal(world.Point{X: 1.5, Y: 5.5})
	require.True(t, f.Path().Empty())
	goal, ok := f.Goal()
	require.True(t, ok)
	require.Equal(t, world.Point{X: 1.5, Y: 5.5}, goal)
}

func TestPursuitAlongStraightLine(t *testing.T) {
	const res = 0.1
	// Offset the origin so the cell containing (0,0) is centred on it and the
	// planned row lies on y = 0.
	g, err := world.NewGrid(80, 21, res, world.Point{X: -1.05, Y: -1.05})
	require.NoError(t, err)
	fp := world.NewFootprint(0.18, res)
	f := NewFollower(DefaultConfig(), fp)
	f.SetGoal(world.Point{X: 5, Y: 0})

	pose := kinematics.Pose{}
	goal := world.Point{X: 5, Y: 0}
	dt := 0.1
	for cycle := 0; cycle < 2000; cycle++ {
		if math.Hypot(goal.X-pose.X, goal.Y-pose.Y) < DefaultConfig().ProximityThreshold {
			return
		}
		v, _ := f.Command(g, pose)
		require.InDelta(t, 0, v.Angular, 1e-6, "cycle %d", cycle)
		require.Greater(t, v.Linear, 0.0, "cycle %d", cycle)

		res := kinematics.Integrate(g, fp, pose, v.Linear, v.Angular, dt)
		require.False(t, res.Rejected, "cycle %d", cycle)
		require.Greater(t, res.Pose.X, pose.X, "cycle %d", cycle)
		pose = res.Pose
	}
	t.Fatalf("robot never reached the goal, final pose %+v", pose)
}
