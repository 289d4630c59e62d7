// Package kinematics advances the unicycle model and gates motion against the
// occupancy grid.
package kinematics

import (
	"math"

	"github.com/AMR-Platform/Interface/internal/world"
)

// Pose is the robot position in metres and heading in radians, yaw in (-pi, pi].
type Pose struct {
	X   float64
	Y   float64
	Yaw float64
}

// Point returns the position component of p.
func (p Pose) Point() world.Point {
	return world.Point{X: p.X, Y: p.Y}
}

// Result is the outcome of one integration step.
type Result struct {
	Pose Pose
	// Linear is the linear velocity that was actually applied; zero when the
	// translation was rejected.
	Linear float64
	// Candidate is the position the translation would have reached.
	Candidate world.Point
	Rejected  bool
}

// Integrate applies (v, w) for dt using explicit Euler. Translation uses the
// heading from before the step; heading always updates. A candidate position
// whose footprint overlaps an occupied cell is refused and the robot holds.
func Integrate(g *world.Grid, fp world.Footprint, pose Pose, v, w, dt float64) Result {
	candidate := world.Point{
		X: pose.X + v*math.Cos(pose.Yaw)*dt,
		Y: pose.Y + v*math.Sin(pose.Yaw)*dt,
	}
	res := Result{Linear: v, Candidate: candidate}
	next := Pose{X: candidate.X, Y: candidate.Y}
	if fp.Occupied(g, candidate) {
		res.Rejected = true
		res.Linear = 0
		next.X, next.Y = pose.X, pose.Y
	}
	next.Yaw = WrapAngle(pose.Yaw + w*dt)
	res.Pose = next
	return res
}

// WrapAngle maps a into (-pi, pi].
func WrapAngle(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return 0
	}
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// Drive describes a differential-drive base.
type Drive struct {
	WheelRadius float64
	TrackWidth  float64
}

// DefaultDrive is the 5 cm wheel, 30 cm track base.
func DefaultDrive() Drive {
	return Drive{WheelRadius: 0.05, TrackWidth: 0.30}
}

// WheelSpeeds converts a body twist into left and right wheel RPM.
func (d Drive) WheelSpeeds(v, w float64) (left, right float64) {
	if d.WheelRadius <= 0 {
		return 0, 0
	}
	vr := v + w*d.TrackWidth/2
	vl := v - w*d.TrackWidth/2
	perRev := 2 * math.Pi * d.WheelRadius
	return vl / perRev * 60, vr / perRev * 60
}
