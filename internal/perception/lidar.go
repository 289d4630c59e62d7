// Package perception simulates the planar range sensor and folds its scans
// into the occupancy grid.
package perception

import (
	"math"

	"github.com/AMR-Platform/Interface/internal/kinematics"
	"github.com/AMR-Platform/Interface/internal/world"
)

// Lidar describes a planar scanner. Angles are radians relative to the robot
// heading.
type Lidar struct {
	Beams          int
	AngleMin       float64
	AngleIncrement float64
	MaxRange       float64
}

// DefaultLidar is a 271 beam, 270 degree scanner with a 10 m range.
func DefaultLidar() Lidar {
	return Lidar{
		Beams:          271,
		AngleMin:       -135 * math.Pi / 180,
		AngleIncrement: math.Pi / 180,
		MaxRange:       10,
	}
}

// Scan is one sweep of range readings, one per beam.
type Scan struct {
	AngleMin       float64
	AngleIncrement float64
	MaxRange       float64
	Ranges         []float64
}

// BeamAngle returns the absolute angle of beam i for a robot heading yaw.
func (s Scan) BeamAngle(i int, yaw float64) float64 {
	return yaw + s.AngleMin + float64(i)*s.AngleIncrement
}

// Scan casts every beam from pose and returns the first range at which the
// beam meets an occupied cell or leaves the grid, or MaxRange on a miss.
func (l Lidar) Scan(g *world.Grid, pose kinematics.Pose) Scan {
	scan := Scan{
		AngleMin:       l.AngleMin,
		AngleIncrement: l.AngleIncrement,
		MaxRange:       l.MaxRange,
		Ranges:         make([]float64, l.Beams),
	}
	step := g.Resolution() / 2
	for i := range scan.Ranges {
		scan.Ranges[i] = castRay(g, pose.X, pose.Y, scan.BeamAngle(i, pose.Yaw), step, l.MaxRange)
	}
	return scan
}

func castRay(g *world.Grid, x, y, angle, step, maxRange float64) float64 {
	cos, sin := math.Cos(angle), math.Sin(angle)
	for k := 0; ; k++ {
		r := float64(k) * step
		if r >= maxRange {
			return maxRange
		}
		c := g.CellOf(world.Point{X: x + r*cos, Y: y + r*sin})
		if !g.InBounds(c) || g.At(c) == world.Occupied {
			return r
		}
	}
}
