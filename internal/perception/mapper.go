package perception

import (
	"math"

	"github.com/AMR-Platform/Interface/internal/kinematics"
	"github.com/AMR-Platform/Interface/internal/world"
)

// Update counts the cells a scan changed.
type Update struct {
	Freed    int
	Occupied int
}

// Integrate carves free space along every beam and stamps the terminal cell of
// each beam that hit something. Knowledge only grows: occupied cells are never
// freed and free cells never return to unknown.
func Integrate(g *world.Grid, pose kinematics.Pose, scan Scan) Update {
	var out Update
	step := g.Resolution() / 2
	for i, r := range scan.Ranges {
		angle := scan.BeamAngle(i, pose.Yaw)
		cos, sin := math.Cos(angle), math.Sin(angle)
		limit := math.Min(r, scan.MaxRange)
		for k := 0; ; k++ {
			d := float64(k) * step
			if d >= limit {
				break
			}
			if g.MarkFree(g.CellOf(world.Point{X: pose.X + d*cos, Y: pose.Y + d*sin})) {
				out.Freed++
			}
		}
		if r < scan.MaxRange {
			if g.MarkOccupied(g.CellOf(world.Point{X: pose.X + r*cos, Y: pose.Y + r*sin})) {
				out.Occupied++
			}
		}
	}
	return out
}
