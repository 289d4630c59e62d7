package world

// Footprint is the robot's circular body discretised to a cell radius. The
// same footprint gates planning and motion.
type Footprint struct {
	Radius int
}

// NewFootprint converts a body radius in metres to whole cells, truncating.
func NewFootprint(bodyRadius, resolution float64) Footprint {
	if resolution <= 0 || bodyRadius <= 0 {
		return Footprint{}
	}
	return Footprint{Radius: int(bodyRadius / resolution)}
}

// Blocked reports whether any in-bounds cell within the footprint disc
// centred on c is occupied. Cells beyond the grid edge are not consulted.
func (f Footprint) Blocked(g *Grid, c Cell) bool {
	r := f.Radius
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy > r*r {
				continue
			}
			n := Cell{X: c.X + dx, Y: c.Y + dy}
			if g.InBounds(n) && g.At(n) == Occupied {
				return true
			}
		}
	}
	return false
}

// Occupied reports whether the footprint placed at p overlaps an occupied cell.
func (f Footprint) Occupied(g *Grid, p Point) bool {
	return f.Blocked(g, g.CellOf(p))
}
