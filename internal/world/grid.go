package world

import (
	"errors"
	"fmt"
	"math"
)

// CellState is the knowledge held about one grid cell. The byte values are
// the ones carried in the raw map payload.
type CellState uint8

const (
	Unknown  CellState = 0
	Free     CellState = 1
	Occupied CellState = 255
)

func (s CellState) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Free:
		return "free"
	case Occupied:
		return "occupied"
	default:
		return fmt.Sprintf("cell(%d)", uint8(s))
	}
}

// Cell addresses a grid cell by column (X) and row (Y).
type Cell struct {
	X int
	Y int
}

// Point is a metric position in the world frame.
type Point struct {
	X float64
	Y float64
}

// ErrInvalidGrid is returned when grid dimensions or resolution are unusable.
var ErrInvalidGrid = errors.New("invalid grid")

// Grid is a fixed-size occupancy grid stored row-major. Knowledge only ever
// grows: Free never reverts to Unknown and Occupied never reverts at all.
type Grid struct {
	width      int
	height     int
	resolution float64
	origin     Point
	cells      []CellState
}

// NewGrid allocates a grid of unknown cells with an occupied border ring.
// origin is the metric coordinate of the lower corner of cell (0,0).
func NewGrid(width, height int, resolution float64, origin Point) (*Grid, error) {
	if width < 3 || height < 3 {
		return nil, fmt.Errorf("%w: dimensions %dx%d below 3x3", ErrInvalidGrid, width, height)
	}
	if !(resolution > 0) || math.IsInf(resolution, 0) {
		return nil, fmt.Errorf("%w: resolution %v", ErrInvalidGrid, resolution)
	}
	g := &Grid{
		width:      width,
		height:     height,
		resolution: resolution,
		origin:     origin,
		cells:      make([]CellState, width*height),
	}
	for x := 0; x < width; x++ {
		g.cells[g.index(x, 0)] = Occupied
		g.cells[g.index(x, height-1)] = Occupied
	}
	for y := 0; y < height; y++ {
		g.cells[g.index(0, y)] = Occupied
		g.cells[g.index(width-1, y)] = Occupied
	}
	return g, nil
}

func (g *Grid) Width() int          { return g.width }
func (g *Grid) Height() int         { return g.height }
func (g *Grid) Resolution() float64 { return g.resolution }
func (g *Grid) Origin() Point       { return g.origin }

func (g *Grid) index(x, y int) int {
	return y*g.width + x
}

// InBounds reports whether c addresses a cell of the grid.
func (g *Grid) InBounds(c Cell) bool {
	return g != nil && c.X >= 0 && c.Y >= 0 && c.X < g.width && c.Y < g.height
}

// At returns the state of c. Cells outside the grid read as Occupied.
func (g *Grid) At(c Cell) CellState {
	if !g.InBounds(c) {
		return Occupied
	}
	return g.cells[g.index(c.X, c.Y)]
}

// MarkFree records c as free. It only upgrades Unknown cells and reports
// whether the cell changed.
func (g *Grid) MarkFree(c Cell) bool {
	if !g.InBounds(c) {
		return false
	}
	idx := g.index(c.X, c.Y)
	if g.cells[idx] != Unknown {
		return false
	}
	g.cells[idx] = Free
	return true
}

// MarkOccupied records c as occupied and reports whether the cell changed.
func (g *Grid) MarkOccupied(c Cell) bool {
	if !g.InBounds(c) {
		return false
	}
	idx := g.index(c.X, c.Y)
	if g.cells[idx] == Occupied {
		return false
	}
	g.cells[idx] = Occupied
	return true
}

// CellOf returns the cell containing p. The result may lie outside the grid.
func (g *Grid) CellOf(p Point) Cell {
	return Cell{
		X: int(math.Floor((p.X - g.origin.X) / g.resolution)),
		Y: int(math.Floor((p.Y - g.origin.Y) / g.resolution)),
	}
}

// Center returns the metric centre of c.
func (g *Grid) Center(c Cell) Point {
	return Point{
		X: g.origin.X + (float64(c.X)+0.5)*g.resolution,
		Y: g.origin.Y + (float64(c.Y)+0.5)*g.resolution,
	}
}

// Bytes returns a copy of the raw row-major cell buffer.
func (g *Grid) Bytes() []byte {
	out := make([]byte, len(g.cells))
	for i, s := range g.cells {
		out[i] = byte(s)
	}
	return out
}

// Counts tallies cells per state.
func (g *Grid) Counts() (unknown, free, occupied int) {
	for _, s := range g.cells {
		switch s {
		case Free:
			free++
		case Occupied:
			occupied++
		default:
			unknown++
		}
	}
	return unknown, free, occupied
}

// Clone returns an independent copy of the grid.
func (g *Grid) Clone() *Grid {
	if g == nil {
		return nil
	}
	clone := *g
	clone.cells = append([]CellState(nil), g.cells...)
	return &clone
}
