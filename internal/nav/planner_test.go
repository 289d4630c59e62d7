package nav

import (
	"math/rand"
	"testing"

	"github.com/AMR-Platform/Interface/internal/world"
)

// wallScenario returns a 5x5 interior surrounded by an occupied ring, with an
// interior wall cell. Interior cell (i,j) lives at backing cell (i+1,j+1).
func wallScenario(t *testing.T) *world.Grid {
	t.Helper()
	g, err := world.NewGrid(7, 7, 1, world.Point{})
	if err != nil {
		t.Fatalf("NewGrid returned error: %v", err)
	}
	g.MarkOccupied(world.Cell{X: 3, Y: 3})
	return g
}

func TestPlanAroundInteriorWall(t *testing.T) {
	g := wallScenario(t)
	path := PlanCells(g, world.Footprint{}, world.Cell{X: 1, Y: 1}, world.Cell{X: 5, Y: 5})
	if len(path) != 9 {
		t.Fatalf("expected 9 waypoints, got %d: %v", len(path), path)
	}
	if path[0] != (world.Cell{X: 1, Y: 1}) || path[8] != (world.Cell{X: 5, Y: 5}) {
		t.Fatalf("path endpoints wrong: %v", path)
	}
	for i, c := range path {
		if c == (world.Cell{X: 3, Y: 3}) {
			t.Fatalf("path passes through the wall at step %d: %v", i, path)
		}
		if i > 0 && manhattan(path[i-1], c) != 1 {
			t.Fatalf("path is not four-connected at step %d: %v", i, path)
		}
	}
}

func TestPlanReturnsCellCentres(t *testing.T) {
	g := wallScenario(t)
	points := Plan(g, world.Footprint{}, world.Point{X: 1.2, Y: 1.7}, world.Point{X: 5.5, Y: 5.5})
	if len(points) != 9 {
		t.Fatalf("expected 9 waypoints, got %d", len(points))
	}
	if points[0] != (world.Point{X: 1.5, Y: 1.5}) {
		t.Fatalf("expected first waypoint at the start cell centre, got %+v", points[0])
	}
	if points[8] != (world.Point{X: 5.5, Y: 5.5}) {
		t.Fatalf("expected last waypoint at the goal cell centre, got %+v", points[8])
	}
}

func TestPlanUnreachableAndOutOfBounds(t *testing.T) {
	g, err := world.NewGrid(7, 7, 1, world.Point{})
	if err != nil {
		t.Fatalf("NewGrid returned error: %v", err)
	}
	for y := 0; y < 7; y++ {
		g.MarkOccupied(world.Cell{X: 3, Y: y})
	}
	if path := PlanCells(g, world.Footprint{}, world.Cell{X: 1, Y: 1}, world.Cell{X: 5, Y: 5}); path != nil {
		t.Fatalf("expected no path through a full wall, got %v", path)
	}
	if path := PlanCells(g, world.Footprint{}, world.Cell{X: 1, Y: 1}, world.Cell{X: 9, Y: 1}); path != nil {
		t.Fatalf("expected nil for goal outside the grid, got %v", path)
	}
	if path := PlanCells(g, world.Footprint{}, world.Cell{X: -1, Y: 1}, world.Cell{X: 1, Y: 2}); path != nil {
		t.Fatalf("expected nil for start outside the grid, got %v", path)
	}
}

func TestPlanTrivialPath(t *testing.T) {
	g := wallScenario(t)
	path := PlanCells(g, world.Footprint{}, world.Cell{X: 2, Y: 1}, world.Cell{X: 2, Y: 1})
	if len(path) != 1 {
		t.Fatalf("expected single-cell path, got %v", path)
	}
}

// bfsDistance is an independent breadth-first search over the same
// blocked-cell predicate, returning -1 when goal is unreachable.
func bfsDistance(g *world.Grid, fp world.Footprint, start, goal world.Cell) int {
	dist := map[world.Cell]int{start: 0}
	queue := []world.Cell{start}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c == goal {
			return dist[c]
		}
		for _, d := range []world.Cell{{X: 0, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: -1}, {X: -1, Y: 0}} {
			n := world.Cell{X: c.X + d.X, Y: c.Y + d.Y}
			if !g.InBounds(n) || fp.Blocked(g, n) {
				continue
			}
			if _, seen := dist[n]; seen {
				continue
			}
			dist[n] = dist[c] + 1
			queue = append(queue, n)
		}
	}
	return -1
}

func TestPlanMatchesBreadthFirstSearch(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 40; trial++ {
		g, err := world.NewGrid(16, 12, 1, world.Point{})
		if err != nil {
			t.Fatalf("NewGrid returned error: %v", err)
		}
		for i := 0; i < 30; i++ {
			g.MarkOccupied(world.Cell{X: rng.Intn(16), Y: rng.Intn(12)})
		}
		fp := world.Footprint{Radius: trial % 2}
		for pair := 0; pair < 10; pair++ {
			start := world.Cell{X: 1 + rng.Intn(14), Y: 1 + rng.Intn(10)}
			goal := world.Cell{X: 1 + rng.Intn(14), Y: 1 + rng.Intn(10)}
			path := PlanCells(g, fp, start, goal)
			want := bfsDistance(g, fp, start, goal)
			if want < 0 {
				if path != nil {
					t.Fatalf("trial %d: expected no path %v->%v, got %v", trial, start, goal, path)
				}
				continue
			}
			if len(path) != want+1 {
				t.Fatalf("trial %d: %v->%v expected %d waypoints, got %d", trial, start, goal, want+1, len(path))
			}
			for i, c := range path[1:] {
				if fp.Blocked(g, c) {
					t.Fatalf("trial %d: waypoint %d at %v violates the footprint", trial, i+1, c)
				}
			}
		}
	}
}

func TestPlanRespectsFootprintOnWarehouse(t *testing.T) {
	g, err := world.Generate(world.DefaultLayout())
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	fp := world.NewFootprint(0.18, g.Resolution())
	path := Plan(g, fp, world.Point{X: 2, Y: 2}, world.Point{X: 18, Y: 8})
	if len(path) == 0 {
		t.Fatalf("expected a path across the warehouse")
	}
	for i, p := range path[1:] {
		if fp.Occupied(g, p) {
			t.Fatalf("waypoint %d at %+v overlaps an obstacle", i+1, p)
		}
	}
}
