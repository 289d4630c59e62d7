package world

import (
	"errors"
	"testing"
)

func TestNewGridMarksBorder(t *testing.T) {
	g, err := NewGrid(5, 4, 0.1, Point{})
	if err != nil {
		t.Fatalf("NewGrid returned error: %v", err)
	}
	for y := 0; y < g.Height(); y++ {
		for x := 0; x < g.Width(); x++ {
			border := x == 0 || y == 0 || x == g.Width()-1 || y == g.Height()-1
			state := g.At(Cell{X: x, Y: y})
			if border && state != Occupied {
				t.Fatalf("expected border cell (%d,%d) occupied, got %s", x, y, state)
			}
			if !border && state != Unknown {
				t.Fatalf("expected interior cell (%d,%d) unknown, got %s", x, y, state)
			}
		}
	}
}

func TestNewGridRejectsBadInput(t *testing.T) {
	if _, err := NewGrid(2, 5, 0.1, Point{}); !errors.Is(err, ErrInvalidGrid) {
		t.Fatalf("expected ErrInvalidGrid for narrow grid, got %v", err)
	}
	if _, err := NewGrid(5, 5, 0, Point{}); !errors.Is(err, ErrInvalidGrid) {
		t.Fatalf("expected ErrInvalidGrid for zero resolution, got %v", err)
	}
}

func TestMarkingIsMonotonic(t *testing.T) {
	g, err := NewGrid(4, 4, 1, Point{})
	if err != nil {
		t.Fatalf("NewGrid returned error: %v", err)
	}
	c := Cell{X: 1, Y: 1}

	if !g.MarkFree(c) {
		t.Fatalf("expected unknown cell to become free")
	}
	if g.MarkFree(c) {
		t.Fatalf("expected second MarkFree to be a no-op")
	}
	if !g.MarkOccupied(c) {
		t.Fatalf("expected free cell to become occupied")
	}
	if g.MarkFree(c) {
		t.Fatalf("occupied cell must not revert to free")
	}
	if got := g.At(c); got != Occupied {
		t.Fatalf("expected occupied, got %s", got)
	}
	if g.MarkFree(Cell{X: -1, Y: 0}) || g.MarkOccupied(Cell{X: 9, Y: 9}) {
		t.Fatalf("out-of-bounds marks must be ignored")
	}
}

func TestCellOfAndCenterRoundTrip(t *testing.T) {
	g, err := NewGrid(10, 10, 0.5, Point{X: -1, Y: 2})
	if err != nil {
		t.Fatalf("NewGrid returned error: %v", err)
	}
	for _, c := range []Cell{{X: 0, Y: 0}, {X: 3, Y: 7}, {X: 9, Y: 9}} {
		if got := g.CellOf(g.Center(c)); got != c {
			t.Fatalf("round trip for %+v produced %+v", c, got)
		}
	}
	if got := g.CellOf(Point{X: -1.01, Y: 2}); got.X != -1 {
		t.Fatalf("expected floor to yield column -1 left of origin, got %+v", got)
	}
}

func TestBytesIsACopy(t *testing.T) {
	g, err := NewGrid(3, 3, 1, Point{})
	if err != nil {
		t.Fatalf("NewGrid returned error: %v", err)
	}
	raw := g.Bytes()
	if raw[4] != byte(Unknown) || raw[0] != byte(Occupied) {
		t.Fatalf("unexpected raw payload %v", raw)
	}
	raw[4] = byte(Occupied)
	if g.At(Cell{X: 1, Y: 1}) != Unknown {
		t.Fatalf("mutating Bytes output changed the grid")
	}
}
