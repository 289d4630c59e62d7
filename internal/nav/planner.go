// Package nav plans grid paths and turns them into velocity commands.
package nav

import (
	"container/heap"

	"github.com/AMR-Platform/Interface/internal/world"
)

var neighborOffsets = [...]world.Cell{
	{X: 1, Y: 0},
	{X: -1, Y: 0},
	{X: 0, Y: 1},
	{X: 0, Y: -1},
}

type planNode struct {
	cell   world.Cell
	g      int
	f      int
	index  int
	parent *planNode
}

type planQueue []*planNode

func (pq planQueue) Len() int { return len(pq) }

func (pq planQueue) Less(i, j int) bool {
	if pq[i].f != pq[j].f {
		return pq[i].f < pq[j].f
	}
	return pq[i].g < pq[j].g
}

func (pq planQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *planQueue) Push(x any) {
	item := x.(*planNode)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *planQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

func manhattan(a, b world.Cell) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Plan searches a four-connected path from start to goal whose every cell
// after the start keeps the footprint clear of occupied cells. It returns the
// cell centres from start to goal inclusive, or nil when the goal cannot be
// reached or either endpoint lies outside the grid.
func Plan(g *world.Grid, fp world.Footprint, start, goal world.Point) []world.Point {
	cells := PlanCells(g, fp, g.CellOf(start), g.CellOf(goal))
	if cells == nil {
		return nil
	}
	points := make([]world.Point, len(cells))
	for i, c := range cells {
		points[i] = g.Center(c)
	}
	return points
}

// PlanCells is Plan over cell coordinates.
func PlanCells(g *world.Grid, fp world.Footprint, start, goal world.Cell) []world.Cell {
	if !g.InBounds(start) || !g.InBounds(goal) {
		return nil
	}
	open := &planQueue{}
	heap.Init(open)
	heap.Push(open, &planNode{cell: start, f: manhattan(start, goal)})
	gScore := map[world.Cell]int{start: 0}
	closed := make(map[world.Cell]struct{})

	for open.Len() > 0 {
		current := heap.Pop(open).(*planNode)
		if _, seen := closed[current.cell]; seen {
			continue
		}
		closed[current.cell] = struct{}{}
		if current.cell == goal {
			return reconstruct(current)
		}
		for _, delta := range neighborOffsets {
			next := world.Cell{X: current.cell.X + delta.X, Y: current.cell.Y + delta.Y}
			if !g.InBounds(next) {
				continue
			}
			if _, seen := closed[next]; seen {
				continue
			}
			if fp.Blocked(g, next) {
				continue
			}
			tentative := current.g + 1
			if prev, ok := gScore[next]; ok && tentative >= prev {
				continue
			}
			gScore[next] = tentative
			heap.Push(open, &planNode{
				cell:   next,
				g:      tentative,
				f:      tentative + manhattan(next, goal),
				parent: current,
			})
		}
	}
	return nil
}

func reconstruct(end *planNode) []world.Cell {
	path := make([]world.Cell, 0, end.g+1)
	for node := end; node != nil; node = node.parent {
		path = append(path, node.cell)
	}
	for i := 0; i < len(path)/2; i++ {
		j := len(path) - 1 - i
		path[i], path[j] = path[j], path[i]
	}
	return path
}
