package nav

import (
	"container/heap"
	"math"

	"rallypoint/server/internal/world"
)

// DefaultCellSize is the edge length of one walkability cell in world units.
const DefaultCellSize = 1.0

// DefaultAgentRadius pads obstacles so paths keep agent bodies clear of
// walls.
const DefaultAgentRadius = 0.45

type gridNeighbor struct {
	col      int
	row      int
	cost     float64
	diagonal bool
}

var gridNeighborOffsets = [...]gridNeighbor{
	{col: 0, row: -1, cost: 1, diagonal: false},
	{col: 1, row: 0, cost: 1, diagonal: false},
	{col: 0, row: 1, cost: 1, diagonal: false},
	{col: -1, row: 0, cost: 1, diagonal: false},
	{col: 1, row: -1, cost: math.Sqrt2, diagonal: true},
	{col: 1, row: 1, cost: math.Sqrt2, diagonal: true},
	{col: -1, row: 1, cost: math.Sqrt2, diagonal: true},
	{col: -1, row: -1, cost: math.Sqrt2, diagonal: true},
}

// Grid is a uniform walkability grid over the X/Z plane. Columns advance
// along +X and rows along +Z.
type Grid struct {
	cols, rows int
	cellSize   float64
	walkable   []bool
	width      float64
	depth      float64
	radius     float64
}

// GridConfig tunes grid construction.
type GridConfig struct {
	CellSize    float64
	AgentRadius float64
}

// NewGrid rasterizes the provided obstacles into a walkability grid covering
// width by depth world units.
func NewGrid(obstacles []world.Obstacle, width, depth float64, cfg GridConfig) *Grid {
	cellSize := cfg.CellSize
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	radius := cfg.AgentRadius
	if radius <= 0 {
		radius = DefaultAgentRadius
	}
	cols := int(math.Ceil(width / cellSize))
	rows := int(math.Ceil(depth / cellSize))
	if cols <= 0 {
		cols = 1
	}
	if rows <= 0 {
		rows = 1
	}
	grid := &Grid{
		cols:     cols,
		rows:     rows,
		cellSize: cellSize,
		walkable: make([]bool, cols*rows),
		width:    width,
		depth:    depth,
		radius:   radius,
	}

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			cx := (float64(col) + 0.5) * cellSize
			cz := (float64(row) + 0.5) * cellSize
			if cx < radius || cx > width-radius || cz < radius || cz > depth-radius {
				continue
			}
			blocked := false
			for _, obs := range obstacles {
				if world.CircleRectOverlap(cx, cz, radius, obs) {
					blocked = true
					break
				}
			}
			if !blocked {
				grid.walkable[row*cols+col] = true
			}
		}
	}

	return grid
}

// Cols reports the number of columns in the grid.
func (g *Grid) Cols() int {
	if g == nil {
		return 0
	}
	return g.cols
}

// Rows reports the number of rows in the grid.
func (g *Grid) Rows() int {
	if g == nil {
		return 0
	}
	return g.rows
}

// CellSize reports the size of each cell in world units.
func (g *Grid) CellSize() float64 {
	if g == nil {
		return 0
	}
	return g.cellSize
}

func (g *Grid) inBounds(col, row int) bool {
	return g != nil && col >= 0 && row >= 0 && col < g.cols && row < g.rows
}

func (g *Grid) index(col, row int) int {
	return row*g.cols + col
}

// IsWalkable reports whether the identified cell is traversable.
func (g *Grid) IsWalkable(col, row int) bool {
	if !g.inBounds(col, row) {
		return false
	}
	return g.walkable[g.index(col, row)]
}

// CellCenter reports the world coordinates at the middle of a cell.
func (g *Grid) CellCenter(col, row int) world.Vec3 {
	return world.Vec3{
		X: (float64(col) + 0.5) * g.cellSize,
		Z: (float64(row) + 0.5) * g.cellSize,
	}
}

func (g *Grid) locate(x, z float64) (int, int, bool) {
	if g == nil || g.cols == 0 || g.rows == 0 {
		return 0, 0, false
	}
	maxX := math.Max(g.width-1e-9, 0)
	maxZ := math.Max(g.depth-1e-9, 0)
	col := int(world.Clamp(x, 0, maxX) / g.cellSize)
	row := int(world.Clamp(z, 0, maxZ) / g.cellSize)
	if !g.inBounds(col, row) {
		return 0, 0, false
	}
	return col, row, true
}

// canTraverseDiagonal prevents cutting corners past blocked cells.
func (g *Grid) canTraverseDiagonal(col, row int, delta gridNeighbor) bool {
	if g == nil || !delta.diagonal {
		return true
	}
	if !g.IsWalkable(col+delta.col, row) {
		return false
	}
	return g.IsWalkable(col, row+delta.row)
}

// closestWalkable breadth-first searches outward for the nearest walkable
// cell, used when a start point sits inside an obstacle footprint.
func (g *Grid) closestWalkable(col, row int) (int, int, bool) {
	if !g.inBounds(col, row) {
		return 0, 0, false
	}
	type cell struct {
		col int
		row int
	}
	visited := map[int]struct{}{g.index(col, row): {}}
	queue := []cell{{col: col, row: row}}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if g.walkable[g.index(current.col, current.row)] {
			return current.col, current.row, true
		}
		for _, delta := range gridNeighborOffsets {
			nc := current.col + delta.col
			nr := current.row + delta.row
			if !g.inBounds(nc, nr) {
				continue
			}
			idx := g.index(nc, nr)
			if _, seen := visited[idx]; seen {
				continue
			}
			visited[idx] = struct{}{}
			queue = append(queue, cell{col: nc, row: nr})
		}
	}
	return 0, 0, false
}

type gridCell struct {
	col int
	row int
}

// octile distance admissible for 8-connected movement.
func octile(a, b gridCell) float64 {
	dx := math.Abs(float64(a.col - b.col))
	dz := math.Abs(float64(a.row - b.row))
	if dx > dz {
		return dx + (math.Sqrt2-1)*dz
	}
	return dz + (math.Sqrt2-1)*dx
}

type searchNode struct {
	cell   gridCell
	g      float64
	f      float64
	index  int
	parent *searchNode
}

type searchQueue []*searchNode

func (q searchQueue) Len() int { return len(q) }

func (q searchQueue) Less(i, j int) bool { return q[i].f < q[j].f }

func (q searchQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *searchQueue) Push(x any) {
	n := len(*q)
	node := x.(*searchNode)
	node.index = n
	*q = append(*q, node)
}

func (q *searchQueue) Pop() any {
	old := *q
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	node.index = -1
	*q = old[:n-1]
	return node
}

func (g *Grid) astar(start, goal gridCell) ([]gridCell, bool) {
	open := &searchQueue{}
	heap.Init(open)
	heap.Push(open, &searchNode{cell: start, g: 0, f: octile(start, goal)})
	gScore := map[int]float64{g.index(start.col, start.row): 0}
	closed := make(map[int]struct{})

	for open.Len() > 0 {
		current := heap.Pop(open).(*searchNode)
		currIdx := g.index(current.cell.col, current.cell.row)
		if _, seen := closed[currIdx]; seen {
			continue
		}
		closed[currIdx] = struct{}{}
		if current.cell == goal {
			return unwindSearch(current), true
		}

		for _, delta := range gridNeighborOffsets {
			if delta.diagonal && !g.canTraverseDiagonal(current.cell.col, current.cell.row, delta) {
				continue
			}
			nc := current.cell.col + delta.col
			nr := current.cell.row + delta.row
			if !g.inBounds(nc, nr) {
				continue
			}
			idx := g.index(nc, nr)
			if !g.walkable[idx] {
				continue
			}
			if _, seen := closed[idx]; seen {
				continue
			}
			tentative := current.g + delta.cost
			if prev, ok := gScore[idx]; ok && tentative >= prev {
				continue
			}
			gScore[idx] = tentative
			next := gridCell{col: nc, row: nr}
			heap.Push(open, &searchNode{
				cell:   next,
				g:      tentative,
				f:      tentative + octile(next, goal),
				parent: current,
			})
		}
	}
	return nil, false
}

func unwindSearch(end *searchNode) []gridCell {
	if end == nil {
		return nil
	}
	cells := make([]gridCell, 0)
	for node := end; node != nil; node = node.parent {
		cells = append(cells, node.cell)
	}
	for i, j := 0, len(cells)-1; i < j; i, j = i+1, j-1 {
		cells[i], cells[j] = cells[j], cells[i]
	}
	return cells
}

// FindPath computes a waypoint polyline from start to target. The returned
// path ends exactly at the target point; the start point is not included.
func (g *Grid) FindPath(start, target world.Vec3) ([]world.Vec3, bool) {
	if g == nil {
		return nil, false
	}
	startCol, startRow, ok := g.locate(start.X, start.Z)
	if !ok {
		return nil, false
	}
	goalCol, goalRow, ok := g.locate(target.X, target.Z)
	if !ok {
		return nil, false
	}
	if !g.walkable[g.index(startCol, startRow)] {
		startCol, startRow, ok = g.closestWalkable(startCol, startRow)
		if !ok {
			return nil, false
		}
	}
	if !g.walkable[g.index(goalCol, goalRow)] {
		return nil, false
	}

	cells, ok := g.astar(gridCell{col: startCol, row: startRow}, gridCell{col: goalCol, row: goalRow})
	if !ok || len(cells) == 0 {
		return nil, false
	}
	if len(cells) == 1 {
		return []world.Vec3{target}, true
	}
	path := make([]world.Vec3, 0, len(cells))
	for i := 1; i < len(cells); i++ {
		path = append(path, g.CellCenter(cells[i].col, cells[i].row))
	}
	last := path[len(path)-1]
	if last.PlanarDistanceTo(target) > g.cellSize*0.5 {
		path = append(path, target)
	} else {
		path[len(path)-1] = target
	}
	return path, true
}
