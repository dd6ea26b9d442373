package nav

import "rallypoint/server/internal/world"

// Query answers raw start/target path lookups. Implementations may wrap a
// grid search, a navigation mesh, or anything else that yields a waypoint
// polyline.
type Query interface {
	Query(start, target world.Vec3) ([]world.Vec3, bool)
}

// QueryFunc adapts plain functions into the Query interface.
type QueryFunc func(start, target world.Vec3) ([]world.Vec3, bool)

// Query implements Query for QueryFunc.
func (f QueryFunc) Query(start, target world.Vec3) ([]world.Vec3, bool) {
	if f == nil {
		return nil, false
	}
	return f(start, target)
}

// GridQuery adapts a walkability grid to the Query interface.
type GridQuery struct {
	grid *Grid
}

// NewGridQuery wraps the provided grid.
func NewGridQuery(grid *Grid) *GridQuery {
	return &GridQuery{grid: grid}
}

// Query implements Query by running A* over the wrapped grid.
func (q *GridQuery) Query(start, target world.Vec3) ([]world.Vec3, bool) {
	if q == nil || q.grid == nil {
		return nil, false
	}
	return q.grid.FindPath(start, target)
}

var _ Query = (*GridQuery)(nil)
