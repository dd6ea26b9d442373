package world

// Obstacle is an axis-aligned rectangle on the X/Z plane that blocks
// navigation. X/Z give the minimum corner; Width and Depth extend along the
// positive axes.
type Obstacle struct {
	ID    string
	X     float64
	Z     float64
	Width float64
	Depth float64
}

// ObstaclesOverlap checks for AABB overlap with optional padding.
func ObstaclesOverlap(a, b Obstacle, padding float64) bool {
	return a.X-padding < b.X+b.Width+padding &&
		a.X+a.Width+padding > b.X-padding &&
		a.Z-padding < b.Z+b.Depth+padding &&
		a.Z+a.Depth+padding > b.Z-padding
}
