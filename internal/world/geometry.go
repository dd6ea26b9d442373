package world

import "math"

// Vec3 represents a point in world space. Navigation is planar: paths are
// computed over X/Z while Y carries terrain height through unchanged.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

// Add returns the component-wise sum of two vectors.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns the component-wise difference of two vectors.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Scale returns the vector multiplied by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Length reports the Euclidean magnitude of the vector.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalized returns a unit-length copy of the vector, or the zero vector
// when the input has no magnitude.
func (v Vec3) Normalized() Vec3 {
	length := v.Length()
	if length == 0 {
		return Vec3{}
	}
	return v.Scale(1 / length)
}

// DistanceTo reports the Euclidean distance between two points.
func (v Vec3) DistanceTo(o Vec3) float64 {
	return v.Sub(o).Length()
}

// PlanarDistanceTo reports the distance between two points ignoring Y.
func (v Vec3) PlanarDistanceTo(o Vec3) float64 {
	return math.Hypot(o.X-v.X, o.Z-v.Z)
}

// Clamp limits value to the range [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// CircleRectOverlap reports whether a circle on the X/Z plane intersects an
// obstacle rectangle.
func CircleRectOverlap(cx, cz, radius float64, obs Obstacle) bool {
	closestX := Clamp(cx, obs.X, obs.X+obs.Width)
	closestZ := Clamp(cz, obs.Z, obs.Z+obs.Depth)
	dx := cx - closestX
	dz := cz - closestZ
	return dx*dx+dz*dz < radius*radius
}
