package pathing

import (
	"math"

	"rallypoint/server/internal/world"
)

// DefaultSimplifyThreshold is the minimum direction change, in radians, an
// interior waypoint must introduce to survive simplification.
const DefaultSimplifyThreshold = 0.5

// OptimizerConfig toggles and tunes the post-processing pipeline. Each stage
// is independent.
type OptimizerConfig struct {
	Simplify          bool
	Smooth            bool
	FormationOffsets  bool
	SimplifyThreshold float64
}

// DefaultOptimizerConfig enables every stage with the stock threshold.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		Simplify:          true,
		Smooth:            true,
		FormationOffsets:  true,
		SimplifyThreshold: DefaultSimplifyThreshold,
	}
}

// Optimizer post-processes raw waypoint polylines: simplification, smoothing,
// and formation offsetting. Inputs are never mutated; every stage returns
// fresh storage so cached raw paths stay pristine.
type Optimizer struct {
	cfg OptimizerConfig
}

// NewOptimizer constructs an optimizer with the provided configuration.
func NewOptimizer(cfg OptimizerConfig) *Optimizer {
	if cfg.SimplifyThreshold <= 0 {
		cfg.SimplifyThreshold = DefaultSimplifyThreshold
	}
	return &Optimizer{cfg: cfg}
}

// Config returns the active configuration.
func (o *Optimizer) Config() OptimizerConfig {
	if o == nil {
		return OptimizerConfig{}
	}
	return o.cfg
}

// SetConfig replaces the configuration. Effective on the next Optimize call.
func (o *Optimizer) SetConfig(cfg OptimizerConfig) {
	if o == nil {
		return
	}
	if cfg.SimplifyThreshold <= 0 {
		cfg.SimplifyThreshold = DefaultSimplifyThreshold
	}
	o.cfg = cfg
}

// Optimize runs the enabled pipeline stages over the raw path. The offset is
// applied only when the formation stage is enabled and hasOffset is true.
func (o *Optimizer) Optimize(path []world.Vec3, offset world.Vec3, hasOffset bool) []world.Vec3 {
	if o == nil || len(path) == 0 {
		return clonePath(path)
	}
	result := clonePath(path)
	if o.cfg.Simplify {
		result = Simplify(result, o.cfg.SimplifyThreshold)
	}
	if o.cfg.Smooth {
		result = Smooth(result)
	}
	if o.cfg.FormationOffsets && hasOffset {
		result = OffsetPath(result, offset)
	}
	return result
}

// Simplify drops near-collinear interior waypoints. The first and last
// points are always kept; an interior point survives only when the angle
// between its incoming and outgoing segments exceeds the threshold.
func Simplify(path []world.Vec3, threshold float64) []world.Vec3 {
	if len(path) <= 2 {
		return clonePath(path)
	}
	if threshold <= 0 {
		threshold = DefaultSimplifyThreshold
	}
	simplified := make([]world.Vec3, 0, len(path))
	simplified = append(simplified, path[0])
	for i := 1; i < len(path)-1; i++ {
		incoming := path[i].Sub(path[i-1]).Normalized()
		outgoing := path[i+1].Sub(path[i]).Normalized()
		if angleBetween(incoming, outgoing) > threshold {
			simplified = append(simplified, path[i])
		}
	}
	simplified = append(simplified, path[len(path)-1])
	return simplified
}

// Smooth replaces each interior waypoint with (prev + 2*current + next) / 4.
// One pass; endpoints are untouched.
func Smooth(path []world.Vec3) []world.Vec3 {
	if len(path) <= 2 {
		return clonePath(path)
	}
	smoothed := clonePath(path)
	for i := 1; i < len(path)-1; i++ {
		weighted := path[i-1].Add(path[i].Scale(2)).Add(path[i+1])
		smoothed[i] = weighted.Scale(0.25)
	}
	return smoothed
}

// OffsetPath shifts every waypoint by the provided constant vector. Used to
// displace formation members to their slots while keeping path topology
// identical. No obstacle re-check is performed on the shifted path.
func OffsetPath(path []world.Vec3, offset world.Vec3) []world.Vec3 {
	if len(path) == 0 {
		return nil
	}
	shifted := make([]world.Vec3, len(path))
	for i, point := range path {
		shifted[i] = point.Add(offset)
	}
	return shifted
}

// angleBetween reports the angle in radians between two directions. Zero
// vectors contribute no turn.
func angleBetween(a, b world.Vec3) float64 {
	if a.Length() == 0 || b.Length() == 0 {
		return 0
	}
	dot := a.X*b.X + a.Y*b.Y + a.Z*b.Z
	return math.Acos(world.Clamp(dot, -1, 1))
}

func clonePath(path []world.Vec3) []world.Vec3 {
	if len(path) == 0 {
		return nil
	}
	return append([]world.Vec3(nil), path...)
}
