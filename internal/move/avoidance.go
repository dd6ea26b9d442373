package move

import (
	"rallypoint/server/internal/world"
)

// Avoidance defaults. Radius is the distance under which neighbors repel,
// SearchRadius bounds the registry scan, and MaxForce clamps the summed
// correction.
const (
	DefaultAvoidanceRadius       = 2.0
	DefaultAvoidanceStrength     = 1.5
	DefaultAvoidanceSearchRadius = 6.0
	DefaultMaxAvoidanceForce     = 3.0
)

// AvoidanceConfig tunes the reciprocal-avoidance steering model.
type AvoidanceConfig struct {
	Radius       float64
	Strength     float64
	SearchRadius float64
	MaxForce     float64
}

// DefaultAvoidanceConfig returns the stock tuning.
func DefaultAvoidanceConfig() AvoidanceConfig {
	return AvoidanceConfig{
		Radius:       DefaultAvoidanceRadius,
		Strength:     DefaultAvoidanceStrength,
		SearchRadius: DefaultAvoidanceSearchRadius,
		MaxForce:     DefaultMaxAvoidanceForce,
	}
}

// Avoidance computes local steering corrections from nearby agents. The
// neighbor scan is linear in the registry's population; acceptable at the
// agent counts this system targets.
type Avoidance struct {
	registry world.Registry
	cfg      AvoidanceConfig
}

// NewAvoidance constructs the steering model over the provided registry.
func NewAvoidance(registry world.Registry, cfg AvoidanceConfig) *Avoidance {
	if cfg.Radius <= 0 {
		cfg.Radius = DefaultAvoidanceRadius
	}
	if cfg.Strength <= 0 {
		cfg.Strength = DefaultAvoidanceStrength
	}
	if cfg.SearchRadius <= 0 {
		cfg.SearchRadius = DefaultAvoidanceSearchRadius
	}
	if cfg.MaxForce <= 0 {
		cfg.MaxForce = DefaultMaxAvoidanceForce
	}
	return &Avoidance{registry: registry, cfg: cfg}
}

// Config returns the active tuning.
func (a *Avoidance) Config() AvoidanceConfig {
	if a == nil {
		return AvoidanceConfig{}
	}
	return a.cfg
}

// SetConfig replaces the tuning. Effective on the next correction.
func (a *Avoidance) SetConfig(cfg AvoidanceConfig) {
	if a == nil {
		return
	}
	if cfg.Radius <= 0 {
		cfg.Radius = DefaultAvoidanceRadius
	}
	if cfg.Strength <= 0 {
		cfg.Strength = DefaultAvoidanceStrength
	}
	if cfg.SearchRadius <= 0 {
		cfg.SearchRadius = DefaultAvoidanceSearchRadius
	}
	if cfg.MaxForce <= 0 {
		cfg.MaxForce = DefaultMaxAvoidanceForce
	}
	a.cfg = cfg
}

// Correction sums repulsion vectors from every neighbor closer than the
// avoidance radius. Each contribution points away from the neighbor with
// magnitude strength * (radius - distance) / radius; the sum is clamped to
// the maximum force. Avoidance is additive steering, not a hard constraint.
func (a *Avoidance) Correction(agentID string, position world.Vec3) world.Vec3 {
	if a == nil || a.registry == nil {
		return world.Vec3{}
	}
	var correction world.Vec3
	for _, neighbor := range a.registry.ListNearby(position, a.cfg.SearchRadius) {
		if neighbor.ID == agentID {
			continue
		}
		dist := position.DistanceTo(neighbor.Position)
		if dist >= a.cfg.Radius {
			continue
		}
		away := position.Sub(neighbor.Position)
		if dist == 0 {
			// Coincident agents repel along +X so the pair separates.
			away = world.Vec3{X: 1}
		}
		magnitude := a.cfg.Strength * (a.cfg.Radius - dist) / a.cfg.Radius
		correction = correction.Add(away.Normalized().Scale(magnitude))
	}
	if length := correction.Length(); length > a.cfg.MaxForce {
		correction = correction.Scale(a.cfg.MaxForce / length)
	}
	return correction
}
