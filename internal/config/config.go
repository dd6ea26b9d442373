package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"rallypoint/server/internal/move"
	"rallypoint/server/internal/nav"
	"rallypoint/server/internal/pathing"
	"rallypoint/server/internal/sim"
	"rallypoint/server/internal/world"
)

// Config is the on-disk server configuration. Zero values fall back to the
// package defaults of the component they tune.
type Config struct {
	ListenAddr         string  `yaml:"listen_addr"`
	TickRate           int     `yaml:"tick_rate"`
	CatchupMaxTicks    int     `yaml:"catchup_max_ticks"`
	MaxRequestsPerTick int     `yaml:"max_requests_per_tick"`
	CacheTTLSeconds    float64 `yaml:"cache_ttl_seconds"`

	World      WorldConfig       `yaml:"world"`
	Avoidance  AvoidanceConfig   `yaml:"avoidance"`
	Optimizer  OptimizerConfig   `yaml:"optimizer"`
	Tracker    TrackerConfig     `yaml:"tracker"`
	Logging    LoggingConfig     `yaml:"logging"`
	Agents     []AgentConfig     `yaml:"agents"`
	Formations []FormationConfig `yaml:"formations"`
}

// WorldConfig sizes the navigable area and its walkability grid.
type WorldConfig struct {
	Width       float64          `yaml:"width"`
	Depth       float64          `yaml:"depth"`
	CellSize    float64          `yaml:"cell_size"`
	AgentRadius float64          `yaml:"agent_radius"`
	Obstacles   []ObstacleConfig `yaml:"obstacles"`
}

// ObstacleConfig places one rectangular blocker on the X/Z plane.
type ObstacleConfig struct {
	ID    string  `yaml:"id"`
	X     float64 `yaml:"x"`
	Z     float64 `yaml:"z"`
	Width float64 `yaml:"width"`
	Depth float64 `yaml:"depth"`
}

// AgentConfig seeds one agent into the registry at startup.
type AgentConfig struct {
	ID    string  `yaml:"id"`
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Z     float64 `yaml:"z"`
	Speed float64 `yaml:"speed"`
	Team  string  `yaml:"team"`
}

// FormationConfig seeds one formation at startup. Shape is one of line,
// wedge, column, echelon.
type FormationConfig struct {
	ID      string   `yaml:"id"`
	Leader  string   `yaml:"leader"`
	Shape   string   `yaml:"shape"`
	Spacing float64  `yaml:"spacing"`
	Members []string `yaml:"members"`
}

// AvoidanceConfig mirrors move.AvoidanceConfig for the config file.
type AvoidanceConfig struct {
	Radius       float64 `yaml:"radius"`
	Strength     float64 `yaml:"strength"`
	SearchRadius float64 `yaml:"search_radius"`
	MaxForce     float64 `yaml:"max_force"`
}

// OptimizerConfig mirrors pathing.OptimizerConfig for the config file.
type OptimizerConfig struct {
	Simplify          *bool   `yaml:"simplify"`
	Smooth            *bool   `yaml:"smooth"`
	FormationOffsets  *bool   `yaml:"formation_offsets"`
	SimplifyThreshold float64 `yaml:"simplify_threshold"`
}

// TrackerConfig mirrors move.TrackerConfig for the config file.
type TrackerConfig struct {
	ArriveThreshold     float64 `yaml:"arrive_threshold"`
	StallThresholdTicks int     `yaml:"stall_threshold_ticks"`
}

// LoggingConfig selects sinks and their options.
type LoggingConfig struct {
	Sinks    []string `yaml:"sinks"`
	UseColor bool     `yaml:"use_color"`
	JSONPath string   `yaml:"json_path"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		ListenAddr:         ":8080",
		TickRate:           sim.DefaultTickRate,
		CatchupMaxTicks:    4,
		MaxRequestsPerTick: sim.DefaultMaxRequestsPerTick,
		CacheTTLSeconds:    pathing.DefaultCacheTTL.Seconds(),
		World: WorldConfig{
			Width:       256,
			Depth:       256,
			CellSize:    nav.DefaultCellSize,
			AgentRadius: nav.DefaultAgentRadius,
		},
		Avoidance: AvoidanceConfig{
			Radius:       move.DefaultAvoidanceRadius,
			Strength:     move.DefaultAvoidanceStrength,
			SearchRadius: move.DefaultAvoidanceSearchRadius,
			MaxForce:     move.DefaultMaxAvoidanceForce,
		},
		Optimizer: OptimizerConfig{
			SimplifyThreshold: pathing.DefaultSimplifyThreshold,
		},
		Tracker: TrackerConfig{
			ArriveThreshold:     move.DefaultArriveThreshold,
			StallThresholdTicks: move.DefaultStallThresholdTicks,
		},
		Logging: LoggingConfig{
			Sinks:    []string{"console"},
			UseColor: true,
		},
	}
}

// Load reads and decodes the YAML file at path over the defaults. A missing
// path returns the defaults untouched.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// CacheTTL converts the configured TTL into a duration.
func (c Config) CacheTTL() time.Duration {
	if c.CacheTTLSeconds <= 0 {
		return pathing.DefaultCacheTTL
	}
	return time.Duration(c.CacheTTLSeconds * float64(time.Second))
}

// EngineConfig assembles the engine tuning from the file values.
func (c Config) EngineConfig() sim.Config {
	engine := sim.DefaultConfig()
	if c.MaxRequestsPerTick > 0 {
		engine.MaxRequestsPerTick = c.MaxRequestsPerTick
	}
	engine.CacheTTL = c.CacheTTL()
	engine.Avoidance = c.AvoidanceConfig()
	engine.Optimizer = c.OptimizerConfig()
	engine.Tracker = c.TrackerConfig()
	return engine
}

// AvoidanceConfig assembles the steering tuning from the file values.
func (c Config) AvoidanceConfig() move.AvoidanceConfig {
	cfg := move.DefaultAvoidanceConfig()
	if c.Avoidance.Radius > 0 {
		cfg.Radius = c.Avoidance.Radius
	}
	if c.Avoidance.Strength > 0 {
		cfg.Strength = c.Avoidance.Strength
	}
	if c.Avoidance.SearchRadius > 0 {
		cfg.SearchRadius = c.Avoidance.SearchRadius
	}
	if c.Avoidance.MaxForce > 0 {
		cfg.MaxForce = c.Avoidance.MaxForce
	}
	return cfg
}

// OptimizerConfig assembles the post-processing tuning from the file
// values. Stage toggles default to enabled when omitted.
func (c Config) OptimizerConfig() pathing.OptimizerConfig {
	cfg := pathing.DefaultOptimizerConfig()
	if c.Optimizer.Simplify != nil {
		cfg.Simplify = *c.Optimizer.Simplify
	}
	if c.Optimizer.Smooth != nil {
		cfg.Smooth = *c.Optimizer.Smooth
	}
	if c.Optimizer.FormationOffsets != nil {
		cfg.FormationOffsets = *c.Optimizer.FormationOffsets
	}
	if c.Optimizer.SimplifyThreshold > 0 {
		cfg.SimplifyThreshold = c.Optimizer.SimplifyThreshold
	}
	return cfg
}

// TrackerConfig assembles the movement tuning from the file values.
func (c Config) TrackerConfig() move.TrackerConfig {
	cfg := move.DefaultTrackerConfig()
	if c.Tracker.ArriveThreshold > 0 {
		cfg.ArriveThreshold = c.Tracker.ArriveThreshold
	}
	if c.Tracker.StallThresholdTicks > 0 {
		cfg.StallThresholdTicks = c.Tracker.StallThresholdTicks
	}
	return cfg
}

// GridConfig assembles the walkability grid tuning from the file values.
func (c Config) GridConfig() nav.GridConfig {
	return nav.GridConfig{
		CellSize:    c.World.CellSize,
		AgentRadius: c.World.AgentRadius,
	}
}

// WorldObstacles converts the configured blockers into world obstacles.
func (c Config) WorldObstacles() []world.Obstacle {
	if len(c.World.Obstacles) == 0 {
		return nil
	}
	obstacles := make([]world.Obstacle, 0, len(c.World.Obstacles))
	for _, obs := range c.World.Obstacles {
		obstacles = append(obstacles, world.Obstacle{
			ID:    obs.ID,
			X:     obs.X,
			Z:     obs.Z,
			Width: obs.Width,
			Depth: obs.Depth,
		})
	}
	return obstacles
}

// FormationShape maps the config shape name onto the formation type.
// Unknown names fall back to line.
func FormationShape(name string) world.FormationType {
	switch name {
	case "wedge":
		return world.FormationWedge
	case "column":
		return world.FormationColumn
	case "echelon":
		return world.FormationEchelon
	default:
		return world.FormationLine
	}
}
