package sim

import (
	"time"

	"rallypoint/server/logging"
)

// DefaultTickRate is the stock simulation frequency in ticks per second.
const DefaultTickRate = 15

// LoopConfig tunes the fixed-timestep runner.
type LoopConfig struct {
	TickRate        int
	CatchupMaxTicks int
}

// LoopStepResult describes one completed tick for telemetry hooks.
type LoopStepResult struct {
	Tick         uint64
	Now          time.Time
	Delta        float64
	Duration     time.Duration
	Budget       time.Duration
	ClampedDelta bool
}

// LoopHooks lets callers observe the loop without owning it.
type LoopHooks struct {
	AfterStep func(LoopStepResult)
}

// Loop drives the engine at a fixed tick rate, clamping the delta when the
// process falls behind.
type Loop struct {
	engine *Engine
	cfg    LoopConfig
	hooks  LoopHooks
	clock  logging.Clock
	tick   uint64
}

// NewLoop wraps the provided engine.
func NewLoop(engine *Engine, cfg LoopConfig, hooks LoopHooks) *Loop {
	if engine == nil {
		return nil
	}
	return &Loop{
		engine: engine,
		cfg:    cfg,
		hooks:  hooks,
		clock:  engine.clock,
	}
}

// Tick reports the last completed tick number.
func (l *Loop) Tick() uint64 {
	if l == nil {
		return 0
	}
	return l.tick
}

// Step advances the engine by one tick with the provided delta. Exposed for
// deterministic tests and headless drivers.
func (l *Loop) Step(dt float64) LoopStepResult {
	if l == nil {
		return LoopStepResult{}
	}
	l.tick++
	now := l.clock.Now()
	start := now
	l.engine.Advance(l.tick, dt)
	return LoopStepResult{
		Tick:     l.tick,
		Now:      now,
		Delta:    dt,
		Duration: l.clock.Now().Sub(start),
	}
}

// Run drives the fixed-timestep loop until the stop channel closes.
func (l *Loop) Run(stop <-chan struct{}) {
	if l == nil {
		return
	}
	tickRate := l.cfg.TickRate
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()

	last := l.clock.Now()
	budgetSeconds := 1.0 / float64(tickRate)
	maxDt := budgetSeconds
	if l.cfg.CatchupMaxTicks > 1 {
		maxDt = budgetSeconds * float64(l.cfg.CatchupMaxTicks)
	}
	budgetDuration := time.Second / time.Duration(tickRate)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			now := l.clock.Now()
			dt := now.Sub(last).Seconds()
			clamped := false
			if dt <= 0 {
				dt = budgetSeconds
			} else if dt > maxDt {
				dt = maxDt
				clamped = true
			}
			last = now

			result := l.Step(dt)
			result.Budget = budgetDuration
			result.ClampedDelta = clamped

			if l.hooks.AfterStep != nil {
				l.hooks.AfterStep(result)
			}
		}
	}
}
