package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"rallypoint/server/internal/move"
	"rallypoint/server/internal/nav"
	"rallypoint/server/internal/pathing"
	"rallypoint/server/internal/telemetry"
	"rallypoint/server/internal/world"
	"rallypoint/server/logging"
)

// DefaultMaxRequestsPerTick bounds how many queued path requests one tick
// may process.
const DefaultMaxRequestsPerTick = 10

// DefaultReconcileIntervalTicks is how often the movement table is checked
// for agents that no longer resolve in the registry.
const DefaultReconcileIntervalTicks = 30

const (
	activePathsMetricKey = "movement_active_paths"
	movingUnitsMetricKey = "movement_moving_units"
)

var (
	// ErrUnknownAgent is returned when a request names an agent the
	// registry cannot resolve.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrUnknownFormation is returned when a formation request names a
	// formation the manager cannot resolve.
	ErrUnknownFormation = errors.New("unknown formation")
)

// Config tunes the engine's scheduling, caching, and movement behavior.
type Config struct {
	MaxRequestsPerTick     int
	ReconcileIntervalTicks int
	CacheTTL               time.Duration
	Tracker                move.TrackerConfig
	Avoidance              move.AvoidanceConfig
	Optimizer              pathing.OptimizerConfig
}

// DefaultConfig returns the stock engine tuning.
func DefaultConfig() Config {
	return Config{
		MaxRequestsPerTick:     DefaultMaxRequestsPerTick,
		ReconcileIntervalTicks: DefaultReconcileIntervalTicks,
		CacheTTL:               pathing.DefaultCacheTTL,
		Tracker:                move.DefaultTrackerConfig(),
		Avoidance:              move.DefaultAvoidanceConfig(),
		Optimizer:              pathing.DefaultOptimizerConfig(),
	}
}

// Deps carries the injected collaborators the engine orchestrates.
type Deps struct {
	Nav        nav.Query
	Agents     *world.AgentTable
	Formations world.Formations
	Publisher  logging.Publisher
	Logger     telemetry.Logger
	Metrics    telemetry.Metrics
	Clock      logging.Clock
}

// Statistics is the diagnostics snapshot exposed to callers.
type Statistics struct {
	Tick           uint64  `json:"tick"`
	ActivePaths    int     `json:"activePaths"`
	QueuedRequests int     `json:"queuedRequests"`
	CachedPaths    int     `json:"cachedPaths"`
	MovingUnits    int     `json:"movingUnits"`
	CacheHitRate   float64 `json:"cacheHitRate"`
}

// Engine is the movement-planning core: it drains path requests, computes
// and caches paths, installs them on the movement tracker, and advances
// every tracked agent each tick. All internal state is mutated only by the
// tick goroutine; external callers enqueue requests or read snapshots.
type Engine struct {
	mu sync.Mutex

	cfg        Config
	nav        nav.Query
	agents     *world.AgentTable
	formations world.Formations

	scheduler *Scheduler
	cache     *pathing.Cache
	optimizer *pathing.Optimizer
	avoidance *move.Avoidance
	tracker   *move.Tracker
	outbox    *Outbox

	publisher logging.Publisher
	logger    telemetry.Logger
	metrics   telemetry.Metrics
	clock     logging.Clock

	tick uint64
	// pending holds callback and event deliveries queued during a tick.
	// They run after the mutex is released so a completion callback may
	// re-enter the engine, e.g. to request the next leg.
	pending []func()
}

// NewEngine wires the movement core together.
func NewEngine(cfg Config, deps Deps) *Engine {
	if cfg.MaxRequestsPerTick <= 0 {
		cfg.MaxRequestsPerTick = DefaultMaxRequestsPerTick
	}
	if cfg.ReconcileIntervalTicks <= 0 {
		cfg.ReconcileIntervalTicks = DefaultReconcileIntervalTicks
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = telemetry.NopMetrics{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = logging.SystemClock{}
	}
	agents := deps.Agents
	if agents == nil {
		agents = world.NewAgentTable()
	}
	return &Engine{
		cfg:        cfg,
		nav:        deps.Nav,
		agents:     agents,
		formations: deps.Formations,
		scheduler:  NewScheduler(metrics),
		cache:      pathing.NewCache(cfg.CacheTTL, clock, metrics),
		optimizer:  pathing.NewOptimizer(cfg.Optimizer),
		avoidance:  move.NewAvoidance(agents, cfg.Avoidance),
		tracker:    move.NewTracker(cfg.Tracker),
		outbox:     NewOutbox(),
		publisher:  publisher,
		logger:     deps.Logger,
		metrics:    metrics,
		clock:      clock,
	}
}

// Agents exposes the registry for world setup and tests.
func (e *Engine) Agents() *world.AgentTable {
	if e == nil {
		return nil
	}
	return e.agents
}

// Subscribe registers an outbox subscriber for gameplay events.
func (e *Engine) Subscribe(sub Subscriber) {
	if e == nil {
		return
	}
	e.outbox.Subscribe(sub)
}

// RequestPath enqueues a path computation for the agent and returns the
// request ID immediately. The result arrives via the callback and the event
// outbox once the scheduler drains the request.
func (e *Engine) RequestPath(agentID string, start, target world.Vec3, callback func(Result)) (string, error) {
	if e == nil {
		return "", errors.New("engine not initialized")
	}
	e.mu.Lock()
	_, ok := e.agents.Resolve(agentID)
	e.mu.Unlock()
	if !ok {
		return "", ErrUnknownAgent
	}
	request := Request{
		ID:         uuid.NewString(),
		AgentID:    agentID,
		Start:      start,
		Target:     target,
		Callback:   callback,
		EnqueuedAt: e.clock.Now(),
	}
	e.scheduler.Enqueue(request)
	return request.ID, nil
}

// RequestFormationPath enqueues a path computation for the formation leader.
// When the leader's path resolves, every member receives the same path
// shifted to their slot.
func (e *Engine) RequestFormationPath(formationID string, target world.Vec3) (string, error) {
	if e == nil {
		return "", errors.New("engine not initialized")
	}
	if e.formations == nil {
		return "", ErrUnknownFormation
	}
	e.mu.Lock()
	formation, ok := e.formations.Formation(formationID)
	if !ok {
		e.mu.Unlock()
		return "", ErrUnknownFormation
	}
	leader, ok := e.agents.Resolve(formation.LeaderID)
	e.mu.Unlock()
	if !ok {
		return "", ErrUnknownAgent
	}
	request := Request{
		ID:          uuid.NewString(),
		AgentID:     leader.ID,
		Start:       leader.Position,
		Target:      target,
		FormationID: formationID,
		EnqueuedAt:  e.clock.Now(),
	}
	e.scheduler.Enqueue(request)
	return request.ID, nil
}

// StopUnitMovement clears the agent back to idle. Idempotent.
func (e *Engine) StopUnitMovement(agentID string) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tracker.Stop(agentID)
	e.agents.SetVelocity(agentID, world.Vec3{})
}

// UnitPath returns a copy of the agent's active waypoint sequence.
func (e *Engine) UnitPath(agentID string) ([]world.Vec3, bool) {
	if e == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	record, ok := e.tracker.Record(agentID)
	if !ok {
		return nil, false
	}
	return record.Path, true
}

// UnitMovementState reports the agent's current movement state.
func (e *Engine) UnitMovementState(agentID string) move.MovementState {
	if e == nil {
		return move.StateIdle
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.State(agentID)
}

// IsUnitMoving reports whether the agent has an active path.
func (e *Engine) IsUnitMoving(agentID string) bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.IsMoving(agentID)
}

// UnitDestination returns the agent's current destination.
func (e *Engine) UnitDestination(agentID string) (world.Vec3, bool) {
	if e == nil {
		return world.Vec3{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Destination(agentID)
}

// Statistics snapshots the diagnostics counters.
func (e *Engine) Statistics() Statistics {
	if e == nil {
		return Statistics{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	active := e.tracker.ActiveCount()
	return Statistics{
		Tick:           e.tick,
		ActivePaths:    active,
		QueuedRequests: e.scheduler.Len(),
		CachedPaths:    e.cache.Len(),
		MovingUnits:    active,
		CacheHitRate:   e.cache.HitRate(),
	}
}

// AvoidanceConfig returns the active steering tuning.
func (e *Engine) AvoidanceConfig() move.AvoidanceConfig {
	if e == nil {
		return move.AvoidanceConfig{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.avoidance.Config()
}

// SetAvoidanceConfig replaces the steering tuning. Effective on the next
// tick; in-flight paths are unaffected.
func (e *Engine) SetAvoidanceConfig(cfg move.AvoidanceConfig) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.avoidance.SetConfig(cfg)
}

// OptimizerConfig returns the active post-processing tuning.
func (e *Engine) OptimizerConfig() pathing.OptimizerConfig {
	if e == nil {
		return pathing.OptimizerConfig{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.optimizer.Config()
}

// SetOptimizerConfig replaces the post-processing tuning. Effective on the
// next computation, not retroactive.
func (e *Engine) SetOptimizerConfig(cfg pathing.OptimizerConfig) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.optimizer.SetConfig(cfg)
}

// Advance runs one simulation tick: drain queued requests under the per-tick
// budget, sweep the cache, and advance every tracked agent. Completion
// callbacks and event deliveries queued during the tick fire before Advance
// returns, but only after the engine mutex is released.
func (e *Engine) Advance(tick uint64, dt float64) {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.advanceLocked(tick, dt)
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, deliver := range pending {
		deliver()
	}
}

func (e *Engine) advanceLocked(tick uint64, dt float64) {
	e.tick = tick

	for _, request := range e.scheduler.Drain(e.cfg.MaxRequestsPerTick) {
		e.processRequest(request)
	}

	e.cache.Sweep()

	result := e.tracker.Advance(dt, trackerController{engine: e})
	for _, arrival := range result.Arrivals {
		e.agents.SetVelocity(arrival.AgentID, world.Vec3{})
		e.emit(Event{
			Type:    EventUnitArrived,
			Tick:    tick,
			AgentID: arrival.AgentID,
		}, logging.SeverityInfo, logging.CategoryMovement)
	}
	for _, stall := range result.Stalls {
		e.agents.SetVelocity(stall.AgentID, world.Vec3{})
		position := stall.Position
		e.emit(Event{
			Type:     EventUnitStuck,
			Tick:     tick,
			AgentID:  stall.AgentID,
			Position: &position,
		}, logging.SeverityWarn, logging.CategoryMovement)
	}

	if e.cfg.ReconcileIntervalTicks > 0 && tick%uint64(e.cfg.ReconcileIntervalTicks) == 0 {
		e.tracker.Reconcile(func(agentID string) bool {
			_, ok := e.agents.Resolve(agentID)
			return ok
		})
	}

	active := uint64(e.tracker.ActiveCount())
	e.metrics.Store(activePathsMetricKey, active)
	e.metrics.Store(movingUnitsMetricKey, active)
}

// processRequest resolves one drained request: cache lookup, navigation
// query on miss, optimization, and installation. Failures surface as a
// stuck state plus a path_failed event; the request is not retried.
func (e *Engine) processRequest(request Request) {
	raw, hit := e.cache.Get(request.Start, request.Target)
	if !hit {
		if e.nav != nil {
			raw, _ = e.nav.Query(request.Start, request.Target)
		}
		if len(raw) > 0 {
			// Only the raw query result is cached; optimization is
			// re-applied on every retrieval so formation membership
			// never leaks into shared entries.
			e.cache.Put(request.Start, request.Target, raw)
		}
	}

	if len(raw) == 0 {
		e.tracker.MarkStuck(request.AgentID)
		e.emit(Event{
			Type:      EventPathFailed,
			Tick:      e.tick,
			AgentID:   request.AgentID,
			RequestID: request.ID,
			Reason:    ReasonNoPathFound,
		}, logging.SeverityWarn, logging.CategoryNavigation)
		if callback := request.Callback; callback != nil {
			result := Result{
				RequestID: request.ID,
				AgentID:   request.AgentID,
				Reason:    ReasonNoPathFound,
			}
			e.pending = append(e.pending, func() { callback(result) })
		}
		return
	}

	if request.FormationID != "" {
		e.installFormationPaths(request, raw)
		return
	}

	offset, hasOffset := e.memberOffset(request.AgentID)
	e.installPath(request, request.AgentID, raw, offset, hasOffset, "")
}

// memberOffset resolves the agent's formation slot offset. Lookup failures
// fail open: the path is used unmodified.
func (e *Engine) memberOffset(agentID string) (world.Vec3, bool) {
	if e.formations == nil || !e.optimizer.Config().FormationOffsets {
		return world.Vec3{}, false
	}
	formationID, ok := e.formations.Membership(agentID)
	if !ok {
		return world.Vec3{}, false
	}
	offset, ok := e.formations.SlotOffset(formationID, agentID)
	if !ok {
		return world.Vec3{}, false
	}
	return offset, true
}

// installFormationPaths installs the leader's path on every member, shifted
// to each slot. Members that fail to resolve a slot fail open with the
// unshifted path.
func (e *Engine) installFormationPaths(request Request, raw []world.Vec3) {
	formation, ok := e.formations.Formation(request.FormationID)
	if !ok {
		// Formation vanished between enqueue and drain; treat the
		// request as a plain leader path.
		e.installPath(request, request.AgentID, raw, world.Vec3{}, false, "")
		return
	}
	for _, memberID := range formation.Members {
		if _, ok := e.agents.Resolve(memberID); !ok {
			continue
		}
		offset, hasOffset := e.formations.SlotOffset(request.FormationID, memberID)
		e.installPath(request, memberID, raw, offset, hasOffset, request.FormationID)
	}
}

func (e *Engine) installPath(request Request, agentID string, raw []world.Vec3, offset world.Vec3, hasOffset bool, formationID string) {
	optimized := e.optimizer.Optimize(raw, offset, hasOffset)
	if len(optimized) == 0 {
		return
	}
	destination := optimized[len(optimized)-1]
	e.tracker.Install(agentID, optimized, destination, formationID)
	e.emit(Event{
		Type:      EventPathFound,
		Tick:      e.tick,
		AgentID:   agentID,
		RequestID: request.ID,
		Path:      optimized,
	}, logging.SeverityInfo, logging.CategoryNavigation)
	if callback := request.Callback; callback != nil && agentID == request.AgentID {
		result := Result{
			RequestID: request.ID,
			AgentID:   agentID,
			Path:      optimized,
			OK:        true,
		}
		e.pending = append(e.pending, func() { callback(result) })
	}
}

// emit queues the event for the outbox and the structured log pipeline.
// Delivery happens once Advance drops the engine mutex, so subscribers may
// call back into the engine without deadlocking the tick.
func (e *Engine) emit(event Event, severity logging.Severity, category string) {
	e.pending = append(e.pending, func() {
		e.outbox.Notify(event)
		e.publisher.Publish(context.Background(), logging.Event{
			Type:      logging.EventType(event.Type),
			Tick:      event.Tick,
			Actor:     logging.EntityRef{ID: event.AgentID, Kind: logging.EntityKindAgent},
			Severity:  severity,
			Category:  category,
			Payload:   event,
			RequestID: event.RequestID,
		})
	})
}

// trackerController adapts the engine's registry and avoidance model to the
// tracker's per-tick hooks.
type trackerController struct {
	engine *Engine
}

func (c trackerController) Resolve(agentID string) (world.Agent, bool) {
	return c.engine.agents.Resolve(agentID)
}

func (c trackerController) Correction(agentID string, position world.Vec3) world.Vec3 {
	return c.engine.avoidance.Correction(agentID, position)
}

func (c trackerController) SetPosition(agentID string, position world.Vec3) {
	c.engine.agents.SetPosition(agentID, position)
}

func (c trackerController) SetVelocity(agentID string, velocity world.Vec3) {
	c.engine.agents.SetVelocity(agentID, velocity)
}

var _ move.Controller = trackerController{}
