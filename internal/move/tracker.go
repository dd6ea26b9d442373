package move

import (
	"rallypoint/server/internal/world"
)

// MovementState identifies what a tracked agent is doing this tick. An agent
// is always in exactly one state.
type MovementState int

const (
	StateIdle MovementState = iota
	StateMoving
	StateFollowingPath
	StateAvoidingObstacle
	StateFormationMoving
	StateStuck
)

// String returns the wire name of the state.
func (s MovementState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMoving:
		return "moving"
	case StateFollowingPath:
		return "following_path"
	case StateAvoidingObstacle:
		return "avoiding_obstacle"
	case StateFormationMoving:
		return "formation_moving"
	case StateStuck:
		return "stuck"
	default:
		return "unknown"
	}
}

// DefaultArriveThreshold is the distance at which a waypoint counts as
// reached.
const DefaultArriveThreshold = 1.0

// DefaultStallThresholdTicks is how many consecutive non-closing ticks a
// record tolerates before the agent is declared stuck.
const DefaultStallThresholdTicks = 30

// Record tracks one agent's active path. Owned exclusively by the Tracker;
// an agent has at most one record at a time.
type Record struct {
	AgentID       string
	Path          []world.Vec3
	ProgressIndex int
	Destination   world.Vec3
	FormationID   string
	State         MovementState

	lastDistance float64
	stallTicks   int
}

// Controller surfaces the hooks the tracker needs to steer and relocate
// agents during a tick.
type Controller interface {
	Resolve(agentID string) (world.Agent, bool)
	Correction(agentID string, position world.Vec3) world.Vec3
	SetPosition(agentID string, position world.Vec3)
	SetVelocity(agentID string, velocity world.Vec3)
}

// Arrival reports a path completed during an Advance call.
type Arrival struct {
	AgentID     string
	Destination world.Vec3
}

// Stall reports an agent that stopped making progress.
type Stall struct {
	AgentID  string
	Position world.Vec3
}

// TickResult aggregates the terminal transitions of one Advance pass.
type TickResult struct {
	Arrivals []Arrival
	Stalls   []Stall
}

// TrackerConfig tunes waypoint arrival and stall detection.
type TrackerConfig struct {
	ArriveThreshold     float64
	StallThresholdTicks int
}

// DefaultTrackerConfig returns the stock tuning.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		ArriveThreshold:     DefaultArriveThreshold,
		StallThresholdTicks: DefaultStallThresholdTicks,
	}
}

// Tracker owns the per-agent movement table. All mutation happens on the
// tick goroutine.
type Tracker struct {
	cfg     TrackerConfig
	records map[string]*Record
	order   []string
	// states holds last-known state for agents without a record, so a
	// failed request can surface as stuck without inventing a path.
	states map[string]MovementState
}

// NewTracker constructs an empty movement table.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.ArriveThreshold <= 0 {
		cfg.ArriveThreshold = DefaultArriveThreshold
	}
	if cfg.StallThresholdTicks <= 0 {
		cfg.StallThresholdTicks = DefaultStallThresholdTicks
	}
	return &Tracker{
		cfg:     cfg,
		records: make(map[string]*Record),
		states:  make(map[string]MovementState),
	}
}

// Install replaces the agent's record with a fresh one for the provided
// path. Empty paths are rejected.
func (t *Tracker) Install(agentID string, path []world.Vec3, destination world.Vec3, formationID string) bool {
	if t == nil || agentID == "" || len(path) == 0 {
		return false
	}
	state := StateFollowingPath
	if formationID != "" {
		state = StateFormationMoving
	}
	if _, exists := t.records[agentID]; !exists {
		t.order = append(t.order, agentID)
	}
	t.records[agentID] = &Record{
		AgentID:     agentID,
		Path:        append([]world.Vec3(nil), path...),
		Destination: destination,
		FormationID: formationID,
		State:       state,
	}
	delete(t.states, agentID)
	return true
}

// MarkStuck records a stuck state for the agent, dropping any active record.
func (t *Tracker) MarkStuck(agentID string) {
	if t == nil || agentID == "" {
		return
	}
	t.removeRecord(agentID)
	t.states[agentID] = StateStuck
}

// Stop clears the agent back to idle. Idempotent; no arrival fires.
func (t *Tracker) Stop(agentID string) {
	if t == nil || agentID == "" {
		return
	}
	t.removeRecord(agentID)
	delete(t.states, agentID)
}

// Record returns a copy of the agent's active record.
func (t *Tracker) Record(agentID string) (Record, bool) {
	if t == nil {
		return Record{}, false
	}
	record, ok := t.records[agentID]
	if !ok {
		return Record{}, false
	}
	copied := *record
	copied.Path = append([]world.Vec3(nil), record.Path...)
	return copied, true
}

// State reports the agent's movement state; agents without any history are
// idle.
func (t *Tracker) State(agentID string) MovementState {
	if t == nil {
		return StateIdle
	}
	if record, ok := t.records[agentID]; ok {
		return record.State
	}
	if state, ok := t.states[agentID]; ok {
		return state
	}
	return StateIdle
}

// IsMoving reports whether the agent has an active record.
func (t *Tracker) IsMoving(agentID string) bool {
	if t == nil {
		return false
	}
	_, ok := t.records[agentID]
	return ok
}

// Destination returns the agent's current destination.
func (t *Tracker) Destination(agentID string) (world.Vec3, bool) {
	if t == nil {
		return world.Vec3{}, false
	}
	record, ok := t.records[agentID]
	if !ok {
		return world.Vec3{}, false
	}
	return record.Destination, true
}

// ActiveCount reports the number of agents with an active record.
func (t *Tracker) ActiveCount() int {
	if t == nil {
		return 0
	}
	return len(t.records)
}

// Advance runs one tick of movement for every active record: avoidance
// correction, position integration, waypoint arrival, and completion. Agents
// that no longer resolve are skipped this tick and left for Reconcile.
func (t *Tracker) Advance(dt float64, controller Controller) TickResult {
	var result TickResult
	if t == nil || controller == nil || dt <= 0 {
		return result
	}
	for _, agentID := range append([]string(nil), t.order...) {
		record, ok := t.records[agentID]
		if !ok {
			continue
		}
		agent, ok := controller.Resolve(agentID)
		if !ok {
			continue
		}
		if t.step(record, agent, dt, controller) {
			destination := record.Destination
			t.removeRecord(agentID)
			delete(t.states, agentID)
			result.Arrivals = append(result.Arrivals, Arrival{AgentID: agentID, Destination: destination})
			continue
		}
		if record.stallTicks >= t.cfg.StallThresholdTicks {
			position := agent.Position
			t.MarkStuck(agentID)
			result.Stalls = append(result.Stalls, Stall{AgentID: agentID, Position: position})
		}
	}
	return result
}

// step advances one record and reports whether the path completed.
func (t *Tracker) step(record *Record, agent world.Agent, dt float64, controller Controller) bool {
	if record.ProgressIndex >= len(record.Path) {
		return true
	}

	position := agent.Position
	waypoint := record.Path[record.ProgressIndex]
	direction := waypoint.Sub(position).Normalized()
	correction := controller.Correction(record.AgentID, position)
	heading := direction.Add(correction).Normalized()
	if heading.Length() == 0 {
		heading = direction
	}

	baseline := StateFollowingPath
	if record.FormationID != "" {
		baseline = StateFormationMoving
	}
	if correction.Length() > 1e-9 {
		record.State = StateAvoidingObstacle
	} else {
		record.State = baseline
	}

	velocity := heading.Scale(agent.Speed)
	position = position.Add(velocity.Scale(dt))
	controller.SetPosition(record.AgentID, position)
	controller.SetVelocity(record.AgentID, velocity)

	dist := position.DistanceTo(waypoint)
	if dist < t.cfg.ArriveThreshold {
		record.ProgressIndex++
		record.lastDistance = 0
		record.stallTicks = 0
		return record.ProgressIndex >= len(record.Path)
	}

	if record.lastDistance == 0 || dist+1e-6 < record.lastDistance {
		record.lastDistance = dist
		record.stallTicks = 0
	} else {
		record.stallTicks++
	}
	return false
}

// Reconcile drops records for agents the resolver no longer knows about.
func (t *Tracker) Reconcile(resolve func(agentID string) bool) int {
	if t == nil || resolve == nil {
		return 0
	}
	removed := 0
	for _, agentID := range append([]string(nil), t.order...) {
		if resolve(agentID) {
			continue
		}
		t.removeRecord(agentID)
		delete(t.states, agentID)
		removed++
	}
	return removed
}

func (t *Tracker) removeRecord(agentID string) {
	if _, ok := t.records[agentID]; !ok {
		return
	}
	delete(t.records, agentID)
	for i, id := range t.order {
		if id == agentID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}
