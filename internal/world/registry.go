package world

// Agent captures the registry's view of a single mobile unit.
type Agent struct {
	ID       string
	Position Vec3
	Velocity Vec3
	Speed    float64
	Team     string
}

// Registry resolves agent identity and proximity queries for the movement
// core. Injecting it keeps the core free of global lookups and independently
// testable.
type Registry interface {
	Resolve(agentID string) (Agent, bool)
	ListNearby(position Vec3, radius float64) []Agent
}

// AgentTable is the in-memory Registry used by the simulation. It is owned
// by the tick goroutine; mutation outside the tick callback is not supported.
type AgentTable struct {
	agents map[string]*Agent
	order  []string
}

// NewAgentTable constructs an empty agent table.
func NewAgentTable() *AgentTable {
	return &AgentTable{agents: make(map[string]*Agent)}
}

// Add registers an agent, replacing any existing entry with the same ID.
func (t *AgentTable) Add(agent Agent) {
	if t == nil || agent.ID == "" {
		return
	}
	if _, exists := t.agents[agent.ID]; !exists {
		t.order = append(t.order, agent.ID)
	}
	stored := agent
	t.agents[agent.ID] = &stored
}

// Remove drops an agent from the table.
func (t *AgentTable) Remove(agentID string) {
	if t == nil {
		return
	}
	if _, exists := t.agents[agentID]; !exists {
		return
	}
	delete(t.agents, agentID)
	for i, id := range t.order {
		if id == agentID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Resolve returns a copy of the agent's current state.
func (t *AgentTable) Resolve(agentID string) (Agent, bool) {
	if t == nil {
		return Agent{}, false
	}
	agent, ok := t.agents[agentID]
	if !ok {
		return Agent{}, false
	}
	return *agent, true
}

// ListNearby returns copies of every agent within radius of position,
// in insertion order. Linear scan; there is no spatial index.
func (t *AgentTable) ListNearby(position Vec3, radius float64) []Agent {
	if t == nil || radius <= 0 {
		return nil
	}
	var nearby []Agent
	for _, id := range t.order {
		agent := t.agents[id]
		if agent.Position.DistanceTo(position) <= radius {
			nearby = append(nearby, *agent)
		}
	}
	return nearby
}

// SetPosition moves an agent to the provided position.
func (t *AgentTable) SetPosition(agentID string, position Vec3) {
	if t == nil {
		return
	}
	if agent, ok := t.agents[agentID]; ok {
		agent.Position = position
	}
}

// SetVelocity records an agent's velocity for the current tick.
func (t *AgentTable) SetVelocity(agentID string, velocity Vec3) {
	if t == nil {
		return
	}
	if agent, ok := t.agents[agentID]; ok {
		agent.Velocity = velocity
	}
}

// Len reports the number of registered agents.
func (t *AgentTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.agents)
}

// All returns copies of every registered agent in insertion order.
func (t *AgentTable) All() []Agent {
	if t == nil {
		return nil
	}
	agents := make([]Agent, 0, len(t.order))
	for _, id := range t.order {
		agents = append(agents, *t.agents[id])
	}
	return agents
}

var _ Registry = (*AgentTable)(nil)
