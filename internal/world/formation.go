package world

// FormationType identifies the shape a formation arranges its members into.
type FormationType int

const (
	FormationLine    FormationType = iota // side-by-side perpendicular to heading
	FormationWedge                        // V-shape, leader at point
	FormationColumn                       // single file behind leader
	FormationEchelon                      // diagonal line offset to one flank
)

// DefaultSlotSpacing is the gap between adjacent formation slots in world
// units.
const DefaultSlotSpacing = 4.0

// Formation groups a leader with member slots. Slot 0 always belongs to the
// leader and carries a zero offset.
type Formation struct {
	ID       string
	LeaderID string
	Type     FormationType
	Spacing  float64
	Members  []string
}

// Formations resolves formation structure for the movement core. The offset
// for a member is the fixed slot position relative to the leader.
type Formations interface {
	Formation(formationID string) (Formation, bool)
	Membership(agentID string) (string, bool)
	SlotOffset(formationID, agentID string) (Vec3, bool)
}

// FormationTable is the in-memory Formations implementation. Like the agent
// table it is owned by the tick goroutine.
type FormationTable struct {
	formations map[string]*Formation
	membership map[string]string
}

// NewFormationTable constructs an empty formation table.
func NewFormationTable() *FormationTable {
	return &FormationTable{
		formations: make(map[string]*Formation),
		membership: make(map[string]string),
	}
}

// Add registers a formation. The leader is implicitly the first member when
// not already listed.
func (t *FormationTable) Add(formation Formation) {
	if t == nil || formation.ID == "" || formation.LeaderID == "" {
		return
	}
	if formation.Spacing <= 0 {
		formation.Spacing = DefaultSlotSpacing
	}
	found := false
	for _, id := range formation.Members {
		if id == formation.LeaderID {
			found = true
			break
		}
	}
	if !found {
		formation.Members = append([]string{formation.LeaderID}, formation.Members...)
	}
	stored := formation
	t.formations[formation.ID] = &stored
	for _, id := range stored.Members {
		t.membership[id] = formation.ID
	}
}

// Remove drops a formation and its membership records.
func (t *FormationTable) Remove(formationID string) {
	if t == nil {
		return
	}
	formation, ok := t.formations[formationID]
	if !ok {
		return
	}
	for _, id := range formation.Members {
		if t.membership[id] == formationID {
			delete(t.membership, id)
		}
	}
	delete(t.formations, formationID)
}

// Formation returns a copy of the identified formation.
func (t *FormationTable) Formation(formationID string) (Formation, bool) {
	if t == nil {
		return Formation{}, false
	}
	formation, ok := t.formations[formationID]
	if !ok {
		return Formation{}, false
	}
	copied := *formation
	copied.Members = append([]string(nil), formation.Members...)
	return copied, true
}

// Membership reports which formation, if any, the agent belongs to.
func (t *FormationTable) Membership(agentID string) (string, bool) {
	if t == nil {
		return "", false
	}
	id, ok := t.membership[agentID]
	return id, ok
}

// SlotOffset reports the member's fixed offset from the formation leader.
// The leader's own offset is zero.
func (t *FormationTable) SlotOffset(formationID, agentID string) (Vec3, bool) {
	if t == nil {
		return Vec3{}, false
	}
	formation, ok := t.formations[formationID]
	if !ok {
		return Vec3{}, false
	}
	slot := -1
	for i, id := range formation.Members {
		if id == agentID {
			slot = i
			break
		}
	}
	if slot < 0 {
		return Vec3{}, false
	}
	offsets := slotOffsets(formation.Type, formation.Spacing, len(formation.Members))
	return offsets[slot], true
}

// slotOffsets returns the world-space offsets for each slot in a formation
// of count members. Slot 0 is the leader. Offsets are expressed on the X/Z
// plane with forward along -Z and right along +X.
func slotOffsets(ft FormationType, spacing float64, count int) []Vec3 {
	offsets := make([]Vec3, count)
	if count == 0 {
		return offsets
	}
	offsets[0] = Vec3{}

	switch ft {
	case FormationLine:
		// Spread symmetrically: ...-2,-1,0,+1,+2,...
		for i := 1; i < count; i++ {
			side := float64((i+1)/2) * spacing
			if i%2 == 1 {
				side = -side
			}
			offsets[i] = Vec3{X: side}
		}

	case FormationWedge:
		// Members trail behind and spread outward.
		for i := 1; i < count; i++ {
			depth := float64((i+1)/2) * spacing
			side := float64((i+1)/2) * spacing
			if i%2 == 1 {
				side = -side
			}
			offsets[i] = Vec3{X: side, Z: depth}
		}

	case FormationColumn:
		for i := 1; i < count; i++ {
			offsets[i] = Vec3{Z: float64(i) * spacing}
		}

	case FormationEchelon:
		for i := 1; i < count; i++ {
			offsets[i] = Vec3{X: float64(i) * spacing * 0.7, Z: float64(i) * spacing * 0.7}
		}
	}
	return offsets
}

var _ Formations = (*FormationTable)(nil)
