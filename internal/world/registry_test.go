package world

import "testing"

func TestAgentTableResolveReturnsCopy(t *testing.T) {
	table := NewAgentTable()
	table.Add(Agent{ID: "u1", Position: Vec3{X: 1}, Speed: 5})

	agent, ok := table.Resolve("u1")
	if !ok {
		t.Fatal("expected agent to resolve")
	}
	agent.Position.X = 99
	again, _ := table.Resolve("u1")
	if again.Position.X != 1 {
		t.Fatalf("resolve leaked internal state: %+v", again.Position)
	}
}

func TestAgentTableListNearby(t *testing.T) {
	table := NewAgentTable()
	table.Add(Agent{ID: "near", Position: Vec3{X: 1}})
	table.Add(Agent{ID: "edge", Position: Vec3{X: 5}})
	table.Add(Agent{ID: "far", Position: Vec3{X: 20}})

	nearby := table.ListNearby(Vec3{}, 5)
	if len(nearby) != 2 {
		t.Fatalf("expected 2 neighbors, got %d", len(nearby))
	}
	if nearby[0].ID != "near" || nearby[1].ID != "edge" {
		t.Fatalf("expected insertion order, got %s then %s", nearby[0].ID, nearby[1].ID)
	}
}

func TestAgentTableRemove(t *testing.T) {
	table := NewAgentTable()
	table.Add(Agent{ID: "u1"})
	table.Add(Agent{ID: "u2"})
	table.Remove("u1")

	if _, ok := table.Resolve("u1"); ok {
		t.Fatal("removed agent still resolves")
	}
	if table.Len() != 1 {
		t.Fatalf("expected 1 agent, got %d", table.Len())
	}
	// Removing twice is a no-op.
	table.Remove("u1")
	if table.Len() != 1 {
		t.Fatalf("double remove changed table size to %d", table.Len())
	}
}

func TestAgentTableSetPositionAndVelocity(t *testing.T) {
	table := NewAgentTable()
	table.Add(Agent{ID: "u1"})
	table.SetPosition("u1", Vec3{X: 2, Z: 3})
	table.SetVelocity("u1", Vec3{X: 1})

	agent, _ := table.Resolve("u1")
	if agent.Position != (Vec3{X: 2, Z: 3}) {
		t.Fatalf("position not applied: %+v", agent.Position)
	}
	if agent.Velocity != (Vec3{X: 1}) {
		t.Fatalf("velocity not applied: %+v", agent.Velocity)
	}
	// Unknown IDs are ignored.
	table.SetPosition("ghost", Vec3{X: 9})
}
