package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rallypoint/server/internal/move"
	"rallypoint/server/internal/nav"
	"rallypoint/server/internal/world"
	"rallypoint/server/logging"
)

type engineFixture struct {
	engine     *Engine
	agents     *world.AgentTable
	formations *world.FormationTable
	events     []Event
	queries    int
	now        time.Time
}

func newEngineFixture(t *testing.T, navPath []world.Vec3) *engineFixture {
	t.Helper()
	fixture := &engineFixture{
		agents:     world.NewAgentTable(),
		formations: world.NewFormationTable(),
		now:        time.Unix(5000, 0),
	}
	query := nav.QueryFunc(func(start, target world.Vec3) ([]world.Vec3, bool) {
		fixture.queries++
		if navPath == nil {
			return nil, false
		}
		return append([]world.Vec3(nil), navPath...), true
	})
	fixture.engine = NewEngine(DefaultConfig(), Deps{
		Nav:        query,
		Agents:     fixture.agents,
		Formations: fixture.formations,
		Clock:      logging.ClockFunc(func() time.Time { return fixture.now }),
	})
	fixture.engine.Subscribe(SubscriberFunc(func(event Event) {
		fixture.events = append(fixture.events, event)
	}))
	return fixture
}

func (f *engineFixture) eventsOfType(eventType EventType) []Event {
	var matched []Event
	for _, event := range f.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

func TestRequestPathUnknownAgent(t *testing.T) {
	fixture := newEngineFixture(t, []world.Vec3{{X: 2}})
	_, err := fixture.engine.RequestPath("ghost", world.Vec3{}, world.Vec3{X: 2}, nil)
	require.ErrorIs(t, err, ErrUnknownAgent)
}

func TestRequestPathDeliversResult(t *testing.T) {
	fixture := newEngineFixture(t, []world.Vec3{{X: 2}, {X: 2, Z: 5}})
	fixture.agents.Add(world.Agent{ID: "u1", Speed: 5})

	var result Result
	requestID, err := fixture.engine.RequestPath("u1", world.Vec3{}, world.Vec3{X: 2, Z: 5}, func(r Result) {
		result = r
	})
	require.NoError(t, err)
	require.NotEmpty(t, requestID)

	// Nothing happens until the tick drains the queue.
	assert.False(t, fixture.engine.IsUnitMoving("u1"))

	fixture.engine.Advance(1, 1.0/15)

	require.True(t, result.OK)
	assert.Equal(t, requestID, result.RequestID)
	assert.Equal(t, "u1", result.AgentID)
	require.NotEmpty(t, result.Path)
	assert.Equal(t, world.Vec3{X: 2, Z: 5}, result.Path[len(result.Path)-1])

	assert.True(t, fixture.engine.IsUnitMoving("u1"))
	assert.Equal(t, move.StateFollowingPath, fixture.engine.UnitMovementState("u1"))

	destination, ok := fixture.engine.UnitDestination("u1")
	require.True(t, ok)
	assert.Equal(t, world.Vec3{X: 2, Z: 5}, destination)

	found := fixture.eventsOfType(EventPathFound)
	require.Len(t, found, 1)
	assert.Equal(t, requestID, found[0].RequestID)
	assert.Equal(t, "u1", found[0].AgentID)
}

func TestRequestPathFailureMarksStuck(t *testing.T) {
	fixture := newEngineFixture(t, nil)
	fixture.agents.Add(world.Agent{ID: "u1", Speed: 5})

	var result Result
	requestID, err := fixture.engine.RequestPath("u1", world.Vec3{}, world.Vec3{X: 50}, func(r Result) {
		result = r
	})
	require.NoError(t, err)

	fixture.engine.Advance(1, 1.0/15)

	assert.False(t, result.OK)
	assert.Equal(t, ReasonNoPathFound, result.Reason)
	assert.False(t, fixture.engine.IsUnitMoving("u1"))
	assert.Equal(t, move.StateStuck, fixture.engine.UnitMovementState("u1"))

	failed := fixture.eventsOfType(EventPathFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, requestID, failed[0].RequestID)
	assert.Equal(t, ReasonNoPathFound, failed[0].Reason)
}

func TestCallbackMayChainNextRequest(t *testing.T) {
	fixture := newEngineFixture(t, []world.Vec3{{X: 2}})
	fixture.agents.Add(world.Agent{ID: "u1", Speed: 5})

	var followUp string
	_, err := fixture.engine.RequestPath("u1", world.Vec3{}, world.Vec3{X: 2}, func(Result) {
		followUp, _ = fixture.engine.RequestPath("u1", world.Vec3{X: 2}, world.Vec3{X: 4}, nil)
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		fixture.engine.Advance(1, 1.0/15)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Advance did not return while a callback re-entered the engine")
	}

	require.NotEmpty(t, followUp, "chained request was not accepted")
	assert.Equal(t, 1, fixture.engine.Statistics().QueuedRequests)

	fixture.engine.Advance(2, 1.0/15)
	found := fixture.eventsOfType(EventPathFound)
	require.Len(t, found, 2)
	assert.Equal(t, followUp, found[1].RequestID)
}

func TestRepeatQueryServedFromCache(t *testing.T) {
	fixture := newEngineFixture(t, []world.Vec3{{X: 2}, {X: 2, Z: 5}})
	fixture.agents.Add(world.Agent{ID: "u1", Speed: 5})
	fixture.agents.Add(world.Agent{ID: "u2", Speed: 5, Position: world.Vec3{X: 0.5}})

	_, err := fixture.engine.RequestPath("u1", world.Vec3{}, world.Vec3{X: 2, Z: 5}, nil)
	require.NoError(t, err)
	_, err = fixture.engine.RequestPath("u2", world.Vec3{X: 0.5}, world.Vec3{X: 2.2, Z: 5.9}, nil)
	require.NoError(t, err)

	fixture.engine.Advance(1, 1.0/15)

	assert.Equal(t, 1, fixture.queries, "second request should hit the cache")
	assert.True(t, fixture.engine.IsUnitMoving("u1"))
	assert.True(t, fixture.engine.IsUnitMoving("u2"))
}

func TestCacheExpiresBetweenTicks(t *testing.T) {
	fixture := newEngineFixture(t, []world.Vec3{{X: 2}})
	fixture.agents.Add(world.Agent{ID: "u1", Speed: 5})

	_, err := fixture.engine.RequestPath("u1", world.Vec3{}, world.Vec3{X: 2}, nil)
	require.NoError(t, err)
	fixture.engine.Advance(1, 1.0/15)
	require.Equal(t, 1, fixture.queries)

	fixture.now = fixture.now.Add(3 * time.Second)
	_, err = fixture.engine.RequestPath("u1", world.Vec3{}, world.Vec3{X: 2}, nil)
	require.NoError(t, err)
	fixture.engine.Advance(2, 1.0/15)

	assert.Equal(t, 2, fixture.queries, "expired entry must trigger a fresh query")
}

func TestFormationPathShiftsMembers(t *testing.T) {
	fixture := newEngineFixture(t, []world.Vec3{{X: 2}, {X: 2, Z: 5}})
	fixture.agents.Add(world.Agent{ID: "l", Speed: 5})
	fixture.agents.Add(world.Agent{ID: "m1", Speed: 5, Position: world.Vec3{X: -2}})
	fixture.formations.Add(world.Formation{
		ID:       "f1",
		LeaderID: "l",
		Type:     world.FormationLine,
		Spacing:  2,
		Members:  []string{"m1"},
	})

	_, err := fixture.engine.RequestFormationPath("f1", world.Vec3{X: 2, Z: 5})
	require.NoError(t, err)

	fixture.engine.Advance(1, 1.0/15)

	leaderPath, ok := fixture.engine.UnitPath("l")
	require.True(t, ok)
	memberPath, ok := fixture.engine.UnitPath("m1")
	require.True(t, ok)
	require.Len(t, memberPath, len(leaderPath))
	for i := range leaderPath {
		assert.Equal(t, leaderPath[i].Add(world.Vec3{X: -2}), memberPath[i])
	}
	assert.Equal(t, move.StateFormationMoving, fixture.engine.UnitMovementState("l"))
	assert.Equal(t, move.StateFormationMoving, fixture.engine.UnitMovementState("m1"))
}

func TestRequestFormationPathUnknownFormation(t *testing.T) {
	fixture := newEngineFixture(t, []world.Vec3{{X: 2}})
	_, err := fixture.engine.RequestFormationPath("nope", world.Vec3{X: 2})
	require.ErrorIs(t, err, ErrUnknownFormation)
}

func TestStopUnitMovement(t *testing.T) {
	fixture := newEngineFixture(t, []world.Vec3{{X: 20}})
	fixture.agents.Add(world.Agent{ID: "u1", Speed: 5})

	_, err := fixture.engine.RequestPath("u1", world.Vec3{}, world.Vec3{X: 20}, nil)
	require.NoError(t, err)
	fixture.engine.Advance(1, 1.0/15)
	require.True(t, fixture.engine.IsUnitMoving("u1"))

	fixture.engine.StopUnitMovement("u1")
	assert.False(t, fixture.engine.IsUnitMoving("u1"))
	assert.Equal(t, move.StateIdle, fixture.engine.UnitMovementState("u1"))
	agent, _ := fixture.agents.Resolve("u1")
	assert.Equal(t, world.Vec3{}, agent.Velocity)
	// Idempotent.
	fixture.engine.StopUnitMovement("u1")
}

func TestArrivalEmitsEventAndZeroesVelocity(t *testing.T) {
	fixture := newEngineFixture(t, []world.Vec3{{X: 2}})
	fixture.agents.Add(world.Agent{ID: "u1", Speed: 5})

	_, err := fixture.engine.RequestPath("u1", world.Vec3{}, world.Vec3{X: 2}, nil)
	require.NoError(t, err)

	var arrived bool
	for tick := uint64(1); tick <= 30 && !arrived; tick++ {
		fixture.engine.Advance(tick, 1.0/15)
		arrived = len(fixture.eventsOfType(EventUnitArrived)) > 0
	}
	require.True(t, arrived, "agent never arrived")
	assert.False(t, fixture.engine.IsUnitMoving("u1"))
	agent, _ := fixture.agents.Resolve("u1")
	assert.Equal(t, world.Vec3{}, agent.Velocity)
}

func TestStatisticsSnapshot(t *testing.T) {
	fixture := newEngineFixture(t, []world.Vec3{{X: 20}})
	fixture.agents.Add(world.Agent{ID: "u1", Speed: 1})

	_, err := fixture.engine.RequestPath("u1", world.Vec3{}, world.Vec3{X: 20}, nil)
	require.NoError(t, err)

	stats := fixture.engine.Statistics()
	assert.Equal(t, 1, stats.QueuedRequests)
	assert.Equal(t, 0, stats.ActivePaths)

	fixture.engine.Advance(1, 1.0/15)
	stats = fixture.engine.Statistics()
	assert.Equal(t, uint64(1), stats.Tick)
	assert.Equal(t, 0, stats.QueuedRequests)
	assert.Equal(t, 1, stats.ActivePaths)
	assert.Equal(t, 1, stats.CachedPaths)
}

func TestRuntimeConfigSwap(t *testing.T) {
	fixture := newEngineFixture(t, []world.Vec3{{X: 2}})

	avoidance := fixture.engine.AvoidanceConfig()
	avoidance.Radius = 7
	fixture.engine.SetAvoidanceConfig(avoidance)
	assert.Equal(t, 7.0, fixture.engine.AvoidanceConfig().Radius)

	optimizer := fixture.engine.OptimizerConfig()
	optimizer.Smooth = false
	fixture.engine.SetOptimizerConfig(optimizer)
	assert.False(t, fixture.engine.OptimizerConfig().Smooth)
}
