package sim

import (
	"time"

	"rallypoint/server/internal/world"
)

// Request captures one path computation intent. Immutable once enqueued;
// consumed exactly once by the scheduler.
type Request struct {
	ID          string
	AgentID     string
	Start       world.Vec3
	Target      world.Vec3
	FormationID string
	// Priority is carried for future use; draining is strictly FIFO.
	Priority   int
	Callback   func(Result)
	EnqueuedAt time.Time
}

// Result is delivered to the request callback when the scheduler processes
// the request.
type Result struct {
	RequestID string
	AgentID   string
	Path      []world.Vec3
	OK        bool
	Reason    string
}

// Failure reasons surfaced through Result and path_failed events.
const (
	ReasonNoPathFound = "no path found"
	ReasonNoAgent     = "unknown agent"
)
