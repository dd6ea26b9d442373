package sim

import (
	"sync"

	"rallypoint/server/internal/telemetry"
)

const (
	schedulerQueueMetricKey   = "path_request_queue_length"
	schedulerDrainedMetricKey = "path_requests_drained_total"
)

// Scheduler holds pending path requests in an unbounded FIFO queue. Enqueue
// is O(1) and never blocks; draining happens once per tick with a budget.
// Safe for concurrent producers and a single consumer.
type Scheduler struct {
	mu      sync.Mutex
	queue   []Request
	metrics telemetry.Metrics
}

// NewScheduler constructs an empty scheduler.
func NewScheduler(metrics telemetry.Metrics) *Scheduler {
	if metrics == nil {
		metrics = telemetry.NopMetrics{}
	}
	return &Scheduler{metrics: metrics}
}

// Enqueue appends a request to the queue.
func (s *Scheduler) Enqueue(request Request) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, request)
	s.metrics.Store(schedulerQueueMetricKey, uint64(len(s.queue)))
	s.mu.Unlock()
}

// Drain pops up to max requests in enqueue order. A non-positive max drains
// nothing.
func (s *Scheduler) Drain(max int) []Request {
	if s == nil || max <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	n := max
	if n > len(s.queue) {
		n = len(s.queue)
	}
	drained := make([]Request, n)
	copy(drained, s.queue[:n])
	remaining := copy(s.queue, s.queue[n:])
	for i := remaining; i < len(s.queue); i++ {
		s.queue[i] = Request{}
	}
	s.queue = s.queue[:remaining]
	s.metrics.Add(schedulerDrainedMetricKey, uint64(n))
	s.metrics.Store(schedulerQueueMetricKey, uint64(remaining))
	return drained
}

// Len reports the number of pending requests.
func (s *Scheduler) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
