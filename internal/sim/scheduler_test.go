package sim

import (
	"fmt"
	"sync"
	"testing"
)

func TestSchedulerDrainsInFIFOOrder(t *testing.T) {
	scheduler := NewScheduler(nil)
	for i := 0; i < 5; i++ {
		scheduler.Enqueue(Request{ID: fmt.Sprintf("r%d", i)})
	}

	drained := scheduler.Drain(3)
	if len(drained) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(drained))
	}
	for i, request := range drained {
		if want := fmt.Sprintf("r%d", i); request.ID != want {
			t.Fatalf("request %d = %s, want %s", i, request.ID, want)
		}
	}
	if scheduler.Len() != 2 {
		t.Fatalf("expected 2 pending, got %d", scheduler.Len())
	}

	rest := scheduler.Drain(10)
	if len(rest) != 2 || rest[0].ID != "r3" || rest[1].ID != "r4" {
		t.Fatalf("remainder out of order: %+v", rest)
	}
}

func TestSchedulerDeliversAtMostOnce(t *testing.T) {
	scheduler := NewScheduler(nil)
	scheduler.Enqueue(Request{ID: "r0"})

	if got := scheduler.Drain(5); len(got) != 1 {
		t.Fatalf("expected 1 request, got %d", len(got))
	}
	if got := scheduler.Drain(5); got != nil {
		t.Fatalf("drained request reappeared: %+v", got)
	}
}

func TestSchedulerDrainNonPositiveBudget(t *testing.T) {
	scheduler := NewScheduler(nil)
	scheduler.Enqueue(Request{ID: "r0"})
	if got := scheduler.Drain(0); got != nil {
		t.Fatalf("zero budget must drain nothing, got %+v", got)
	}
	if scheduler.Len() != 1 {
		t.Fatalf("request lost under zero budget, len=%d", scheduler.Len())
	}
}

func TestSchedulerConcurrentEnqueue(t *testing.T) {
	scheduler := NewScheduler(nil)
	var wg sync.WaitGroup
	const producers = 8
	const perProducer = 50
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				scheduler.Enqueue(Request{ID: fmt.Sprintf("p%d-%d", p, i)})
			}
		}(p)
	}
	wg.Wait()

	if scheduler.Len() != producers*perProducer {
		t.Fatalf("expected %d pending, got %d", producers*perProducer, scheduler.Len())
	}
	total := 0
	for {
		batch := scheduler.Drain(64)
		if len(batch) == 0 {
			break
		}
		total += len(batch)
	}
	if total != producers*perProducer {
		t.Fatalf("drained %d of %d requests", total, producers*perProducer)
	}
}
