package worker

import (
	"testing"
	"time"

	"github.com/foofork/riptide/internal/types"
)

func TestJobQueueOrdersByReadyAt(t *testing.T) {
	q := newJobQueue()
	now := time.Now()

	late := NewJob("late", KindSingle, []string{"https://example.com/a"}, types.DefaultOptions())
	late.ReadyAt = now.Add(time.Hour)
	early := NewJob("early", KindSingle, []string{"https://example.com/b"}, types.DefaultOptions())
	early.ReadyAt = now.Add(-time.Minute)

	q.Push(late)
	q.Push(early)

	got := q.TryPop(now)
	if got == nil || got.ID != "early" {
		t.Fatalf("TryPop = %+v, want the earlier-ready job first", got)
	}
}

func TestJobQueueTryPopReturnsNilWhenNothingReady(t *testing.T) {
	q := newJobQueue()
	job := NewJob("future", KindScheduled, []string{"https://example.com/a"}, types.DefaultOptions())
	job.ReadyAt = time.Now().Add(time.Hour)
	q.Push(job)

	if got := q.TryPop(time.Now()); got != nil {
		t.Errorf("TryPop = %+v, want nil before ReadyAt", got)
	}
}

func TestJobQueuePushAfterCloseIsNoop(t *testing.T) {
	q := newJobQueue()
	q.Close()
	q.Push(NewJob("x", KindSingle, []string{"https://example.com/a"}, types.DefaultOptions()))

	if q.Len() != 0 {
		t.Errorf("Len() = %d after push on closed queue, want 0", q.Len())
	}
}
