package worker

import (
	"container/heap"
	"sync"
	"time"
)

// jobQueue is a thread-safe priority queue of jobs ordered by ReadyAt,
// the same container/heap-backed shape as the teacher's crawl frontier,
// repurposed from URL priority to job readiness time so KindScheduled
// jobs and backoff-delayed retries both sort correctly against
// immediately-ready jobs.
type jobQueue struct {
	mu     sync.Mutex
	pq     jobHeap
	closed bool
}

func newJobQueue() *jobQueue {
	q := &jobQueue{pq: make(jobHeap, 0, 64)}
	heap.Init(&q.pq)
	return q
}

// Push enqueues job. A no-op once the queue is closed.
func (q *jobQueue) Push(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	heap.Push(&q.pq, job)
}

// TryPop dequeues the earliest-ready job whose ReadyAt has passed, or nil
// if none is ready yet.
func (q *jobQueue) TryPop(now time.Time) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pq.Len() == 0 || q.pq[0].ReadyAt.After(now) {
		return nil
	}
	return heap.Pop(&q.pq).(*Job)
}

func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pq.Len()
}

func (q *jobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

type jobHeap []*Job

func (h jobHeap) Len() int            { return len(h) }
func (h jobHeap) Less(i, j int) bool  { return h[i].ReadyAt.Before(h[j].ReadyAt) }
func (h jobHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x any) { *h = append(*h, x.(*Job)) }
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
