// Package notification owns the in-memory delivery queue, the enqueue path
// used by request handlers and the single worker that drains the queue.
package notification

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/hiring-api/internal/model"
)

var ErrQueueClosed = errors.New("notification queue is closed")

// Request is one pending delivery. Subject and bodies are rendered once at
// enqueue time and reused for every attempt.
type Request struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Kind          model.NotificationKind
	Recipient     string
	Subject       string
	HTML          string
	Text          string
	Attempts      int
	MaxAttempts   int
	NextAttemptAt time.Time
	LastError     string

	seq uint64
}

// Queue is a min-heap ordered by (NextAttemptAt, enqueue order). Requests that
// become eligible at the same instant leave in the order they were first
// pushed.
type Queue struct {
	mu     sync.Mutex
	items  requestHeap
	seq    uint64
	closed bool
	depth  prometheus.Gauge
}

// NewQueue creates an empty queue. depth may be nil.
func NewQueue(depth prometheus.Gauge) *Queue {
	return &Queue{depth: depth}
}

// Push adds r. A request pushed back after a deferral keeps its original
// position among requests with the same eligibility time.
func (q *Queue) Push(r *Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if r.seq == 0 {
		q.seq++
		r.seq = q.seq
	}
	heap.Push(&q.items, r)
	q.report()
	return nil
}

// Drain removes and returns every queued request in eligibility order.
func (q *Queue) Drain() []*Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*Request, 0, len(q.items))
	for q.items.Len() > 0 {
		out = append(out, heap.Pop(&q.items).(*Request))
	}
	q.report()
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Close rejects further pushes and returns whatever was still waiting.
func (q *Queue) Close() []*Request {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return q.Drain()
}

func (q *Queue) report() {
	if q.depth != nil {
		q.depth.Set(float64(q.items.Len()))
	}
}

type requestHeap []*Request

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	if !h[i].NextAttemptAt.Equal(h[j].NextAttemptAt) {
		return h[i].NextAttemptAt.Before(h[j].NextAttemptAt)
	}
	return h[i].seq < h[j].seq
}

func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *requestHeap) Push(x interface{}) {
	*h = append(*h, x.(*Request))
}

func (h *requestHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
