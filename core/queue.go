package core

import (
	"container/heap"
)

const defaultQueueCap = 16

// =============================================================================
// RunQueue: Max-heap of waiting runs with stability (FIFO for same priority)
// =============================================================================

type queueItem struct {
	run      Run
	priority float64
	sequence uint64 // For stability
}

// runHeap implements heap.Interface
type runHeap []*queueItem

func (h runHeap) Len() int { return len(h) }

// Less implements priority logic: High priority first, then Small sequence first (FIFO)
func (h runHeap) Less(i, j int) bool {
	if h[i].priority > h[j].priority {
		return true
	}
	if h[i].priority < h[j].priority {
		return false
	}
	return h[i].sequence < h[j].sequence
}

func (h runHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *runHeap) Push(x any) {
	*h = append(*h, x.(*queueItem))
}

func (h *runHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // Avoid memory leak
	*h = old[0 : n-1]
	return item
}

// RunQueue orders waiting runs by the priority they were pushed with. A
// priority is not updated in place: callers Rebuild the queue instead.
//
// RunQueue is not safe for concurrent use; the owning pool serialises access.
type RunQueue struct {
	pq           runHeap
	nextSequence uint64
}

func NewRunQueue() *RunQueue {
	return &RunQueue{
		pq: make(runHeap, 0, defaultQueueCap),
	}
}

// Push inserts run keyed by priority in O(log n).
func (q *RunQueue) Push(run Run, priority float64) {
	item := &queueItem{
		run:      run,
		priority: priority,
		sequence: q.nextSequence,
	}
	q.nextSequence++

	heap.Push(&q.pq, item)
}

// Pop removes and returns the highest priority run. It returns false when the queue is empty.
func (q *RunQueue) Pop() (Run, bool) {
	if len(q.pq) == 0 {
		return nil, false
	}
	item := heap.Pop(&q.pq).(*queueItem)
	return item.run, true
}

// Peek returns the highest priority run without removing it.
func (q *RunQueue) Peek() (Run, bool) {
	if len(q.pq) == 0 {
		return nil, false
	}
	// 0 is the highest priority item because we defined Less to put highest priority at top
	return q.pq[0].run, true
}

func (q *RunQueue) Len() int {
	return len(q.pq)
}

func (q *RunQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Clear removes all runs from the queue and releases references
func (q *RunQueue) Clear() {
	q.pq = make(runHeap, 0, defaultQueueCap)
	q.nextSequence = 0
}

// Rebuild replaces the contents of the queue with runs keyed by their current
// Priority. Ties keep the order of runs.
func (q *RunQueue) Rebuild(runs []Run) {
	q.pq = make(runHeap, 0, max(len(runs), defaultQueueCap))
	q.nextSequence = 0
	for _, run := range runs {
		q.pq = append(q.pq, &queueItem{
			run:      run,
			priority: run.Priority(),
			sequence: q.nextSequence,
		})
		q.nextSequence++
	}
	heap.Init(&q.pq)
}
