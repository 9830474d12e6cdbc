package schedule

import (
	"container/heap"
	"time"
)

// Entry is one scheduled check: a condition name and the time it is next due
type Entry struct {
	Name string
	Due  time.Time

	// insertion order, breaks ties between entries due at the same instant
	seq uint64
}

// entryHeap implements heap.Interface ordered by due time, FIFO on ties
type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].Due.Equal(h[j].Due) {
		return h[i].seq < h[j].seq
	}
	return h[i].Due.Before(h[j].Due)
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(*Entry)) }

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Queue is a min-heap of scheduled checks keyed by due time. It is not safe
// for concurrent use; the owning Scheduler serializes access.
type Queue struct {
	heap    entryHeap
	nextSeq uint64
}

// NewQueue creates an empty schedule queue
func NewQueue() *Queue {
	return &Queue{}
}

// Push adds a scheduled check for the named condition
func (q *Queue) Push(name string, due time.Time) {
	e := &Entry{Name: name, Due: due, seq: q.nextSeq}
	q.nextSeq++
	heap.Push(&q.heap, e)
}

// Peek returns the earliest due entry without removing it
func (q *Queue) Peek() (Entry, bool) {
	if len(q.heap) == 0 {
		return Entry{}, false
	}
	return *q.heap[0], true
}

// PopDue removes and returns every entry due at or before now, earliest first
func (q *Queue) PopDue(now time.Time) []Entry {
	var due []Entry
	for len(q.heap) > 0 && !q.heap[0].Due.After(now) {
		e := heap.Pop(&q.heap).(*Entry)
		due = append(due, *e)
	}
	return due
}

// Remove deletes all entries for the named condition. Returns the number of
// entries removed. The heap is rebuilt rather than removed from in place;
// heap.Remove sifts survivors across indices already scanned.
func (q *Queue) Remove(name string) int {
	kept := q.heap[:0]
	for _, e := range q.heap {
		if e.Name == name {
			continue
		}
		kept = append(kept, e)
	}
	removed := len(q.heap) - len(kept)
	if removed > 0 {
		for i := len(kept); i < len(q.heap); i++ {
			q.heap[i] = nil
		}
		q.heap = kept
		heap.Init(&q.heap)
	}
	return removed
}

// Len returns the number of scheduled entries
func (q *Queue) Len() int {
	return len(q.heap)
}
