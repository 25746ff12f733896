package engine

import (
	"container/heap"
	"time"
)

// entry is one pending fire occurrence. A reminder has at most one normal
// occurrence queued, plus at most one alarm-repeat occurrence.
type entry struct {
	id     string
	at     time.Time
	repeat bool // alarm-repeat path rather than the normal recurrence
	index  int  // heap bookkeeping
}

type entryKey struct {
	id     string
	repeat bool
}

func (e *entry) key() entryKey { return entryKey{id: e.id, repeat: e.repeat} }

// fireQueue is a min-heap ordered by fire time, id as tie-break.
type fireQueue []*entry

func (q fireQueue) Len() int { return len(q) }

func (q fireQueue) Less(i, j int) bool {
	if !q[i].at.Equal(q[j].at) {
		return q[i].at.Before(q[j].at)
	}
	if q[i].id != q[j].id {
		return q[i].id < q[j].id
	}
	// Normal occurrence fires before its own alarm repeat.
	return !q[i].repeat && q[j].repeat
}

func (q fireQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *fireQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *fireQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// peek returns the earliest entry without removing it.
func (q fireQueue) peek() *entry {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

// remove drops an entry by heap index.
func (q *fireQueue) remove(e *entry) {
	if e.index >= 0 && e.index < len(*q) && (*q)[e.index] == e {
		heap.Remove(q, e.index)
	}
}
