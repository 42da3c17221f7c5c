package timing

import (
	"container/heap"
	"sync"
)

type eventQueue interface {
	Push(*ScheduledEvent)
	Pop() *ScheduledEvent
	Len() int
	Peek() *ScheduledEvent
}

// scheduledEventQueue orders events by time, then by scheduling order, so
// that events of the same time run first-in first-out.
type scheduledEventQueue struct {
	sync.Mutex
	events  scheduledEventHeap
	nextSeq uint64
}

func newScheduledEventQueue() *scheduledEventQueue {
	q := &scheduledEventQueue{}
	q.events = make([]*ScheduledEvent, 0)
	heap.Init(&q.events)
	return q
}

func (q *scheduledEventQueue) Push(evt *ScheduledEvent) {
	q.Lock()
	evt.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.events, evt)
	q.Unlock()
}

func (q *scheduledEventQueue) Pop() *ScheduledEvent {
	q.Lock()
	defer q.Unlock()
	if q.events.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.events).(*ScheduledEvent)
}

func (q *scheduledEventQueue) Len() int {
	q.Lock()
	defer q.Unlock()
	return q.events.Len()
}

func (q *scheduledEventQueue) Peek() *ScheduledEvent {
	q.Lock()
	defer q.Unlock()
	if q.events.Len() == 0 {
		return nil
	}
	return q.events[0]
}

type scheduledEventHeap []*ScheduledEvent

func (h scheduledEventHeap) Len() int { return len(h) }

func (h scheduledEventHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}
	return h[i].seq < h[j].seq
}

func (h scheduledEventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *scheduledEventHeap) Push(x any) {
	*h = append(*h, x.(*ScheduledEvent))
}

func (h *scheduledEventHeap) Pop() any {
	old := *h
	n := len(old)
	evt := old[n-1]
	*h = old[:n-1]
	return evt
}
