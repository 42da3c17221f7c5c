// Package fence buffers the completions of fenced commands until the
// renderer retires their fences.
package fence

import (
	"sort"

	"github.com/sarchlab/vgpu/gpu/protocol"
)

// Pending is a command whose response waits for its fence.
type Pending struct {
	ID          uint64
	CtxID       uint32
	Ring        uint8
	RingIndexed bool

	// Cmd is the command to respond to.
	Cmd *protocol.Command
}

// FromCommand builds the pending fence of a fenced command.
func FromCommand(cmd *protocol.Command) Pending {
	return Pending{
		ID:          cmd.Header.FenceID,
		CtxID:       cmd.Header.CtxID,
		Ring:        cmd.Header.RingIdx,
		RingIndexed: cmd.Header.RingIndexed(),
		Cmd:         cmd,
	}
}

// Queue holds pending fences in arrival order. Guests may queue fence ids out
// of order, so every signal scans the whole queue.
type Queue struct {
	pending []Pending
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue adds a pending fence.
func (q *Queue) Enqueue(p Pending) {
	q.pending = append(q.pending, p)
}

// Signal releases the global fences up to id, in ascending id order.
func (q *Queue) Signal(id uint64) []Pending {
	return q.release(func(p Pending) bool {
		return !p.RingIndexed && p.ID <= id
	})
}

// SignalRing releases the fences of one context ring up to id, in ascending
// id order.
func (q *Queue) SignalRing(ctxID uint32, ring uint8, id uint64) []Pending {
	return q.release(func(p Pending) bool {
		return p.RingIndexed && p.CtxID == ctxID && p.Ring == ring &&
			p.ID <= id
	})
}

func (q *Queue) release(match func(Pending) bool) []Pending {
	var released []Pending

	kept := q.pending[:0]
	for _, p := range q.pending {
		if match(p) {
			released = append(released, p)
			continue
		}

		kept = append(kept, p)
	}

	for i := len(kept); i < len(q.pending); i++ {
		q.pending[i] = Pending{}
	}

	q.pending = kept

	sort.SliceStable(released, func(i, j int) bool {
		return released[i].ID < released[j].ID
	})

	return released
}

// Len returns the number of pending fences.
func (q *Queue) Len() int {
	return len(q.pending)
}

// Pending returns a copy of the pending fences in arrival order.
func (q *Queue) Pending() []Pending {
	list := make([]Pending, len(q.pending))
	copy(list, q.pending)

	return list
}

// Reset drops every pending fence without responding.
func (q *Queue) Reset() {
	q.pending = nil
}
