package monitoring

import (
	"sync"
	"time"
)

// A ProgressBar tracks how many commands of a replayed stream were sent to
// the device and how many were answered.
type ProgressBar struct {
	mu sync.Mutex

	ID        string
	Name      string
	StartTime time.Time
	Total     uint64
	Answered  uint64
	Pending   uint64
}

type progressView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Total     uint64    `json:"total"`
	Answered  uint64    `json:"answered"`
	Pending   uint64    `json:"pending"`
}

// Submit marks amount commands as sent but not answered.
func (b *ProgressBar) Submit(amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Pending += amount
}

// Answer moves amount commands from pending to answered.
func (b *ProgressBar) Answer(amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if amount > b.Pending {
		amount = b.Pending
	}

	b.Pending -= amount
	b.Answered += amount
}

// Done tells if every command was answered.
func (b *ProgressBar) Done() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.Answered >= b.Total
}

func (b *ProgressBar) view() progressView {
	b.mu.Lock()
	defer b.mu.Unlock()

	return progressView{
		ID:        b.ID,
		Name:      b.Name,
		StartTime: b.StartTime,
		Total:     b.Total,
		Answered:  b.Answered,
		Pending:   b.Pending,
	}
}
