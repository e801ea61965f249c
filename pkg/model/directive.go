package model

import (
	"fmt"
	"time"
)

// Directive is one published priority recommendation.
type Directive struct {
	Tick        Tick   `json:"tick"`
	TaskID      TaskID `json:"task_id"`
	NewPriority int    `json:"new_priority"`
	ValidUntil  *Tick  `json:"valid_until,omitempty"`
}

// Batch is the full set of directives derived from one snapshot.
// A batch supersedes the previous one; it is never appended to.
type Batch struct {
	Tick       Tick        `json:"tick"`
	ValidUntil *Tick       `json:"valid_until,omitempty"`
	Directives []Directive `json:"directives"`
}

// Priorities returns the batch as a task -> priority map.
func (b *Batch) Priorities() map[TaskID]int {
	out := make(map[TaskID]int, len(b.Directives))
	for _, d := range b.Directives {
		out[d.TaskID] = d.NewPriority
	}
	return out
}

// Validate checks that every directive shares the batch tick, task ids are
// unique, and priorities lie within [minPrio, maxPrio].
func (b *Batch) Validate(minPrio, maxPrio int) error {
	if b == nil {
		return fmt.Errorf("nil batch")
	}
	if b.Tick < 0 {
		return fmt.Errorf("batch tick %d is negative", b.Tick)
	}
	seen := make(map[TaskID]bool, len(b.Directives))
	for _, d := range b.Directives {
		if d.Tick != b.Tick {
			return fmt.Errorf("directive for task %d has tick %d, batch tick is %d", d.TaskID, d.Tick, b.Tick)
		}
		if seen[d.TaskID] {
			return fmt.Errorf("duplicate task %d in batch for tick %d", d.TaskID, b.Tick)
		}
		seen[d.TaskID] = true
		if d.NewPriority < minPrio || d.NewPriority > maxPrio {
			return fmt.Errorf("task %d priority %d outside [%d, %d]", d.TaskID, d.NewPriority, minPrio, maxPrio)
		}
	}
	return nil
}

// BatchRecord is a published batch as kept in the history store.
type BatchRecord struct {
	ID          string    `json:"id"`
	Batch       Batch     `json:"batch"`
	PublishedAt time.Time `json:"published_at"`
}

// ListOptions configures history queries with pagination.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns sensible defaults.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 20, Offset: 0}
}

// Clamp enforces limits (max 100, min 1).
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}
