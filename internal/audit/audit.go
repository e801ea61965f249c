// Package audit checks whether the scheduler applied published directives.
//
// A directive computed from tick T is compared against the current_priority
// the scheduler logged at tick T+lag for the same task. With the default lag
// of 1 the scheduler is expected to pick a batch up on its next cycle.
package audit

import (
	"fmt"
	"io"
	"sort"

	"github.com/me/prioadvisor/pkg/model"
)

// DefaultLag is the number of ticks between a directive's tick and the
// metrics row expected to reflect it.
const DefaultLag = 1

// Mismatch is a metrics row whose priority differs from the directive.
type Mismatch struct {
	MetricsTick   model.Tick   `json:"metrics_tick"`
	DirectiveTick model.Tick   `json:"directive_tick"`
	TaskID        model.TaskID `json:"task_id"`
	Observed      int          `json:"observed"`
	Directed      int          `json:"directed"`
}

// Report summarizes a comparison.
type Report struct {
	Lag        int64      `json:"lag"`
	Checked    int        `json:"checked"`
	Matched    int        `json:"matched"`
	Mismatches []Mismatch `json:"mismatches"`
}

// OK reports whether every checked row matched.
func (r *Report) OK() bool {
	return len(r.Mismatches) == 0
}

type key struct {
	tick model.Tick
	task model.TaskID
}

// Compare matches each observation at tick t against the directive issued
// for tick t-lag. Rows with no such directive are not checked. When two
// batches share a tick the later one wins.
func Compare(batches []model.Batch, history []model.Snapshot, lag int64) (*Report, error) {
	if lag < 0 {
		return nil, fmt.Errorf("lag must be >= 0, got %d", lag)
	}

	directed := make(map[key]int)
	for _, b := range batches {
		for _, d := range b.Directives {
			directed[key{tick: b.Tick, task: d.TaskID}] = d.NewPriority
		}
	}

	r := &Report{Lag: lag}
	for _, snap := range history {
		for _, obs := range snap.Observations {
			want, ok := directed[key{tick: snap.Tick - model.Tick(lag), task: obs.TaskID}]
			if !ok {
				continue
			}
			r.Checked++
			if obs.CurrentPriority == want {
				r.Matched++
				continue
			}
			r.Mismatches = append(r.Mismatches, Mismatch{
				MetricsTick:   snap.Tick,
				DirectiveTick: snap.Tick - model.Tick(lag),
				TaskID:        obs.TaskID,
				Observed:      obs.CurrentPriority,
				Directed:      want,
			})
		}
	}

	sort.Slice(r.Mismatches, func(i, j int) bool {
		a, b := r.Mismatches[i], r.Mismatches[j]
		if a.MetricsTick != b.MetricsTick {
			return a.MetricsTick < b.MetricsTick
		}
		return a.TaskID < b.TaskID
	})
	return r, nil
}

// Write prints one line per mismatch followed by a summary.
func (r *Report) Write(w io.Writer) error {
	for _, m := range r.Mismatches {
		if _, err := fmt.Fprintf(w, "Mismatch: metrics_tick=%d task=%d cur=%d directive_tick=%d want=%d\n",
			m.MetricsTick, m.TaskID, m.Observed, m.DirectiveTick, m.Directed); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "Done. lag=%d checked=%d matched=%d mismatches=%d\n",
		r.Lag, r.Checked, r.Matched, len(r.Mismatches))
	return err
}
