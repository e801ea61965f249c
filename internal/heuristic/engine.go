package heuristic

import (
	"fmt"
	"math"
	"strings"

	"github.com/me/prioadvisor/pkg/model"
)

// Reason names one contribution to a task's priority delta.
type Reason struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func (r Reason) String() string {
	return fmt.Sprintf("%s=%+.2f", r.Name, r.Value)
}

// Decision is the engine's result for one task, with the reasons behind it.
type Decision struct {
	TaskID      model.TaskID `json:"task_id"`
	Current     int          `json:"current"`
	Delta       float64      `json:"delta"`
	NewPriority int          `json:"new_priority"`
	Reasons     []Reason     `json:"reasons,omitempty"`
}

// ReasonString joins the reasons for a trace line.
func (d Decision) ReasonString() string {
	if len(d.Reasons) == 0 {
		return "none"
	}
	parts := make([]string, len(d.Reasons))
	for i, r := range d.Reasons {
		parts[i] = r.String()
	}
	return strings.Join(parts, "; ")
}

// Engine maps a snapshot to new priorities. It holds no state between calls.
type Engine struct {
	cfg Config
}

// New creates an Engine after validating cfg.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("heuristic config: %w", err)
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Compute returns the new priority for every task in the snapshot.
func (e *Engine) Compute(snap *model.Snapshot) map[model.TaskID]int {
	decisions := e.Evaluate(snap)
	out := make(map[model.TaskID]int, len(decisions))
	for _, d := range decisions {
		out[d.TaskID] = d.NewPriority
	}
	return out
}

// Evaluate computes one Decision per observation, in snapshot order.
// Each task is evaluated from its own row plus the tick-wide queue length
// and CPU utilization.
func (e *Engine) Evaluate(snap *model.Snapshot) []Decision {
	if snap.IsEmpty() {
		return nil
	}
	out := make([]Decision, 0, len(snap.Observations))
	for _, obs := range snap.Observations {
		out = append(out, e.decide(obs, snap.QueueLen, snap.CPUUsage))
	}
	return out
}

// Batch builds the directive batch for snap. validity > 0 stamps every
// directive with valid_until = tick + validity.
func (e *Engine) Batch(snap *model.Snapshot, validity int64) *model.Batch {
	if snap == nil {
		return nil
	}
	return NewBatch(snap.Tick, e.Evaluate(snap), validity)
}

// NewBatch turns decisions already evaluated for tick into a batch.
func NewBatch(tick model.Tick, decisions []Decision, validity int64) *model.Batch {
	b := &model.Batch{Tick: tick}
	if validity > 0 {
		vu := tick + model.Tick(validity)
		b.ValidUntil = &vu
	}
	for _, d := range decisions {
		b.Directives = append(b.Directives, model.Directive{
			Tick:        tick,
			TaskID:      d.TaskID,
			NewPriority: d.NewPriority,
			ValidUntil:  b.ValidUntil,
		})
	}
	return b
}

func (e *Engine) decide(obs model.Observation, queueLen int64, cpuUsage float64) Decision {
	c := e.cfg
	d := Decision{TaskID: obs.TaskID, Current: obs.CurrentPriority}

	add := func(name string, v float64) {
		if v == 0 {
			return
		}
		d.Delta += v
		d.Reasons = append(d.Reasons, Reason{Name: name, Value: v})
	}

	aged := obs.WaitingTime >= c.AgingThreshold
	if aged {
		add("aging", c.AgingBoost)
	}
	add("wait", c.WaitWeight*float64(obs.WaitingTime))
	add("remaining", c.RemainingWeight*float64(obs.RemainingTime))
	if c.CongestionEnabled {
		add("congestion", c.CongestWeight*float64(queueLen))
		add("cpu", c.CPUWeight*cpuUsage)
	}

	cur := float64(obs.CurrentPriority)
	v := roundHalfEven(cur + d.Delta)
	if math.IsNaN(v) {
		v = cur
	}
	if aged && c.StrictAging {
		if ceiling := roundHalfEven(cur + c.AgingBoost); v > ceiling {
			d.Reasons = append(d.Reasons, Reason{Name: "aging_ceiling", Value: ceiling - v})
			v = ceiling
		}
	}
	clamped := clamp(v, float64(c.MinPriority), float64(c.MaxPriority))
	if clamped != v {
		d.Reasons = append(d.Reasons, Reason{Name: "clamp", Value: clamped - v})
	}
	d.NewPriority = int(clamped)
	return d
}

// roundHalfEven is the fixed tie-break: 4.5 -> 4, 5.5 -> 6, -0.5 -> -0.
func roundHalfEven(v float64) float64 {
	return math.RoundToEven(v)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
