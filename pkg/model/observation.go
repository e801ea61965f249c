package model

// Tick identifies one scheduling cycle of the external scheduler.
type Tick int64

// NoTick marks that no tick has been processed yet.
const NoTick Tick = -1

// TaskID identifies a task within the external scheduler.
type TaskID int64

// Observation is one metrics row for one task at one tick.
// Rows are produced by the scheduler and are read-only here.
type Observation struct {
	Tick            Tick    `json:"tick"`
	TaskID          TaskID  `json:"task_id"`
	WaitingTime     int64   `json:"waiting_time"`
	RemainingTime   int64   `json:"remaining_time"`
	CurrentPriority int     `json:"current_priority"`
	QueueLen        int64   `json:"queue_len"`
	CPUUsage        float64 `json:"cpu_usage"`
}

// Snapshot is the set of observations sharing the highest tick in the
// metrics source. QueueLen and CPUUsage are the tick-wide values.
type Snapshot struct {
	Tick         Tick          `json:"tick"`
	QueueLen     int64         `json:"queue_len"`
	CPUUsage     float64       `json:"cpu_usage"`
	Observations []Observation `json:"observations"`
}

// IsEmpty reports whether the snapshot carries no observations.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.Observations) == 0
}

// Observation returns the row for the given task, if present.
func (s *Snapshot) Observation(id TaskID) (Observation, bool) {
	if s == nil {
		return Observation{}, false
	}
	for _, o := range s.Observations {
		if o.TaskID == id {
			return o, true
		}
	}
	return Observation{}, false
}
