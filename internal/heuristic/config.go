package heuristic

import (
	"errors"
	"fmt"
	"math"
)

// Config holds every weight and threshold the engine uses.
// Lower priority numbers mean higher scheduling precedence.
type Config struct {
	AgingThreshold  int64   `yaml:"aging_threshold"`  // waiting ticks before the boost applies
	AgingBoost      float64 `yaml:"aging_boost"`      // delta applied once aging triggers; must be negative
	WaitWeight      float64 `yaml:"wait_weight"`      // per waiting tick; zero or negative
	RemainingWeight float64 `yaml:"remaining_weight"` // per remaining tick of work

	CongestionEnabled bool    `yaml:"congestion_enabled"`
	CongestWeight     float64 `yaml:"congest_weight"` // per ready-queue entry
	CPUWeight         float64 `yaml:"cpu_weight"`     // per utilization percent

	MinPriority int `yaml:"min_priority"`
	MaxPriority int `yaml:"max_priority"`

	// StrictAging caps a boosted task at current+AgingBoost so penalties
	// can never cancel the boost.
	StrictAging bool `yaml:"strict_aging"`
}

// DefaultConfig returns the weights the scheduler was tuned with.
func DefaultConfig() Config {
	return Config{
		AgingThreshold:  5,
		AgingBoost:      -1,
		WaitWeight:      0,
		RemainingWeight: 0.05,

		CongestionEnabled: false,
		CongestWeight:     -0.5,
		CPUWeight:         0.2,

		MinPriority: 0,
		MaxPriority: 10,
		StrictAging: true,
	}
}

// Validate reports configuration that would break the clamp or aging guarantees.
func (c Config) Validate() error {
	var errs []error
	if c.MinPriority > c.MaxPriority {
		errs = append(errs, fmt.Errorf("min_priority %d greater than max_priority %d", c.MinPriority, c.MaxPriority))
	}
	if c.AgingThreshold < 0 {
		errs = append(errs, fmt.Errorf("aging_threshold must not be negative, got %d", c.AgingThreshold))
	}
	if c.AgingBoost >= 0 {
		errs = append(errs, fmt.Errorf("aging_boost must be negative, got %g", c.AgingBoost))
	}
	if c.WaitWeight > 0 {
		errs = append(errs, fmt.Errorf("wait_weight must not be positive, got %g", c.WaitWeight))
	}
	for name, w := range map[string]float64{
		"aging_boost":      c.AgingBoost,
		"wait_weight":      c.WaitWeight,
		"remaining_weight": c.RemainingWeight,
		"congest_weight":   c.CongestWeight,
		"cpu_weight":       c.CPUWeight,
	} {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			errs = append(errs, fmt.Errorf("%s must be finite", name))
		}
	}
	return errors.Join(errs...)
}
