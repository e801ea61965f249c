package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/prioadvisor/internal/heuristic"
)

// AdvisorConfig holds configuration for the priority advisor.
type AdvisorConfig struct {
	MetricsPath     string           `yaml:"metrics_path"`     // Metrics table; any afs URL or a local path
	DirectivePath   string           `yaml:"directive_path"`   // Published directive table
	PollInterval    time.Duration    `yaml:"poll_interval"`    // Default 100ms
	LogLevel        string           `yaml:"log_level"`        // debug, info, warn, error
	LogFormat       string           `yaml:"log_format"`       // text, json
	DebugTrace      bool             `yaml:"debug_trace"`      // Per-task decision trace lines
	ValidityTicks   int64            `yaml:"validity_ticks"`   // valid_until = tick + ValidityTicks; 0 omits the column
	DefaultPriority int              `yaml:"default_priority"` // Used when current_priority is unparseable
	HistoryDB       string           `yaml:"history_db"`       // SQLite path; empty disables history
	StatusAddr      string           `yaml:"status_addr"`      // Status server listen address; empty disables it
	TraceOutput     string           `yaml:"trace_output"`     // Span output: "" off, "-" stdout, else a file
	Heuristic       heuristic.Config `yaml:"heuristic"`
}

// DefaultAdvisorConfig returns sensible defaults.
func DefaultAdvisorConfig() AdvisorConfig {
	return AdvisorConfig{
		MetricsPath:   "metrics.csv",
		DirectivePath: "new_priorities.csv",
		PollInterval:  100 * time.Millisecond,
		LogLevel:      "info",
		LogFormat:     "text",
		ValidityTicks: 1,
		Heuristic:     heuristic.DefaultConfig(),
	}
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values.
func LoadFile(path string, cfg *AdvisorConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate reports every invalid field at once.
func (c AdvisorConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.MetricsPath) == "" {
		errs = append(errs, errors.New("metrics_path is required"))
	}
	if strings.TrimSpace(c.DirectivePath) == "" {
		errs = append(errs, errors.New("directive_path is required"))
	}
	if c.MetricsPath != "" && c.MetricsPath == c.DirectivePath {
		errs = append(errs, errors.New("metrics_path and directive_path must differ"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.ValidityTicks < 0 {
		errs = append(errs, fmt.Errorf("validity_ticks must be >= 0, got %d", c.ValidityTicks))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if err := c.Heuristic.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("heuristic: %w", err))
	}
	return errors.Join(errs...)
}
