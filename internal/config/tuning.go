package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds the pool-wide tunables the source behavior leaves as open
// questions rather than fixed constants: grace windows, backoff caps, and
// the invalid-share threshold that triggers a lazy drop.
type Tuning struct {
	PoolMindiff      float64 `yaml:"pool_mindiff"`
	PoolMaxdiff      float64 `yaml:"pool_maxdiff"`
	WorkerMindiff    float64 `yaml:"worker_mindiff"`
	WorkerMaxdiff    float64 `yaml:"worker_maxdiff"`
	Startdiff        float64 `yaml:"startdiff"`
	DropidleSeconds  int64   `yaml:"dropidle_seconds"`
	WorkbaseGraceSec int64   `yaml:"workbase_grace_seconds"`
	AuthBackoffCap   float64 `yaml:"auth_backoff_cap_seconds"`
	RejectThreshold  int     `yaml:"reject_threshold"`
	WatchdogTickSec  int64   `yaml:"watchdog_tick_seconds"`
}

// DefaultTuning matches the defaults documented in DESIGN.md's Open Question
// decisions: 120s workbase grace window, 300s auth-backoff cap, a 10-share
// reject-run threshold, and a 1s watchdog tick per §5.
func DefaultTuning() Tuning {
	return Tuning{
		PoolMindiff:      0.001,
		WorkerMindiff:    0.001,
		Startdiff:        1,
		DropidleSeconds:  3600,
		WorkbaseGraceSec: 120,
		AuthBackoffCap:   300,
		RejectThreshold:  10,
		WatchdogTickSec:  1,
	}
}

// LoadTuning reads a yaml tuning file, overlaying it on DefaultTuning.
// A missing file is not an error; it simply yields the defaults.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return t, fmt.Errorf("read tuning file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse tuning file %s: %w", path, err)
	}
	return t, t.Validate()
}

// Validate enforces §7's only two fatal-at-init configuration invariants:
// startdiff and mindiff must both be non-negative.
func (t Tuning) Validate() error {
	if t.Startdiff < 0 {
		return fmt.Errorf("startdiff must be >= 0, got %v", t.Startdiff)
	}
	if t.PoolMindiff < 0 {
		return fmt.Errorf("pool_mindiff must be >= 0, got %v", t.PoolMindiff)
	}
	if t.WorkerMindiff < 0 {
		return fmt.Errorf("worker_mindiff must be >= 0, got %v", t.WorkerMindiff)
	}
	return nil
}
