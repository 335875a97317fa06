package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/firepipe/internal/orchestrator"
)

// Duration is a time.Duration written as a string ("250ms", "2m") in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(value))
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
	return nil
}

// RetryConfig mirrors orchestrator.RetryConfig in JSON form.
type RetryConfig struct {
	MaxAttempts         int      `json:"max_attempts"`
	InitialInterval     Duration `json:"initial_interval"`
	MaxInterval         Duration `json:"max_interval"`
	MaxElapsedTime      Duration `json:"max_elapsed_time"`
	Multiplier          float64  `json:"multiplier"`
	RandomizationFactor float64  `json:"randomization_factor"`
}

// Orchestrator converts c to the orchestrator's retry policy.
func (c RetryConfig) Orchestrator() orchestrator.RetryConfig {
	return orchestrator.RetryConfig{
		MaxAttempts:         c.MaxAttempts,
		InitialInterval:     time.Duration(c.InitialInterval),
		MaxInterval:         time.Duration(c.MaxInterval),
		MaxElapsedTime:      time.Duration(c.MaxElapsedTime),
		Multiplier:          c.Multiplier,
		RandomizationFactor: c.RandomizationFactor,
	}
}

// StepConfig defines one command of a pipeline.
type StepConfig struct {
	Name      string         `json:"name"`
	Command   []string       `json:"command"`             // argv, no shell expansion
	Dir       string         `json:"dir,omitempty"`       // working directory
	Env       []string       `json:"env,omitempty"`       // extra KEY=VALUE entries
	DependsOn []string       `json:"depends_on,omitempty"` // names of upstream steps
	Resources map[string]int `json:"resources,omitempty"` // units held while running
}

// PipelineConfig defines a graph of steps and the resource pool they share.
type PipelineConfig struct {
	Resources map[string]int `json:"resources,omitempty"`
	Steps     []StepConfig   `json:"steps"`
}

// OrchestratorConfig is the top-level configuration.
type OrchestratorConfig struct {
	MaxWorkers int                       `json:"max_workers"` // 0 leaves concurrency to the resource pools
	LogLevel   string                    `json:"log_level"`
	Timeout    Duration                  `json:"timeout"` // whole-run deadline, 0 for none
	Retry      RetryConfig               `json:"retry"`
	Pipelines  map[string]PipelineConfig `json:"pipelines"`
}
