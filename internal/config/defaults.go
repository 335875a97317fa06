package config

import (
	"github.com/aristath/firepipe/internal/orchestrator"
)

// DefaultPipeline is run when no pipeline is named.
const DefaultPipeline = "ci"

// DefaultConfig returns the default configuration with the built-in ci pipeline.
func DefaultConfig() *OrchestratorConfig {
	retry := orchestrator.DefaultRetryConfig()

	return &OrchestratorConfig{
		MaxWorkers: 0,
		LogLevel:   "info",
		Retry: RetryConfig{
			MaxAttempts:         retry.MaxAttempts,
			InitialInterval:     Duration(retry.InitialInterval),
			MaxInterval:         Duration(retry.MaxInterval),
			MaxElapsedTime:      Duration(retry.MaxElapsedTime),
			Multiplier:          retry.Multiplier,
			RandomizationFactor: retry.RandomizationFactor,
		},
		Pipelines: map[string]PipelineConfig{
			DefaultPipeline: {
				Resources: map[string]int{"cpu": 2},
				Steps: []StepConfig{
					{
						Name:      "Lint",
						Command:   []string{"sh", "-c", `test -z "$(gofmt -l .)"`},
						Resources: map[string]int{"cpu": 1},
					},
					{
						Name:      "Vet",
						Command:   []string{"go", "vet", "./..."},
						Resources: map[string]int{"cpu": 1},
					},
					{
						Name:      "Test",
						Command:   []string{"go", "test", "./..."},
						Resources: map[string]int{"cpu": 1},
					},
				},
			},
		},
	}
}

