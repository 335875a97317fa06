package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*OrchestratorConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// GlobalPath returns ~/.firepipe/config.json.
func GlobalPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".firepipe", "config.json"), nil
}

// ProjectPath returns .firepipe/config.json relative to the working directory.
func ProjectPath() string {
	return filepath.Join(".firepipe", "config.json")
}

// LoadDefault loads configuration from GlobalPath and ProjectPath.
func LoadDefault() (*OrchestratorConfig, error) {
	globalPath, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return Load(globalPath, ProjectPath())
}

// mergeConfigFile reads a JSON config file and merges it into base.
// Top-level settings override only when present in the file; retry settings
// merge field by field; pipelines replace same-named pipelines whole.
func mergeConfigFile(base *OrchestratorConfig, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var present map[string]json.RawMessage
	if err := json.Unmarshal(data, &present); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	fields := []struct {
		key    string
		target any
	}{
		{"max_workers", &base.MaxWorkers},
		{"log_level", &base.LogLevel},
		{"timeout", &base.Timeout},
		{"retry", &base.Retry},
	}
	for _, f := range fields {
		raw, ok := present[f.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, f.target); err != nil {
			return fmt.Errorf("parsing %s: %s: %w", path, f.key, err)
		}
	}

	if raw, ok := present["pipelines"]; ok {
		var pipelines map[string]PipelineConfig
		if err := json.Unmarshal(raw, &pipelines); err != nil {
			return fmt.Errorf("parsing %s: pipelines: %w", path, err)
		}
		if base.Pipelines == nil {
			base.Pipelines = make(map[string]PipelineConfig)
		}
		for name, p := range pipelines {
			base.Pipelines[name] = p
		}
	}

	return nil
}
