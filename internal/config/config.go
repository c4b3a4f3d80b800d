/*
PURPOSE:
  Defines the configuration structure and loading logic for tau-eval.
  A config file names the models, metrics and tasks of a run plus the
  run options (batching, device, seed, outputs).

REQUIREMENTS:
  User-specified:
  - Configure batch size, device selection, random seed and output destination.
  - Declare models, metric identifiers and tasks in one file.

  Implementation-discovered:
  - Needs to support YAML parsing.
  - Needs to support Environment variable overrides (TAU_EVAL_...).

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli, internal/anonymizer, internal/task, internal/metric
  - Dependencies: gopkg.in/yaml.v3

ERROR HANDLING:
  - Returns explicit error if config file is invalid.
  - A missing default file is not an error: defaults are returned.
  - Validate() reports structural problems before a run starts.

IMPLEMENTATION RULES:
  - Config struct tags should support yaml.
  - The loaded Config is treated as read-only once a run starts.

USAGE:
  cfg, err := config.Load("tau_eval.yaml")

RELATED FILES:
  - internal/cli/run.go
  - internal/assets/tau_eval.yaml

MAINTENANCE:
  - Update DefaultConfig() and the embedded sample when adding fields.
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFiles are searched, in order, when no config path is given.
var DefaultFiles = []string{"tau_eval.yaml", "tau_eval.yml", ".tau_eval.yaml"}

// Config represents the full configuration for one evaluation run.
type Config struct {
	Run        RunConfig       `yaml:"run"`
	Models     []ModelConfig   `yaml:"models"`
	Metrics    []string        `yaml:"metrics"`
	Tasks      []TaskConfig    `yaml:"tasks"`
	Embeddings EmbeddingConfig `yaml:"embeddings"`
}

// RunConfig holds the options that apply to the run as a whole.
type RunConfig struct {
	// BatchSize caps the texts per batch call; 0 sends the whole dataset at once.
	BatchSize int    `yaml:"batch_size"`
	Device    string `yaml:"device"`
	Seed      int64  `yaml:"seed"`
	OutputDir string `yaml:"output_dir"`
	// OutputFile is the base name of the report files; the extension follows the format.
	OutputFile string   `yaml:"output_file"`
	Formats    []string `yaml:"formats"`
	// ParallelModels > 1 evaluates that many models of a task concurrently.
	ParallelModels int    `yaml:"parallel_models"`
	HistoryDB      string `yaml:"history_db"`
	MetricsFile    string `yaml:"metrics_file"`
	Trace          bool   `yaml:"trace"`
}

// ModelConfig declares one anonymizer backend.
type ModelConfig struct {
	Name        string                 `yaml:"name"` // display name, defaults per backend
	Type        string                 `yaml:"type"` // dummy, identity, ollama, openai
	Model       string                 `yaml:"model"`
	URL         string                 `yaml:"url"`
	APIKey      string                 `yaml:"api_key"`
	Prompt      string                 `yaml:"prompt"`
	Temperature *float32               `yaml:"temperature"`
	MaxRetries  int                    `yaml:"max_retries"`
	RetryDelay  time.Duration          `yaml:"retry_delay"`
	Timeout     time.Duration          `yaml:"timeout"`
	Options     map[string]interface{} `yaml:"options"`
}

// TaskConfig declares one dataset-backed task.
type TaskConfig struct {
	Name          string   `yaml:"name"`
	Path          string   `yaml:"path"`
	Format        string   `yaml:"format"` // jsonl, json, yaml; inferred from extension when empty
	Split         string   `yaml:"split"`
	TextField     string   `yaml:"text_field"`
	EntitiesField string   `yaml:"entities_field"`
	Limit         int      `yaml:"limit"`
	Evaluators    []string `yaml:"evaluators"`
}

// EmbeddingConfig configures the embedding-similarity metric.
type EmbeddingConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			BatchSize:      0,
			Device:         "cuda",
			Seed:           42,
			OutputDir:      ".",
			OutputFile:     "results",
			Formats:        []string{"json"},
			ParallelModels: 1,
		},
		Metrics: []string{"rouge"},
		Embeddings: EmbeddingConfig{
			Model: "text-embedding-3-small",
		},
	}
}

// Load reads configuration from a file.
// If path is specified, it attempts to load that file.
// If path is empty, it searches DefaultFiles in order.
// If no file found, returns default config.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	var data []byte
	var err error

	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		for _, name := range DefaultFiles {
			data, err = os.ReadFile(name)
			if err == nil {
				path = name
				break
			}
		}
		if path == "" {
			if err := applyEnv(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("TAU_EVAL_OUTPUT_DIR"); v != "" {
		cfg.Run.OutputDir = v
	}
	if v := os.Getenv("TAU_EVAL_DEVICE"); v != "" {
		cfg.Run.Device = v
	}
	if v := os.Getenv("TAU_EVAL_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TAU_EVAL_BATCH_SIZE %q: %w", v, err)
		}
		cfg.Run.BatchSize = n
	}
	if v := os.Getenv("TAU_EVAL_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TAU_EVAL_SEED %q: %w", v, err)
		}
		cfg.Run.Seed = n
	}

	key := os.Getenv("TAU_EVAL_OPENAI_API_KEY")
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key != "" {
		for i := range cfg.Models {
			if strings.EqualFold(cfg.Models[i].Type, "openai") && cfg.Models[i].APIKey == "" {
				cfg.Models[i].APIKey = key
			}
		}
		if cfg.Embeddings.APIKey == "" {
			cfg.Embeddings.APIKey = key
		}
	}
	return nil
}

var validFormats = map[string]bool{"json": true, "yaml": true, "csv": true}

// Validate checks the structural preconditions of a run.
// It does not resolve metric identifiers or load datasets.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Tasks) == 0 {
		errs = append(errs, errors.New("no tasks configured"))
	}
	if len(c.Models) == 0 {
		errs = append(errs, errors.New("no models configured"))
	}
	if c.Run.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("batch_size must be >= 0, got %d", c.Run.BatchSize))
	}
	if c.Run.ParallelModels < 0 {
		errs = append(errs, fmt.Errorf("parallel_models must be >= 0, got %d", c.Run.ParallelModels))
	}
	for _, f := range c.Run.Formats {
		if !validFormats[strings.ToLower(f)] {
			errs = append(errs, fmt.Errorf("unknown output format %q", f))
		}
	}
	// Unnamed models get a backend default later; engine.New catches clashes among those.
	names := make(map[string]int, len(c.Models))
	for i, m := range c.Models {
		if m.Type == "" {
			errs = append(errs, fmt.Errorf("models[%d]: type is required", i))
		}
		if m.Name == "" {
			continue
		}
		if prev, ok := names[m.Name]; ok {
			errs = append(errs, fmt.Errorf("models[%d]: duplicate name %q (also models[%d])", i, m.Name, prev))
			continue
		}
		names[m.Name] = i
	}
	for i, t := range c.Tasks {
		if t.Path == "" {
			errs = append(errs, fmt.Errorf("tasks[%d]: path is required", i))
		}
	}

	return errors.Join(errs...)
}
