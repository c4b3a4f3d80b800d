package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
run:
  batch_size: 8
  device: cpu
  seed: 7
  output_dir: out
  formats: [json, csv]
models:
  - type: dummy
  - type: ollama
    name: Llama Rewriter
    model: llama3.1:8b
    url: http://localhost:11434
    retry_delay: 500ms
    timeout: 2m
  - type: openai
    model: gpt-4o-mini
metrics: [rouge, lexical-overlap]
tasks:
  - name: reviews
    path: data/reviews.jsonl
    evaluators: [entity-leakage]
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoad_File(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("TAU_EVAL_OPENAI_API_KEY", "")
	p := writeFile(t, t.TempDir(), "cfg.yaml", sample)

	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Run.BatchSize)
	assert.Equal(t, "cpu", cfg.Run.Device)
	assert.Equal(t, int64(7), cfg.Run.Seed)
	assert.Equal(t, []string{"json", "csv"}, cfg.Run.Formats)
	assert.Equal(t, "results", cfg.Run.OutputFile, "unset fields keep defaults")

	require.Len(t, cfg.Models, 3)
	assert.Equal(t, "Llama Rewriter", cfg.Models[1].Name)
	assert.Equal(t, 500*time.Millisecond, cfg.Models[1].RetryDelay)
	assert.Equal(t, 2*time.Minute, cfg.Models[1].Timeout)

	assert.Equal(t, []string{"rouge", "lexical-overlap"}, cfg.Metrics)
	require.Len(t, cfg.Tasks, 1)
	assert.Equal(t, []string{"entity-leakage"}, cfg.Tasks[0].Evaluators)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	p := writeFile(t, t.TempDir(), "cfg.yaml", sample)
	t.Setenv("TAU_EVAL_BATCH_SIZE", "16")
	t.Setenv("TAU_EVAL_DEVICE", "cuda:1")
	t.Setenv("TAU_EVAL_SEED", "99")
	t.Setenv("TAU_EVAL_OUTPUT_DIR", "/tmp/elsewhere")
	t.Setenv("TAU_EVAL_OPENAI_API_KEY", "sk-test")

	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Run.BatchSize)
	assert.Equal(t, "cuda:1", cfg.Run.Device)
	assert.Equal(t, int64(99), cfg.Run.Seed)
	assert.Equal(t, "/tmp/elsewhere", cfg.Run.OutputDir)
	assert.Equal(t, "sk-test", cfg.Models[2].APIKey)
	assert.Empty(t, cfg.Models[0].APIKey, "only openai models receive the key")
	assert.Equal(t, "sk-test", cfg.Embeddings.APIKey)
}

func TestLoad_BadEnv(t *testing.T) {
	p := writeFile(t, t.TempDir(), "cfg.yaml", sample)
	t.Setenv("TAU_EVAL_BATCH_SIZE", "many")

	_, err := Load(p)
	assert.Error(t, err)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "cfg.yaml", "run: [unclosed")
	_, err := Load(p)
	assert.Error(t, err)
}

func TestLoad_DefaultSearch(t *testing.T) {
	for _, k := range []string{"TAU_EVAL_OUTPUT_DIR", "TAU_EVAL_DEVICE", "TAU_EVAL_BATCH_SIZE", "TAU_EVAL_SEED"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Run, cfg.Run)

	writeFile(t, dir, "tau_eval.yaml", "run:\n  batch_size: 3\n")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Run.BatchSize)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tasks configured")
	assert.Contains(t, err.Error(), "no models configured")

	cfg.Models = []ModelConfig{{Type: ""}}
	cfg.Tasks = []TaskConfig{{Name: "t"}}
	cfg.Run.BatchSize = -1
	cfg.Run.Formats = []string{"xml"}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type is required")
	assert.Contains(t, err.Error(), "path is required")
	assert.Contains(t, err.Error(), "batch_size")
	assert.Contains(t, err.Error(), `unknown output format "xml"`)
}

func TestValidate_DuplicateModelNames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tasks = []TaskConfig{{Path: "d.json"}}
	cfg.Models = []ModelConfig{
		{Type: "ollama", Name: "anon"},
		{Type: "openai", Name: "anon"},
		{Type: "dummy"},
		{Type: "dummy"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `models[1]: duplicate name "anon" (also models[0])`)
	assert.NotContains(t, err.Error(), "models[3]")
}

func TestLoad_OpenAIKeyCaseInsensitiveType(t *testing.T) {
	p := writeFile(t, t.TempDir(), "cfg.yaml", `
models:
  - type: OpenAI
    model: gpt-4o-mini
  - type: dummy
tasks:
  - path: d.json
`)
	t.Setenv("TAU_EVAL_OPENAI_API_KEY", "sk-mixed")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "sk-mixed", cfg.Models[0].APIKey)
	assert.Empty(t, cfg.Models[1].APIKey)
}
