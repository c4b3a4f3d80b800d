package task

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/daryltucker/tau-eval/internal/config"
)

// Record is one dataset row.
type Record map[string]interface{}

// DatasetTask is a task backed by a dataset file. The file is read on first
// use, so a broken dataset fails that task only.
type DatasetTask struct {
	cfg  config.TaskConfig
	eval Evaluator

	once    sync.Once
	records []Record
	texts   []string
	err     error
}

// NewDatasetTask builds a task from its config. Evaluators are resolved here.
func NewDatasetTask(cfg config.TaskConfig) (*DatasetTask, error) {
	if cfg.TextField == "" {
		cfg.TextField = "text"
	}
	if cfg.EntitiesField == "" {
		cfg.EntitiesField = "entities"
	}
	if cfg.Name == "" {
		base := filepath.Base(cfg.Path)
		cfg.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	t := &DatasetTask{cfg: cfg}
	eval, err := buildEvaluators(cfg.Evaluators, t)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", cfg.Name, err)
	}
	t.eval = eval
	return t, nil
}

// FromConfig builds every configured task, in order.
func FromConfig(tasks []config.TaskConfig) ([]Task, error) {
	out := make([]Task, 0, len(tasks))
	for i, tc := range tasks {
		t, err := NewDatasetTask(tc)
		if err != nil {
			return nil, fmt.Errorf("tasks[%d]: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (t *DatasetTask) Name() string { return t.cfg.Name }

func (t *DatasetTask) Evaluator() Evaluator { return t.eval }

func (t *DatasetTask) Texts(ctx context.Context) ([]string, error) {
	if err := t.load(); err != nil {
		return nil, err
	}
	out := make([]string, len(t.texts))
	copy(out, t.texts)
	return out, nil
}

// Records returns the loaded dataset rows.
func (t *DatasetTask) Records() ([]Record, error) {
	if err := t.load(); err != nil {
		return nil, err
	}
	return t.records, nil
}

func (t *DatasetTask) load() error {
	t.once.Do(func() {
		records, err := LoadRecords(t.cfg.Path, t.cfg.Format, t.cfg.Split)
		if err != nil {
			t.err = err
			return
		}
		if t.cfg.Limit > 0 && len(records) > t.cfg.Limit {
			records = records[:t.cfg.Limit]
		}
		if len(records) == 0 {
			t.err = fmt.Errorf("%s: %w", t.cfg.Path, ErrEmptyDataset)
			return
		}
		texts := make([]string, len(records))
		for i, r := range records {
			s, ok := r[t.cfg.TextField].(string)
			if !ok {
				t.err = fmt.Errorf("%w: record %d has no string field %q", ErrMalformedRecord, i, t.cfg.TextField)
				return
			}
			texts[i] = s
		}
		t.records, t.texts = records, texts
	})
	return t.err
}

// LoadRecords reads a dataset file. format is one of jsonl, json or yaml and is
// inferred from the extension when empty. JSON and YAML files may hold a list of
// records or a mapping from split name to list; split picks the list, defaulting
// to "test" or the only split present.
func LoadRecords(path, format, split string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	if format == "" {
		format = formatFromExt(path)
	}

	switch strings.ToLower(format) {
	case "jsonl", "ndjson":
		return decodeJSONL(data)
	case "json":
		var raw interface{}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		return selectSplit(raw, split)
	case "yaml", "yml":
		var raw interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		return selectSplit(raw, split)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", format)
	}
}

func formatFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return "jsonl"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

func decodeJSONL(data []byte) ([]Record, error) {
	var out []Record
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedRecord, line, err)
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func selectSplit(raw interface{}, split string) ([]Record, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		return toRecords(v)
	case map[string]interface{}:
		if split == "" {
			if _, ok := v["test"]; ok {
				split = "test"
			} else if len(v) == 1 {
				for k := range v {
					split = k
				}
			} else {
				keys := make([]string, 0, len(v))
				for k := range v {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				return nil, fmt.Errorf("%w: several splits (%s), set split", ErrMalformedRecord, strings.Join(keys, ", "))
			}
		}
		list, ok := v[split].([]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: split %q not found or not a list", ErrMalformedRecord, split)
		}
		return toRecords(list)
	default:
		return nil, fmt.Errorf("%w: unexpected top-level %T", ErrMalformedRecord, raw)
	}
}

func toRecords(list []interface{}) ([]Record, error) {
	out := make([]Record, len(list))
	for i, item := range list {
		switch r := item.(type) {
		case map[string]interface{}:
			out[i] = r
		case string:
			out[i] = Record{"text": r}
		default:
			return nil, fmt.Errorf("%w: record %d is %T", ErrMalformedRecord, i, item)
		}
	}
	return out, nil
}
