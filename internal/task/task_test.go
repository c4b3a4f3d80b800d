package task

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/tau-eval/internal/config"
)

func writeDataset(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestStatic(t *testing.T) {
	s := New("dummy_task", []string{"hello world"}, nil)
	assert.Equal(t, "dummy_task", s.Name())
	assert.Nil(t, s.Evaluator())

	texts, err := s.Texts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"hello world"}, texts)

	_, err = New("empty", nil, nil).Texts(context.Background())
	assert.True(t, errors.Is(err, ErrEmptyDataset))
}

func TestLoadRecords_Formats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		split   string
		want    []string
	}{
		{"jsonl", "d.jsonl", "{\"text\":\"a\"}\n\n{\"text\":\"b\"}\n", "", []string{"a", "b"}},
		{"json list", "d.json", `[{"text":"a"},{"text":"b"}]`, "", []string{"a", "b"}},
		{"json test split", "d.json", `{"train":[{"text":"x"}],"test":[{"text":"hello world"}]}`, "", []string{"hello world"}},
		{"json only split", "d.json", `{"validation":[{"text":"v"}]}`, "", []string{"v"}},
		{"json named split", "d.json", `{"train":[{"text":"x"}],"dev":[{"text":"y"}]}`, "dev", []string{"y"}},
		{"yaml", "d.yaml", "test:\n  - text: a\n  - text: b\n", "", []string{"a", "b"}},
		{"bare strings", "d.json", `["a","b"]`, "", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeDataset(t, tt.file, tt.content)
			records, err := LoadRecords(p, "", tt.split)
			require.NoError(t, err)
			require.Len(t, records, len(tt.want))
			for i, w := range tt.want {
				assert.Equal(t, w, records[i]["text"])
			}
		})
	}
}

func TestLoadRecords_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		split   string
	}{
		{"bad jsonl", "d.jsonl", "{\"text\":\"a\"}\nnot json\n", ""},
		{"ambiguous splits", "d.json", `{"train":[],"dev":[]}`, ""},
		{"missing split", "d.json", `{"test":[]}`, "dev"},
		{"scalar top level", "d.json", `42`, ""},
		{"numeric record", "d.json", `[1,2]`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeDataset(t, tt.file, tt.content)
			_, err := LoadRecords(p, "", tt.split)
			assert.True(t, errors.Is(err, ErrMalformedRecord), "got %v", err)
		})
	}

	_, err := LoadRecords(filepath.Join(t.TempDir(), "missing.json"), "", "")
	assert.Error(t, err)

	p := writeDataset(t, "d.csv", "text\na\n")
	_, err = LoadRecords(p, "csv", "")
	assert.Error(t, err)
}

func TestDatasetTask(t *testing.T) {
	p := writeDataset(t, "reviews.jsonl", "{\"body\":\"one\"}\n{\"body\":\"two\"}\n{\"body\":\"three\"}\n")

	task, err := NewDatasetTask(config.TaskConfig{Path: p, TextField: "body", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, "reviews", task.Name(), "name defaults to the file stem")
	assert.Nil(t, task.Evaluator())

	texts, err := task.Texts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, texts)
}

func TestDatasetTask_Failures(t *testing.T) {
	empty := writeDataset(t, "empty.jsonl", "")
	task, err := NewDatasetTask(config.TaskConfig{Name: "empty", Path: empty})
	require.NoError(t, err, "dataset problems surface on use, not construction")
	_, err = task.Texts(context.Background())
	assert.True(t, errors.Is(err, ErrEmptyDataset))

	noText := writeDataset(t, "d.jsonl", "{\"body\":\"x\"}\n")
	task, err = NewDatasetTask(config.TaskConfig{Name: "no-text", Path: noText})
	require.NoError(t, err)
	_, err = task.Texts(context.Background())
	assert.True(t, errors.Is(err, ErrMalformedRecord))

	_, err = NewDatasetTask(config.TaskConfig{Name: "t", Path: noText, Evaluators: []string{"bleu"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown evaluator")
}

func TestEntityLeakage(t *testing.T) {
	p := writeDataset(t, "d.jsonl",
		`{"text":"John Smith lives in Paris","entities":["John Smith","Paris"]}`+"\n"+
			`{"text":"Call Ann","entities":"Ann"}`+"\n"+
			`{"text":"nothing here"}`+"\n")

	task, err := NewDatasetTask(config.TaskConfig{Name: "pii", Path: p, Evaluators: []string{"entity-leakage", "rewrite-rate"}})
	require.NoError(t, err)

	eval := task.Evaluator()
	require.NotNil(t, eval)
	assert.Equal(t, []string{"entity_leakage", "entities_checked", "rewrite_rate"}, eval.Keys())

	got, err := eval.Evaluate(context.Background(), []string{
		"Someone lives in paris",
		"Call her",
		"nothing here",
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, got["entity_leakage"], 1e-9)
	assert.Equal(t, 3.0, got["entities_checked"])
	assert.InDelta(t, 2.0/3.0, got["rewrite_rate"], 1e-9)

	_, err = eval.Evaluate(context.Background(), []string{"only one"})
	assert.Error(t, err)
}

func TestChain_KeyCollision(t *testing.T) {
	a := EvaluatorFunc{Names: []string{"x"}}
	b := EvaluatorFunc{Names: []string{"x"}}
	_, err := Chain(a, b)
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	p := writeDataset(t, "d.jsonl", "{\"text\":\"a\"}\n")
	tasks, err := FromConfig([]config.TaskConfig{{Name: "task", Path: p}, {Name: "task", Path: p}})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "task", tasks[1].Name())

	_, err = FromConfig([]config.TaskConfig{{Path: p, Evaluators: []string{"nope"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tasks[0]")
}
