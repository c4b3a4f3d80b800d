package output

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"gopkg.in/yaml.v3"

	"github.com/daryltucker/tau-eval/internal/report"
)

func sampleReport(t *testing.T) *report.Report {
	t.Helper()
	rep := report.New()

	ok := report.NewRecord()
	require.NoError(t, ok.SetScores("rouge1", []float64{0.5, 1.0}))
	require.NoError(t, ok.SetScalar("rewrite_rate", 1))
	require.NoError(t, ok.SetError("luar", report.NewMarker(report.KindMetricComputation, errors.New("no embedder"))))
	require.NoError(t, rep.Put("dummy_task_0", "Dummy Model", ok))

	failed := report.FailedRecord(report.NewMarker(report.KindPairExecution, errors.New("connection refused")))
	require.NoError(t, rep.Put("dummy_task_0", "Ollama", failed))
	return rep
}

func TestNextFreePath(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "results.json")

	assert.Equal(t, p, NextFreePath(p))

	require.NoError(t, os.WriteFile(p, []byte("{}"), 0644))
	assert.Equal(t, p+".1", NextFreePath(p))

	require.NoError(t, os.WriteFile(p+".1", []byte("{}"), 0644))
	assert.Equal(t, p+".2", NextFreePath(p))
}

func TestReportFilesPersist(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	rep := sampleReport(t)

	rf := &ReportFiles{Dir: dir, Base: "results", Formats: []string{"json", "YAML", "csv"}}
	require.NoError(t, rf.Persist(context.Background(), rep))
	require.Len(t, rf.Written, 3)
	assert.Equal(t, filepath.Join(dir, "results.json"), rf.Written[0])
	assert.Equal(t, filepath.Join(dir, "results.yaml"), rf.Written[1])
	assert.Equal(t, filepath.Join(dir, "results.csv"), rf.Written[2])

	data, err := os.ReadFile(rf.Written[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"dummy_task_0": {
			"Dummy Model": {
				"rouge1": [0.5, 1.0],
				"rewrite_rate": 1,
				"luar": {"error": {"kind": "metric_computation", "message": "no embedder"}}
			},
			"Ollama": {"error": {"kind": "pair_execution", "message": "connection refused"}}
		}
	}`, string(data))

	// A second run must not clobber the first.
	require.NoError(t, rf.Persist(context.Background(), rep))
	assert.Equal(t, filepath.Join(dir, "results.json.1"), rf.Written[0])
}

func TestReportFilesUnknownFormat(t *testing.T) {
	rf := &ReportFiles{Dir: t.TempDir(), Formats: []string{"xml"}}
	err := rf.Persist(context.Background(), report.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}

func TestWriteYAMLReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.yaml")
	require.NoError(t, WriteYAMLReport(path, sampleReport(t)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]map[string]map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Contains(t, decoded["dummy_task_0"]["Dummy Model"], "rouge1")
	assert.Contains(t, decoded["dummy_task_0"]["Ollama"], "error")

	// Key order follows insertion, not the alphabet.
	text := string(data)
	assert.Less(t, strings.Index(text, "rouge1"), strings.Index(text, "rewrite_rate"))
}

func TestCSVRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.csv")
	require.NoError(t, WriteCSVReport(path, sampleReport(t)))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, []string{"dummy_task_0", "Dummy Model", "rouge1", "0.750000", "2", "", ""}, rows[1])
	assert.Equal(t, []string{"dummy_task_0", "Dummy Model", "rewrite_rate", "1.000000", "1", "", ""}, rows[2])
	assert.Equal(t, []string{"dummy_task_0", "Dummy Model", "luar", "", "0", "metric_computation", "no embedder"}, rows[3])
	assert.Equal(t, []string{"dummy_task_0", "Ollama", "", "", "0", "pair_execution", "connection refused"}, rows[4])
}

func TestPairLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairs.jsonl")
	pl, err := NewPairLog(path)
	require.NoError(t, err)

	rep := sampleReport(t)
	for _, tr := range rep.Tasks() {
		for _, m := range tr.Models {
			pl.PairStarted(tr.Key, m.Model)
			pl.PairFinished(report.PairResult{TaskKey: tr.Key, Model: m.Model, Duration: 1500 * time.Millisecond, Record: m.Record})
		}
	}
	require.NoError(t, pl.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]interface{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, sc.Err())
	require.Len(t, lines, 2)
	assert.Equal(t, "Dummy Model", lines[0]["model"])
	assert.Equal(t, float64(1500), lines[0]["duration_ms"])
	assert.Equal(t, "Ollama", lines[1]["model"])
	assert.Contains(t, lines[1]["record"], "error")
}

func TestRunMetrics(t *testing.T) {
	m := NewRunMetrics("run-1")
	rep := sampleReport(t)

	for _, tr := range rep.Tasks() {
		for _, mr := range tr.Models {
			m.PairStarted(tr.Key, mr.Model)
			m.PairFinished(report.PairResult{TaskKey: tr.Key, Model: mr.Model, Duration: time.Second, Record: mr.Record})
		}
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.pairs.WithLabelValues("dummy_task_0", "Dummy Model", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pairs.WithLabelValues("dummy_task_0", "Ollama", "pair_execution")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.entryFailures.WithLabelValues("dummy_task_0", "Dummy Model")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))

	path := filepath.Join(t.TempDir(), "tau_eval.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `tau_eval_pairs_total{model="Ollama",run_id="run-1",status="pair_execution",task="dummy_task_0"} 1`)
	assert.Contains(t, string(data), "tau_eval_pair_duration_seconds_bucket")
}

func TestSetupTracing(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := SetupTracing(&buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "pair")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), `"Name": "pair"`)
}

func TestConfigureLogger(t *testing.T) {
	prev := Logger
	t.Cleanup(func() { SetLogger(prev) })

	var buf bytes.Buffer
	require.NoError(t, Configure(&buf, "debug", "json"))
	Logger.Debug("hello", "k", "v")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "v", line["k"])

	assert.Error(t, Configure(&buf, "loud", "text"))
	assert.Error(t, Configure(&buf, "info", "xml"))
}
