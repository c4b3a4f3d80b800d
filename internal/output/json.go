/*
PURPOSE:
  Writes results as JSON: the full nested report at the end of a run, and a
  JSON Lines log with one line per finished (task, model) pair.

REQUIREMENTS:
  User-specified:
  - JSON output keyed by task key then model name.

  Implementation-discovered:
  - JSON Lines is better for streaming/logging than a single large array (append-friendly).
  - The pair log survives a killed run; the report file does not exist until the end.

ARCHITECTURE INTEGRATION:
  - PairLog is an engine observer (wired in internal/cli).
  - Consumes: internal/report

ERROR HANDLING:
  - Returns error on file creation or write failure.
  - Observer callbacks cannot return errors; they are logged.

IMPLEMENTATION RULES:
  - Use encoding/json.NewEncoder.
  - Thread-safe.

USAGE:
  w, err := output.NewPairLog("pairs.jsonl")
  defer w.Close()

RELATED FILES:
  - internal/report/encode.go

MAINTENANCE:
  - None specific.
*/

package output

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/daryltucker/tau-eval/internal/report"
)

// pairLine is one line of the pair log.
type pairLine struct {
	Task       string         `json:"task"`
	Model      string         `json:"model"`
	Timestamp  time.Time      `json:"timestamp"`
	DurationMS int64          `json:"duration_ms"`
	Record     *report.Record `json:"record"`
}

// PairLog appends each finished pair to a JSON Lines file.
type PairLog struct {
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewPairLog creates a new PairLog, overwriting path.
func NewPairLog(path string) (*PairLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	return &PairLog{
		file:    f,
		encoder: json.NewEncoder(f),
	}, nil
}

// Write writes a single pair as a JSON line.
func (pl *PairLog) Write(res report.PairResult) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	return pl.encoder.Encode(pairLine{
		Task:       res.TaskKey,
		Model:      res.Model,
		Timestamp:  time.Now().UTC(),
		DurationMS: res.Duration.Milliseconds(),
		Record:     res.Record,
	})
}

func (pl *PairLog) PairStarted(string, string) {}

func (pl *PairLog) PairFinished(res report.PairResult) {
	if err := pl.Write(res); err != nil {
		Logger.Error("Failed to write pair log", "task", res.TaskKey, "model", res.Model, "error", err)
	}
}

// Close closes the underlying file.
func (pl *PairLog) Close() error {
	return pl.file.Close()
}

// WriteJSONReport writes rep as indented JSON.
func WriteJSONReport(path string, rep *report.Report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
