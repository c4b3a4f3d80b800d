/*
PURPOSE:
  Defines the result data structures produced by an evaluation run.
  A Report maps task key -> model display name -> Record.

REQUIREMENTS:
  User-specified:
  - One Record per (task, model) pair, even when the pair failed.
  - Task keys are unique even when two tasks share a name.

  Implementation-discovered:
  - Failures are data (ErrorMarker), not missing entries.
  - Key order (task order, then model order) must survive serialization,
    so Record and Report keep explicit order instead of relying on maps.

ARCHITECTURE INTEGRATION:
  - Used by: internal/engine, internal/output, internal/store
  - Shared across boundaries.

ERROR HANDLING:
  - Insertion of a duplicate key returns ErrDuplicateKey; callers decide.

IMPLEMENTATION RULES:
  - Keep structs simple. No locking: a Record has exactly one writer.

USAGE:
  rec := report.NewRecord()
  rec.SetScores("rouge1", []float64{1})
  rep.Put(report.TaskKey("task", 0), "Dummy Model", rec)

RELATED FILES:
  - internal/report/encode.go
  - internal/engine/runner.go

MAINTENANCE:
  - Update encode.go when adding new entry shapes.
*/

package report

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDuplicateKey is returned when a key is already present in a Record or Report.
	ErrDuplicateKey = errors.New("duplicate key")
)

// ErrorKind classifies a recorded failure.
type ErrorKind string

const (
	KindConfiguration     ErrorKind = "configuration"
	KindPairExecution     ErrorKind = "pair_execution"
	KindMetricComputation ErrorKind = "metric_computation"
	KindDataset           ErrorKind = "dataset"
)

// ErrorMarker is the structured failure stored in place of scores.
type ErrorMarker struct {
	Kind    ErrorKind `json:"kind" yaml:"kind"`
	Message string    `json:"message" yaml:"message"`
}

// Error implements error so markers can travel through error returns.
func (m *ErrorMarker) Error() string {
	return fmt.Sprintf("%s: %s", m.Kind, m.Message)
}

// NewMarker builds a marker from an error value.
func NewMarker(kind ErrorKind, err error) *ErrorMarker {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &ErrorMarker{Kind: kind, Message: msg}
}

// Entry is one named value inside a Record: per-example scores, a scalar, or an error.
type Entry struct {
	Name   string
	Scores []float64
	Scalar *float64
	Err    *ErrorMarker
}

// Failed reports whether the entry holds an error marker.
func (e Entry) Failed() bool { return e.Err != nil }

// Mean returns the average of the entry's values and how many values it covers.
// Scalars count as a single value. Errors return (0, 0).
func (e Entry) Mean() (float64, int) {
	switch {
	case e.Err != nil:
		return 0, 0
	case e.Scalar != nil:
		return *e.Scalar, 1
	case len(e.Scores) == 0:
		return 0, 0
	}
	var sum float64
	for _, s := range e.Scores {
		sum += s
	}
	return sum / float64(len(e.Scores)), len(e.Scores)
}

// Record holds the results for one (task, model) pair.
type Record struct {
	// Err is set when the whole pair failed; Entries is then empty.
	Err *ErrorMarker

	entries []Entry
	index   map[string]int
}

// NewRecord returns an empty Record.
func NewRecord() *Record {
	return &Record{index: make(map[string]int)}
}

// FailedRecord returns a Record whose only content is a top-level error marker.
func FailedRecord(m *ErrorMarker) *Record {
	r := NewRecord()
	r.Err = m
	return r
}

// Failed reports whether the pair failed as a whole.
func (r *Record) Failed() bool { return r.Err != nil }

// Has reports whether name is already present.
func (r *Record) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

// Get returns the entry stored under name.
func (r *Record) Get(name string) (Entry, bool) {
	i, ok := r.index[name]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Entries returns the entries in insertion order.
func (r *Record) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of entries.
func (r *Record) Len() int { return len(r.entries) }

// SetScores stores a per-example score list.
func (r *Record) SetScores(name string, scores []float64) error {
	cp := make([]float64, len(scores))
	copy(cp, scores)
	return r.add(Entry{Name: name, Scores: cp})
}

// SetScalar stores a single named value.
func (r *Record) SetScalar(name string, v float64) error {
	return r.add(Entry{Name: name, Scalar: &v})
}

// SetError stores an error marker under name.
func (r *Record) SetError(name string, m *ErrorMarker) error {
	return r.add(Entry{Name: name, Err: m})
}

func (r *Record) add(e Entry) error {
	if r.Err != nil {
		return fmt.Errorf("record already failed: %w", r.Err)
	}
	if _, ok := r.index[e.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, e.Name)
	}
	r.index[e.Name] = len(r.entries)
	r.entries = append(r.entries, e)
	return nil
}

// TaskKey synthesizes the report key for the task at position index.
func TaskKey(name string, index int) string {
	return fmt.Sprintf("%s_%d", name, index)
}

// ModelResult is one model's Record under a task.
type ModelResult struct {
	Model  string
	Record *Record
}

// PairResult describes one finished (task, model) pair as it completes.
type PairResult struct {
	TaskKey  string
	Model    string
	Duration time.Duration
	Record   *Record
}

// TaskResults groups all model results for one task key.
type TaskResults struct {
	Key    string
	Models []ModelResult
}

// Report is the ordered, nested result of one run.
type Report struct {
	tasks []*TaskResults
	index map[string]int
}

// New returns an empty Report.
func New() *Report {
	return &Report{index: make(map[string]int)}
}

// Put inserts the record for (taskKey, model). New task keys are appended in call order,
// and models within a task keep their insertion order.
func (rep *Report) Put(taskKey, model string, rec *Record) error {
	i, ok := rep.index[taskKey]
	if !ok {
		i = len(rep.tasks)
		rep.index[taskKey] = i
		rep.tasks = append(rep.tasks, &TaskResults{Key: taskKey})
	}
	tr := rep.tasks[i]
	for _, m := range tr.Models {
		if m.Model == model {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateKey, taskKey, model)
		}
	}
	tr.Models = append(tr.Models, ModelResult{Model: model, Record: rec})
	return nil
}

// Get returns the record for (taskKey, model).
func (rep *Report) Get(taskKey, model string) (*Record, bool) {
	i, ok := rep.index[taskKey]
	if !ok {
		return nil, false
	}
	for _, m := range rep.tasks[i].Models {
		if m.Model == model {
			return m.Record, true
		}
	}
	return nil, false
}

// TaskKeys returns the task keys in run order.
func (rep *Report) TaskKeys() []string {
	keys := make([]string, len(rep.tasks))
	for i, t := range rep.tasks {
		keys[i] = t.Key
	}
	return keys
}

// Models returns the model names recorded under taskKey, in run order.
func (rep *Report) Models(taskKey string) []string {
	i, ok := rep.index[taskKey]
	if !ok {
		return nil
	}
	names := make([]string, len(rep.tasks[i].Models))
	for j, m := range rep.tasks[i].Models {
		names[j] = m.Model
	}
	return names
}

// Tasks returns the task groups in run order.
func (rep *Report) Tasks() []*TaskResults {
	out := make([]*TaskResults, len(rep.tasks))
	copy(out, rep.tasks)
	return out
}

// Pairs returns the number of (task, model) records.
func (rep *Report) Pairs() int {
	n := 0
	for _, t := range rep.tasks {
		n += len(t.Models)
	}
	return n
}

// Failures counts records that failed as a whole and entries that hold an error marker.
func (rep *Report) Failures() (pairs, entries int) {
	for _, t := range rep.tasks {
		for _, m := range t.Models {
			if m.Record.Failed() {
				pairs++
				continue
			}
			for _, e := range m.Record.entries {
				if e.Failed() {
					entries++
				}
			}
		}
	}
	return pairs, entries
}
