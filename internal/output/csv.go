/*
PURPOSE:
  Writes a flat CSV summary: one row per (task, model, entry) with the mean
  value, the number of values and any error.

REQUIREMENTS:
  User-specified:
  - Output to CSV for spreadsheets.

  Implementation-discovered:
  - Rows are flushed after every pair.
  - A failed pair is a single row with an empty entry column.

ARCHITECTURE INTEGRATION:
  - Called by: internal/output/files.go
  - Consumes: internal/report

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use encoding/csv.
  - Flush() after every write.
  - Thread-safe.

USAGE:
  w, err := output.NewCSVWriter("results.csv")
  w.WriteReport(rep)
  w.Close()

RELATED FILES:
  - internal/report/types.go

MAINTENANCE:
  - Update Write() mapping when Entry changes.
*/

package output

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"

	"github.com/daryltucker/tau-eval/internal/report"
)

// CSVHeader is the first row of every summary file.
var CSVHeader = []string{"task", "model", "entry", "mean", "n", "error_kind", "error"}

// CSVWriter handles writing results to a CSV file.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter creates a new CSVWriter.
// It overwrites the file if it exists.
func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write(CSVHeader); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()

	return &CSVWriter{
		file:   f,
		writer: w,
	}, nil
}

// Rows converts one pair into summary rows.
func Rows(taskKey, model string, rec *report.Record) [][]string {
	if rec.Failed() {
		return [][]string{{taskKey, model, "", "", "0", string(rec.Err.Kind), rec.Err.Message}}
	}
	rows := make([][]string, 0, rec.Len())
	for _, e := range rec.Entries() {
		if e.Err != nil {
			rows = append(rows, []string{taskKey, model, e.Name, "", "0", string(e.Err.Kind), e.Err.Message})
			continue
		}
		mean, n := e.Mean()
		rows = append(rows, []string{
			taskKey,
			model,
			e.Name,
			strconv.FormatFloat(mean, 'f', 6, 64),
			strconv.Itoa(n),
			"",
			"",
		})
	}
	return rows
}

// Write writes the rows of a single pair.
// It is thread-safe.
func (cw *CSVWriter) Write(taskKey, model string, rec *report.Record) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if err := cw.writer.WriteAll(Rows(taskKey, model, rec)); err != nil {
		return err
	}
	return cw.writer.Error()
}

// WriteReport writes every pair of rep in report order.
func (cw *CSVWriter) WriteReport(rep *report.Report) error {
	for _, t := range rep.Tasks() {
		for _, m := range t.Models {
			if err := cw.Write(t.Key, m.Model, m.Record); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes the underlying file.
func (cw *CSVWriter) Close() error {
	cw.writer.Flush()
	return cw.file.Close()
}
