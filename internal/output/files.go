package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/daryltucker/tau-eval/internal/report"
)

// ReportFiles persists a report in one or more formats under Dir.
// Existing files are never overwritten: results.json becomes results.json.1, .2, ...
type ReportFiles struct {
	Dir     string
	Base    string
	Formats []string

	// Written lists the paths of the last Persist call.
	Written []string
}

// Persist writes rep once per format.
func (rf *ReportFiles) Persist(_ context.Context, rep *report.Report) error {
	if err := os.MkdirAll(rf.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", rf.Dir, err)
	}
	base := rf.Base
	if base == "" {
		base = "results"
	}
	formats := rf.Formats
	if len(formats) == 0 {
		formats = []string{"json"}
	}

	rf.Written = rf.Written[:0]
	for _, f := range formats {
		f = strings.ToLower(f)
		path := NextFreePath(filepath.Join(rf.Dir, base+"."+f))

		var err error
		switch f {
		case "json":
			err = WriteJSONReport(path, rep)
		case "yaml":
			err = WriteYAMLReport(path, rep)
		case "csv":
			err = WriteCSVReport(path, rep)
		default:
			err = fmt.Errorf("unknown output format %q", f)
		}
		if err != nil {
			return fmt.Errorf("failed to write %s report at %s: %w", f, path, err)
		}
		Logger.Info("Report written", "format", f, "path", path)
		rf.Written = append(rf.Written, path)
	}
	return nil
}

// NextFreePath returns path, or path.N for the smallest N >= 1 that does not exist yet.
func NextFreePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	for i := 1; ; i++ {
		p := fmt.Sprintf("%s.%d", path, i)
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return p
		}
	}
}

// WriteYAMLReport writes rep as YAML with the same key order as the JSON report.
func WriteYAMLReport(path string, rep *report.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(rep); err != nil {
		f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteCSVReport writes the flat summary of rep.
func WriteCSVReport(path string, rep *report.Report) error {
	w, err := NewCSVWriter(path)
	if err != nil {
		return err
	}
	if err := w.WriteReport(rep); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
