/*
PURPOSE:
  Defines the 'run' subcommand.
  Executes the full evaluation: every model on every task, scored by every metric.

REQUIREMENTS:
  User-specified:
  - Run the experiment.
  - Specific flags for overrides.

  Implementation-discovered:
  - Need to load config first.
  - Apply flag overrides to config, then validate.
  - Metric identifiers are resolved before any model is called.
  - Report files, run history and the metrics textfile are written after the run.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine (New, RunAndPersist)
  - Uses: internal/config, internal/anonymizer, internal/task, internal/metric,
    internal/output, internal/store

ERROR HANDLING:
  - Returns error if config load/validation fails or a persister fails.
  - Per-pair failures are inside the report; --strict turns them into a non-zero exit.

IMPLEMENTATION RULES:
  - Setup flags in init().
  - Logic: Load Config -> Override -> Validate -> Build -> Engine.Run -> Persist.

USAGE:
  tau-eval run --metrics rouge,luar -o ./results

SELF-HEALING INSTRUCTIONS:
  - Check flag names match Config struct fields generally.

RELATED FILES:
  - internal/cli/root.go
  - internal/engine/runner.go

MAINTENANCE:
  - Update when adding new CLI overrides.
*/

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/daryltucker/tau-eval/internal/anonymizer"
	"github.com/daryltucker/tau-eval/internal/config"
	"github.com/daryltucker/tau-eval/internal/engine"
	"github.com/daryltucker/tau-eval/internal/metric"
	"github.com/daryltucker/tau-eval/internal/output"
	"github.com/daryltucker/tau-eval/internal/report"
	"github.com/daryltucker/tau-eval/internal/store"
	"github.com/daryltucker/tau-eval/internal/task"
)

// ErrFailuresRecorded is returned by `run --strict` when the report holds error markers.
var ErrFailuresRecorded = errors.New("run recorded failures")

var (
	outputOverride   string
	formatsOverride  []string
	metricsOverride  []string
	batchOverride    int
	deviceOverride   string
	seedOverride     int64
	parallelOverride int
	historyOverride  string
	pairLogPath      string
	traceOverride    bool
	strictRun        bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the evaluation",
	Long: `Evaluates every configured model on every configured task.
For each (task, model) pair:
1. Rewrite: the task's texts are anonymized by the model (in batches when supported).
2. Metrics: each selected metric compares originals and rewrites.
3. Evaluation: the task's own evaluators score the rewrites.

A failing model, metric or dataset is recorded as an error marker in the report
and never stops the run. Report files are versioned (results.json.1, ...) so earlier
results are never overwritten.`,
	Example: `  # Run with defaults (uses tau_eval.yaml)
  tau-eval run

  # Choose metrics and the output directory
  tau-eval run --metrics rouge,lexical-overlap -o ./results

  # Write JSON, YAML and CSV, two models at a time
  tau-eval run --format json,yaml,csv --parallel 2

  # Fail the command if any pair or metric failed
  tau-eval run --strict`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. Load Config
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// 2. Overrides
		applyRunOverrides(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return &engine.ConfigError{Err: err}
		}

		// 3. Execution
		rep, err := runExperiment(cmd.Context(), cmd.OutOrStdout(), cfg)
		if err != nil {
			return err
		}
		if pairs, entries := rep.Failures(); strictRun && pairs+entries > 0 {
			return fmt.Errorf("%w: %d failed pairs, %d failed entries", ErrFailuresRecorded, pairs, entries)
		}
		return nil
	},
}

func applyRunOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if outputOverride != "" {
		cfg.Run.OutputDir = outputOverride
	}
	if len(formatsOverride) > 0 {
		cfg.Run.Formats = formatsOverride
	}
	if len(metricsOverride) > 0 {
		cfg.Metrics = metricsOverride
	}
	if flags.Changed("batch-size") {
		cfg.Run.BatchSize = batchOverride
	}
	if deviceOverride != "" {
		cfg.Run.Device = deviceOverride
	}
	if flags.Changed("seed") {
		cfg.Run.Seed = seedOverride
	}
	if flags.Changed("parallel") {
		cfg.Run.ParallelModels = parallelOverride
	}
	if historyOverride != "" {
		cfg.Run.HistoryDB = historyOverride
	}
	if flags.Changed("trace") {
		cfg.Run.Trace = traceOverride
	}
}

func runExperiment(ctx context.Context, stdout io.Writer, cfg *config.Config) (*report.Report, error) {
	runID := store.NewRunID()
	started := time.Now().UTC()
	output.Logger.Info("Starting run", "run_id", runID, "tasks", len(cfg.Tasks), "models", len(cfg.Models))

	models, err := anonymizer.BuildAll(cfg.Models, cfg.Run)
	if err != nil {
		return nil, &engine.ConfigError{Err: err}
	}
	tasks, err := task.FromConfig(cfg.Tasks)
	if err != nil {
		return nil, &engine.ConfigError{Err: err}
	}
	metrics, err := engine.ResolveMetrics(metric.Builtins(cfg.Embeddings), cfg.Metrics)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Run.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", cfg.Run.OutputDir, err)
	}

	if cfg.Run.Trace {
		tracePath := filepath.Join(cfg.Run.OutputDir, "trace-"+runID+".json")
		f, err := os.Create(tracePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace file: %w", err)
		}
		defer f.Close()
		shutdown, err := output.SetupTracing(f)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				output.Logger.Warn("Failed to flush traces", "error", err)
			}
		}()
		output.Logger.Info("Tracing enabled", "path", tracePath)
	}

	var observers engine.Observers
	if pairLogPath != "" {
		pl, err := output.NewPairLog(pairLogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open pair log: %w", err)
		}
		defer pl.Close()
		observers = append(observers, pl)
	}
	var runMetrics *output.RunMetrics
	if cfg.Run.MetricsFile != "" {
		runMetrics = output.NewRunMetrics(runID)
		observers = append(observers, runMetrics)
	}

	exp, err := engine.New(tasks, models, metrics, engine.Options{
		BatchSize:      cfg.Run.BatchSize,
		ParallelModels: cfg.Run.ParallelModels,
		Observer:       observers,
	})
	if err != nil {
		return nil, err
	}

	files := &output.ReportFiles{Dir: cfg.Run.OutputDir, Base: cfg.Run.OutputFile, Formats: cfg.Run.Formats}
	persisters := []engine.Persister{files}
	if cfg.Run.HistoryDB != "" {
		st, err := store.Open(cfg.Run.HistoryDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open history db: %w", err)
		}
		defer st.Close()
		persisters = append(persisters, &store.Recorder{
			Store: st,
			Run:   store.Run{ID: runID, ConfigPath: cfgFile, StartedAt: started},
		})
	}

	rep, err := exp.RunAndPersist(ctx, persisters...)
	if err != nil {
		return rep, err
	}

	if runMetrics != nil {
		if err := runMetrics.WriteTextfile(cfg.Run.MetricsFile); err != nil {
			return rep, fmt.Errorf("failed to write metrics file: %w", err)
		}
		output.Logger.Info("Metrics written", "path", cfg.Run.MetricsFile)
	}

	pairs, entries := rep.Failures()
	fmt.Fprintf(stdout, "Run %s: %d pairs, %d failed pairs, %d failed entries\n", runID, rep.Pairs(), pairs, entries)
	for _, p := range files.Written {
		fmt.Fprintf(stdout, "  %s\n", p)
	}
	return rep, nil
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&outputOverride, "output-dir", "o", "", "Output directory for report files")
	runCmd.Flags().StringSliceVar(&formatsOverride, "format", nil, "Comma-separated report formats: json, yaml, csv")
	runCmd.Flags().StringSliceVarP(&metricsOverride, "metrics", "m", nil, "Comma-separated metric identifiers (see list-metrics)")
	runCmd.Flags().IntVar(&batchOverride, "batch-size", 0, "Texts per batch call (0 = whole dataset)")
	runCmd.Flags().StringVar(&deviceOverride, "device", "", "Device hint forwarded to backends (cpu, cuda)")
	runCmd.Flags().Int64Var(&seedOverride, "seed", 0, "Seed forwarded to backends")
	runCmd.Flags().IntVar(&parallelOverride, "parallel", 0, "Models evaluated concurrently per task")
	runCmd.Flags().StringVar(&historyOverride, "history-db", "", "SQLite file recording run history")
	runCmd.Flags().StringVar(&pairLogPath, "pair-log", "", "JSON Lines file receiving each pair as it finishes")
	runCmd.Flags().BoolVar(&traceOverride, "trace", false, "Write OpenTelemetry spans to the output directory")
	runCmd.Flags().BoolVar(&strictRun, "strict", false, "Exit non-zero if any failure was recorded")
}
