package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/daryltucker/tau-eval/internal/config"
	"github.com/daryltucker/tau-eval/internal/store"
)

var (
	historyLimit int
	historyDBPath string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past runs recorded in the history database",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openHistory()
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.ListRuns(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded.")
			return nil
		}
		for _, r := range runs {
			fmt.Fprintf(out, "%s  %s  %6s  pairs=%d failed_pairs=%d failed_entries=%d\n",
				r.ID,
				r.StartedAt.Local().Format(time.DateTime),
				r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
				r.Pairs, r.FailedPairs, r.FailedEntries)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print the stored report of a run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openHistory()
		if err != nil {
			return err
		}
		defer st.Close()

		data, err := st.ReportJSON(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	},
}

func openHistory() (*store.Store, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	path := cfg.Run.HistoryDB
	if historyDBPath != "" {
		path = historyDBPath
	}
	if path == "" {
		return nil, fmt.Errorf("no history database configured (set run.history_db or --history-db)")
	}
	return store.Open(path)
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.PersistentFlags().StringVar(&historyDBPath, "history-db", "", "SQLite history file (overrides run.history_db)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of runs to show (0 = all)")
}
