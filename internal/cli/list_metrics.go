package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/daryltucker/tau-eval/internal/config"
	"github.com/daryltucker/tau-eval/internal/metric"
	"github.com/daryltucker/tau-eval/internal/task"
)

var listMetricsCmd = &cobra.Command{
	Use:   "list-metrics",
	Short: "List metric identifiers and task evaluators",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		reg := metric.Builtins(config.DefaultConfig().Embeddings)

		fmt.Fprintln(out, "Metrics:")
		for _, id := range reg.IDs() {
			m, _ := reg.Lookup(id)
			fmt.Fprintf(out, "- %s -> %s\n", id, strings.Join(m.Keys(), ", "))
		}

		fmt.Fprintln(out, "Task evaluators:")
		for _, name := range task.EvaluatorNames() {
			fmt.Fprintf(out, "- %s\n", name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listMetricsCmd)
}
