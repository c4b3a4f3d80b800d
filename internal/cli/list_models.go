/*
PURPOSE:
  Defines the 'list-models' subcommand.
  Shows the supported backends, the models a config declares and, for
  Ollama hosts, the models available on the server.

REQUIREMENTS:
  User-specified:
  - List available models.

  Implementation-discovered:
  - Useful validation step before full run: a config whose models cannot be
    built fails here without calling anything.

ARCHITECTURE INTEGRATION:
  - Calls: internal/anonymizer.BuildAll, internal/anonymizer.ListOllamaModels

ERROR HANDLING:
  - Prints error per unreachable Ollama URL and continues.

IMPLEMENTATION RULES:
  - Simple output to stdout.

USAGE:
  tau-eval list-models --ollama-url http://localhost:11434

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/anonymizer/factory.go
  - internal/anonymizer/ollama.go

MAINTENANCE:
  - None.
*/

package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/daryltucker/tau-eval/internal/anonymizer"
	"github.com/daryltucker/tau-eval/internal/config"
	"github.com/daryltucker/tau-eval/internal/engine"
)

var ollamaURLs []string

var listModelsCmd = &cobra.Command{
	Use:   "list-models",
	Short: "List backends, configured models and models on Ollama hosts",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "Backends:")
		for _, b := range anonymizer.Backends {
			fmt.Fprintf(out, "- %s\n", b)
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if len(cfg.Models) > 0 {
			models, err := anonymizer.BuildAll(cfg.Models, cfg.Run)
			if err != nil {
				return &engine.ConfigError{Err: err}
			}
			fmt.Fprintln(out, "Configured:")
			for i, m := range models {
				fmt.Fprintf(out, "- %s (%s)\n", m.Name(), cfg.Models[i].Type)
			}
		}

		urls := ollamaURLs
		if len(urls) == 0 {
			for _, mc := range cfg.Models {
				if mc.Type == "ollama" && mc.URL != "" {
					urls = append(urls, mc.URL)
				}
			}
		}

		client := &http.Client{Timeout: 10 * time.Second}
		for _, url := range urls {
			fmt.Fprintf(out, "Querying %s...\n", url)
			models, err := anonymizer.ListOllamaModels(cmd.Context(), client, url)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				continue
			}
			for _, m := range models {
				fmt.Fprintf(out, "- %s\n", m)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(listModelsCmd)
	listModelsCmd.Flags().StringSliceVar(&ollamaURLs, "ollama-url", nil, "Comma-separated Ollama URLs to query (default: URLs of configured ollama models)")
}
