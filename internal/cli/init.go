package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/daryltucker/tau-eval/internal/assets"
	"github.com/daryltucker/tau-eval/internal/output"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a starter tau_eval.yaml and sample dataset",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targetDir := "."
		if len(args) == 1 {
			targetDir = args[0]
		}
		output.Logger.Info("Writing starter files...", "target", targetDir)

		if err := os.MkdirAll(targetDir, 0755); err != nil {
			return fmt.Errorf("failed to create target directory %s: %w", targetDir, err)
		}

		entries, err := fs.ReadDir(assets.Templates, "templates")
		if err != nil {
			return fmt.Errorf("failed to read embedded templates: %w", err)
		}

		count := 0
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			targetPath := filepath.Join(targetDir, entry.Name())
			if _, err := os.Stat(targetPath); err == nil && !initForce {
				output.Logger.Warn("File exists, skipping (use --force to overwrite)", "path", targetPath)
				continue
			}

			content, err := fs.ReadFile(assets.Templates, "templates/"+entry.Name())
			if err != nil {
				return fmt.Errorf("failed to read embedded file %s: %w", entry.Name(), err)
			}
			if err := os.WriteFile(targetPath, content, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", targetPath, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", targetPath)
			count++
		}

		output.Logger.Info("Init complete", "total_files", count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
}
