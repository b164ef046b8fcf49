package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/trialscout/trial-matcher/internal/service"
)

func newExportFeedbackCmd(app *cli) *cobra.Command {
	var (
		out    string
		stores storeFlags
	)

	cmd := &cobra.Command{
		Use:   "export-feedback",
		Short: "Export clinician feedback as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := app.openFeedback(stores)
			if err != nil {
				return err
			}
			defer store.Close()

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				if dir := filepath.Dir(out); dir != "." {
					if err := os.MkdirAll(dir, 0755); err != nil {
						return fmt.Errorf("failed to create output directory: %w", err)
					}
				}
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				w = f
			}

			if err := service.NewFeedbackService(app.logger, store, nil).Export(cmd.Context(), w); err != nil {
				return err
			}
			if f, ok := w.(*os.File); ok && f != os.Stdout {
				return f.Sync()
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	stores.register(cmd, "Feedback SQLite file (default feedback.db in the data directory)")
	return cmd
}

func newImportFeedbackCmd(app *cli) *cobra.Command {
	var (
		in     string
		stores storeFlags
	)

	cmd := &cobra.Command{
		Use:   "import-feedback",
		Short: "Import a feedback export, skipping entries that already exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(in)
			if err != nil {
				return fmt.Errorf("failed to open export: %w", err)
			}
			defer f.Close()

			store, err := app.openFeedback(stores)
			if err != nil {
				return err
			}
			defer store.Close()

			imported, skipped, err := service.NewFeedbackService(app.logger, store, nil).Import(cmd.Context(), f)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]int{"imported": imported, "skipped": skipped})
		},
	}

	cmd.Flags().StringVarP(&in, "in", "i", "", "Export file to import (required)")
	stores.register(cmd, "Feedback SQLite file (default feedback.db in the data directory)")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}
