// Command trialscout matches patients to trials, manages the trial catalog
// and feedback databases, and extracts biomarkers from reports.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trialscout/trial-matcher/internal/config"
	"github.com/trialscout/trial-matcher/internal/extraction"
)

// cli is the state shared by every subcommand
type cli struct {
	cfg    *config.LiteConfig
	logger *logrus.Logger

	verbose bool
	dataDir string

	// newLLM builds the extraction client; tests replace it
	newLLM func(ctx context.Context, apiKey, model string) (extraction.Client, error)
}

func newCLI() *cli {
	return &cli{
		newLLM: func(ctx context.Context, apiKey, model string) (extraction.Client, error) {
			return extraction.NewGeminiClient(ctx, apiKey, model)
		},
	}
}

func (app *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "trialscout",
		Short:         "Match cancer patients to clinical trials",
		Long:          "trialscout ranks breast and lung cancer trials for a patient profile, maintains the trial catalog and clinician feedback, and extracts biomarkers from pathology reports.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			app.cfg = config.LoadLiteConfig()
			if app.dataDir != "" {
				app.cfg.DataDir = app.dataDir
			}
			if app.verbose {
				app.cfg.LogLevel = "debug"
			}
			app.logger = config.NewLogger(app.cfg.Logging())
			app.logger.SetOutput(cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "Log at debug level")
	root.PersistentFlags().StringVar(&app.dataDir, "data-dir", "", "Data directory (overrides TRIALSCOUT_DATA_DIR)")

	root.AddCommand(
		newMatchCmd(app),
		newCheckCmd(app),
		newTrialsCmd(app),
		newSeedCmd(app),
		newMigrateCmd(app),
		newExtractCmd(app),
		newExportFeedbackCmd(app),
		newImportFeedbackCmd(app),
		newSetupCmd(app),
	)
	return root
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCLI().rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
