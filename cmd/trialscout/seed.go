package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trialscout/trial-matcher/internal/catalog"
	"github.com/trialscout/trial-matcher/internal/database"
)

func newSeedCmd(app *cli) *cobra.Command {
	var (
		stores  storeFlags
		migrate bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the curated trials into a catalog database",
		Long:  "Inserts the embedded breast and lung trials. Trials already present are skipped, so seeding twice is harmless. Without flags the data directory's trials.db is seeded.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if stores.postgres != "" && migrate {
				if err := runMigrations(cmd, app, stores.postgres, "up"); err != nil {
					return err
				}
			}
			if stores.postgres == "" && stores.sqlite == "" {
				if err := app.cfg.EnsureDataDir(); err != nil {
					return fmt.Errorf("failed to create data directory: %w", err)
				}
				stores.sqlite = app.cfg.CatalogDBPath()
			}

			store, closeStore, err := app.openCatalog(ctx, stores)
			if err != nil {
				return err
			}
			defer closeStore()

			trials, err := catalog.SeedTrials()
			if err != nil {
				return err
			}
			result, err := catalog.Seed(ctx, store, trials, app.logger)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	stores.register(cmd, "SQLite catalog file to seed")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Apply schema migrations before seeding PostgreSQL")
	return cmd
}

func newMigrateCmd(app *cli) *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}
	cmd.PersistentFlags().StringVar(&url, "postgres", "", "PostgreSQL URL (defaults to "+DatabaseURLEnv+")")

	for _, direction := range []string{"up", "down", "version"} {
		short := map[string]string{
			"up":      "Apply all pending migrations",
			"down":    "Roll back the latest migration",
			"version": "Print the current schema version",
		}[direction]

		cmd.AddCommand(&cobra.Command{
			Use:   direction,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				flags := storeFlags{postgres: url}
				return runMigrations(cmd, app, flags.postgresURL(), direction)
			},
		})
	}
	return cmd
}

func runMigrations(cmd *cobra.Command, app *cli, url, direction string) error {
	if url == "" {
		return errors.New("a PostgreSQL URL is required: pass --postgres or set " + DatabaseURLEnv)
	}

	runner, err := database.NewMigrationRunner(url, app.logger)
	if err != nil {
		return err
	}
	defer runner.Close()

	switch direction {
	case "up":
		return runner.Up(cmd.Context())
	case "down":
		return runner.Down(cmd.Context())
	default:
		version, dirty, err := runner.Version()
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), map[string]any{"version": version, "dirty": dirty})
	}
}
