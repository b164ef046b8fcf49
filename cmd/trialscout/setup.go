package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trialscout/trial-matcher/internal/setup"
)

func newSetupCmd(app *cli) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the MCP server with Claude Desktop",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Client config file (default: Claude Desktop's)")

	var (
		binary     string
		withGemini bool
	)
	register := &cobra.Command{
		Use:   "claude-desktop",
		Short: "Add or update the trialscout entry in the client config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if binary == "" {
				found, err := setup.FindBinary("mcp-server")
				if err != nil {
					return fmt.Errorf("%w; pass --binary", err)
				}
				binary = found
			}

			env := map[string]string{}
			if withGemini && app.cfg.GeminiAPIKey != "" {
				env["GEMINI_API_KEY"] = app.cfg.GeminiAPIKey
			}

			path, err := setup.Register(setup.Options{
				ConfigPath: configPath,
				BinaryPath: binary,
				DataDir:    app.cfg.DataDir,
				Env:        env,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s in %s\nRestart the client to load it.\n", setup.ServerName, path)
			return nil
		},
	}
	register.Flags().StringVar(&binary, "binary", "", "Path to the mcp-server binary (default: search PATH, ./bin, ./build)")
	register.Flags().BoolVar(&withGemini, "with-gemini-key", false, "Copy GEMINI_API_KEY into the entry to enable extract_biomarkers")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether the MCP server is registered and runnable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := setup.Check(configPath, app.cfg.DataDir)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), st); err != nil {
				return err
			}
			if _, err := os.Stat(st.DataDir); err != nil {
				app.logger.WithField("data_dir", st.DataDir).Info("Data directory will be created on first run")
			}
			if !st.Healthy() {
				return fmt.Errorf("setup has %d issue(s)", len(st.Issues))
			}
			return nil
		},
	}

	cmd.AddCommand(register, status)
	return cmd
}
