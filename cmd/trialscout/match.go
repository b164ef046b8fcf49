package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/trialscout/trial-matcher/internal/domain"
	"github.com/trialscout/trial-matcher/internal/service"
)

func newMatchCmd(app *cli) *cobra.Command {
	var (
		patientFile  string
		cancerType   string
		priorTherapy bool
		stores       storeFlags
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Rank trials for a patient profile",
		Long:  "Reads a patient profile as JSON and prints the ranked MatchingResponse: possibly eligible trials first, each with a score, why it matched and what to confirm.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			profile, err := readPatient(cmd, patientFile, cancerType)
			if err != nil {
				return err
			}

			store, closeStore, err := app.openCatalog(ctx, stores)
			if err != nil {
				return err
			}
			defer closeStore()

			matching := app.cfg.Matching()
			if cmd.Flags().Changed("prior-therapy-exclusion") {
				matching.PriorTherapyExclusion = priorTherapy
			}

			resp, err := service.NewMatchService(app.logger, store, matching).Match(ctx, profile)
			if err != nil {
				return describeError(err)
			}
			return writeJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringVarP(&patientFile, "patient", "p", "", "Patient profile JSON file, - for stdin (required)")
	cmd.Flags().StringVar(&cancerType, "cancer-type", "", "Cancer type when the profile omits it (breast or lung)")
	cmd.Flags().BoolVar(&priorTherapy, "prior-therapy-exclusion", false, "Treat prior exposure to an excluded drug as a hard exclusion")
	stores.register(cmd, "Read trials from this SQLite catalog instead of the embedded one")
	_ = cmd.MarkFlagRequired("patient")
	return cmd
}

func newCheckCmd(app *cli) *cobra.Command {
	var (
		patientFile string
		nctNumber   string
		stores      storeFlags
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a patient is hard-excluded from one trial",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			profile, err := readPatient(cmd, patientFile, "")
			if err != nil {
				return err
			}

			store, closeStore, err := app.openCatalog(ctx, stores)
			if err != nil {
				return err
			}
			defer closeStore()

			check, err := service.NewMatchService(app.logger, store, app.cfg.Matching()).
				CheckExclusion(ctx, profile, strings.ToUpper(nctNumber))
			if err != nil {
				return describeError(err)
			}
			return writeJSON(cmd.OutOrStdout(), check)
		},
	}

	cmd.Flags().StringVarP(&patientFile, "patient", "p", "", "Patient profile JSON file, - for stdin (required)")
	cmd.Flags().StringVar(&nctNumber, "nct", "", "Trial NCT number (required)")
	stores.register(cmd, "Read trials from this SQLite catalog instead of the embedded one")
	_ = cmd.MarkFlagRequired("patient")
	_ = cmd.MarkFlagRequired("nct")
	return cmd
}

func newTrialsCmd(app *cli) *cobra.Command {
	var (
		cancerType string
		status     string
		skip       int
		limit      int
		stores     storeFlags
	)

	cmd := &cobra.Command{
		Use:   "trials [nct]",
		Short: "List catalog trials, or show one by NCT number",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closeStore, err := app.openCatalog(ctx, stores)
			if err != nil {
				return err
			}
			defer closeStore()

			svc := service.NewMatchService(app.logger, store, app.cfg.Matching())
			if len(args) == 1 {
				trial, err := svc.GetTrial(ctx, strings.ToUpper(args[0]))
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), trial)
			}

			filter := domain.TrialFilter{Skip: skip, Limit: limit}
			if cancerType != "" {
				ct := domain.CancerType(strings.ToLower(cancerType))
				filter.CancerType = &ct
			}
			if status != "" {
				st := domain.TrialStatus(strings.ToLower(status))
				filter.Status = &st
			}
			trials, err := svc.ListTrials(ctx, filter)
			if err != nil {
				return describeError(err)
			}
			return writeJSON(cmd.OutOrStdout(), trials)
		},
	}

	cmd.Flags().StringVar(&cancerType, "cancer-type", "", "Only trials for this cancer type")
	cmd.Flags().StringVar(&status, "status", "", "Only trials with this recruitment status")
	cmd.Flags().IntVar(&skip, "skip", 0, "Trials to skip")
	cmd.Flags().IntVar(&limit, "limit", domain.MaxListLimit, "Page size")
	stores.register(cmd, "Read trials from this SQLite catalog instead of the embedded one")
	return cmd
}
