package main

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trialscout/trial-matcher/internal/domain"
	"github.com/trialscout/trial-matcher/internal/extraction"
	"github.com/trialscout/trial-matcher/internal/service"
)

func newExtractCmd(app *cli) *cobra.Command {
	var (
		file       string
		cancerType string
		age        int
		sex        string
		textOnly   bool
		apiKey     string
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract biomarkers from a pathology or molecular report",
		Long:  "Reads a PDF or text report and prints the extracted biomarker data with the patient profile built from it. --text-only prints the document text without calling the LLM.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read report: %w", err)
			}
			doc := extraction.Document{
				Filename:    filepath.Base(file),
				ContentType: contentTypeOf(file, data),
				Body:        bytes.NewReader(data),
			}
			documents := extraction.NewTextExtractor(0, app.logger)

			if textOnly {
				result, err := service.NewExtractionService(app.logger, documents, nil).ExtractText(ctx, doc)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), result)
			}

			if apiKey == "" {
				apiKey = app.cfg.GeminiAPIKey
			}
			if apiKey == "" {
				return errors.New("biomarker extraction needs an API key: set GEMINI_API_KEY or pass --api-key")
			}
			client, err := app.newLLM(ctx, apiKey, app.cfg.GeminiModel)
			if err != nil {
				return err
			}
			defer client.Close()

			extractor, err := extraction.NewBiomarkerExtractor(client, extraction.DefaultExtractorConfig(), app.logger)
			if err != nil {
				return err
			}

			overrides := extraction.ProfileOverrides{Sex: domain.Sex(strings.ToLower(sex))}
			if age > 0 {
				overrides.Age = &age
			}
			if ct := domain.CancerType(strings.ToLower(cancerType)); ct.IsValid() {
				overrides.CancerType = ct
			}

			result, err := service.NewExtractionService(app.logger, documents, extractor).
				ExtractDocument(ctx, doc, cancerType, overrides)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Report file, PDF or plain text (required)")
	cmd.Flags().StringVar(&cancerType, "cancer-type", "", "breast or lung; omit to auto-detect")
	cmd.Flags().IntVar(&age, "age", 0, "Patient age when the report states none")
	cmd.Flags().StringVar(&sex, "sex", "", "Patient sex when the report states none")
	cmd.Flags().BoolVar(&textOnly, "text-only", false, "Print the document text only")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Gemini API key (overrides GEMINI_API_KEY)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// contentTypeOf trusts the file extension and falls back to sniffing
func contentTypeOf(path string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
