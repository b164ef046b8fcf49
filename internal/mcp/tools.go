package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/trialscout/trial-matcher/internal/domain"
	"github.com/trialscout/trial-matcher/internal/extraction"
	"github.com/trialscout/trial-matcher/internal/feedback"
)

// MatchTrialsParams defines parameters for the match_trials tool
type MatchTrialsParams struct {
	Patient map[string]any `json:"patient" jsonschema:"patient profile with age, sex, cancer_type, stage, ecog, biomarkers, prior_treatments and line_of_therapy"`
}

// CheckExclusionParams defines parameters for the check_exclusion tool
type CheckExclusionParams struct {
	Patient   map[string]any `json:"patient" jsonschema:"patient profile, same shape as for match_trials"`
	NCTNumber string         `json:"nct_number" jsonschema:"trial identifier such as NCT05894239"`
}

// ListTrialsParams defines parameters for the list_trials tool
type ListTrialsParams struct {
	CancerType string `json:"cancer_type,omitempty" jsonschema:"breast or lung"`
	Status     string `json:"status,omitempty" jsonschema:"recruiting, active_not_recruiting or completed"`
	Skip       int    `json:"skip,omitempty"`
	Limit      int    `json:"limit,omitempty" jsonschema:"page size, at most 100"`
}

// GetTrialParams defines parameters for the get_trial tool
type GetTrialParams struct {
	NCTNumber string `json:"nct_number" jsonschema:"trial identifier such as NCT05894239"`
}

// RecordFeedbackParams defines parameters for the record_feedback tool
type RecordFeedbackParams struct {
	NCTNumber  string `json:"nct_number"`
	Outcome    string `json:"outcome" jsonschema:"enrolled, screen_failed, not_pursued or pending"`
	Score      int    `json:"score,omitempty" jsonschema:"match score shown to the clinician"`
	Confidence string `json:"confidence,omitempty" jsonschema:"high, medium or low"`
	Notes      string `json:"notes,omitempty"`
}

// ListFeedbackParams defines parameters for the list_feedback tool
type ListFeedbackParams struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// ExportFeedbackParams defines parameters for the export_feedback tool
type ExportFeedbackParams struct {
	Filename string `json:"filename,omitempty" jsonschema:"file name inside the export directory"`
}

// ExtractBiomarkersParams defines parameters for the extract_biomarkers tool
type ExtractBiomarkersParams struct {
	Text       string `json:"text" jsonschema:"pathology or molecular report text"`
	CancerType string `json:"cancer_type,omitempty" jsonschema:"breast or lung; omit to auto-detect"`
	Age        int    `json:"age,omitempty" jsonschema:"used when the report states no age"`
	Sex        string `json:"sex,omitempty" jsonschema:"used when the report states no sex"`
}

// addTool registers one typed tool. The SDK derives the input schema from In.
func addTool[In any](s *Server, tool *mcp.Tool, handler mcp.ToolHandlerFor[In, any]) {
	mcp.AddTool(s.mcpServer, tool, handler)
	s.tools = append(s.tools, tool.Name)
	s.logger.WithField("tool_name", tool.Name).Debug("Registered MCP tool")
}

func (s *Server) registerTools() {
	addTool[MatchTrialsParams](s, &mcp.Tool{
		Name:        "match_trials",
		Description: "Rank the catalog's trials for one patient. Returns matches with scores, reasons and items to confirm.",
	}, s.handleMatchTrials)

	addTool[CheckExclusionParams](s, &mcp.Tool{
		Name:        "check_exclusion",
		Description: "Report whether a patient is hard-excluded from one trial and which rule excluded them.",
	}, s.handleCheckExclusion)

	addTool[ListTrialsParams](s, &mcp.Tool{
		Name:        "list_trials",
		Description: "List catalog trials, optionally filtered by cancer type and recruitment status.",
	}, s.handleListTrials)

	addTool[GetTrialParams](s, &mcp.Tool{
		Name:        "get_trial",
		Description: "Fetch one trial with its eligibility criteria by NCT number.",
	}, s.handleGetTrial)

	if s.services.Feedback != nil {
		addTool[RecordFeedbackParams](s, &mcp.Tool{
			Name:        "record_feedback",
			Description: "Record what happened after a match was shown: enrolled, screen_failed, not_pursued or pending.",
		}, s.handleRecordFeedback)

		addTool[ListFeedbackParams](s, &mcp.Tool{
			Name:        "list_feedback",
			Description: "List recorded match feedback, newest first.",
		}, s.handleListFeedback)

		if s.opts.ExportDir != "" {
			addTool[ExportFeedbackParams](s, &mcp.Tool{
				Name:        "export_feedback",
				Description: "Write all recorded feedback to a JSON file in the export directory.",
			}, s.handleExportFeedback)
		}
	}

	if s.services.Extraction != nil && s.services.Extraction.BiomarkerExtractionEnabled() {
		addTool[ExtractBiomarkersParams](s, &mcp.Tool{
			Name:        "extract_biomarkers",
			Description: "Extract structured biomarkers from report text and map them onto a patient profile for match_trials.",
		}, s.handleExtractBiomarkers)
	}
}

// decodePatient turns tool arguments into a profile through the same JSON
// decoding the REST API uses, so panels are selected by cancer type.
func decodePatient(raw map[string]any) (*domain.PatientProfile, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: patient is required", domain.ErrInvalidInput)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	var profile domain.PatientProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return &profile, nil
}

func (s *Server) handleMatchTrials(ctx context.Context, _ *mcp.CallToolRequest, params MatchTrialsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "match_trials").Info("Tool invoked")

	profile, err := decodePatient(params.Patient)
	if err != nil {
		return s.errorResult("match_trials", err), nil, nil
	}
	resp, err := s.services.Match.Match(ctx, profile)
	if err != nil {
		return s.errorResult("match_trials", err), nil, nil
	}

	summary := fmt.Sprintf("%d of %d %s trials matched (%d possibly eligible, %d hard-excluded).",
		len(resp.Matches), resp.Stats.TotalTrials, profile.CancerType, resp.Stats.PossiblyEligible, resp.Stats.HardExcluded)
	return s.jsonResult(summary, resp), nil, nil
}

func (s *Server) handleCheckExclusion(ctx context.Context, _ *mcp.CallToolRequest, params CheckExclusionParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "check_exclusion").Info("Tool invoked")

	if params.NCTNumber == "" {
		return s.errorResult("check_exclusion", domain.NewValidationError("nct_number", "is required", "")), nil, nil
	}
	profile, err := decodePatient(params.Patient)
	if err != nil {
		return s.errorResult("check_exclusion", err), nil, nil
	}

	check, err := s.services.Match.CheckExclusion(ctx, profile, strings.ToUpper(params.NCTNumber))
	if err != nil {
		return s.errorResult("check_exclusion", err), nil, nil
	}

	summary := fmt.Sprintf("Patient is not excluded from %s.", check.NCTNumber)
	if check.Excluded {
		summary = fmt.Sprintf("Patient is excluded from %s: %s (%s).", check.NCTNumber, check.Reason.Message, check.Reason.RuleCode)
	}
	return s.jsonResult(summary, check), nil, nil
}

func (s *Server) handleListTrials(ctx context.Context, _ *mcp.CallToolRequest, params ListTrialsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "list_trials").Info("Tool invoked")

	filter := domain.TrialFilter{Skip: params.Skip, Limit: params.Limit}
	if params.CancerType != "" {
		ct := domain.CancerType(strings.ToLower(params.CancerType))
		filter.CancerType = &ct
	}
	if params.Status != "" {
		st := domain.TrialStatus(strings.ToLower(params.Status))
		filter.Status = &st
	}

	trials, err := s.services.Match.ListTrials(ctx, filter)
	if err != nil {
		return s.errorResult("list_trials", err), nil, nil
	}
	return s.jsonResult(fmt.Sprintf("%d trials.", len(trials)), trials), nil, nil
}

func (s *Server) handleGetTrial(ctx context.Context, _ *mcp.CallToolRequest, params GetTrialParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "get_trial").Info("Tool invoked")

	trial, err := s.services.Match.GetTrial(ctx, strings.ToUpper(params.NCTNumber))
	if err != nil {
		return s.errorResult("get_trial", err), nil, nil
	}
	return s.jsonResult(fmt.Sprintf("%s: %s", trial.NCTNumber, trial.Title), trial), nil, nil
}

func (s *Server) handleRecordFeedback(ctx context.Context, _ *mcp.CallToolRequest, params RecordFeedbackParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "record_feedback").Info("Tool invoked")

	fb := &feedback.Feedback{
		NCTNumber:  strings.ToUpper(params.NCTNumber),
		Outcome:    feedback.Outcome(strings.ToLower(params.Outcome)),
		Score:      params.Score,
		Confidence: domain.ConfidenceLevel(strings.ToLower(params.Confidence)),
		Notes:      params.Notes,
	}
	if err := s.services.Feedback.Record(ctx, fb); err != nil {
		return s.errorResult("record_feedback", err), nil, nil
	}
	return s.jsonResult(fmt.Sprintf("Recorded %s for %s (id %s).", fb.Outcome, fb.NCTNumber, fb.ID), fb), nil, nil
}

func (s *Server) handleListFeedback(ctx context.Context, _ *mcp.CallToolRequest, params ListFeedbackParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "list_feedback").Info("Tool invoked")

	page, err := s.services.Feedback.List(ctx, params.Limit, params.Offset)
	if err != nil {
		return s.errorResult("list_feedback", err), nil, nil
	}
	return s.jsonResult(fmt.Sprintf("%d of %d feedback entries.", len(page.Feedback), page.Total), page), nil, nil
}

func (s *Server) handleExportFeedback(ctx context.Context, _ *mcp.CallToolRequest, params ExportFeedbackParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "export_feedback").Info("Tool invoked")

	name := filepath.Base(params.Filename)
	if params.Filename == "" || name == "." || name == string(filepath.Separator) {
		name = fmt.Sprintf("feedback-%s.json", time.Now().UTC().Format("20060102-150405"))
	}
	path := filepath.Join(s.opts.ExportDir, name)

	f, err := os.Create(path)
	if err != nil {
		return s.errorResult("export_feedback", fmt.Errorf("failed to create export file: %w", err)), nil, nil
	}
	exportErr := s.services.Feedback.Export(ctx, f)
	if err := f.Close(); exportErr == nil {
		exportErr = err
	}
	if exportErr != nil {
		return s.errorResult("export_feedback", exportErr), nil, nil
	}

	return s.jsonResult(fmt.Sprintf("Exported feedback to %s.", path), map[string]string{"path": path}), nil, nil
}

func (s *Server) handleExtractBiomarkers(ctx context.Context, _ *mcp.CallToolRequest, params ExtractBiomarkersParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "extract_biomarkers").Info("Tool invoked")

	overrides := extraction.ProfileOverrides{
		Sex:        domain.Sex(strings.ToLower(params.Sex)),
		CancerType: domain.CancerType(strings.ToLower(params.CancerType)),
	}
	if !overrides.CancerType.IsValid() {
		overrides.CancerType = ""
	}
	if params.Age > 0 {
		age := params.Age
		overrides.Age = &age
	}

	result, err := s.services.Extraction.ExtractFromText(ctx, params.Text, params.CancerType, overrides)
	if err != nil {
		return s.errorResult("extract_biomarkers", err), nil, nil
	}

	summary := fmt.Sprintf("Extracted %d biomarkers for a %s cancer report.", len(result.BiomarkerData.Biomarkers), result.BiomarkerData.CancerType)
	if result.PatientProfile == nil {
		summary += " The report could not be mapped onto a complete patient profile: " + result.MappingError
	}
	return s.jsonResult(summary, result), nil, nil
}

// jsonResult returns a one-line summary followed by the JSON payload
func (s *Server) jsonResult(summary string, payload any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return s.errorResult("encode", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: summary},
			&mcp.TextContent{Text: string(data)},
		},
	}
}

// errorResult reports a failed call as tool output so the assistant can
// correct its arguments
func (s *Server) errorResult(tool string, err error) *mcp.CallToolResult {
	text := "Error: " + err.Error()

	var verrs domain.ValidationErrors
	if errors.As(err, &verrs) {
		lines := make([]string, 0, len(verrs)+1)
		lines = append(lines, "Error: invalid input")
		for _, v := range verrs {
			lines = append(lines, fmt.Sprintf("- %s: %s", v.Field, v.Message))
		}
		text = strings.Join(lines, "\n")
	}

	s.logger.WithFields(logrus.Fields{
		"tool":  tool,
		"error": err.Error(),
	}).Warn("Tool call failed")

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
