package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/trialscout/trial-matcher/internal/domain"
	"github.com/trialscout/trial-matcher/internal/extraction"
)

// ErrExtractionDisabled is returned when no LLM extractor is configured
var ErrExtractionDisabled = errors.New("biomarker extraction is not configured")

// rawTextPreview is how much document text an extraction response echoes back
const rawTextPreview = 1000

// TextExtractor turns an uploaded document into plain text
type TextExtractor interface {
	ExtractText(ctx context.Context, doc extraction.Document) (string, error)
}

// ExtractionService runs uploaded documents through text and biomarker extraction
type ExtractionService struct {
	logger    *logrus.Logger
	documents TextExtractor
	llm       domain.BiomarkerExtractor
}

// NewExtractionService creates an extraction service. llm may be nil, in which
// case only text extraction is available.
func NewExtractionService(logger *logrus.Logger, documents TextExtractor, llm domain.BiomarkerExtractor) *ExtractionService {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &ExtractionService{logger: logger, documents: documents, llm: llm}
}

// BiomarkerExtractionEnabled reports whether an LLM extractor is configured
func (s *ExtractionService) BiomarkerExtractionEnabled() bool {
	return s.llm != nil
}

// TextResult is the response of text-only extraction
type TextResult struct {
	Success   bool   `json:"success"`
	Text      string `json:"text"`
	CharCount int    `json:"char_count"`
	LineCount int    `json:"line_count"`
}

// ExtractText returns the document text with character and line counts
func (s *ExtractionService) ExtractText(ctx context.Context, doc extraction.Document) (*TextResult, error) {
	text, err := s.documents.ExtractText(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &TextResult{
		Success:   true,
		Text:      text,
		CharCount: utf8.RuneCountInString(text),
		LineCount: len(strings.Split(text, "\n")),
	}, nil
}

// BiomarkerResult is the response of document biomarker extraction.
// PatientProfile is set only when the extraction maps onto a valid profile.
type BiomarkerResult struct {
	Success               bool                           `json:"success"`
	BiomarkerData         *domain.ExtractedBiomarkerData `json:"biomarker_data"`
	PatientProfile        *domain.PatientProfile         `json:"patient_profile,omitempty"`
	Unresolved            []string                       `json:"unresolved,omitempty"`
	MappingError          string                         `json:"mapping_error,omitempty"`
	RawText               string                         `json:"raw_text"`
	ProcessingTimeSeconds float64                        `json:"processing_time_seconds"`
}

// ExtractDocument extracts a document's text and its structured biomarker data
func (s *ExtractionService) ExtractDocument(ctx context.Context, doc extraction.Document, hint string, overrides extraction.ProfileOverrides) (*BiomarkerResult, error) {
	if s.llm == nil {
		return nil, ErrExtractionDisabled
	}
	start := time.Now()

	text, err := s.documents.ExtractText(ctx, doc)
	if err != nil {
		return nil, err
	}

	result, err := s.extract(ctx, text, hint, overrides)
	if err != nil {
		return nil, err
	}
	result.RawText = preview(text)
	result.ProcessingTimeSeconds = roundSeconds(time.Since(start))

	s.logger.WithFields(logrus.Fields{
		"filename":    doc.Filename,
		"cancer_type": result.BiomarkerData.CancerType,
		"mapped":      result.PatientProfile != nil,
		"seconds":     result.ProcessingTimeSeconds,
	}).Info("Completed document extraction")

	return result, nil
}

// ExtractFromText runs biomarker extraction on text that is already plain
func (s *ExtractionService) ExtractFromText(ctx context.Context, text, hint string, overrides extraction.ProfileOverrides) (*BiomarkerResult, error) {
	if s.llm == nil {
		return nil, ErrExtractionDisabled
	}
	start := time.Now()

	result, err := s.extract(ctx, text, hint, overrides)
	if err != nil {
		return nil, err
	}
	result.RawText = preview(text)
	result.ProcessingTimeSeconds = roundSeconds(time.Since(start))
	return result, nil
}

func (s *ExtractionService) extract(ctx context.Context, text, hint string, overrides extraction.ProfileOverrides) (*BiomarkerResult, error) {
	if err := extraction.RequireText(text); err != nil {
		return nil, err
	}

	data, err := s.llm.Extract(ctx, text, hint)
	if err != nil {
		return nil, err
	}

	result := &BiomarkerResult{Success: true, BiomarkerData: data}

	// an extraction that cannot become a profile is still useful to the caller
	mapped, err := extraction.MapToProfile(data, overrides)
	if err != nil {
		s.logger.WithError(err).Warn("Extracted data did not map to a patient profile")
		result.MappingError = err.Error()
		return result, nil
	}
	result.PatientProfile = mapped.Profile
	result.Unresolved = mapped.Unresolved
	return result, nil
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= rawTextPreview {
		return text
	}
	runes := []rune(text)
	return string(runes[:rawTextPreview]) + "..."
}

func roundSeconds(d time.Duration) float64 {
	return float64(d.Round(10*time.Millisecond).Milliseconds()) / 1000
}
