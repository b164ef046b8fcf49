package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialscout/trial-matcher/internal/catalog"
	"github.com/trialscout/trial-matcher/internal/domain"
	"github.com/trialscout/trial-matcher/internal/extraction"
	"github.com/trialscout/trial-matcher/internal/feedback"
)

const breastReport = `SURGICAL PATHOLOGY REPORT
58 year old female. Invasive ductal carcinoma, left breast, stage IV.
ER positive (95%), PR positive (60%), HER2 IHC 1+. Ki-67 20%.`

type stubExtractor struct {
	data  *domain.ExtractedBiomarkerData
	err   error
	hints []string
}

func (s *stubExtractor) Extract(_ context.Context, _ string, hint string) (*domain.ExtractedBiomarkerData, error) {
	s.hints = append(s.hints, hint)
	return s.data, s.err
}

func breastExtraction() *domain.ExtractedBiomarkerData {
	age := 58.0
	ihc := "1+"
	ki67 := 20.0
	return &domain.ExtractedBiomarkerData{
		CancerType:          "breast",
		PatientDemographics: &domain.ExtractedDemographics{Age: &age, Sex: "female"},
		ClinicalStatus:      &domain.ExtractedClinicalStatus{Stage: "IV", ECOG: "unknown"},
		Biomarkers: map[string]domain.ExtractedMarker{
			"ER":              {Status: "present"},
			"PR":              {Status: "present"},
			"HER2":            {Status: "unknown", IHCScore: &ihc},
			"Ki67_percentage": {Value: &ki67},
		},
	}
}

func TestExtractionService_ExtractDocument(t *testing.T) {
	stub := &stubExtractor{data: breastExtraction()}
	svc := NewExtractionService(nil, extraction.NewTextExtractor(0, nil), stub)
	require.True(t, svc.BiomarkerExtractionEnabled())

	result, err := svc.ExtractDocument(context.Background(), extraction.Document{
		Filename:    "path.txt",
		ContentType: "text/plain",
		Body:        strings.NewReader(breastReport),
	}, "breast", extraction.ProfileOverrides{})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, breastReport, result.RawText)
	assert.Equal(t, []string{"breast"}, stub.hints)
	require.NotNil(t, result.PatientProfile)
	assert.Equal(t, domain.HER2_LOW, result.PatientProfile.Biomarkers.Breast.HER2)
	assert.Empty(t, result.MappingError)
	assert.GreaterOrEqual(t, result.ProcessingTimeSeconds, 0.0)
}

func TestExtractionService_MappingFailureStillReturnsData(t *testing.T) {
	data := breastExtraction()
	data.PatientDemographics = nil
	svc := NewExtractionService(nil, extraction.NewTextExtractor(0, nil), &stubExtractor{data: data})

	result, err := svc.ExtractFromText(context.Background(), breastReport, "", extraction.ProfileOverrides{})
	require.NoError(t, err)
	assert.Nil(t, result.PatientProfile)
	assert.Contains(t, result.MappingError, "mapping extraction failed")
	assert.Equal(t, "breast", result.BiomarkerData.CancerType)
}

func TestExtractionService_Errors(t *testing.T) {
	ctx := context.Background()
	doc := func(body string) extraction.Document {
		return extraction.Document{ContentType: "text/plain", Body: strings.NewReader(body)}
	}

	disabled := NewExtractionService(nil, extraction.NewTextExtractor(0, nil), nil)
	assert.False(t, disabled.BiomarkerExtractionEnabled())
	_, err := disabled.ExtractDocument(ctx, doc(breastReport), "", extraction.ProfileOverrides{})
	assert.ErrorIs(t, err, ErrExtractionDisabled)

	llmErr := domain.NewExtractionError(domain.STAGE_LLM, errors.New("quota exceeded"))
	failing := NewExtractionService(nil, extraction.NewTextExtractor(0, nil), &stubExtractor{err: llmErr})
	_, err = failing.ExtractDocument(ctx, doc(breastReport), "", extraction.ProfileOverrides{})
	assert.ErrorIs(t, err, llmErr)

	stub := &stubExtractor{data: breastExtraction()}
	short := NewExtractionService(nil, extraction.NewTextExtractor(0, nil), stub)
	_, err = short.ExtractDocument(ctx, doc("ER+"), "", extraction.ProfileOverrides{})
	assert.ErrorIs(t, err, domain.ErrInsufficientText)
	assert.Empty(t, stub.hints, "the LLM is not called for empty documents")
}

func TestExtractionService_ExtractText(t *testing.T) {
	svc := NewExtractionService(nil, extraction.NewTextExtractor(0, nil), nil)

	result, err := svc.ExtractText(context.Background(), extraction.Document{
		ContentType: "text/plain",
		Body:        strings.NewReader("line one\nline two\nline three"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.LineCount)
	assert.Equal(t, 28, result.CharCount)

	long := strings.Repeat("a", 1500)
	assert.Equal(t, strings.Repeat("a", 1000)+"...", preview(long))
}

func TestFeedbackService(t *testing.T) {
	ctx := context.Background()
	store, err := feedback.NewSQLiteStore(filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	trials, err := catalog.NewSeededMemoryStore()
	require.NoError(t, err)
	svc := NewFeedbackService(nil, store, trials)

	fb := &feedback.Feedback{NCTNumber: "NCT05894239", Score: 95, Confidence: domain.HIGH, Outcome: feedback.OutcomeEnrolled}
	require.NoError(t, svc.Record(ctx, fb))
	assert.Equal(t, domain.LUNG, fb.CancerType, "cancer type is filled from the catalog")

	err = svc.Record(ctx, &feedback.Feedback{NCTNumber: "NCT00000001", Outcome: feedback.OutcomePending})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = svc.Record(ctx, &feedback.Feedback{NCTNumber: "NCT05894239"})
	var verrs domain.ValidationErrors
	assert.ErrorAs(t, err, &verrs)

	page, err := svc.List(ctx, 0, -5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, DefaultFeedbackPage, page.Limit)
	assert.Equal(t, 0, page.Offset)
	require.Len(t, page.Feedback, 1)

	var buf strings.Builder
	require.NoError(t, svc.Export(ctx, &buf))
	imported, skipped, err := svc.Import(ctx, strings.NewReader(buf.String()))
	require.NoError(t, err)
	assert.Equal(t, 0, imported)
	assert.Equal(t, 1, skipped)
}
