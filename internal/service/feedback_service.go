package service

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/trialscout/trial-matcher/internal/domain"
	"github.com/trialscout/trial-matcher/internal/feedback"
)

// DefaultFeedbackPage is the page size used when a caller gives none
const DefaultFeedbackPage = 50

// FeedbackService records clinician outcomes for surfaced matches
type FeedbackService struct {
	logger  *logrus.Logger
	store   feedback.Store
	catalog domain.TrialCatalogSource
}

// NewFeedbackService creates a feedback service. When catalog is non-nil,
// feedback must reference a trial that exists in it.
func NewFeedbackService(logger *logrus.Logger, store feedback.Store, catalog domain.TrialCatalogSource) *FeedbackService {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &FeedbackService{logger: logger, store: store, catalog: catalog}
}

// Record validates and saves one feedback entry, filling the cancer type from
// the catalog when the caller omitted it.
func (s *FeedbackService) Record(ctx context.Context, fb *feedback.Feedback) error {
	if fb == nil {
		return fmt.Errorf("%w: feedback is required", domain.ErrInvalidInput)
	}
	if err := fb.Validate(); err != nil {
		return err
	}

	if s.catalog != nil {
		trial, err := s.catalog.GetTrial(ctx, fb.NCTNumber)
		if err != nil {
			return err
		}
		if fb.CancerType == "" {
			fb.CancerType = trial.CancerType
		}
	}

	if err := s.store.Save(ctx, fb); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"feedback_id": fb.ID,
		"nct_number":  fb.NCTNumber,
		"outcome":     fb.Outcome,
	}).Info("Recorded match feedback")
	return nil
}

// FeedbackPage is one page of feedback with the total count
type FeedbackPage struct {
	Feedback []*feedback.Feedback `json:"feedback"`
	Total    int64                `json:"total"`
	Limit    int                  `json:"limit"`
	Offset   int                  `json:"offset"`
}

// List returns feedback newest first
func (s *FeedbackService) List(ctx context.Context, limit, offset int) (*FeedbackPage, error) {
	if limit <= 0 || limit > domain.MaxListLimit {
		limit = DefaultFeedbackPage
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*feedback.Feedback{}
	}
	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}

	return &FeedbackPage{Feedback: entries, Total: total, Limit: limit, Offset: offset}, nil
}

// Export writes every feedback entry as JSON
func (s *FeedbackService) Export(ctx context.Context, w io.Writer) error {
	return s.store.ExportJSON(ctx, w)
}

// Import loads a previous export, skipping entries that already exist
func (s *FeedbackService) Import(ctx context.Context, r io.Reader) (imported, skipped int, err error) {
	imported, skipped, err = s.store.ImportJSON(ctx, r)
	if err != nil {
		return imported, skipped, err
	}
	s.logger.WithFields(logrus.Fields{
		"imported": imported,
		"skipped":  skipped,
	}).Info("Imported match feedback")
	return imported, skipped, nil
}
