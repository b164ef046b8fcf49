// Package service wires the trial catalog, matching engine, clinician feedback
// and document extraction into the operations exposed over REST, MCP and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/trialscout/trial-matcher/internal/domain"
	"github.com/trialscout/trial-matcher/internal/matching"
)

// DefaultMaxBatchSize bounds POST /match/batch
const DefaultMaxBatchSize = 20

// ErrBatchTooLarge is returned when a batch exceeds the configured size
var ErrBatchTooLarge = errors.New("batch exceeds maximum size")

// ErrReadOnlyCatalog is returned by trial mutations when the catalog cannot be written
var ErrReadOnlyCatalog = errors.New("trial catalog is read-only")

// MatchService runs patient profiles against the trial catalog
type MatchService struct {
	logger  *logrus.Logger
	catalog domain.TrialCatalogSource
	engine  *matching.Engine
	cfg     domain.MatchingConfig
}

// NewMatchService creates a match service over catalog. A nil logger discards output.
func NewMatchService(logger *logrus.Logger, catalog domain.TrialCatalogSource, cfg domain.MatchingConfig) *MatchService {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.DatasetVersion == "" {
		cfg.DatasetVersion = matching.DefaultDatasetVersion
	}

	return &MatchService{
		logger:  logger,
		catalog: catalog,
		engine: matching.NewEngine(logger, matching.Options{
			PriorTherapyExclusion: cfg.PriorTherapyExclusion,
			DatasetVersion:        cfg.DatasetVersion,
		}),
		cfg: cfg,
	}
}

// Config returns the effective matching configuration
func (s *MatchService) Config() domain.MatchingConfig {
	return s.cfg
}

// Match validates the profile and ranks the trials of its cancer type
func (s *MatchService) Match(ctx context.Context, profile *domain.PatientProfile) (*domain.MatchingResponse, error) {
	if profile == nil {
		return nil, fmt.Errorf("%w: patient profile is required", domain.ErrInvalidInput)
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	trials, err := s.catalog.GetTrials(ctx, &profile.CancerType)
	if err != nil {
		return nil, fmt.Errorf("failed to load trials: %w", err)
	}

	return s.engine.MatchTrials(profile, trials), nil
}

// MatchBatch matches up to MaxBatchSize profiles concurrently. Results keep
// the order of profiles. Every profile is validated before any matching starts;
// field names in the returned errors are prefixed with the profile index.
func (s *MatchService) MatchBatch(ctx context.Context, profiles []domain.PatientProfile) ([]*domain.MatchingResponse, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("%w: at least one patient profile is required", domain.ErrInvalidInput)
	}
	if len(profiles) > s.cfg.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d profiles, limit is %d", ErrBatchTooLarge, len(profiles), s.cfg.MaxBatchSize)
	}

	var verrs domain.ValidationErrors
	for i := range profiles {
		err := profiles[i].Validate()
		if err == nil {
			continue
		}
		var fieldErrs domain.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, err
		}
		for _, fe := range fieldErrs {
			verrs = append(verrs, domain.NewValidationError(fmt.Sprintf("profiles[%d].%s", i, fe.Field), fe.Message, fe.Value))
		}
	}
	if len(verrs) > 0 {
		return nil, verrs
	}

	// one catalog read per cancer type, shared read-only by the workers
	byType := map[domain.CancerType][]domain.Trial{}
	for i := range profiles {
		ct := profiles[i].CancerType
		if _, ok := byType[ct]; ok {
			continue
		}
		trials, err := s.catalog.GetTrials(ctx, &ct)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s trials: %w", ct, err)
		}
		byType[ct] = trials
	}

	start := time.Now()
	results := make([]*domain.MatchingResponse, len(profiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range profiles {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.engine.MatchTrials(&profiles[i], byType[profiles[i].CancerType])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"profiles":    len(profiles),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Completed batch matching")

	return results, nil
}

// ExclusionCheck is the outcome of checking one patient against one trial
type ExclusionCheck struct {
	NCTNumber string                  `json:"nct_number"`
	Excluded  bool                    `json:"excluded"`
	Reason    *domain.ExclusionReason `json:"reason,omitempty"`
}

// CheckExclusion reports whether the patient is hard-excluded from the trial
func (s *MatchService) CheckExclusion(ctx context.Context, profile *domain.PatientProfile, nctNumber string) (*ExclusionCheck, error) {
	if profile == nil {
		return nil, fmt.Errorf("%w: patient profile is required", domain.ErrInvalidInput)
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	trial, err := s.catalog.GetTrial(ctx, nctNumber)
	if err != nil {
		return nil, err
	}

	reason := s.engine.IsHardExcluded(profile, trial)
	return &ExclusionCheck{
		NCTNumber: trial.NCTNumber,
		Excluded:  reason != nil,
		Reason:    reason,
	}, nil
}

// ListTrials returns one page of the catalog
func (s *MatchService) ListTrials(ctx context.Context, filter domain.TrialFilter) ([]domain.Trial, error) {
	if filter.CancerType != nil && !filter.CancerType.IsValid() {
		return nil, domain.NewValidationError("cancer_type", "must be one of breast, lung", string(*filter.CancerType))
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, domain.NewValidationError("status", "must be one of recruiting, active_not_recruiting, completed", string(*filter.Status))
	}
	return s.catalog.ListTrials(ctx, filter.Normalize())
}

// GetTrial returns one trial by NCT number
func (s *MatchService) GetTrial(ctx context.Context, nctNumber string) (*domain.Trial, error) {
	return s.catalog.GetTrial(ctx, nctNumber)
}

func (s *MatchService) store() (domain.TrialStore, error) {
	store, ok := s.catalog.(domain.TrialStore)
	if !ok {
		return nil, ErrReadOnlyCatalog
	}
	return store, nil
}

// CreateTrial adds a trial to the catalog
func (s *MatchService) CreateTrial(ctx context.Context, trial *domain.Trial) error {
	store, err := s.store()
	if err != nil {
		return err
	}
	if err := store.CreateTrial(ctx, trial); err != nil {
		return err
	}
	s.logger.WithField("nct_number", trial.NCTNumber).Info("Created trial")
	return nil
}

// UpdateTrial applies a partial update to a trial
func (s *MatchService) UpdateTrial(ctx context.Context, nctNumber string, patch *domain.TrialPatch) (*domain.Trial, error) {
	store, err := s.store()
	if err != nil {
		return nil, err
	}
	trial, err := store.UpdateTrial(ctx, nctNumber, patch)
	if err != nil {
		return nil, err
	}
	s.logger.WithField("nct_number", nctNumber).Info("Updated trial")
	return trial, nil
}

// DeleteTrial removes a trial from the catalog
func (s *MatchService) DeleteTrial(ctx context.Context, nctNumber string) error {
	store, err := s.store()
	if err != nil {
		return err
	}
	if err := store.DeleteTrial(ctx, nctNumber); err != nil {
		return err
	}
	s.logger.WithField("nct_number", nctNumber).Info("Deleted trial")
	return nil
}

// HealthStatus is the catalog summary reported by the health endpoints
type HealthStatus struct {
	Status         string `json:"status"`
	DatasetVersion string `json:"dataset_version"`
	TotalTrials    int    `json:"total_trials"`
	LastUpdated    string `json:"last_updated"`
}

// Health counts the catalog and finds its most recent update
func (s *MatchService) Health(ctx context.Context) (*HealthStatus, error) {
	trials, err := s.catalog.GetTrials(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	lastUpdated := "N/A"
	if len(trials) > 0 {
		dates := make([]string, 0, len(trials))
		for _, t := range trials {
			if t.LastUpdated != "" {
				dates = append(dates, t.LastUpdated)
			}
		}
		// ISO dates sort lexically
		sort.Strings(dates)
		if len(dates) > 0 {
			lastUpdated = dates[len(dates)-1]
		}
	}

	return &HealthStatus{
		Status:         "ok",
		DatasetVersion: s.cfg.DatasetVersion,
		TotalTrials:    len(trials),
		LastUpdated:    lastUpdated,
	}, nil
}
