package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/trialscout/trial-matcher/internal/domain"
)

// MemoryStore is a TrialStore held in process memory. Insertion order is
// preserved so listings are stable across calls.
type MemoryStore struct {
	mu     sync.RWMutex
	trials []domain.Trial
	index  map[string]int
}

// NewMemoryStore creates a store holding copies of trials. Duplicate NCT
// numbers are rejected.
func NewMemoryStore(trials []domain.Trial) (*MemoryStore, error) {
	s := &MemoryStore{index: make(map[string]int, len(trials))}
	for i := range trials {
		if _, dup := s.index[trials[i].NCTNumber]; dup {
			return nil, fmt.Errorf("trial %s: %w", trials[i].NCTNumber, domain.ErrAlreadyExists)
		}
		s.index[trials[i].NCTNumber] = len(s.trials)
		s.trials = append(s.trials, cloneTrial(trials[i]))
	}
	return s, nil
}

// NewSeededMemoryStore creates a store pre-loaded with the embedded seed catalog
func NewSeededMemoryStore() (*MemoryStore, error) {
	trials, err := SeedTrials()
	if err != nil {
		return nil, err
	}
	return NewMemoryStore(trials)
}

// GetTrials returns every trial, or only those of cancerType when it is set
func (s *MemoryStore) GetTrials(ctx context.Context, cancerType *domain.CancerType) ([]domain.Trial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Trial, 0, len(s.trials))
	for i := range s.trials {
		if cancerType != nil && s.trials[i].CancerType != *cancerType {
			continue
		}
		out = append(out, cloneTrial(s.trials[i]))
	}
	return out, nil
}

// GetTrial returns the trial with the given NCT number or domain.ErrNotFound
func (s *MemoryStore) GetTrial(ctx context.Context, nctNumber string) (*domain.Trial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[nctNumber]
	if !ok {
		return nil, fmt.Errorf("trial %s: %w", nctNumber, domain.ErrNotFound)
	}
	t := cloneTrial(s.trials[i])
	return &t, nil
}

// ListTrials returns one page of trials passing the filter
func (s *MemoryStore) ListTrials(ctx context.Context, filter domain.TrialFilter) ([]domain.Trial, error) {
	filter = filter.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Trial, 0)
	skipped := 0
	for i := range s.trials {
		if !filter.Matches(&s.trials[i]) {
			continue
		}
		if skipped < filter.Skip {
			skipped++
			continue
		}
		if len(out) == filter.Limit {
			break
		}
		out = append(out, cloneTrial(s.trials[i]))
	}
	return out, nil
}

// CountTrials returns the number of stored trials
func (s *MemoryStore) CountTrials(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trials), nil
}

// CreateTrial validates and appends a trial
func (s *MemoryStore) CreateTrial(ctx context.Context, trial *domain.Trial) error {
	if err := trial.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[trial.NCTNumber]; exists {
		return fmt.Errorf("trial %s: %w", trial.NCTNumber, domain.ErrAlreadyExists)
	}
	s.index[trial.NCTNumber] = len(s.trials)
	s.trials = append(s.trials, cloneTrial(*trial))
	return nil
}

// UpdateTrial applies a partial update and validates the merged record
func (s *MemoryStore) UpdateTrial(ctx context.Context, nctNumber string, patch *domain.TrialPatch) (*domain.Trial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[nctNumber]
	if !ok {
		return nil, fmt.Errorf("trial %s: %w", nctNumber, domain.ErrNotFound)
	}

	updated := patch.Apply(cloneTrial(s.trials[i]))
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	s.trials[i] = updated

	out := cloneTrial(updated)
	return &out, nil
}

// DeleteTrial removes a trial, keeping the order of the rest
func (s *MemoryStore) DeleteTrial(ctx context.Context, nctNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[nctNumber]
	if !ok {
		return fmt.Errorf("trial %s: %w", nctNumber, domain.ErrNotFound)
	}

	s.trials = append(s.trials[:i], s.trials[i+1:]...)
	delete(s.index, nctNumber)
	for j := i; j < len(s.trials); j++ {
		s.index[s.trials[j].NCTNumber] = j
	}
	return nil
}
