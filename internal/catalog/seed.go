// Package catalog provides trial catalog sources: the embedded seed catalog, an
// in-memory store, a SQLite store for the lite deployment and a caching
// decorator for remote sources.
package catalog

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/trialscout/trial-matcher/internal/domain"
)

//go:embed seed/trials.json
var seedFS embed.FS

const seedFile = "seed/trials.json"

var (
	seedOnce   sync.Once
	seedTrials []domain.Trial
	seedErr    error
)

// SeedTrials returns a fresh copy of the bundled demonstration catalog. Every
// record is validated on first load.
func SeedTrials() ([]domain.Trial, error) {
	seedOnce.Do(func() {
		seedTrials, seedErr = loadSeed()
	})
	if seedErr != nil {
		return nil, seedErr
	}
	return cloneTrials(seedTrials), nil
}

// MustSeedTrials is SeedTrials for callers that treat a broken embed as fatal
func MustSeedTrials() []domain.Trial {
	trials, err := SeedTrials()
	if err != nil {
		panic(err)
	}
	return trials
}

func loadSeed() ([]domain.Trial, error) {
	data, err := seedFS.ReadFile(seedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed catalog: %w", err)
	}

	var trials []domain.Trial
	if err := json.Unmarshal(data, &trials); err != nil {
		return nil, fmt.Errorf("failed to parse seed catalog: %w", err)
	}

	seen := make(map[string]bool, len(trials))
	for i := range trials {
		if err := trials[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid seed trial %s: %w", trials[i].NCTNumber, err)
		}
		if seen[trials[i].NCTNumber] {
			return nil, fmt.Errorf("duplicate seed trial %s: %w", trials[i].NCTNumber, domain.ErrAlreadyExists)
		}
		seen[trials[i].NCTNumber] = true
	}
	return trials, nil
}

// cloneTrials deep-copies trials so callers cannot alias catalog state
func cloneTrials(trials []domain.Trial) []domain.Trial {
	out := make([]domain.Trial, len(trials))
	for i := range trials {
		out[i] = cloneTrial(trials[i])
	}
	return out
}

func cloneTrial(t domain.Trial) domain.Trial {
	if t.EligibilityCriteria != nil {
		t.EligibilityCriteria = append([]domain.EligibilityCriterion(nil), t.EligibilityCriteria...)
	}
	return t
}

// SeedResult counts what a seeding run did
type SeedResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// Seed inserts trials into store. Trials whose NCT number already exists are
// skipped, so running it twice is harmless.
func Seed(ctx context.Context, store domain.TrialStore, trials []domain.Trial, logger *logrus.Logger) (SeedResult, error) {
	var res SeedResult
	for i := range trials {
		err := store.CreateTrial(ctx, &trials[i])
		switch {
		case err == nil:
			res.Inserted++
		case errors.Is(err, domain.ErrAlreadyExists):
			res.Skipped++
		default:
			return res, fmt.Errorf("failed to seed trial %s: %w", trials[i].NCTNumber, err)
		}
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"inserted": res.Inserted,
			"skipped":  res.Skipped,
		}).Info("Completed catalog seeding")
	}
	return res, nil
}
