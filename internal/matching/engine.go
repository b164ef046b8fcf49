// Package matching ranks clinical trials for a patient profile. It applies the
// hard-exclusion rules, scores the remaining trials and explains each match.
// Every function is pure over its inputs and safe for concurrent use.
package matching

import (
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trialscout/trial-matcher/internal/domain"
)

// DefaultDatasetVersion labels responses when no catalog version is configured
const DefaultDatasetVersion = "seed-2025.01"

// Options configures an Engine
type Options struct {
	// PriorTherapyExclusion turns "no prior <drug>" text into a hard exclusion
	PriorTherapyExclusion bool
	DatasetVersion        string
	Now                   func() time.Time
}

// Engine is the match orchestrator
type Engine struct {
	logger *logrus.Logger
	rules  *RuleSet
	opts   Options
}

// NewEngine creates a matching engine. A nil logger discards output.
func NewEngine(logger *logrus.Logger, opts Options) *Engine {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if opts.DatasetVersion == "" {
		opts.DatasetVersion = DefaultDatasetVersion
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Engine{
		logger: logger,
		rules:  NewRuleSet(logger, opts.PriorTherapyExclusion),
		opts:   opts,
	}
}

// Rules exposes the rule set
func (e *Engine) Rules() *RuleSet {
	return e.rules
}

// IsHardExcluded returns the first exclusion that applies to the pair, or nil
func (e *Engine) IsHardExcluded(p *domain.PatientProfile, t *domain.Trial) *domain.ExclusionReason {
	return e.rules.IsHardExcluded(p, t)
}

// Evaluate runs a single trial through exclusion, scoring and reasons. Exactly
// one of the results is non-nil.
func (e *Engine) Evaluate(p *domain.PatientProfile, t *domain.Trial) (*domain.MatchResult, *domain.ExclusionReason) {
	if reason := e.rules.IsHardExcluded(p, t); reason != nil {
		return nil, reason
	}

	score := Score(p, t)
	return &domain.MatchResult{
		Trial:         *t,
		Score:         score,
		Confidence:    Confidence(score, p, t),
		WhyMatched:    WhyMatched(p, t),
		WhatToConfirm: WhatToConfirm(p, t),
	}, nil
}

// MatchTrials ranks the catalog for the patient. The profile must already be
// validated; the engine itself never fails.
func (e *Engine) MatchTrials(p *domain.PatientProfile, trials []domain.Trial) *domain.MatchingResponse {
	matches := make([]domain.MatchResult, 0, len(trials))
	stats := domain.MatchingStats{TotalTrials: len(trials)}
	otherCancer := 0

	for i := range trials {
		t := &trials[i]
		// other-cancer trials count as hard-excluded so the stats add up to TotalTrials
		if t.CancerType != p.CancerType {
			otherCancer++
			stats.HardExcluded++
			continue
		}

		result, reason := e.Evaluate(p, t)
		if reason != nil {
			stats.HardExcluded++
			e.logger.WithFields(logrus.Fields{
				"nct_number": t.NCTNumber,
				"rule":       reason.RuleCode,
				"reason":     reason.Message,
			}).Debug("Trial hard-excluded")
			continue
		}

		if t.EligibilityScore == domain.POSSIBLY_ELIGIBLE {
			stats.PossiblyEligible++
		} else {
			stats.LikelyNotEligible++
		}
		matches = append(matches, *result)
	}

	SortMatches(matches)

	e.logger.WithFields(logrus.Fields{
		"cancer_type":     p.CancerType,
		"total_trials":    stats.TotalTrials,
		"other_cancer":    otherCancer,
		"hard_excluded":   stats.HardExcluded,
		"matched":         len(matches),
		"dataset_version": e.opts.DatasetVersion,
	}).Info("Completed trial matching")

	return &domain.MatchingResponse{
		Matches: matches,
		Context: domain.MatchingContext{
			Patient:        *p,
			DatasetVersion: e.opts.DatasetVersion,
			MatchedAt:      e.opts.Now().UTC().Format(time.RFC3339),
			TotalTrials:    len(trials),
		},
		Stats: stats,
	}
}

// SortMatches orders possibly_eligible trials first, then by descending score.
// Ties keep catalog order.
func SortMatches(matches []domain.MatchResult) {
	sort.SliceStable(matches, func(i, j int) bool {
		ri, rj := eligibilityRank(matches[i].Trial.EligibilityScore), eligibilityRank(matches[j].Trial.EligibilityScore)
		if ri != rj {
			return ri < rj
		}
		return matches[i].Score > matches[j].Score
	})
}

func eligibilityRank(s domain.EligibilityScore) int {
	if s == domain.POSSIBLY_ELIGIBLE {
		return 0
	}
	return 1
}
