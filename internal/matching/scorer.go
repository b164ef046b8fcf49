package matching

import (
	"strings"

	"github.com/trialscout/trial-matcher/internal/domain"
)

// Score adjustments applied on top of domain.MinMatchScore
const (
	biomarkerBonus     = 5
	performanceBonus   = 3
	proximityBonus     = 2
	firstLineBonus     = 5
	unknownPenalty     = 5
	proximityThreshold = 10.0
)

// Score computes the match score of a non-excluded trial, clamped to
// [domain.MinMatchScore, domain.MaxMatchScore].
func Score(p *domain.PatientProfile, t *domain.Trial) int {
	score := domain.MinMatchScore

	if biomarkersMostlyMet(t) {
		score += biomarkerBonus
	}
	if p.ECOG != domain.ECOG_UNKNOWN && performanceMet(t) {
		score += performanceBonus
	}
	if t.Distance < proximityThreshold {
		score += proximityBonus
	}
	if firstLineMatch(p, t) {
		score += firstLineBonus
	}
	if countUnknown(t) > 0 {
		score -= unknownPenalty
	}

	return clamp(score, domain.MinMatchScore, domain.MaxMatchScore)
}

// Confidence derives the confidence level from the score and the unknowns left
// on the trial's criteria.
func Confidence(score int, p *domain.PatientProfile, t *domain.Trial) domain.ConfidenceLevel {
	switch {
	case HasCriticalUnknown(p, t) || score < 90:
		return domain.LOW
	case score >= 95 && countUnknown(t) <= 1:
		return domain.HIGH
	default:
		return domain.MEDIUM
	}
}

// HasCriticalUnknown reports whether a required biomarker criterion is still
// unresolved, either because the criterion itself is unknown or because the
// patient's value for a marker it names is unknown.
func HasCriticalUnknown(p *domain.PatientProfile, t *domain.Trial) bool {
	for _, c := range requiredBiomarkerCriteria(t) {
		if c.Met == domain.CRITERION_UNKNOWN {
			return true
		}
		for _, name := range referencedMarkers(strings.ToLower(c.Criterion)) {
			if m, ok := p.Biomarkers.Marker(name); ok && m.Status == domain.UNKNOWN {
				return true
			}
		}
	}
	return false
}

// biomarkersMostlyMet is true when at least half of the biomarker criteria are
// met. A trial without biomarker criteria qualifies.
func biomarkersMostlyMet(t *domain.Trial) bool {
	total, met := 0, 0
	for _, c := range t.EligibilityCriteria {
		if c.Category != domain.CATEGORY_BIOMARKER {
			continue
		}
		total++
		if c.Met == domain.CRITERION_MET {
			met++
		}
	}
	if total == 0 {
		return true
	}
	return met*2 >= total
}

func performanceMet(t *domain.Trial) bool {
	for _, c := range t.EligibilityCriteria {
		if c.Category == domain.CATEGORY_PERFORMANCE && c.Met == domain.CRITERION_MET {
			return true
		}
	}
	return false
}

func firstLineMatch(p *domain.PatientProfile, t *domain.Trial) bool {
	if p.LineOfTherapy != domain.FIRST_LINE {
		return false
	}
	return strings.Contains(strings.ToLower(t.Title), "first-line") || hasToken(t.Title, "1L")
}

func countUnknown(t *domain.Trial) int {
	n := 0
	for _, c := range t.EligibilityCriteria {
		if c.Met == domain.CRITERION_UNKNOWN {
			n++
		}
	}
	return n
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
