package domain

// Score bounds. A non-excluded trial never scores below the floor and never
// reaches 100.
const (
	MinMatchScore = 85
	MaxMatchScore = 99
)

// ExclusionReason explains why a patient is hard-excluded from a trial
type ExclusionReason struct {
	RuleCode string `json:"rule_code"`
	Message  string `json:"message"`
}

func (r *ExclusionReason) String() string {
	if r == nil {
		return ""
	}
	return r.Message
}

// MatchResult is one non-excluded trial with its score and rationale
type MatchResult struct {
	Trial         Trial           `json:"trial"`
	Score         int             `json:"score"`
	Confidence    ConfidenceLevel `json:"confidence"`
	WhyMatched    []string        `json:"why_matched"`
	WhatToConfirm []string        `json:"what_to_confirm"`
}

// MatchingStats summarizes one matching run
type MatchingStats struct {
	TotalTrials       int `json:"total_trials"`
	PossiblyEligible  int `json:"possibly_eligible"`
	LikelyNotEligible int `json:"likely_not_eligible"`
	HardExcluded      int `json:"hard_excluded"`
}

// MatchingContext snapshots the inputs of a matching run
type MatchingContext struct {
	Patient        PatientProfile `json:"patient"`
	DatasetVersion string         `json:"dataset_version"`
	MatchedAt      string         `json:"matched_at"`
	TotalTrials    int            `json:"total_trials"`
}

// MatchingResponse is the ranked output of a matching run. Matches are sorted
// possibly_eligible first, then by descending score.
type MatchingResponse struct {
	Matches []MatchResult   `json:"matches"`
	Context MatchingContext `json:"context"`
	Stats   MatchingStats   `json:"stats"`
}
