package matching

import (
	"fmt"
	"strings"

	"github.com/trialscout/trial-matcher/internal/domain"
)

const (
	minWhyMatched    = 2
	maxWhyMatched    = 4
	maxWhatToConfirm = 3
)

// WhyMatched lists 2 to 4 reasons the trial matched, in criteria order, padded
// with stage and cancer type statements when too few criteria are met.
func WhyMatched(p *domain.PatientProfile, t *domain.Trial) []string {
	reasons := make([]string, 0, maxWhyMatched)

	for _, c := range t.EligibilityCriteria {
		if c.Met != domain.CRITERION_MET {
			continue
		}
		switch c.Category {
		case domain.CATEGORY_BIOMARKER:
			reasons = append(reasons, fmt.Sprintf("%s (required)", c.Criterion))
		case domain.CATEGORY_STAGE:
			reasons = append(reasons, fmt.Sprintf("%s matches trial requirement", c.Criterion))
		case domain.CATEGORY_PERFORMANCE:
			reasons = append(reasons, fmt.Sprintf("%s meets performance criteria", c.Criterion))
		case domain.CATEGORY_TREATMENT_HISTORY:
			reasons = append(reasons, fmt.Sprintf("%s aligns with inclusion criteria", c.Criterion))
		}
	}

	if len(reasons) < minWhyMatched {
		reasons = append(reasons,
			fmt.Sprintf("Stage %s matches trial population", p.Stage),
			fmt.Sprintf("Cancer type (%s) matches trial focus", p.CancerType),
		)
	}

	if len(reasons) > maxWhyMatched {
		reasons = reasons[:maxWhyMatched]
	}
	return reasons
}

// WhatToConfirm lists up to 3 items to confirm with a clinician: unknown
// criteria first, then washout, lab thresholds, prior lines and prior drugs.
func WhatToConfirm(p *domain.PatientProfile, t *domain.Trial) []string {
	items := make([]string, 0, maxWhatToConfirm)

	for _, c := range t.EligibilityCriteria {
		if c.Met == domain.CRITERION_UNKNOWN {
			items = append(items, "Confirm "+strings.ToLower(c.Criterion))
		}
	}

	risks := t.ExclusionRisks
	if strings.Contains(risks.WashoutWindow, "days") {
		items = append(items, "Verify "+risks.WashoutWindow)
	}
	if risks.LabThresholds != "" {
		items = append(items, "Check lab requirements: "+risks.LabThresholds)
	}

	for _, c := range t.EligibilityCriteria {
		if c.Category != domain.CATEGORY_TREATMENT_HISTORY {
			continue
		}
		text := strings.ToLower(c.Criterion)
		if strings.Contains(text, "prior lines") || strings.Contains(text, "prior therapies") {
			items = append(items, "Verify "+text)
			break
		}
	}

	if strings.Contains(strings.ToLower(risks.PriorDrugExposure), "no prior") {
		items = append(items, "Confirm no prior exposure to excluded drugs")
	}

	if len(items) > maxWhatToConfirm {
		items = items[:maxWhatToConfirm]
	}
	return items
}
