package matching

import (
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/trialscout/trial-matcher/internal/domain"
)

func newTestRuleSet() (*RuleSet, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return NewRuleSet(logger, false), hook
}

func breastPatient(er, pr domain.BiomarkerStatus, her2 domain.HER2Status) *domain.PatientProfile {
	return &domain.PatientProfile{
		Age:             52,
		Sex:             domain.FEMALE,
		CancerType:      domain.BREAST,
		Stage:           domain.STAGE_IV,
		ECOG:            domain.ECOG_0,
		Biomarkers:      domain.NewBreastPanel(domain.BreastPanel{ER: er, PR: pr, HER2: her2}),
		PriorTreatments: []domain.PriorTreatment{},
		LineOfTherapy:   domain.POST_TARGETED,
	}
}

// lungPatient starts from an all-negative panel with unknown PD-L1
func lungPatient(mutate func(l *domain.LungPanel)) *domain.PatientProfile {
	panel := domain.LungPanel{
		EGFR: domain.EGFRMutation{Status: domain.ABSENT},
		ALK:  domain.ABSENT,
		ROS1: domain.ABSENT,
		KRAS: domain.KRASMutation{Status: domain.ABSENT},
		MET:  domain.METAlteration{Status: domain.ABSENT},
		BRAF: domain.ABSENT,
		PDL1: domain.PDL1Expression{Status: domain.UNKNOWN},
	}
	if mutate != nil {
		mutate(&panel)
	}
	return &domain.PatientProfile{
		Age:             64,
		Sex:             domain.MALE,
		CancerType:      domain.LUNG,
		Stage:           domain.STAGE_IV,
		ECOG:            domain.ECOG_1,
		Biomarkers:      domain.NewLungPanel(panel),
		PriorTreatments: []domain.PriorTreatment{},
		LineOfTherapy:   domain.FIRST_LINE,
	}
}

func newTrial(cancerType domain.CancerType, title string, criteria ...domain.EligibilityCriterion) *domain.Trial {
	return &domain.Trial{
		ID:                  "t1",
		NCTNumber:           "NCT09000001",
		Title:               title,
		Phase:               domain.PHASE_II,
		Sponsor:             "Cooperative Group",
		Status:              domain.RECRUITING,
		Location:            "Boston, MA",
		Distance:            25,
		CancerType:          cancerType,
		EligibilityScore:    domain.POSSIBLY_ELIGIBLE,
		MatchConfidence:     domain.MEDIUM,
		EligibilityCriteria: criteria,
	}
}

func biomarker(text string, met domain.CriterionMet) domain.EligibilityCriterion {
	return domain.EligibilityCriterion{Criterion: text, Met: met, Category: domain.CATEGORY_BIOMARKER, Required: true}
}

func criterion(text string, category domain.CriterionCategory, met domain.CriterionMet) domain.EligibilityCriterion {
	return domain.EligibilityCriterion{Criterion: text, Met: met, Category: category, Required: true}
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }
