package matching

import (
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialscout/trial-matcher/internal/domain"
)

func TestTreatmentSettingExclusion(t *testing.T) {
	rules, _ := newTestRuleSet()
	tnbc := breastPatient(domain.ABSENT, domain.ABSENT, domain.HER2_NEGATIVE)

	tests := []struct {
		name  string
		stage domain.Stage
		title string
		code  string
	}{
		{"neoadjuvant early stage", domain.STAGE_IV, "Neoadjuvant Chemotherapy in Early-Stage Triple-Negative Breast Cancer", RULE_NEOADJUVANT},
		{"neoadjuvant case insensitive", domain.STAGE_IV, "NEOADJUVANT pembrolizumab", RULE_NEOADJUVANT},
		{"adjuvant only", domain.STAGE_IV, "Adjuvant Abemaciclib in High-Risk Early Breast Cancer", RULE_ADJUVANT_ONLY},
		{"adjuvant with metastatic carve-out", domain.STAGE_IV, "Adjuvant and Metastatic Cohorts of Trastuzumab", ""},
		{"stage III neoadjuvant", domain.STAGE_III, "Neoadjuvant Chemotherapy in Early-Stage Triple-Negative Breast Cancer", ""},
		{"metastatic trial", domain.STAGE_IV, "Sacituzumab Govitecan in Metastatic Triple-Negative Breast Cancer", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := *tnbc
			p.Stage = tt.stage
			reason := rules.IsHardExcluded(&p, newTrial(domain.BREAST, tt.title))
			if tt.code == "" {
				assert.Nil(t, reason)
				return
			}
			require.NotNil(t, reason)
			assert.Equal(t, tt.code, reason.RuleCode)
		})
	}
}

// The setting check runs before biomarkers: a perfect biomarker match is still
// excluded from a neoadjuvant trial.
func TestTreatmentSettingIndependentOfBiomarkers(t *testing.T) {
	rules, _ := newTestRuleSet()
	p := breastPatient(domain.ABSENT, domain.ABSENT, domain.HER2_NEGATIVE)
	tr := newTrial(domain.BREAST, "Neoadjuvant Chemotherapy in Early-Stage Triple-Negative Breast Cancer",
		biomarker("Triple-negative breast cancer", domain.CRITERION_MET))

	reason := rules.IsHardExcluded(p, tr)
	require.NotNil(t, reason)
	assert.Equal(t, "Stage IV patient excluded from neoadjuvant trial", reason.Message)
}

func TestBreastTitleRules(t *testing.T) {
	rules, _ := newTestRuleSet()

	tests := []struct {
		name    string
		title   string
		patient *domain.PatientProfile
		code    string
		message string
	}{
		{"HER2+ excludes low", "Trastuzumab in HER2-positive Metastatic Breast Cancer",
			breastPatient(domain.PRESENT, domain.PRESENT, domain.HER2_LOW), "BT1",
			"HER2+ trial requires HER2-positive status (patient is low)"},
		{"HER2+ token excludes negative", "Tucatinib in HER2+ Brain Metastases",
			breastPatient(domain.PRESENT, domain.PRESENT, domain.HER2_NEGATIVE), "BT1", ""},
		{"HER2+ keeps unknown", "Tucatinib in HER2+ Brain Metastases",
			breastPatient(domain.PRESENT, domain.PRESENT, domain.HER2_UNKNOWN), "", ""},
		{"HER2-low excludes negative", "Trastuzumab Deruxtecan in HER2-Low Metastatic Breast Cancer",
			breastPatient(domain.PRESENT, domain.PRESENT, domain.HER2_NEGATIVE), "BT2",
			"HER2-low trial requires HER2-low status (patient is negative)"},
		{"HER2-low excludes positive", "Trastuzumab Deruxtecan in HER2-Low Metastatic Breast Cancer",
			breastPatient(domain.PRESENT, domain.PRESENT, domain.HER2_POSITIVE), "BT2", ""},
		{"HER2-low accepts low", "Trastuzumab Deruxtecan in HER2-Low Metastatic Breast Cancer",
			breastPatient(domain.PRESENT, domain.PRESENT, domain.HER2_LOW), "", ""},
		{"HR+/HER2- accepts HER2-low", "Capivasertib in HR+/HER2- Advanced Breast Cancer",
			breastPatient(domain.PRESENT, domain.ABSENT, domain.HER2_LOW), "", ""},
		{"HR+/HER2- excludes HER2-positive", "Capivasertib in HR+/HER2- Advanced Breast Cancer",
			breastPatient(domain.PRESENT, domain.ABSENT, domain.HER2_POSITIVE), "BT3",
			"HR+/HER2- trial excludes HER2-positive patients"},
		{"triple-negative accepts TNBC", "Sacituzumab in Metastatic Triple-Negative Breast Cancer",
			breastPatient(domain.ABSENT, domain.ABSENT, domain.HER2_NEGATIVE), "", ""},
		{"triple-negative excludes ER+", "Sacituzumab in Metastatic Triple-Negative Breast Cancer",
			breastPatient(domain.PRESENT, domain.ABSENT, domain.HER2_NEGATIVE), "BT4",
			"Triple-negative trial requires ER-/PR-/HER2- (patient is ER-positive)"},
		{"combination title keeps TNBC patient", "Datopotamab Deruxtecan in HR+/HER2- or Triple-Negative Metastatic Breast Cancer",
			breastPatient(domain.ABSENT, domain.ABSENT, domain.HER2_NEGATIVE), "", ""},
		{"ER+ excludes ER-negative", "Elacestrant in ER+/HER2- Advanced Breast Cancer",
			breastPatient(domain.ABSENT, domain.PRESENT, domain.HER2_NEGATIVE), "BT5",
			"ER+ trial requires ER-positive status (patient is ER-negative)"},
		{"ER- excludes ER-positive", "Study in ER-negative Breast Cancer",
			breastPatient(domain.PRESENT, domain.ABSENT, domain.HER2_NEGATIVE), "BT6",
			"ER- trial requires ER-negative status (patient is ER-positive)"},
		{"ER-positive is not ER-", "Endocrine Therapy in ER-positive Breast Cancer",
			breastPatient(domain.PRESENT, domain.ABSENT, domain.HER2_NEGATIVE), "", ""},
		{"HER2+ is not ER+", "Tucatinib in HER2+ Brain Metastases",
			breastPatient(domain.ABSENT, domain.ABSENT, domain.HER2_POSITIVE), "", ""},
		{"HR+ excludes ER-/PR-", "Palbociclib in HR-positive Breast Cancer",
			breastPatient(domain.ABSENT, domain.ABSENT, domain.HER2_NEGATIVE), "BT7",
			"HR+ trial requires ER+ and/or PR+ (patient is ER-/PR-)"},
		{"HR+ accepts PR-only", "Palbociclib in HR-positive Breast Cancer",
			breastPatient(domain.ABSENT, domain.PRESENT, domain.HER2_NEGATIVE), "", ""},
		{"HR+ keeps unknown receptors", "Palbociclib in HR-positive Breast Cancer",
			breastPatient(domain.UNKNOWN, domain.ABSENT, domain.HER2_NEGATIVE), "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := rules.IsHardExcluded(tt.patient, newTrial(domain.BREAST, tt.title))
			if tt.code == "" {
				assert.Nil(t, reason, "unexpected exclusion: %v", reason)
				return
			}
			require.NotNil(t, reason)
			assert.Equal(t, tt.code, reason.RuleCode)
			if tt.message != "" {
				assert.Equal(t, tt.message, reason.Message)
			}
		})
	}
}

func TestBreastCriteriaRules(t *testing.T) {
	rules, _ := newTestRuleSet()

	tests := []struct {
		name     string
		title    string
		criteria []domain.EligibilityCriterion
		patient  *domain.PatientProfile
		code     string
	}{
		{"ER+ and/or PR+ accepts PR-only", "Sacituzumab Govitecan vs Chemotherapy",
			[]domain.EligibilityCriterion{biomarker("ER+ and/or PR+ breast cancer", domain.CRITERION_MET)},
			breastPatient(domain.ABSENT, domain.PRESENT, domain.HER2_NEGATIVE), ""},
		{"ER+ and/or PR+ excludes ER-/PR-", "Sacituzumab Govitecan vs Chemotherapy",
			[]domain.EligibilityCriterion{biomarker("ER+ and/or PR+ breast cancer", domain.CRITERION_MET)},
			breastPatient(domain.ABSENT, domain.ABSENT, domain.HER2_NEGATIVE), "BC7"},
		{"ER-positive and/or PR-positive accepts PR-only", "Sacituzumab Govitecan vs Chemotherapy",
			[]domain.EligibilityCriterion{biomarker("ER-positive and/or PR-positive breast cancer", domain.CRITERION_MET)},
			breastPatient(domain.ABSENT, domain.PRESENT, domain.HER2_NEGATIVE), ""},
		{"ER positive or PR positive accepts PR-only", "Sacituzumab Govitecan vs Chemotherapy",
			[]domain.EligibilityCriterion{biomarker("ER positive or PR positive", domain.CRITERION_MET)},
			breastPatient(domain.ABSENT, domain.PRESENT, domain.HER2_NEGATIVE), ""},
		{"ER positive or PR positive excludes ER-/PR-", "Sacituzumab Govitecan vs Chemotherapy",
			[]domain.EligibilityCriterion{biomarker("ER positive or PR positive", domain.CRITERION_MET)},
			breastPatient(domain.ABSENT, domain.ABSENT, domain.HER2_NEGATIVE), "BC7"},
		{"spelled-out receptors accept PR-only", "Sacituzumab Govitecan vs Chemotherapy",
			[]domain.EligibilityCriterion{biomarker("Estrogen receptor-positive or progesterone receptor-positive disease", domain.CRITERION_MET)},
			breastPatient(domain.ABSENT, domain.PRESENT, domain.HER2_NEGATIVE), ""},
		{"mixed receptor spellings accept ER-only", "Sacituzumab Govitecan vs Chemotherapy",
			[]domain.EligibilityCriterion{biomarker("ER+ or PR-positive breast cancer", domain.CRITERION_MET)},
			breastPatient(domain.PRESENT, domain.ABSENT, domain.HER2_NEGATIVE), ""},
		{"ER-positive alone still requires ER", "Sacituzumab Govitecan vs Chemotherapy",
			[]domain.EligibilityCriterion{biomarker("ER-positive breast cancer", domain.CRITERION_MET)},
			breastPatient(domain.ABSENT, domain.PRESENT, domain.HER2_NEGATIVE), "BC5"},
		{"HER2-negative accepts HER2-low", "Sacituzumab Govitecan vs Chemotherapy",
			[]domain.EligibilityCriterion{biomarker("HER2-negative (IHC 0/1+ or ISH-)", domain.CRITERION_MET)},
			breastPatient(domain.PRESENT, domain.PRESENT, domain.HER2_LOW), ""},
		{"HER2-negative excludes HER2-positive", "Sacituzumab Govitecan vs Chemotherapy",
			[]domain.EligibilityCriterion{biomarker("HER2-negative (IHC 0/1+ or ISH-)", domain.CRITERION_MET)},
			breastPatient(domain.PRESENT, domain.PRESENT, domain.HER2_POSITIVE), "BC3"},
		{"HER2+ criterion excludes low", "Tucatinib Combination",
			[]domain.EligibilityCriterion{biomarker("HER2+ breast cancer (IHC 3+ or ISH+)", domain.CRITERION_MET)},
			breastPatient(domain.PRESENT, domain.PRESENT, domain.HER2_LOW), "BC1"},
		{"ER+/HER2- excludes ER-negative", "Elacestrant vs Standard Endocrine Therapy",
			[]domain.EligibilityCriterion{biomarker("ER+/HER2- breast cancer", domain.CRITERION_MET)},
			breastPatient(domain.ABSENT, domain.PRESENT, domain.HER2_NEGATIVE), "BC5"},
		{"combination trial keeps TNBC patient", "Datopotamab Deruxtecan in HR+/HER2- or Triple-Negative Metastatic Breast Cancer",
			[]domain.EligibilityCriterion{biomarker("HR+ and HER2- breast cancer", domain.CRITERION_MET)},
			breastPatient(domain.ABSENT, domain.ABSENT, domain.HER2_NEGATIVE), ""},
		{"combination trial still excludes HER2-positive", "Datopotamab Deruxtecan in HR+/HER2- or Triple-Negative Metastatic Breast Cancer",
			[]domain.EligibilityCriterion{biomarker("HR+ and HER2- breast cancer", domain.CRITERION_MET)},
			breastPatient(domain.PRESENT, domain.PRESENT, domain.HER2_POSITIVE), "BC3"},
		{"unknown HER2 never excluded", "Sacituzumab Govitecan vs Chemotherapy",
			[]domain.EligibilityCriterion{biomarker("HER2+ breast cancer (IHC 3+ or ISH+)", domain.CRITERION_UNKNOWN)},
			breastPatient(domain.PRESENT, domain.PRESENT, domain.HER2_UNKNOWN), ""},
		{"optional criterion ignored", "Sacituzumab Govitecan vs Chemotherapy",
			[]domain.EligibilityCriterion{{Criterion: "HER2+ breast cancer", Met: domain.CRITERION_UNKNOWN, Category: domain.CATEGORY_BIOMARKER}},
			breastPatient(domain.PRESENT, domain.PRESENT, domain.HER2_LOW), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := rules.IsHardExcluded(tt.patient, newTrial(domain.BREAST, tt.title, tt.criteria...))
			if tt.code == "" {
				assert.Nil(t, reason, "unexpected exclusion: %v", reason)
				return
			}
			require.NotNil(t, reason)
			assert.Equal(t, tt.code, reason.RuleCode)
		})
	}
}

// Structured criteria shadow the title rule of the same biomarker family
func TestCriteriaShadowTitleFamily(t *testing.T) {
	rules, _ := newTestRuleSet()
	p := breastPatient(domain.PRESENT, domain.PRESENT, domain.HER2_POSITIVE)

	titleOnly := newTrial(domain.BREAST, "Trastuzumab Deruxtecan in HER2-Low Metastatic Breast Cancer")
	reason := rules.IsHardExcluded(p, titleOnly)
	require.NotNil(t, reason)
	assert.Equal(t, "BT2", reason.RuleCode)

	withCriteria := newTrial(domain.BREAST, titleOnly.Title, biomarker("HER2-positive breast cancer (IHC 3+)", domain.CRITERION_MET))
	assert.Nil(t, rules.IsHardExcluded(p, withCriteria))
}

func TestTripleNegativeScenarios(t *testing.T) {
	rules, _ := newTestRuleSet()
	tr := newTrial(domain.BREAST, "Sacituzumab Govitecan in Metastatic Triple-Negative Breast Cancer",
		biomarker("Triple-negative breast cancer", domain.CRITERION_MET))

	assert.Nil(t, rules.IsHardExcluded(breastPatient(domain.ABSENT, domain.ABSENT, domain.HER2_NEGATIVE), tr))

	reason := rules.IsHardExcluded(breastPatient(domain.PRESENT, domain.ABSENT, domain.HER2_NEGATIVE), tr)
	require.NotNil(t, reason)
	assert.Equal(t, "BC4", reason.RuleCode)
	assert.Contains(t, reason.Message, "Triple-negative")
	assert.Contains(t, reason.Message, "ER-positive")
}

func TestMutualExclusivityScenario(t *testing.T) {
	rules, _ := newTestRuleSet()
	p := lungPatient(func(l *domain.LungPanel) {
		l.EGFR = domain.EGFRMutation{Status: domain.PRESENT, Mutation: strPtr(domain.EGFR_EXON19_DELETION)}
		l.ALK = domain.PRESENT
	})
	tr := newTrial(domain.LUNG, "Amivantamab + Lazertinib in EGFR-Mutant NSCLC",
		biomarker("EGFR-mutant NSCLC (exon 19 deletion or L858R)", domain.CRITERION_MET))

	reason := rules.IsHardExcluded(p, tr)
	require.NotNil(t, reason)
	assert.Equal(t, "EGFR trial excludes ALK-positive patients (mutually exclusive drivers)", reason.Message)
}

func TestMutualExclusivityLaw(t *testing.T) {
	rules, _ := newTestRuleSet()

	setters := map[string]func(l *domain.LungPanel){
		"EGFR": func(l *domain.LungPanel) {
			l.EGFR = domain.EGFRMutation{Status: domain.PRESENT, Mutation: strPtr(domain.EGFR_L858R)}
		},
		"ALK":  func(l *domain.LungPanel) { l.ALK = domain.PRESENT },
		"ROS1": func(l *domain.LungPanel) { l.ROS1 = domain.PRESENT },
		"KRAS G12C": func(l *domain.LungPanel) {
			l.KRAS = domain.KRASMutation{Status: domain.PRESENT, Mutation: strPtr(domain.KRAS_G12C)}
		},
	}
	trials := map[string][]*domain.Trial{
		"EGFR": {
			newTrial(domain.LUNG, "Osimertinib in EGFR Mutation-Positive NSCLC"),
			newTrial(domain.LUNG, "Osimertinib Study", biomarker("EGFR exon 19 deletion or L858R mutation", domain.CRITERION_MET)),
		},
		"ALK": {
			newTrial(domain.LUNG, "Lorlatinib in ALK-Positive NSCLC"),
			newTrial(domain.LUNG, "Lorlatinib Study", biomarker("ALK-positive NSCLC", domain.CRITERION_MET)),
		},
		"ROS1": {
			newTrial(domain.LUNG, "Repotrectinib in ROS1-Positive NSCLC"),
			newTrial(domain.LUNG, "Repotrectinib Study", biomarker("ROS1 rearrangement", domain.CRITERION_MET)),
		},
		"KRAS G12C": {
			newTrial(domain.LUNG, "Sotorasib in KRAS G12C-Mutant NSCLC"),
			newTrial(domain.LUNG, "Sotorasib Study", biomarker("KRAS G12C mutation", domain.CRITERION_MET)),
		},
	}

	names := []string{"EGFR", "ALK", "ROS1", "KRAS G12C"}
	for i, a := range names {
		for _, b := range names[i+1:] {
			p := lungPatient(func(l *domain.LungPanel) {
				setters[a](l)
				setters[b](l)
			})
			for _, required := range names {
				for _, tr := range trials[required] {
					t.Run(fmt.Sprintf("%s+%s vs %s/%s", a, b, required, tr.Title), func(t *testing.T) {
						assert.NotNil(t, rules.IsHardExcluded(p, tr))
					})
				}
			}
		}
	}
}

func TestLungDriverRules(t *testing.T) {
	rules, _ := newTestRuleSet()
	exon19 := func(l *domain.LungPanel) {
		l.EGFR = domain.EGFRMutation{Status: domain.PRESENT, Mutation: strPtr(domain.EGFR_EXON19_DELETION)}
	}

	tests := []struct {
		name    string
		trial   *domain.Trial
		mutate  func(l *domain.LungPanel)
		code    string
		message string
	}{
		{"KRAS non-G12C subtype",
			newTrial(domain.LUNG, "Sotorasib vs Docetaxel", biomarker("KRAS G12C mutation", domain.CRITERION_MET)),
			func(l *domain.LungPanel) {
				l.KRAS = domain.KRASMutation{Status: domain.PRESENT, Mutation: strPtr(domain.KRAS_G12D)}
			}, "LC6", "KRAS G12C trial requires G12C mutation (patient has G12D)"},
		{"KRAS absent",
			newTrial(domain.LUNG, "CodeBreaK 200: Sotorasib vs Docetaxel in KRAS G12C-Mutant NSCLC"),
			nil, "LT4", "KRAS G12C trial requires KRAS mutation (patient is KRAS-negative)"},
		{"KRAS present without subtype is kept",
			newTrial(domain.LUNG, "Sotorasib vs Docetaxel", biomarker("KRAS G12C mutation", domain.CRITERION_UNKNOWN)),
			func(l *domain.LungPanel) { l.KRAS = domain.KRASMutation{Status: domain.PRESENT} }, "", ""},
		{"KRAS unknown is kept",
			newTrial(domain.LUNG, "Sotorasib vs Docetaxel", biomarker("KRAS G12C mutation", domain.CRITERION_UNKNOWN)),
			func(l *domain.LungPanel) { l.KRAS = domain.KRASMutation{Status: domain.UNKNOWN} }, "", ""},
		{"MET exon 14 accepted",
			newTrial(domain.LUNG, "VISION: Tepotinib in MET Exon 14 Skipping NSCLC", biomarker("MET exon 14 skipping mutation", domain.CRITERION_MET)),
			func(l *domain.LungPanel) {
				l.MET = domain.METAlteration{Status: domain.PRESENT, Alteration: strPtr(domain.MET_EXON14_SKIPPING)}
			}, "", ""},
		{"MET amplification rejected",
			newTrial(domain.LUNG, "VISION: Tepotinib in MET Exon 14 Skipping NSCLC", biomarker("MET exon 14 skipping mutation", domain.CRITERION_MET)),
			func(l *domain.LungPanel) {
				l.MET = domain.METAlteration{Status: domain.PRESENT, Alteration: strPtr(domain.MET_AMPLIFICATION)}
			}, "LC7", "MET exon 14 trial requires exon 14 skipping (patient has Amplification)"},
		{"MET present without detail rejected",
			newTrial(domain.LUNG, "VISION: Tepotinib in MET Exon 14 Skipping NSCLC"),
			func(l *domain.LungPanel) { l.MET = domain.METAlteration{Status: domain.PRESENT} }, "LT5", ""},
		{"MET unknown kept",
			newTrial(domain.LUNG, "VISION: Tepotinib in MET Exon 14 Skipping NSCLC"),
			func(l *domain.LungPanel) { l.MET = domain.METAlteration{Status: domain.UNKNOWN} }, "", ""},
		{"BRAF absent",
			newTrial(domain.LUNG, "Dabrafenib + Trametinib in BRAF V600E-Mutant NSCLC", biomarker("BRAF V600E mutation", domain.CRITERION_MET)),
			nil, "LC8", "BRAF V600E trial requires BRAF mutation (patient is BRAF-negative)"},
		{"BRAF present",
			newTrial(domain.LUNG, "Dabrafenib + Trametinib in BRAF V600E-Mutant NSCLC", biomarker("BRAF V600E mutation", domain.CRITERION_MET)),
			func(l *domain.LungPanel) { l.BRAF = domain.PRESENT }, "", ""},
		{"driver-negative title excludes BRAF",
			newTrial(domain.LUNG, "Pembrolizumab + Chemotherapy in NSCLC Without Driver Mutations"),
			func(l *domain.LungPanel) { l.BRAF = domain.PRESENT }, "LT7", "No-driver trial excludes BRAF-positive patients"},
		{"driver-negative criterion excludes MET",
			newTrial(domain.LUNG, "Chemo-Immunotherapy", biomarker("Driver-negative NSCLC", domain.CRITERION_MET)),
			func(l *domain.LungPanel) { l.MET = domain.METAlteration{Status: domain.PRESENT} }, "LC1", "No-driver trial excludes MET-positive patients"},
		{"driver-negative ignores KRAS G12D",
			newTrial(domain.LUNG, "Chemo-Immunotherapy", biomarker("Driver-negative NSCLC", domain.CRITERION_MET)),
			func(l *domain.LungPanel) {
				l.KRAS = domain.KRASMutation{Status: domain.PRESENT, Mutation: strPtr(domain.KRAS_G12D)}
			}, "", ""},
		{"negated criterion excludes named driver",
			newTrial(domain.LUNG, "KEYNOTE-024: Pembrolizumab vs Chemotherapy in PD-L1 High NSCLC", biomarker("No EGFR mutations or ALK rearrangements", domain.CRITERION_MET)),
			func(l *domain.LungPanel) { l.ALK = domain.PRESENT }, "LC2", "Trial requires ALK-negative status (patient is ALK-positive)"},
		{"negated criterion keeps unnamed driver",
			newTrial(domain.LUNG, "KEYNOTE-024: Pembrolizumab vs Chemotherapy in PD-L1 High NSCLC", biomarker("No EGFR mutations or ALK rearrangements", domain.CRITERION_MET)),
			func(l *domain.LungPanel) { l.ROS1 = domain.PRESENT }, "", ""},
		{"EGFR subtype restriction",
			newTrial(domain.LUNG, "FLAURA2", biomarker("EGFR exon 19 deletion or L858R mutation", domain.CRITERION_MET)),
			func(l *domain.LungPanel) {
				l.EGFR = domain.EGFRMutation{Status: domain.PRESENT, Mutation: strPtr(domain.EGFR_EXON20_INSERTION)}
			}, "LC3", "EGFR trial requires Exon 19 deletion or L858R (patient has Exon 20 insertion)"},
		{"EGFR absent",
			newTrial(domain.LUNG, "FLAURA2", biomarker("EGFR exon 19 deletion or L858R mutation", domain.CRITERION_MET)),
			nil, "LC3", "EGFR-mutant trial requires EGFR mutation (patient is EGFR-negative)"},
		{"mixed criterion keeps required EGFR",
			newTrial(domain.LUNG, "Osimertinib Study", biomarker("EGFR mutation positive, ALK negative", domain.CRITERION_MET)),
			exon19, "", ""},
		{"mixed criterion requires EGFR",
			newTrial(domain.LUNG, "Osimertinib Study", biomarker("EGFR mutation positive, ALK negative", domain.CRITERION_MET)),
			nil, "LC3", "EGFR-mutant trial requires EGFR mutation (patient is EGFR-negative)"},
		{"mixed criterion without comma",
			newTrial(domain.LUNG, "Osimertinib Study", biomarker("EGFR mutation positive and ALK negative", domain.CRITERION_MET)),
			exon19, "", ""},
		{"subtype list with wild-type partner keeps EGFR",
			newTrial(domain.LUNG, "Osimertinib Study", biomarker("EGFR exon 19 deletion or L858R, ALK wild-type", domain.CRITERION_MET)),
			exon19, "", ""},
		{"subtype list with wild-type partner requires EGFR",
			newTrial(domain.LUNG, "Osimertinib Study", biomarker("EGFR exon 19 deletion or L858R, ALK wild-type", domain.CRITERION_MET)),
			nil, "LC3", "EGFR-mutant trial requires EGFR mutation (patient is EGFR-negative)"},
		{"subtype list with wild-type partner excludes ALK",
			newTrial(domain.LUNG, "Osimertinib Study", biomarker("EGFR exon 19 deletion or L858R, ALK wild-type", domain.CRITERION_MET)),
			func(l *domain.LungPanel) {
				exon19(l)
				l.ALK = domain.PRESENT
			}, "LC2", "Trial requires ALK-negative status (patient is ALK-positive)"},
		{"listed drivers share trailing negation",
			newTrial(domain.LUNG, "Chemo-Immunotherapy", biomarker("EGFR, ALK, and ROS1 wild-type", domain.CRITERION_MET)),
			func(l *domain.LungPanel) { l.ROS1 = domain.PRESENT }, "LC2", "Trial requires ROS1-negative status (patient is ROS1-positive)"},
		{"leading negation covers the list",
			newTrial(domain.LUNG, "Chemo-Immunotherapy", biomarker("No EGFR, ALK, or ROS1 alterations", domain.CRITERION_MET)),
			exon19, "LC2", "Trial requires EGFR-negative status (patient is EGFR-positive)"},
		{"metastatic does not read as MET",
			newTrial(domain.LUNG, "Docetaxel in Metastatic NSCLC after exon 14 review"),
			nil, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := rules.IsHardExcluded(lungPatient(tt.mutate), tt.trial)
			if tt.code == "" {
				assert.Nil(t, reason, "unexpected exclusion: %v", reason)
				return
			}
			require.NotNil(t, reason)
			assert.Equal(t, tt.code, reason.RuleCode)
			if tt.message != "" {
				assert.Equal(t, tt.message, reason.Message)
			}
		})
	}
}

func TestPDL1Threshold(t *testing.T) {
	rules, _ := newTestRuleSet()
	tr := newTrial(domain.LUNG, "KEYNOTE-024: Pembrolizumab vs Chemotherapy in PD-L1 High NSCLC",
		biomarker("PD-L1 TPS ≥50%", domain.CRITERION_MET))

	tests := []struct {
		name     string
		pct      *int
		excluded bool
	}{
		{"below threshold", intPtr(30), true},
		{"at threshold", intPtr(50), false},
		{"above threshold", intPtr(80), false},
		{"no percentage", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := lungPatient(func(l *domain.LungPanel) {
				l.PDL1 = domain.PDL1Expression{Status: domain.PRESENT, Percentage: tt.pct}
			})
			reason := rules.IsHardExcluded(p, tr)
			if !tt.excluded {
				assert.Nil(t, reason)
				return
			}
			require.NotNil(t, reason)
			assert.Equal(t, "LC9", reason.RuleCode)
			assert.Contains(t, reason.Message, "30%")
		})
	}
}

func TestDataInconsistencyIsLoggedNotExcluded(t *testing.T) {
	rules, hook := newTestRuleSet()
	p := lungPatient(nil)
	tr := newTrial(domain.LUNG, "DESTINY-Lung02: Trastuzumab Deruxtecan in HER2-Mutant NSCLC",
		biomarker("HER2 mutation (not amplification)", domain.CRITERION_MET))

	assert.Nil(t, rules.IsHardExcluded(p, tr))

	var warned *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = e
		}
	}
	require.NotNil(t, warned)
	assert.Equal(t, domain.MARKER_HER2, warned.Data["marker"])

	var inconsistency *domain.DataInconsistency
	require.ErrorAs(t, warned.Data[logrus.ErrorKey].(error), &inconsistency)
	assert.Equal(t, tr.NCTNumber, inconsistency.NCTNumber)
}

func TestPerformanceStatusExclusion(t *testing.T) {
	rules, _ := newTestRuleSet()
	tr := newTrial(domain.LUNG, "Chemotherapy Study",
		criterion("ECOG performance status 0-1", domain.CATEGORY_PERFORMANCE, domain.CRITERION_UNKNOWN))
	wide := newTrial(domain.LUNG, "Chemotherapy Study",
		criterion("ECOG 0-2", domain.CATEGORY_PERFORMANCE, domain.CRITERION_UNKNOWN))
	enDash := newTrial(domain.LUNG, "Chemotherapy Study",
		criterion("ECOG 0–1", domain.CATEGORY_PERFORMANCE, domain.CRITERION_UNKNOWN))
	lower := newTrial(domain.LUNG, "Chemotherapy Study",
		criterion("ecog performance status of 0 or 1", domain.CATEGORY_PERFORMANCE, domain.CRITERION_UNKNOWN))

	tests := []struct {
		ecog     domain.ECOG
		trial    *domain.Trial
		excluded bool
	}{
		{domain.ECOG_3, tr, true},
		{domain.ECOG_4, tr, true},
		{domain.ECOG_2, tr, false},
		{domain.ECOG_UNKNOWN, tr, false},
		{domain.ECOG_3, wide, false},
		{domain.ECOG_3, enDash, true},
		{domain.ECOG_4, lower, true},
		{domain.ECOG_1, lower, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.ecog)+"/"+tt.trial.EligibilityCriteria[0].Criterion, func(t *testing.T) {
			p := lungPatient(nil)
			p.ECOG = tt.ecog
			reason := rules.IsHardExcluded(p, tt.trial)
			if !tt.excluded {
				assert.Nil(t, reason)
				return
			}
			require.NotNil(t, reason)
			assert.Equal(t, RULE_ECOG, reason.RuleCode)
			assert.Equal(t, fmt.Sprintf("ECOG %s patient excluded from ECOG 0-1 trial", tt.ecog), reason.Message)
		})
	}
}

func TestPriorTherapyExclusionFlag(t *testing.T) {
	logger, _ := test.NewNullLogger()
	p := breastPatient(domain.PRESENT, domain.PRESENT, domain.HER2_LOW)
	p.PriorTreatments = []domain.PriorTreatment{{Category: domain.TARGETED_THERAPY, Name: strPtr("Enhertu")}}
	tr := newTrial(domain.BREAST, "ADC Sequencing Study")
	tr.ExclusionRisks.PriorDrugExposure = "No prior trastuzumab deruxtecan"

	assert.Nil(t, NewRuleSet(logger, false).IsHardExcluded(p, tr), "disabled by default")

	reason := NewRuleSet(logger, true).IsHardExcluded(p, tr)
	require.NotNil(t, reason)
	assert.Equal(t, RULE_PRIOR_THERAPY, reason.RuleCode)
	assert.Equal(t, "Trial excludes patients with prior trastuzumab deruxtecan (patient has prior exposure)", reason.Message)

	tr.ExclusionRisks.PriorDrugExposure = "Prior trastuzumab deruxtecan allowed"
	assert.Nil(t, NewRuleSet(logger, true).IsHardExcluded(p, tr))
}

func TestCancerTypeMismatch(t *testing.T) {
	rules, _ := newTestRuleSet()
	reason := rules.IsHardExcluded(lungPatient(nil), newTrial(domain.BREAST, "Any Breast Trial"))
	require.NotNil(t, reason)
	assert.Equal(t, RULE_CANCER_TYPE, reason.RuleCode)
}

func TestRuleRegistry(t *testing.T) {
	rules, _ := newTestRuleSet()

	assert.Len(t, rules.Rules(domain.BREAST, TIER_TITLE), 7)
	assert.Len(t, rules.Rules(domain.BREAST, TIER_CRITERIA), 7)
	assert.Len(t, rules.Rules(domain.LUNG, TIER_TITLE), 8)
	assert.Len(t, rules.Rules(domain.LUNG, TIER_CRITERIA), 9)

	rule, ok := rules.Rule("LC9")
	require.True(t, ok)
	assert.Equal(t, FAMILY_PDL1, rule.Family)

	_, ok = rules.Rule("ZZ1")
	assert.False(t, ok)
}
