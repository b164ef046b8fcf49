package matching

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/trialscout/trial-matcher/internal/domain"
)

// RuleTier names the text a biomarker rule is evaluated against
type RuleTier string

const (
	// TIER_TITLE rules read the raw trial title. They only run for families
	// that no required biomarker criterion already resolves.
	TIER_TITLE RuleTier = "title"
	// TIER_CRITERIA rules read the lowercased text of required biomarker criteria
	TIER_CRITERIA RuleTier = "criteria"
)

// Family groups rules that resolve the same biomarker requirement
type Family string

const (
	FAMILY_HER2            Family = "her2"
	FAMILY_ER              Family = "er"
	FAMILY_HR              Family = "hormone_receptor"
	FAMILY_TNBC            Family = "triple_negative"
	FAMILY_EGFR            Family = "egfr"
	FAMILY_ALK             Family = "alk"
	FAMILY_ROS1            Family = "ros1"
	FAMILY_KRAS            Family = "kras"
	FAMILY_MET             Family = "met"
	FAMILY_BRAF            Family = "braf"
	FAMILY_PDL1            Family = "pdl1"
	FAMILY_DRIVER_NEGATIVE Family = "driver_negative"
)

// Rule codes for the trial-level checks
const (
	RULE_CANCER_TYPE   = "CT1"
	RULE_NEOADJUVANT   = "ST1"
	RULE_ADJUVANT_ONLY = "ST2"
	RULE_ECOG          = "PS1"
	RULE_PRIOR_THERAPY = "TX1"
)

// BiomarkerRule is a text-triggered hard-exclusion rule for one cancer type
type BiomarkerRule struct {
	Code       string
	Name       string
	CancerType domain.CancerType
	Tier       RuleTier
	Family     Family
	// Combination marks receptor rules skipped when the title admits more than
	// one receptor population ("HR+/HER2- or Triple-Negative").
	Combination bool
	Matches     func(text string) bool
	Check       func(p *domain.PatientProfile, text string) string
}

// RuleSet evaluates hard exclusions in a fixed order: treatment setting, title
// biomarkers, criteria biomarkers, performance status and, when enabled, prior
// therapy. The first rule that fires is reported.
type RuleSet struct {
	logger       *logrus.Logger
	priorTherapy bool
	rules        []*BiomarkerRule
	byCode       map[string]*BiomarkerRule
}

// NewRuleSet creates the rule set. priorTherapy enables the "no prior <drug>"
// exclusion, which is otherwise only surfaced as a confirmation item.
func NewRuleSet(logger *logrus.Logger, priorTherapy bool) *RuleSet {
	rs := &RuleSet{
		logger:       logger,
		priorTherapy: priorTherapy,
		byCode:       make(map[string]*BiomarkerRule),
	}

	rs.initializeRules()

	return rs
}

// Rule returns a registered biomarker rule by code
func (r *RuleSet) Rule(code string) (*BiomarkerRule, bool) {
	rule, ok := r.byCode[code]
	return rule, ok
}

// Rules returns the biomarker rules for a cancer type and tier in evaluation order
func (r *RuleSet) Rules(cancerType domain.CancerType, tier RuleTier) []*BiomarkerRule {
	var out []*BiomarkerRule
	for _, rule := range r.rules {
		if rule.CancerType == cancerType && rule.Tier == tier {
			out = append(out, rule)
		}
	}
	return out
}

// IsHardExcluded returns the first exclusion that applies, or nil. The
// cancer-type precondition is normally enforced by the orchestrator and is
// repeated here so the function is safe to call on any pair.
func (r *RuleSet) IsHardExcluded(p *domain.PatientProfile, t *domain.Trial) *domain.ExclusionReason {
	if p.CancerType != t.CancerType {
		return &domain.ExclusionReason{
			RuleCode: RULE_CANCER_TYPE,
			Message:  fmt.Sprintf("Trial enrolls %s cancer patients (patient has %s cancer)", t.CancerType, p.CancerType),
		}
	}

	if reason := checkTreatmentSetting(p, t); reason != nil {
		return reason
	}

	criteria := requiredBiomarkerCriteria(t)
	covered := r.coveredFamilies(p.CancerType, criteria)

	if reason := r.checkTitleTier(p, t, covered); reason != nil {
		return reason
	}
	if reason := r.checkCriteriaTier(p, t, criteria); reason != nil {
		return reason
	}
	if reason := checkPerformanceStatus(p, t); reason != nil {
		return reason
	}
	if r.priorTherapy {
		if reason := checkPriorTherapy(p, t); reason != nil {
			return reason
		}
	}

	return nil
}

func (r *RuleSet) checkTitleTier(p *domain.PatientProfile, t *domain.Trial, covered map[Family]bool) *domain.ExclusionReason {
	combination := admitsAlternativePopulations(t.Title)
	for _, rule := range r.Rules(p.CancerType, TIER_TITLE) {
		if covered[rule.Family] || (rule.Combination && combination) {
			continue
		}
		if !rule.Matches(t.Title) {
			continue
		}
		if msg := rule.Check(p, t.Title); msg != "" {
			return &domain.ExclusionReason{RuleCode: rule.Code, Message: msg}
		}
	}
	return nil
}

func (r *RuleSet) checkCriteriaTier(p *domain.PatientProfile, t *domain.Trial, criteria []domain.EligibilityCriterion) *domain.ExclusionReason {
	combination := admitsAlternativePopulations(t.Title)
	rules := r.Rules(p.CancerType, TIER_CRITERIA)

	for _, c := range criteria {
		text := strings.ToLower(c.Criterion)
		r.reportInconsistencies(p, t, c.Criterion, text)

		for _, rule := range rules {
			if rule.Combination && combination {
				continue
			}
			if !rule.Matches(text) {
				continue
			}
			if msg := rule.Check(p, text); msg != "" {
				return &domain.ExclusionReason{RuleCode: rule.Code, Message: msg}
			}
		}
	}
	return nil
}

// coveredFamilies lists the biomarker families resolved by structured criteria.
// Title rules of a covered family are skipped.
func (r *RuleSet) coveredFamilies(cancerType domain.CancerType, criteria []domain.EligibilityCriterion) map[Family]bool {
	covered := make(map[Family]bool)
	rules := r.Rules(cancerType, TIER_CRITERIA)
	for _, c := range criteria {
		text := strings.ToLower(c.Criterion)
		for _, rule := range rules {
			if rule.Matches(text) {
				covered[rule.Family] = true
			}
		}
	}
	return covered
}

// reportInconsistencies logs criteria that name a biomarker the patient's panel
// does not carry. Such criteria neither exclude nor earn a bonus.
func (r *RuleSet) reportInconsistencies(p *domain.PatientProfile, t *domain.Trial, original, text string) {
	for _, name := range referencedMarkers(text) {
		if _, ok := p.Biomarkers.Marker(name); ok {
			continue
		}
		issue := &domain.DataInconsistency{NCTNumber: t.NCTNumber, Marker: string(name), Criterion: original}
		r.logger.WithFields(logrus.Fields{
			"nct_number":  t.NCTNumber,
			"marker":      name,
			"cancer_type": p.CancerType,
		}).WithError(issue).Warn("Criterion references biomarker outside patient panel")
	}
}

func (r *RuleSet) initializeRules() {
	r.registerBreastRules()
	r.registerLungRules()
}

func (r *RuleSet) addRule(rule BiomarkerRule) {
	stored := rule
	r.rules = append(r.rules, &stored)
	r.byCode[rule.Code] = &stored
}

// requiredBiomarkerCriteria returns the required biomarker criteria in catalog order
func requiredBiomarkerCriteria(t *domain.Trial) []domain.EligibilityCriterion {
	var out []domain.EligibilityCriterion
	for _, c := range t.EligibilityCriteria {
		if c.Category == domain.CATEGORY_BIOMARKER && c.Required {
			out = append(out, c)
		}
	}
	return out
}

// admitsAlternativePopulations reports titles that enroll a receptor-positive
// cohort alongside a triple-negative one
func admitsAlternativePopulations(title string) bool {
	lower := strings.ToLower(title)
	return strings.Contains(lower, " or ") &&
		(strings.Contains(lower, "triple-negative") || strings.Contains(lower, "triple negative") || hasToken(title, "TNBC"))
}

var markerTokens = []struct {
	name   domain.MarkerName
	tokens []string
}{
	{domain.MARKER_ER, []string{"er", "estrogen receptor"}},
	{domain.MARKER_PR, []string{"pr", "progesterone receptor"}},
	{domain.MARKER_HER2, []string{"her2", "her-2"}},
	{domain.MARKER_KI67, []string{"ki67", "ki-67"}},
	{domain.MARKER_EGFR, []string{"egfr"}},
	{domain.MARKER_ALK, []string{"alk"}},
	{domain.MARKER_ROS1, []string{"ros1"}},
	{domain.MARKER_KRAS, []string{"kras"}},
	{domain.MARKER_MET, []string{"met"}},
	{domain.MARKER_BRAF, []string{"braf"}},
	{domain.MARKER_PDL1, []string{"pd-l1", "pdl1"}},
}

// referencedMarkers lists the biomarkers named in lowercased criterion text
func referencedMarkers(text string) []domain.MarkerName {
	var out []domain.MarkerName
	for _, m := range markerTokens {
		if hasAnyToken(text, m.tokens...) {
			out = append(out, m.name)
		}
	}
	return out
}

func checkTreatmentSetting(p *domain.PatientProfile, t *domain.Trial) *domain.ExclusionReason {
	if p.Stage != domain.STAGE_IV {
		return nil
	}
	title := strings.ToLower(t.Title)
	if strings.Contains(title, "neoadjuvant") {
		return &domain.ExclusionReason{RuleCode: RULE_NEOADJUVANT, Message: "Stage IV patient excluded from neoadjuvant trial"}
	}
	if strings.Contains(title, "adjuvant") && !strings.Contains(title, "metastatic") {
		return &domain.ExclusionReason{RuleCode: RULE_ADJUVANT_ONLY, Message: "Stage IV patient excluded from adjuvant-only trial"}
	}
	return nil
}

// checkPerformanceStatus excludes ECOG 3-4 patients from trials limited to
// ECOG 0-1. An unknown ECOG never excludes.
func checkPerformanceStatus(p *domain.PatientProfile, t *domain.Trial) *domain.ExclusionReason {
	if !p.ECOG.IsPoor() {
		return nil
	}
	for _, c := range t.EligibilityCriteria {
		text := strings.ToLower(c.Criterion)
		if strings.Contains(text, "ecog") && containsAny(text, "0-1", "0–1", "0 or 1", "0 to 1") {
			return &domain.ExclusionReason{
				RuleCode: RULE_ECOG,
				Message:  fmt.Sprintf("ECOG %s patient excluded from ECOG 0-1 trial", p.ECOG),
			}
		}
	}
	return nil
}

// excludedDrugs maps the drug named in "no prior <drug>" phrasing to the names
// that count as prior exposure
var excludedDrugs = []struct {
	label   string
	aliases []string
}{
	{"osimertinib", []string{"osimertinib", "tagrisso"}},
	{"trastuzumab deruxtecan", []string{"trastuzumab deruxtecan", "t-dxd", "enhertu"}},
	{"palbociclib", []string{"palbociclib", "ibrance"}},
	{"ribociclib", []string{"ribociclib", "kisqali"}},
	{"abemaciclib", []string{"abemaciclib", "verzenio"}},
}

func checkPriorTherapy(p *domain.PatientProfile, t *domain.Trial) *domain.ExclusionReason {
	text := strings.ToLower(t.ExclusionRisks.PriorDrugExposure)
	if !strings.Contains(text, "no prior") {
		return nil
	}
	prior := p.PriorDrugNames()

	for _, drug := range excludedDrugs {
		named := false
		for _, alias := range drug.aliases {
			if strings.Contains(text, "no prior "+alias) {
				named = true
				break
			}
		}
		if !named {
			continue
		}
		for _, name := range prior {
			if containsAny(name, drug.aliases...) {
				return &domain.ExclusionReason{
					RuleCode: RULE_PRIOR_THERAPY,
					Message:  fmt.Sprintf("Trial excludes patients with prior %s (patient has prior exposure)", drug.label),
				}
			}
		}
	}
	return nil
}
