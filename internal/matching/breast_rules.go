package matching

import (
	"fmt"
	"strings"

	"github.com/trialscout/trial-matcher/internal/domain"
)

// Breast rules run in the same order in both tiers. Title matchers keep the
// case-sensitive receptor tokens used in trial titles ("HER2+", "ER+", "HR+").
func (r *RuleSet) registerBreastRules() {
	// Title tier
	r.addRule(BiomarkerRule{
		Code: "BT1", Name: "HER2-positive title", CancerType: domain.BREAST, Tier: TIER_TITLE, Family: FAMILY_HER2,
		Matches: func(title string) bool {
			return strings.Contains(strings.ToLower(title), "her2-positive") || hasToken(title, "HER2+")
		},
		Check: requireHER2Positive,
	})
	r.addRule(BiomarkerRule{
		Code: "BT2", Name: "HER2-low title", CancerType: domain.BREAST, Tier: TIER_TITLE, Family: FAMILY_HER2,
		Matches: func(title string) bool {
			return containsAny(strings.ToLower(title), "her2-low", "her2 low")
		},
		Check: requireHER2Low,
	})
	r.addRule(BiomarkerRule{
		Code: "BT3", Name: "HR+/HER2- title", CancerType: domain.BREAST, Tier: TIER_TITLE, Family: FAMILY_HER2,
		Matches: func(title string) bool {
			lower := strings.ToLower(title)
			her2Negative := hasBareToken(title, "HER2-", "HER2-positive", "HER2-Positive", "HER2-low", "HER2-Low") ||
				strings.Contains(title, "HER2 -") || strings.Contains(lower, "her2-negative")
			hrFraming := hasAnyToken(title, "HR+", "ER+") || strings.Contains(lower, "hormone receptor")
			return her2Negative && hrFraming
		},
		Check: func(p *domain.PatientProfile, _ string) string {
			if b := p.Biomarkers.Breast; b != nil && b.HER2 == domain.HER2_POSITIVE {
				return "HR+/HER2- trial excludes HER2-positive patients"
			}
			return ""
		},
	})
	r.addRule(BiomarkerRule{
		Code: "BT4", Name: "Triple-negative title", CancerType: domain.BREAST, Tier: TIER_TITLE, Family: FAMILY_TNBC,
		Matches: func(title string) bool {
			tnbc := strings.Contains(strings.ToLower(title), "triple-negative") || hasToken(title, "TNBC")
			acceptsHR := hasToken(title, "HR+") || strings.Contains(title, " or ")
			return tnbc && !acceptsHR
		},
		Check: requireTripleNegative,
	})
	r.addRule(BiomarkerRule{
		Code: "BT5", Name: "ER-positive title", CancerType: domain.BREAST, Tier: TIER_TITLE, Family: FAMILY_ER, Combination: true,
		Matches: func(title string) bool {
			return hasToken(title, "ER+") || hasToken(title, "ER-positive")
		},
		Check: requireERPositive,
	})
	r.addRule(BiomarkerRule{
		Code: "BT6", Name: "ER-negative title", CancerType: domain.BREAST, Tier: TIER_TITLE, Family: FAMILY_ER, Combination: true,
		Matches: func(title string) bool {
			return hasToken(title, "ER-negative") || hasBareToken(title, "ER-", "ER-positive", "ER-Positive")
		},
		Check: requireERNegative,
	})
	r.addRule(BiomarkerRule{
		Code: "BT7", Name: "HR-positive title", CancerType: domain.BREAST, Tier: TIER_TITLE, Family: FAMILY_HR, Combination: true,
		Matches: func(title string) bool {
			return hasAnyToken(title, "HR+", "HR-positive") ||
				containsAny(strings.ToLower(title), "hormone receptor positive", "hormone receptor-positive")
		},
		Check: requireHormoneReceptor,
	})

	// Criteria tier
	r.addRule(BiomarkerRule{
		Code: "BC1", Name: "HER2-positive criterion", CancerType: domain.BREAST, Tier: TIER_CRITERIA, Family: FAMILY_HER2,
		Matches: func(text string) bool {
			return hasAnyToken(text, "her2+", "her2-positive", "her2 positive")
		},
		Check: requireHER2Positive,
	})
	r.addRule(BiomarkerRule{
		Code: "BC2", Name: "HER2-low criterion", CancerType: domain.BREAST, Tier: TIER_CRITERIA, Family: FAMILY_HER2,
		Matches: func(text string) bool {
			return hasAnyToken(text, "her2-low", "her2 low")
		},
		Check: requireHER2Low,
	})
	r.addRule(BiomarkerRule{
		Code: "BC3", Name: "HER2-negative criterion", CancerType: domain.BREAST, Tier: TIER_CRITERIA, Family: FAMILY_HER2,
		Matches: func(text string) bool {
			if strings.Contains(text, "low") {
				return false
			}
			return hasAnyToken(text, "her2-negative", "her2 negative") || hasBareToken(text, "her2-", "her2-positive")
		},
		Check: func(p *domain.PatientProfile, _ string) string {
			if b := p.Biomarkers.Breast; b != nil && b.HER2 == domain.HER2_POSITIVE {
				return "HER2-negative trial excludes HER2-positive patients"
			}
			return ""
		},
	})
	r.addRule(BiomarkerRule{
		Code: "BC4", Name: "Triple-negative criterion", CancerType: domain.BREAST, Tier: TIER_CRITERIA, Family: FAMILY_TNBC, Combination: true,
		Matches: func(text string) bool {
			return containsAny(text, "triple-negative", "triple negative") || hasToken(text, "tnbc")
		},
		Check: requireTripleNegative,
	})
	r.addRule(BiomarkerRule{
		Code: "BC5", Name: "ER-positive criterion", CancerType: domain.BREAST, Tier: TIER_CRITERIA, Family: FAMILY_ER, Combination: true,
		Matches: func(text string) bool {
			named := hasAnyToken(text, erPositive...)
			return named && !eitherReceptor(text)
		},
		Check: requireERPositive,
	})
	r.addRule(BiomarkerRule{
		Code: "BC6", Name: "ER-negative criterion", CancerType: domain.BREAST, Tier: TIER_CRITERIA, Family: FAMILY_ER, Combination: true,
		Matches: func(text string) bool {
			return hasAnyToken(text, "er-negative", "er negative") || hasBareToken(text, "er-", "er-positive")
		},
		Check: requireERNegative,
	})
	r.addRule(BiomarkerRule{
		Code: "BC7", Name: "HR-positive criterion", CancerType: domain.BREAST, Tier: TIER_CRITERIA, Family: FAMILY_HR, Combination: true,
		Matches: func(text string) bool {
			return hasAnyToken(text, "hr+", "hr-positive", "hr positive", "hormone receptor positive", "hormone receptor-positive") ||
				eitherReceptor(text)
		},
		Check: requireHormoneReceptor,
	})
}

var (
	erPositive = []string{"er+", "er-positive", "er positive", "estrogen receptor positive", "estrogen receptor-positive"}
	prPositive = []string{"pr+", "pr-positive", "pr positive", "progesterone receptor positive", "progesterone receptor-positive"}
)

// eitherReceptor detects "ER+ and/or PR+", "ER-positive or PR-positive" and the
// other spellings, which are a hormone-receptor requirement rather than an ER
// requirement
func eitherReceptor(text string) bool {
	return hasAnyToken(text, erPositive...) && hasAnyToken(text, prPositive...) && containsAny(text, " or ", "and/or")
}

func requireHER2Positive(p *domain.PatientProfile, _ string) string {
	b := p.Biomarkers.Breast
	if b == nil {
		return ""
	}
	if b.HER2 == domain.HER2_NEGATIVE || b.HER2 == domain.HER2_LOW {
		return fmt.Sprintf("HER2+ trial requires HER2-positive status (patient is %s)", b.HER2)
	}
	return ""
}

func requireHER2Low(p *domain.PatientProfile, _ string) string {
	b := p.Biomarkers.Breast
	if b == nil {
		return ""
	}
	if b.HER2 == domain.HER2_NEGATIVE || b.HER2 == domain.HER2_POSITIVE {
		return fmt.Sprintf("HER2-low trial requires HER2-low status (patient is %s)", b.HER2)
	}
	return ""
}

func requireTripleNegative(p *domain.PatientProfile, _ string) string {
	b := p.Biomarkers.Breast
	if b == nil {
		return ""
	}
	var positive []string
	if b.ER == domain.PRESENT {
		positive = append(positive, "ER-positive")
	}
	if b.PR == domain.PRESENT {
		positive = append(positive, "PR-positive")
	}
	if b.HER2 == domain.HER2_POSITIVE {
		positive = append(positive, "HER2-positive")
	}
	if len(positive) == 0 {
		return ""
	}
	return fmt.Sprintf("Triple-negative trial requires ER-/PR-/HER2- (patient is %s)", strings.Join(positive, ", "))
}

func requireERPositive(p *domain.PatientProfile, _ string) string {
	if b := p.Biomarkers.Breast; b != nil && b.ER == domain.ABSENT {
		return "ER+ trial requires ER-positive status (patient is ER-negative)"
	}
	return ""
}

func requireERNegative(p *domain.PatientProfile, _ string) string {
	if b := p.Biomarkers.Breast; b != nil && b.ER == domain.PRESENT {
		return "ER- trial requires ER-negative status (patient is ER-positive)"
	}
	return ""
}

func requireHormoneReceptor(p *domain.PatientProfile, _ string) string {
	if b := p.Biomarkers.Breast; b != nil && b.ER == domain.ABSENT && b.PR == domain.ABSENT {
		return "HR+ trial requires ER+ and/or PR+ (patient is ER-/PR-)"
	}
	return ""
}
