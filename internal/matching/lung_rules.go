package matching

import (
	"fmt"
	"sort"
	"strings"

	"github.com/trialscout/trial-matcher/internal/domain"
)

// driver is one member of the set of mutually exclusive NSCLC drivers
type driver struct {
	label    string
	positive func(l *domain.LungPanel) bool
}

var exclusiveDrivers = []driver{
	{"EGFR", func(l *domain.LungPanel) bool { return l.EGFR.Status == domain.PRESENT }},
	{"ALK", func(l *domain.LungPanel) bool { return l.ALK == domain.PRESENT }},
	{"ROS1", func(l *domain.LungPanel) bool { return l.ROS1 == domain.PRESENT }},
	{"KRAS G12C", func(l *domain.LungPanel) bool { return l.HasKRASG12C() }},
}

// actionableDrivers are the alterations a driver-negative trial rules out
var actionableDrivers = append(append([]driver{}, exclusiveDrivers...),
	driver{"BRAF", func(l *domain.LungPanel) bool { return l.BRAF == domain.PRESENT }},
	driver{"MET", func(l *domain.LungPanel) bool { return l.MET.Status == domain.PRESENT }},
)

var negatedDrivers = []struct {
	token string
	driver
}{
	{"egfr", exclusiveDrivers[0]},
	{"alk", exclusiveDrivers[1]},
	{"ros1", exclusiveDrivers[2]},
	{"kras", driver{"KRAS", func(l *domain.LungPanel) bool { return l.KRAS.Status == domain.PRESENT }}},
	{"braf", actionableDrivers[4]},
	{"met", actionableDrivers[5]},
}

func (r *RuleSet) registerLungRules() {
	// Title tier
	r.addRule(BiomarkerRule{
		Code: "LT1", Name: "EGFR-mutant title", CancerType: domain.LUNG, Tier: TIER_TITLE, Family: FAMILY_EGFR,
		Matches: func(title string) bool {
			return hasToken(title, "EGFR") && containsAny(strings.ToLower(title), "mutation", "mutant")
		},
		Check: requireEGFR,
	})
	r.addRule(BiomarkerRule{
		Code: "LT2", Name: "ALK-positive title", CancerType: domain.LUNG, Tier: TIER_TITLE, Family: FAMILY_ALK,
		Matches: func(title string) bool {
			return hasToken(title, "ALK") && containsAny(strings.ToLower(title), "positive", "rearrangement", "rearranged")
		},
		Check: requireALK,
	})
	r.addRule(BiomarkerRule{
		Code: "LT3", Name: "ROS1-positive title", CancerType: domain.LUNG, Tier: TIER_TITLE, Family: FAMILY_ROS1,
		Matches: func(title string) bool {
			return hasToken(title, "ROS1") && containsAny(strings.ToLower(title), "positive", "rearrangement", "rearranged")
		},
		Check: requireROS1,
	})
	r.addRule(BiomarkerRule{
		Code: "LT4", Name: "KRAS G12C title", CancerType: domain.LUNG, Tier: TIER_TITLE, Family: FAMILY_KRAS,
		Matches: func(title string) bool {
			return containsAny(title, "KRAS G12C", "KRAS-G12C")
		},
		Check: requireKRASG12C,
	})
	r.addRule(BiomarkerRule{
		Code: "LT5", Name: "MET exon 14 title", CancerType: domain.LUNG, Tier: TIER_TITLE, Family: FAMILY_MET,
		Matches: func(title string) bool {
			return hasToken(title, "MET") && strings.Contains(strings.ToLower(title), "exon 14")
		},
		Check: requireMETExon14,
	})
	r.addRule(BiomarkerRule{
		Code: "LT6", Name: "BRAF V600E title", CancerType: domain.LUNG, Tier: TIER_TITLE, Family: FAMILY_BRAF,
		Matches: func(title string) bool {
			return hasToken(title, "BRAF") && strings.Contains(title, "V600")
		},
		Check: requireBRAF,
	})
	r.addRule(BiomarkerRule{
		Code: "LT7", Name: "Driver-negative title", CancerType: domain.LUNG, Tier: TIER_TITLE, Family: FAMILY_DRIVER_NEGATIVE,
		Matches: func(title string) bool {
			return driverNegative(strings.ToLower(title))
		},
		Check: excludeAnyDriver,
	})
	r.addRule(BiomarkerRule{
		Code: "LT8", Name: "PD-L1 threshold title", CancerType: domain.LUNG, Tier: TIER_TITLE, Family: FAMILY_PDL1,
		Matches: func(title string) bool {
			_, ok := parseThreshold(title)
			return ok && hasAnyToken(title, "PD-L1", "PDL1")
		},
		Check: requirePDL1Threshold,
	})

	// Criteria tier
	r.addRule(BiomarkerRule{
		Code: "LC1", Name: "Driver-negative criterion", CancerType: domain.LUNG, Tier: TIER_CRITERIA, Family: FAMILY_DRIVER_NEGATIVE,
		Matches: driverNegative,
		Check:   excludeAnyDriver,
	})
	r.addRule(BiomarkerRule{
		Code: "LC2", Name: "Negated driver criterion", CancerType: domain.LUNG, Tier: TIER_CRITERIA, Family: FAMILY_DRIVER_NEGATIVE,
		Matches: func(text string) bool {
			return len(negatedMarkers(text)) > 0 && !driverNegative(text)
		},
		Check: excludeNamedDrivers,
	})
	r.addRule(BiomarkerRule{
		Code: "LC3", Name: "EGFR-mutant criterion", CancerType: domain.LUNG, Tier: TIER_CRITERIA, Family: FAMILY_EGFR,
		Matches: func(text string) bool {
			return hasToken(text, "egfr") && containsAny(text, "mutation", "mutant", "exon 19", "l858r") && !negatedMarkers(text)["egfr"]
		},
		Check: requireEGFR,
	})
	r.addRule(BiomarkerRule{
		Code: "LC4", Name: "ALK-positive criterion", CancerType: domain.LUNG, Tier: TIER_CRITERIA, Family: FAMILY_ALK,
		Matches: func(text string) bool {
			return hasToken(text, "alk") && containsAny(text, "positive", "rearrangement", "rearranged", "fusion") && !negatedMarkers(text)["alk"]
		},
		Check: requireALK,
	})
	r.addRule(BiomarkerRule{
		Code: "LC5", Name: "ROS1-positive criterion", CancerType: domain.LUNG, Tier: TIER_CRITERIA, Family: FAMILY_ROS1,
		Matches: func(text string) bool {
			return hasToken(text, "ros1") && containsAny(text, "positive", "rearrangement", "rearranged", "fusion") && !negatedMarkers(text)["ros1"]
		},
		Check: requireROS1,
	})
	r.addRule(BiomarkerRule{
		Code: "LC6", Name: "KRAS G12C criterion", CancerType: domain.LUNG, Tier: TIER_CRITERIA, Family: FAMILY_KRAS,
		Matches: func(text string) bool {
			return containsAny(text, "kras g12c", "kras-g12c") && !negatedMarkers(text)["kras"]
		},
		Check: requireKRASG12C,
	})
	r.addRule(BiomarkerRule{
		Code: "LC7", Name: "MET exon 14 criterion", CancerType: domain.LUNG, Tier: TIER_CRITERIA, Family: FAMILY_MET,
		Matches: func(text string) bool {
			return hasToken(text, "met") && strings.Contains(text, "exon 14") && !negatedMarkers(text)["met"]
		},
		Check: requireMETExon14,
	})
	r.addRule(BiomarkerRule{
		Code: "LC8", Name: "BRAF V600E criterion", CancerType: domain.LUNG, Tier: TIER_CRITERIA, Family: FAMILY_BRAF,
		Matches: func(text string) bool {
			return hasToken(text, "braf") && strings.Contains(text, "v600") && !negatedMarkers(text)["braf"]
		},
		Check: requireBRAF,
	})
	r.addRule(BiomarkerRule{
		Code: "LC9", Name: "PD-L1 threshold criterion", CancerType: domain.LUNG, Tier: TIER_CRITERIA, Family: FAMILY_PDL1,
		Matches: func(text string) bool {
			_, ok := parseThreshold(text)
			return ok && hasAnyToken(text, "pd-l1", "pdl1")
		},
		Check: requirePDL1Threshold,
	})
}

func driverNegative(text string) bool {
	return containsAny(text, "no driver", "driver negative", "driver-negative", "no actionable", "without driver")
}

var (
	// prefixNegations rule out the markers that follow them, e.g. "No EGFR or ALK"
	prefixNegations = []string{"no", "without", "negative for", "absence of", "lack of"}
	// suffixNegations rule out the marker they follow, e.g. "ALK wild-type"
	suffixNegations = []string{"-negative", " negative", "wild-type", "wild type", "not detected", "absent"}
)

type driverMention struct {
	token      string
	start, end int
}

func driverMentions(text string) []driverMention {
	var out []driverMention
	for _, n := range negatedDrivers {
		if i := tokenIndex(text, n.token); i >= 0 {
			out = append(out, driverMention{token: n.token, start: i, end: i + len(n.token)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

// negatedMarkers returns the driver tokens the criterion rules out. Negation is
// decided per marker from the words between it and its neighbours, so
// "EGFR mutation positive, ALK negative" negates ALK only.
func negatedMarkers(text string) map[string]bool {
	mentions := driverMentions(text)
	negated := make(map[string]bool, len(mentions))
	suffix := make([]bool, len(mentions))
	carry := false
	prevEnd := 0

	for i, m := range mentions {
		next := len(text)
		if i+1 < len(mentions) {
			next = mentions[i+1].start
		}
		before := text[prevEnd:m.start]
		switch {
		case hasAnyToken(before, prefixNegations...):
			carry = true
		case containsAny(before, "positive", " but ", " must "):
			carry = false
		}
		suffix[i] = containsAny(text[m.end:next], suffixNegations...)
		negated[m.token] = carry
		prevEnd = m.end
	}

	// "EGFR, ALK, and ROS1 wild-type" negates every marker in the list
	for i := len(mentions) - 1; i >= 0; i-- {
		if !suffix[i] && i+1 < len(mentions) && suffix[i+1] && onlyConjunctions(text[mentions[i].end:mentions[i+1].start]) {
			suffix[i] = true
		}
		if suffix[i] {
			negated[mentions[i].token] = true
		}
	}

	for token, neg := range negated {
		if !neg {
			delete(negated, token)
		}
	}
	return negated
}

func onlyConjunctions(gap string) bool {
	words := strings.FieldsFunc(gap, func(r rune) bool {
		return r == ' ' || r == ',' || r == '/' || r == '&'
	})
	for _, w := range words {
		if w != "and" && w != "or" && w != "nor" {
			return false
		}
	}
	return true
}

func exclusivityConflict(l *domain.LungPanel, required string) string {
	for _, d := range exclusiveDrivers {
		if d.label == required {
			continue
		}
		if d.positive(l) {
			return fmt.Sprintf("%s trial excludes %s-positive patients (mutually exclusive drivers)", required, d.label)
		}
	}
	return ""
}

// egfrSubtypes are the EGFR alterations a criterion may restrict enrollment to
var egfrSubtypes = []struct {
	label  string
	tokens []string
}{
	{domain.EGFR_EXON19_DELETION, []string{"exon 19", "ex19"}},
	{domain.EGFR_L858R, []string{"l858r"}},
	{domain.EGFR_EXON20_INSERTION, []string{"exon 20", "ex20"}},
	{domain.EGFR_T790M, []string{"t790m"}},
}

func requireEGFR(p *domain.PatientProfile, text string) string {
	l := p.Biomarkers.Lung
	if l == nil {
		return ""
	}
	if l.EGFR.Status == domain.ABSENT {
		return "EGFR-mutant trial requires EGFR mutation (patient is EGFR-negative)"
	}
	if msg := egfrSubtypeConflict(l, strings.ToLower(text)); msg != "" {
		return msg
	}
	return exclusivityConflict(l, "EGFR")
}

// egfrSubtypeConflict fires when the text names specific EGFR alterations and
// the patient's recorded mutation is a different named one
func egfrSubtypeConflict(l *domain.LungPanel, text string) string {
	if l.EGFR.Status != domain.PRESENT || l.EGFR.Mutation == nil || *l.EGFR.Mutation == domain.EGFR_OTHER {
		return ""
	}
	var named []string
	for _, s := range egfrSubtypes {
		if containsAny(text, s.tokens...) {
			named = append(named, s.label)
		}
	}
	if len(named) == 0 {
		return ""
	}
	for _, label := range named {
		if label == *l.EGFR.Mutation {
			return ""
		}
	}
	return fmt.Sprintf("EGFR trial requires %s (patient has %s)", strings.Join(named, " or "), *l.EGFR.Mutation)
}

func requireALK(p *domain.PatientProfile, _ string) string {
	l := p.Biomarkers.Lung
	if l == nil {
		return ""
	}
	if l.ALK == domain.ABSENT {
		return "ALK+ trial requires ALK rearrangement (patient is ALK-negative)"
	}
	return exclusivityConflict(l, "ALK")
}

func requireROS1(p *domain.PatientProfile, _ string) string {
	l := p.Biomarkers.Lung
	if l == nil {
		return ""
	}
	if l.ROS1 == domain.ABSENT {
		return "ROS1+ trial requires ROS1 rearrangement (patient is ROS1-negative)"
	}
	return exclusivityConflict(l, "ROS1")
}

func requireKRASG12C(p *domain.PatientProfile, _ string) string {
	l := p.Biomarkers.Lung
	if l == nil {
		return ""
	}
	switch {
	case l.KRAS.Status == domain.PRESENT && l.KRAS.Mutation != nil && *l.KRAS.Mutation != domain.KRAS_G12C:
		return fmt.Sprintf("KRAS G12C trial requires G12C mutation (patient has %s)", *l.KRAS.Mutation)
	case l.KRAS.Status == domain.ABSENT:
		return "KRAS G12C trial requires KRAS mutation (patient is KRAS-negative)"
	}
	return exclusivityConflict(l, "KRAS G12C")
}

// requireMETExon14 needs MET present with an exon 14 alteration on record.
// A MET-present result without alteration detail does not qualify.
func requireMETExon14(p *domain.PatientProfile, _ string) string {
	l := p.Biomarkers.Lung
	if l == nil {
		return ""
	}
	switch l.MET.Status {
	case domain.ABSENT:
		return "MET exon 14 trial requires MET exon 14 skipping (patient is MET-negative)"
	case domain.PRESENT:
		if l.MET.Alteration == nil {
			return "MET exon 14 trial requires exon 14 skipping (patient has unspecified MET alteration)"
		}
		if !strings.Contains(strings.ToLower(*l.MET.Alteration), "exon 14") {
			return fmt.Sprintf("MET exon 14 trial requires exon 14 skipping (patient has %s)", *l.MET.Alteration)
		}
	}
	return ""
}

func requireBRAF(p *domain.PatientProfile, _ string) string {
	if l := p.Biomarkers.Lung; l != nil && l.BRAF == domain.ABSENT {
		return "BRAF V600E trial requires BRAF mutation (patient is BRAF-negative)"
	}
	return ""
}

func requirePDL1Threshold(p *domain.PatientProfile, text string) string {
	l := p.Biomarkers.Lung
	if l == nil || l.PDL1.Percentage == nil {
		return ""
	}
	threshold, ok := parseThreshold(text)
	if !ok {
		return ""
	}
	if pct := *l.PDL1.Percentage; pct < threshold {
		return fmt.Sprintf("PD-L1 ≥%d%% trial requires higher PD-L1 expression (patient is %d%%)", threshold, pct)
	}
	return ""
}

func excludeAnyDriver(p *domain.PatientProfile, _ string) string {
	l := p.Biomarkers.Lung
	if l == nil {
		return ""
	}
	for _, d := range actionableDrivers {
		if d.positive(l) {
			return fmt.Sprintf("No-driver trial excludes %s-positive patients", d.label)
		}
	}
	return ""
}

// excludeNamedDrivers handles criteria such as "No EGFR mutations or ALK
// rearrangements": only the markers the text rules out are excluded
func excludeNamedDrivers(p *domain.PatientProfile, text string) string {
	l := p.Biomarkers.Lung
	if l == nil {
		return ""
	}
	negated := negatedMarkers(text)
	for _, n := range negatedDrivers {
		if !negated[n.token] {
			continue
		}
		positive := n.positive
		label := n.label
		if n.token == "kras" && strings.Contains(text, "g12c") {
			positive = exclusiveDrivers[3].positive
			label = "KRAS G12C"
		}
		if positive(l) {
			return fmt.Sprintf("Trial requires %s-negative status (patient is %s-positive)", label, label)
		}
	}
	return ""
}
