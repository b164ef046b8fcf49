package extraction

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/trialscout/trial-matcher/internal/domain"
)

// ProfileOverrides supply values the document may not state. Extracted values
// take precedence; an override only fills a gap.
type ProfileOverrides struct {
	Age        *int
	Sex        domain.Sex
	CancerType domain.CancerType
	Stage      domain.Stage
}

// MappingResult is the profile built from an extraction plus the fields that
// could not be resolved and were left unknown or dropped.
type MappingResult struct {
	Profile    *domain.PatientProfile `json:"patient_profile"`
	Unresolved []string               `json:"unresolved,omitempty"`
}

// MapToProfile normalizes extracted data into a validated PatientProfile.
// Ambiguous values become unknown, never a guessed positive or negative.
func MapToProfile(data *domain.ExtractedBiomarkerData, overrides ProfileOverrides) (*MappingResult, error) {
	if data == nil {
		return nil, domain.NewExtractionError(domain.STAGE_MAPPING, fmt.Errorf("no extraction data"))
	}

	m := &mapper{}
	profile := &domain.PatientProfile{
		CancerType:      m.cancerType(data.CancerType, overrides.CancerType),
		Age:             m.age(data.PatientDemographics, overrides.Age),
		Sex:             m.sex(data.PatientDemographics, overrides.Sex),
		Stage:           m.stage(data.ClinicalStatus, overrides.Stage),
		ECOG:            m.ecog(data.ClinicalStatus),
		LineOfTherapy:   m.lineOfTherapy(data.TreatmentStatus),
		PriorTreatments: m.priorTreatments(data),
	}

	markers := canonicalMarkers(data.Biomarkers)
	switch profile.CancerType {
	case domain.BREAST:
		profile.Biomarkers = domain.NewBreastPanel(m.breastPanel(markers))
	case domain.LUNG:
		profile.Biomarkers = domain.NewLungPanel(m.lungPanel(markers))
	}

	if err := profile.Validate(); err != nil {
		return nil, domain.NewExtractionError(domain.STAGE_MAPPING, err)
	}

	sort.Strings(m.unresolved)
	return &MappingResult{Profile: profile, Unresolved: m.unresolved}, nil
}

type mapper struct {
	unresolved []string
}

func (m *mapper) miss(field string) {
	m.unresolved = append(m.unresolved, field)
}

func (m *mapper) cancerType(extracted string, override domain.CancerType) domain.CancerType {
	if ct := normalizeHint(extracted); ct != "" {
		return ct
	}
	if override.IsValid() {
		return override
	}
	m.miss("cancer_type")
	return domain.CancerType(strings.ToLower(strings.TrimSpace(extracted)))
}

func (m *mapper) age(d *domain.ExtractedDemographics, override *int) int {
	if d != nil && d.Age != nil && *d.Age > 0 {
		return int(math.Round(*d.Age))
	}
	if override != nil {
		return *override
	}
	m.miss("age")
	return 0
}

func (m *mapper) sex(d *domain.ExtractedDemographics, override domain.Sex) domain.Sex {
	if d != nil {
		switch strings.ToLower(strings.TrimSpace(d.Sex)) {
		case "female", "f", "woman":
			return domain.FEMALE
		case "male", "m", "man":
			return domain.MALE
		case "other":
			return domain.OTHER_SEX
		}
	}
	if override != "" {
		return override
	}
	m.miss("sex")
	return ""
}

func (m *mapper) stage(c *domain.ExtractedClinicalStatus, override domain.Stage) domain.Stage {
	if c != nil {
		if s, ok := NormalizeStage(c.Stage); ok {
			return s
		}
	}
	if override != "" {
		return override
	}
	m.miss("stage")
	return ""
}

// NormalizeStage maps AJCC stage spellings ("Stage IIIA", "IVB", "4") onto the
// four stage groups.
func NormalizeStage(s string) (domain.Stage, bool) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.TrimSpace(strings.TrimPrefix(v, "STAGE"))
	v = strings.TrimRight(v, "ABC0123456789")
	switch v {
	case "IV":
		return domain.STAGE_IV, true
	case "III":
		return domain.STAGE_III, true
	case "II":
		return domain.STAGE_II, true
	case "I":
		return domain.STAGE_I, true
	}

	// arabic numerals were trimmed above; look at the original
	switch strings.TrimSpace(strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "STAGE")) {
	case "4":
		return domain.STAGE_IV, true
	case "3":
		return domain.STAGE_III, true
	case "2":
		return domain.STAGE_II, true
	case "1":
		return domain.STAGE_I, true
	}
	return "", false
}

func (m *mapper) ecog(c *domain.ExtractedClinicalStatus) domain.ECOG {
	if c == nil {
		m.miss("ecog")
		return domain.ECOG_UNKNOWN
	}
	v := strings.TrimSpace(strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(c.ECOG)), "ECOG"))
	switch domain.ECOG(v) {
	case domain.ECOG_0, domain.ECOG_1, domain.ECOG_2, domain.ECOG_3, domain.ECOG_4:
		return domain.ECOG(v)
	}
	m.miss("ecog")
	return domain.ECOG_UNKNOWN
}

// lineOfTherapy prefers the stated line, except that progression on a
// targeted agent means the patient is no longer first-line.
func (m *mapper) lineOfTherapy(t *domain.ExtractedTreatmentStatus) domain.LineOfTherapy {
	if t == nil {
		m.miss("line_of_therapy")
		return domain.NormalizeLineOfTherapy("")
	}

	status := strings.ToLower(strings.TrimSpace(t.CurrentStatus))
	stated := strings.ToLower(strings.TrimSpace(t.LineOfTherapy))
	hasLine := stated != "" && stated != "unknown"

	if hasLine {
		line := domain.NormalizeLineOfTherapy(stated)
		if line == domain.FIRST_LINE && status == "progressed_on_targeted" {
			return domain.POST_TARGETED
		}
		if line == domain.FIRST_LINE && strings.HasPrefix(status, "progressed_on_") {
			return domain.LATER_LINE
		}
		return line
	}

	switch status {
	case "newly_diagnosed":
		return domain.FIRST_LINE
	case "progressed_on_targeted":
		return domain.POST_TARGETED
	case "progressed_on_chemo", "progressed_on_immunotherapy":
		return domain.LATER_LINE
	}
	m.miss("line_of_therapy")
	return domain.NormalizeLineOfTherapy("")
}

func (m *mapper) priorTreatments(data *domain.ExtractedBiomarkerData) []domain.PriorTreatment {
	out := []domain.PriorTreatment{}
	seen := map[string]bool{}

	add := func(name string, date *string) {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || name == "none" || name == "unknown" || seen[name] {
			return
		}
		seen[name] = true

		category, ok := TreatmentCategoryOf(name)
		if !ok {
			m.miss("prior_treatments." + name)
			return
		}
		entry := domain.PriorTreatment{Category: category, Name: &name}
		if date != nil && *date != "" {
			d := *date
			entry.StartDate = &d
		}
		out = append(out, entry)
	}

	for _, t := range data.PriorTreatments {
		add(t.Treatment, t.Date)
	}
	if data.TreatmentStatus != nil && data.TreatmentStatus.PriorRegimen != nil {
		for _, drug := range splitRegimen(*data.TreatmentStatus.PriorRegimen) {
			add(drug, nil)
		}
	}
	return out
}

func splitRegimen(regimen string) []string {
	return strings.FieldsFunc(regimen, func(r rune) bool {
		return r == '+' || r == ',' || r == '/' || r == ';'
	})
}

// markerSet holds extracted markers under their canonical names. The lung
// prompt reports KRAS G12C as its own entry, kept apart from general KRAS.
type markerSet struct {
	byName  map[domain.MarkerName]domain.ExtractedMarker
	krasG12 *domain.ExtractedMarker
}

func canonicalMarkers(raw map[string]domain.ExtractedMarker) markerSet {
	set := markerSet{byName: map[domain.MarkerName]domain.ExtractedMarker{}}
	for key, marker := range raw {
		k := strings.ToUpper(strings.NewReplacer("-", "", "_", "", " ", "").Replace(key))
		if k == "KRASG12C" {
			mk := marker
			set.krasG12 = &mk
			continue
		}
		k = strings.TrimSuffix(k, "PERCENTAGE")
		name, ok := domain.ParseMarkerName(k)
		if !ok {
			continue
		}
		set.byName[name] = marker
	}
	return set
}

func (s markerSet) get(name domain.MarkerName) (domain.ExtractedMarker, bool) {
	marker, ok := s.byName[name]
	return marker, ok
}

// normalizeStatus maps free-text marker status onto present/absent/unknown
func normalizeStatus(s string) domain.BiomarkerStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "present", "positive", "pos", "detected", "mutated", "+":
		return domain.PRESENT
	case "absent", "negative", "neg", "not detected", "wild type", "wildtype", "wild-type", "-":
		return domain.ABSENT
	}
	return domain.UNKNOWN
}

func (m *mapper) status(set markerSet, name domain.MarkerName) domain.BiomarkerStatus {
	marker, ok := set.get(name)
	if !ok {
		m.miss("biomarkers." + string(name))
		return domain.UNKNOWN
	}
	st := normalizeStatus(marker.Status)
	if st == domain.UNKNOWN {
		m.miss("biomarkers." + string(name))
	}
	return st
}

func (m *mapper) breastPanel(set markerSet) domain.BreastPanel {
	panel := domain.BreastPanel{
		ER:   m.status(set, domain.MARKER_ER),
		PR:   m.status(set, domain.MARKER_PR),
		HER2: m.her2(set),
	}

	if ki67, ok := set.get(domain.MARKER_KI67); ok {
		pct := ki67.Value
		if pct == nil {
			pct = ki67.Percentage
		}
		panel.Ki67 = percent(pct)
	}
	return panel
}

func (m *mapper) her2(set markerSet) domain.HER2Status {
	marker, ok := set.get(domain.MARKER_HER2)
	if !ok {
		m.miss("biomarkers.HER2")
		return domain.HER2_UNKNOWN
	}

	switch strings.ToLower(strings.TrimSpace(marker.Status)) {
	case "positive", "present", "amplified":
		return domain.HER2_POSITIVE
	case "low", "her2-low", "her2 low":
		return domain.HER2_LOW
	case "negative", "absent", "zero", "ultralow":
		return domain.HER2_NEGATIVE
	}

	if marker.IHCScore != nil {
		switch strings.TrimSpace(*marker.IHCScore) {
		case "0", "0+":
			return domain.HER2_NEGATIVE
		case "1+", "2+":
			return domain.HER2_LOW
		case "3+":
			return domain.HER2_POSITIVE
		}
	}
	m.miss("biomarkers.HER2")
	return domain.HER2_UNKNOWN
}

func (m *mapper) lungPanel(set markerSet) domain.LungPanel {
	panel := domain.LungPanel{
		ALK:  m.status(set, domain.MARKER_ALK),
		ROS1: m.status(set, domain.MARKER_ROS1),
		BRAF: m.status(set, domain.MARKER_BRAF),
	}

	panel.EGFR.Status = m.status(set, domain.MARKER_EGFR)
	if egfr, ok := set.get(domain.MARKER_EGFR); ok && egfr.Mutation != nil && panel.EGFR.Status == domain.PRESENT {
		panel.EGFR.Mutation = domain.NormalizeEGFRMutation(*egfr.Mutation)
	}

	panel.KRAS = m.kras(set)

	panel.MET.Status = m.status(set, domain.MARKER_MET)
	if met, ok := set.get(domain.MARKER_MET); ok && met.Alteration != nil && panel.MET.Status == domain.PRESENT {
		panel.MET.Alteration = normalizeMETAlteration(*met.Alteration)
	}

	panel.PDL1 = m.pdl1(set)
	return panel
}

// kras reads a dedicated G12C entry first; an absent G12C result says nothing
// about other KRAS codons, so it only resolves KRAS when a general entry agrees.
func (m *mapper) kras(set markerSet) domain.KRASMutation {
	if set.krasG12 != nil && normalizeStatus(set.krasG12.Status) == domain.PRESENT {
		g12c := domain.KRAS_G12C
		return domain.KRASMutation{Status: domain.PRESENT, Mutation: &g12c}
	}

	marker, ok := set.get(domain.MARKER_KRAS)
	if !ok {
		m.miss("biomarkers.KRAS")
		return domain.KRASMutation{Status: domain.UNKNOWN}
	}

	out := domain.KRASMutation{Status: normalizeStatus(marker.Status)}
	if out.Status == domain.UNKNOWN {
		m.miss("biomarkers.KRAS")
	}
	if out.Status == domain.PRESENT && marker.Mutation != nil {
		out.Mutation = normalizeKRASMutation(*marker.Mutation)
	}
	return out
}

func normalizeKRASMutation(s string) *string {
	v := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	var out string
	switch {
	case v == "" || v == "UNKNOWN":
		return nil
	case strings.Contains(v, "G12C"):
		out = domain.KRAS_G12C
	case strings.Contains(v, "G12D"):
		out = domain.KRAS_G12D
	case strings.Contains(v, "G12V"):
		out = domain.KRAS_G12V
	default:
		out = domain.KRAS_OTHER
	}
	return &out
}

func normalizeMETAlteration(s string) *string {
	v := strings.ToLower(s)
	var out string
	switch {
	case strings.Contains(v, "exon 14") || strings.Contains(v, "ex14") || strings.Contains(v, "skipping"):
		out = domain.MET_EXON14_SKIPPING
	case strings.Contains(v, "amplif"):
		out = domain.MET_AMPLIFICATION
	default:
		return nil
	}
	return &out
}

func (m *mapper) pdl1(set markerSet) domain.PDL1Expression {
	marker, ok := set.get(domain.MARKER_PDL1)
	if !ok {
		m.miss("biomarkers.PDL1")
		return domain.PDL1Expression{Status: domain.UNKNOWN}
	}

	out := domain.PDL1Expression{
		Status:     normalizeStatus(marker.Status),
		Percentage: percent(marker.Percentage),
	}
	if out.Status == domain.UNKNOWN && out.Percentage != nil {
		if *out.Percentage >= 1 {
			out.Status = domain.PRESENT
		} else {
			out.Status = domain.ABSENT
		}
	}
	if out.Status == domain.UNKNOWN {
		m.miss("biomarkers.PDL1")
	}
	return out
}

func percent(v *float64) *int {
	if v == nil || *v < 0 || *v > 100 {
		return nil
	}
	p := int(math.Round(*v))
	return &p
}
