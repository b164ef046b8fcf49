package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CriterionMet is the tri-state outcome of an eligibility criterion for the
// patient the trial record was curated against. The zero value is unknown.
type CriterionMet int8

const (
	CRITERION_UNKNOWN CriterionMet = iota
	CRITERION_MET
	CRITERION_NOT_MET
)

// MarshalJSON encodes true, false or "unknown"
func (m CriterionMet) MarshalJSON() ([]byte, error) {
	switch m {
	case CRITERION_MET:
		return []byte("true"), nil
	case CRITERION_NOT_MET:
		return []byte("false"), nil
	default:
		return []byte(`"unknown"`), nil
	}
}

// UnmarshalJSON accepts booleans, "true"/"false"/"unknown" strings and null
func (m *CriterionMet) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case nil:
		*m = CRITERION_UNKNOWN
	case bool:
		if val {
			*m = CRITERION_MET
		} else {
			*m = CRITERION_NOT_MET
		}
	case string:
		switch strings.ToLower(val) {
		case "true":
			*m = CRITERION_MET
		case "false":
			*m = CRITERION_NOT_MET
		case "unknown", "":
			*m = CRITERION_UNKNOWN
		default:
			return fmt.Errorf("invalid criterion met value %q", val)
		}
	default:
		return fmt.Errorf("invalid criterion met value %s", string(data))
	}
	return nil
}

func (m CriterionMet) String() string {
	switch m {
	case CRITERION_MET:
		return "true"
	case CRITERION_NOT_MET:
		return "false"
	default:
		return "unknown"
	}
}

// EligibilityCriterion is one structured inclusion criterion of a trial
type EligibilityCriterion struct {
	Criterion string            `json:"criterion" validate:"required"`
	Met       CriterionMet      `json:"met"`
	Category  CriterionCategory `json:"category" validate:"required,oneof=biomarker stage treatment_history performance organ_function metastases demographics disease_characteristics histology"`
	Required  bool              `json:"required"`
}

// ExclusionRisks are free-text risk annotations surfaced as confirmation items
type ExclusionRisks struct {
	PriorDrugExposure string `json:"prior_drug_exposure"`
	WashoutWindow     string `json:"washout_window"`
	LabThresholds     string `json:"lab_thresholds"`
	BrainMets         string `json:"brain_mets"`
}

// PatientBurden describes what participation demands of the patient
type PatientBurden struct {
	VisitsPerMonth   int    `json:"visits_per_month" validate:"gte=0"`
	ImagingFrequency string `json:"imaging_frequency"`
	BiopsyRequired   bool   `json:"biopsy_required"`
	HospitalStays    bool   `json:"hospital_stays"`
}

// TranslatedInfo is the plain-language trial summary for patients
type TranslatedInfo struct {
	Design      string `json:"design"`
	Goal        string `json:"goal"`
	WhatHappens string `json:"what_happens"`
	Duration    string `json:"duration"`
}

// Trial is a read-only catalog record. The matching engine never mutates it.
type Trial struct {
	ID                  string                 `json:"id" validate:"required"`
	NCTNumber           string                 `json:"nct_number" validate:"required,nct"`
	Title               string                 `json:"title" validate:"required"`
	Phase               TrialPhase             `json:"phase" validate:"required,oneof='Phase I' 'Phase I/II' 'Phase II' 'Phase II/III' 'Phase III'"`
	Sponsor             string                 `json:"sponsor" validate:"required"`
	Status              TrialStatus            `json:"status" validate:"required,oneof=recruiting active_not_recruiting completed"`
	Location            string                 `json:"location" validate:"required"`
	Distance            float64                `json:"distance" validate:"gte=0"`
	CancerType          CancerType             `json:"cancer_type" validate:"required,oneof=breast lung"`
	LastUpdated         string                 `json:"last_updated"`
	EligibilityScore    EligibilityScore       `json:"eligibility_score" validate:"required,oneof=possibly_eligible likely_not_eligible"`
	MatchConfidence     ConfidenceLevel        `json:"match_confidence" validate:"required,oneof=high medium low"`
	EligibilityCriteria []EligibilityCriterion `json:"eligibility_criteria" validate:"dive"`
	Burden              PatientBurden          `json:"burden"`
	ExclusionRisks      ExclusionRisks         `json:"exclusion_risks"`
	TranslatedInfo      TranslatedInfo         `json:"translated_info"`
}

// Validate checks required fields, enums and the NCT number format
func (t *Trial) Validate() error {
	if errs := structErrors(t); len(errs) > 0 {
		return errs
	}
	return nil
}

// TrialFilter narrows a catalog listing
type TrialFilter struct {
	CancerType *CancerType
	Status     *TrialStatus
	Skip       int
	Limit      int
}

// MaxListLimit caps a single catalog page
const MaxListLimit = 100

// Normalize clamps Skip and Limit into their valid ranges
func (f TrialFilter) Normalize() TrialFilter {
	if f.Skip < 0 {
		f.Skip = 0
	}
	if f.Limit <= 0 || f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	return f
}

// Matches reports whether the trial passes the cancer type and status filters
func (f TrialFilter) Matches(t *Trial) bool {
	if f.CancerType != nil && t.CancerType != *f.CancerType {
		return false
	}
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	return true
}

// TrialPatch is a partial update. Nil fields are left unchanged.
type TrialPatch struct {
	Title               *string                 `json:"title,omitempty"`
	Phase               *TrialPhase             `json:"phase,omitempty"`
	Sponsor             *string                 `json:"sponsor,omitempty"`
	Status              *TrialStatus            `json:"status,omitempty"`
	Location            *string                 `json:"location,omitempty"`
	Distance            *float64                `json:"distance,omitempty"`
	LastUpdated         *string                 `json:"last_updated,omitempty"`
	EligibilityScore    *EligibilityScore       `json:"eligibility_score,omitempty"`
	MatchConfidence     *ConfidenceLevel        `json:"match_confidence,omitempty"`
	EligibilityCriteria *[]EligibilityCriterion `json:"eligibility_criteria,omitempty"`
	Burden              *PatientBurden          `json:"burden,omitempty"`
	ExclusionRisks      *ExclusionRisks         `json:"exclusion_risks,omitempty"`
	TranslatedInfo      *TranslatedInfo         `json:"translated_info,omitempty"`
}

// Apply returns a copy of t with the patch applied. Identity fields cannot be patched.
func (p *TrialPatch) Apply(t Trial) Trial {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Phase != nil {
		t.Phase = *p.Phase
	}
	if p.Sponsor != nil {
		t.Sponsor = *p.Sponsor
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Location != nil {
		t.Location = *p.Location
	}
	if p.Distance != nil {
		t.Distance = *p.Distance
	}
	if p.LastUpdated != nil {
		t.LastUpdated = *p.LastUpdated
	}
	if p.EligibilityScore != nil {
		t.EligibilityScore = *p.EligibilityScore
	}
	if p.MatchConfidence != nil {
		t.MatchConfidence = *p.MatchConfidence
	}
	if p.EligibilityCriteria != nil {
		t.EligibilityCriteria = append([]EligibilityCriterion(nil), (*p.EligibilityCriteria)...)
	}
	if p.Burden != nil {
		t.Burden = *p.Burden
	}
	if p.ExclusionRisks != nil {
		t.ExclusionRisks = *p.ExclusionRisks
	}
	if p.TranslatedInfo != nil {
		t.TranslatedInfo = *p.TranslatedInfo
	}
	return t
}
