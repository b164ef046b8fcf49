// Package domain contains the core entities for matching oncology patients against
// clinical trial eligibility: patient profiles with cancer-type specific biomarker
// panels, trial records with structured eligibility criteria, and match results.
//
// Biomarker vocabulary follows common NSCLC and breast cancer practice
// (ASCO/CAP HER2 and ER/PR testing guidelines, NCCN NSCLC driver panels).
package domain

import (
	"errors"
)

// CancerType discriminates which biomarker panel applies to a patient and which
// exclusion sub-rules run against a trial.
type CancerType string

const (
	BREAST CancerType = "breast"
	LUNG   CancerType = "lung"
)

// Stage is the AJCC anatomic stage group
type Stage string

const (
	STAGE_I   Stage = "I"
	STAGE_II  Stage = "II"
	STAGE_III Stage = "III"
	STAGE_IV  Stage = "IV"
)

// ECOG represents the Eastern Cooperative Oncology Group performance status.
// ECOG_UNKNOWN is a first-class value and is never grounds for exclusion.
type ECOG string

const (
	ECOG_0       ECOG = "0"
	ECOG_1       ECOG = "1"
	ECOG_2       ECOG = "2"
	ECOG_3       ECOG = "3"
	ECOG_4       ECOG = "4"
	ECOG_UNKNOWN ECOG = "unknown"
)

// Sex of the patient as recorded on the profile
type Sex string

const (
	MALE      Sex = "male"
	FEMALE    Sex = "female"
	OTHER_SEX Sex = "other"
)

// BiomarkerStatus is the tri-state presence of a biomarker
type BiomarkerStatus string

const (
	PRESENT BiomarkerStatus = "present"
	ABSENT  BiomarkerStatus = "absent"
	UNKNOWN BiomarkerStatus = "unknown"
)

// HER2Status is reported on the four-level scale used since the HER2-low
// indication (IHC 0 = negative, IHC 1+ or 2+/ISH- = low, IHC 3+ or ISH+ = positive).
type HER2Status string

const (
	HER2_POSITIVE HER2Status = "positive"
	HER2_LOW      HER2Status = "low"
	HER2_NEGATIVE HER2Status = "negative"
	HER2_UNKNOWN  HER2Status = "unknown"
)

// LineOfTherapy is the normalized treatment line the patient is seeking a trial for
type LineOfTherapy string

const (
	FIRST_LINE    LineOfTherapy = "first"
	POST_TARGETED LineOfTherapy = "post_targeted"
	LATER_LINE    LineOfTherapy = "later_line"
)

// TreatmentCategory classifies a prior treatment
type TreatmentCategory string

const (
	SURGERY          TreatmentCategory = "surgery"
	RADIATION        TreatmentCategory = "radiation"
	CHEMOTHERAPY     TreatmentCategory = "chemotherapy"
	TARGETED_THERAPY TreatmentCategory = "targeted_therapy"
	IMMUNOTHERAPY    TreatmentCategory = "immunotherapy"
	HORMONE_THERAPY  TreatmentCategory = "hormone_therapy"
)

// TrialPhase is the clinical development phase of a trial
type TrialPhase string

const (
	PHASE_I      TrialPhase = "Phase I"
	PHASE_I_II   TrialPhase = "Phase I/II"
	PHASE_II     TrialPhase = "Phase II"
	PHASE_II_III TrialPhase = "Phase II/III"
	PHASE_III    TrialPhase = "Phase III"
)

// TrialStatus is the recruitment status of a trial
type TrialStatus string

const (
	RECRUITING            TrialStatus = "recruiting"
	ACTIVE_NOT_RECRUITING TrialStatus = "active_not_recruiting"
	COMPLETED             TrialStatus = "completed"
)

// EligibilityScore is the eligibility estimate precomputed by the data source.
// The engine uses it only as the primary sort key and never recomputes it.
type EligibilityScore string

const (
	POSSIBLY_ELIGIBLE   EligibilityScore = "possibly_eligible"
	LIKELY_NOT_ELIGIBLE EligibilityScore = "likely_not_eligible"
)

// ConfidenceLevel represents the confidence in a match result
type ConfidenceLevel string

const (
	HIGH   ConfidenceLevel = "high"
	MEDIUM ConfidenceLevel = "medium"
	LOW    ConfidenceLevel = "low"
)

// CriterionCategory groups eligibility criteria by the clinical dimension they test
type CriterionCategory string

const (
	CATEGORY_BIOMARKER               CriterionCategory = "biomarker"
	CATEGORY_STAGE                   CriterionCategory = "stage"
	CATEGORY_TREATMENT_HISTORY       CriterionCategory = "treatment_history"
	CATEGORY_PERFORMANCE             CriterionCategory = "performance"
	CATEGORY_ORGAN_FUNCTION          CriterionCategory = "organ_function"
	CATEGORY_METASTASES              CriterionCategory = "metastases"
	CATEGORY_DEMOGRAPHICS            CriterionCategory = "demographics"
	CATEGORY_DISEASE_CHARACTERISTICS CriterionCategory = "disease_characteristics"
	CATEGORY_HISTOLOGY               CriterionCategory = "histology"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnsupportedDocument = errors.New("unsupported document type")
	ErrDocumentTooLarge    = errors.New("document too large")
	ErrInsufficientText    = errors.New("insufficient text extracted from document")
)

// IsValid reports whether the cancer type is one the matcher has panels for
func (c CancerType) IsValid() bool {
	switch c {
	case BREAST, LUNG:
		return true
	default:
		return false
	}
}

func (c CancerType) String() string {
	return string(c)
}

// IsValid validates the stage group
func (s Stage) IsValid() bool {
	switch s {
	case STAGE_I, STAGE_II, STAGE_III, STAGE_IV:
		return true
	default:
		return false
	}
}

// IsValid validates the ECOG value, including ECOG_UNKNOWN
func (e ECOG) IsValid() bool {
	switch e {
	case ECOG_0, ECOG_1, ECOG_2, ECOG_3, ECOG_4, ECOG_UNKNOWN:
		return true
	default:
		return false
	}
}

// IsPoor reports ECOG 3 or 4 (capable of only limited self-care or worse)
func (e ECOG) IsPoor() bool {
	return e == ECOG_3 || e == ECOG_4
}

// IsValid validates the biomarker status
func (b BiomarkerStatus) IsValid() bool {
	switch b {
	case PRESENT, ABSENT, UNKNOWN:
		return true
	default:
		return false
	}
}

// IsValid validates the HER2 status
func (h HER2Status) IsValid() bool {
	switch h {
	case HER2_POSITIVE, HER2_LOW, HER2_NEGATIVE, HER2_UNKNOWN:
		return true
	default:
		return false
	}
}

// IsValid validates the confidence level
func (c ConfidenceLevel) IsValid() bool {
	switch c {
	case HIGH, MEDIUM, LOW:
		return true
	default:
		return false
	}
}

// IsValid validates the criterion category
func (c CriterionCategory) IsValid() bool {
	switch c {
	case CATEGORY_BIOMARKER, CATEGORY_STAGE, CATEGORY_TREATMENT_HISTORY, CATEGORY_PERFORMANCE,
		CATEGORY_ORGAN_FUNCTION, CATEGORY_METASTASES, CATEGORY_DEMOGRAPHICS,
		CATEGORY_DISEASE_CHARACTERISTICS, CATEGORY_HISTOLOGY:
		return true
	default:
		return false
	}
}

// IsValid validates the trial status
func (s TrialStatus) IsValid() bool {
	switch s {
	case RECRUITING, ACTIVE_NOT_RECRUITING, COMPLETED:
		return true
	default:
		return false
	}
}
