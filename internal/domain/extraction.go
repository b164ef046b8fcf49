package domain

// ExtractedBiomarkerData is the loosely-typed clinical summary produced by LLM
// extraction from a pathology report or oncology note. Every field may be
// missing; mapping to a PatientProfile resolves gaps to unknown.
type ExtractedBiomarkerData struct {
	CancerType          string                     `json:"cancer_type"`
	PatientDemographics *ExtractedDemographics     `json:"patient_demographics,omitempty"`
	ClinicalStatus      *ExtractedClinicalStatus   `json:"clinical_status,omitempty"`
	TreatmentStatus     *ExtractedTreatmentStatus  `json:"treatment_status,omitempty"`
	Biomarkers          map[string]ExtractedMarker `json:"biomarkers"`
	PriorTreatments     []ExtractedTreatment       `json:"prior_treatments,omitempty"`
}

type ExtractedDemographics struct {
	Age         *float64 `json:"age"`
	Sex         string   `json:"sex"`
	DateOfBirth *string  `json:"date_of_birth,omitempty"`
}

type ExtractedClinicalStatus struct {
	Stage           string   `json:"stage"`
	ECOG            string   `json:"ecog"`
	ECOGDescription *string  `json:"ecog_description,omitempty"`
	Histology       string   `json:"histology,omitempty"`
	Grade           string   `json:"grade,omitempty"`
	MetastasesSites []string `json:"metastases_sites,omitempty"`
}

type ExtractedTreatmentStatus struct {
	CurrentStatus       string   `json:"current_status"`
	LineOfTherapy       string   `json:"line_of_therapy,omitempty"`
	PriorRegimen        *string  `json:"prior_regimen,omitempty"`
	DurationMonths      *float64 `json:"duration_months,omitempty"`
	Response            *string  `json:"response,omitempty"`
	ProgressionDetected *bool    `json:"progression_detected,omitempty"`
}

// ExtractedMarker is the union of every per-marker shape the extraction prompts ask for
type ExtractedMarker struct {
	Status     string   `json:"status,omitempty"`
	Mutation   *string  `json:"mutation,omitempty"`
	Alteration *string  `json:"alteration,omitempty"`
	Fusion     *string  `json:"fusion,omitempty"`
	IHCScore   *string  `json:"ihc_score,omitempty"`
	Percentage *float64 `json:"percentage,omitempty"`
	Value      *float64 `json:"value,omitempty"`
	Expression string   `json:"expression,omitempty"`
	Confidence string   `json:"confidence,omitempty"`
}

type ExtractedTreatment struct {
	Treatment string  `json:"treatment"`
	Date      *string `json:"date,omitempty"`
	Duration  *string `json:"duration,omitempty"`
	Response  *string `json:"response,omitempty"`
	Site      *string `json:"site,omitempty"`
	Details   *string `json:"details,omitempty"`
}
