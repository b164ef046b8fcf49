package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// PriorTreatment is one entry of the patient's treatment history
type PriorTreatment struct {
	Category  TreatmentCategory `json:"category" validate:"required,oneof=surgery radiation chemotherapy targeted_therapy immunotherapy hormone_therapy"`
	Name      *string           `json:"name"`
	StartDate *string           `json:"start_date"`
	EndDate   *string           `json:"end_date"`
}

// PatientProfile is the clinical profile matched against the trial catalog.
// It is constructed once per request and treated as immutable afterwards.
type PatientProfile struct {
	Age             int              `json:"age" validate:"required,min=18,max=120"`
	Sex             Sex              `json:"sex" validate:"required,oneof=male female other"`
	CancerType      CancerType       `json:"cancer_type" validate:"required,oneof=breast lung"`
	Stage           Stage            `json:"stage" validate:"required,oneof=I II III IV"`
	ECOG            ECOG             `json:"ecog" validate:"required,oneof=0 1 2 3 4 unknown"`
	Biomarkers      BiomarkerPanel   `json:"biomarkers"`
	PriorTreatments []PriorTreatment `json:"prior_treatments" validate:"dive"`
	LineOfTherapy   LineOfTherapy    `json:"line_of_therapy" validate:"required,oneof=first post_targeted later_line"`
}

// UnmarshalJSON decodes the biomarker panel variant selected by cancer_type and
// normalizes line_of_therapy. Panel fields that do not belong to the selected
// variant are rejected.
func (p *PatientProfile) UnmarshalJSON(data []byte) error {
	var raw struct {
		Age             int              `json:"age"`
		Sex             Sex              `json:"sex"`
		CancerType      CancerType       `json:"cancer_type"`
		Stage           Stage            `json:"stage"`
		ECOG            ECOG             `json:"ecog"`
		Biomarkers      json.RawMessage  `json:"biomarkers"`
		PriorTreatments []PriorTreatment `json:"prior_treatments"`
		LineOfTherapy   *string          `json:"line_of_therapy"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	panel, err := decodePanel(raw.CancerType, raw.Biomarkers)
	if err != nil {
		return err
	}

	line := ""
	if raw.LineOfTherapy != nil {
		line = *raw.LineOfTherapy
	}

	*p = PatientProfile{
		Age:             raw.Age,
		Sex:             raw.Sex,
		CancerType:      raw.CancerType,
		Stage:           raw.Stage,
		ECOG:            raw.ECOG,
		Biomarkers:      panel,
		PriorTreatments: raw.PriorTreatments,
		LineOfTherapy:   NormalizeLineOfTherapy(line),
	}
	if p.PriorTreatments == nil {
		p.PriorTreatments = []PriorTreatment{}
	}
	return nil
}

func decodePanel(cancerType CancerType, data json.RawMessage) (BiomarkerPanel, error) {
	if len(data) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return BiomarkerPanel{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	switch cancerType {
	case BREAST:
		var panel BreastPanel
		if err := dec.Decode(&panel); err != nil {
			return BiomarkerPanel{}, NewValidationError("biomarkers", fmt.Sprintf("invalid breast biomarker panel: %v", err), string(data))
		}
		return NewBreastPanel(panel), nil
	case LUNG:
		var panel LungPanel
		if err := dec.Decode(&panel); err != nil {
			return BiomarkerPanel{}, NewValidationError("biomarkers", fmt.Sprintf("invalid lung biomarker panel: %v", err), string(data))
		}
		return NewLungPanel(panel), nil
	default:
		// cancer_type validation reports the real problem
		return BiomarkerPanel{}, nil
	}
}

// NormalizeLineOfTherapy maps free-form line-of-therapy input onto the three
// normalized values. Matching ignores case, separators and a trailing "therapy"
// or "treatment"; anything unrecognized becomes LATER_LINE.
func NormalizeLineOfTherapy(s string) LineOfTherapy {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.NewReplacer("-", "", "_", "", " ", "").Replace(v)
	v = strings.TrimSuffix(strings.TrimSuffix(v, "therapy"), "treatment")

	switch v {
	case "first", "firstline", "1l", "1stline":
		return FIRST_LINE
	case "posttargeted", "postcdk46", "secondline", "2l", "2ndline":
		return POST_TARGETED
	default:
		return LATER_LINE
	}
}

// PriorDrugNames returns the lowercased drug names of all prior treatments that carry one
func (p *PatientProfile) PriorDrugNames() []string {
	names := make([]string, 0, len(p.PriorTreatments))
	for _, t := range p.PriorTreatments {
		if t.Name != nil && *t.Name != "" {
			names = append(names, strings.ToLower(*t.Name))
		}
	}
	return names
}

// Validate checks field ranges and enums and that the biomarker panel variant
// agrees with the cancer type.
func (p *PatientProfile) Validate() error {
	errs := structErrors(p)

	if p.CancerType.IsValid() {
		switch panelType := p.Biomarkers.CancerType(); {
		case panelType == "":
			errs = append(errs, NewValidationError("biomarkers", "biomarker panel is required", nil))
		case panelType != p.CancerType:
			errs = append(errs, NewValidationError("biomarkers",
				fmt.Sprintf("%s biomarker panel does not match cancer type %s", panelType, p.CancerType), string(panelType)))
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
