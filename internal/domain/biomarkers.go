package domain

import (
	"encoding/json"
	"strings"
)

// MarkerName identifies a single biomarker across panels
type MarkerName string

const (
	MARKER_ER   MarkerName = "ER"
	MARKER_PR   MarkerName = "PR"
	MARKER_HER2 MarkerName = "HER2"
	MARKER_KI67 MarkerName = "Ki67"
	MARKER_EGFR MarkerName = "EGFR"
	MARKER_ALK  MarkerName = "ALK"
	MARKER_ROS1 MarkerName = "ROS1"
	MARKER_KRAS MarkerName = "KRAS"
	MARKER_MET  MarkerName = "MET"
	MARKER_BRAF MarkerName = "BRAF"
	MARKER_PDL1 MarkerName = "PDL1"
)

// Accepted KRAS subtypes and MET alteration classes
const (
	KRAS_G12C  = "G12C"
	KRAS_G12D  = "G12D"
	KRAS_G12V  = "G12V"
	KRAS_OTHER = "Other"

	MET_EXON14_SKIPPING = "Exon 14 skipping"
	MET_AMPLIFICATION   = "Amplification"
)

// Canonical EGFR mutation labels produced by NormalizeEGFRMutation
const (
	EGFR_EXON19_DELETION  = "Exon 19 deletion"
	EGFR_L858R            = "L858R"
	EGFR_EXON20_INSERTION = "Exon 20 insertion"
	EGFR_T790M            = "T790M"
	EGFR_OTHER            = "Other"
)

// BreastPanel holds the receptor status panel for breast cancer
type BreastPanel struct {
	ER   BiomarkerStatus `json:"ER" validate:"required,oneof=present absent unknown"`
	PR   BiomarkerStatus `json:"PR" validate:"required,oneof=present absent unknown"`
	HER2 HER2Status      `json:"HER2" validate:"required,oneof=positive low negative unknown"`
	Ki67 *int            `json:"Ki67" validate:"omitempty,min=0,max=100"`
}

// EGFRMutation records EGFR status with a normalized mutation label
type EGFRMutation struct {
	Status   BiomarkerStatus `json:"status" validate:"required,oneof=present absent unknown"`
	Mutation *string         `json:"mutation"`
}

// UnmarshalJSON normalizes free-text mutation descriptions on the way in
func (m *EGFRMutation) UnmarshalJSON(data []byte) error {
	type alias EGFRMutation
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = EGFRMutation(raw)
	if m.Mutation != nil {
		m.Mutation = NormalizeEGFRMutation(*m.Mutation)
	}
	return nil
}

// KRASMutation records KRAS status and codon subtype
type KRASMutation struct {
	Status   BiomarkerStatus `json:"status" validate:"required,oneof=present absent unknown"`
	Mutation *string         `json:"mutation" validate:"omitempty,oneof=G12C G12D G12V Other"`
}

// METAlteration records MET status and alteration class
type METAlteration struct {
	Status     BiomarkerStatus `json:"status" validate:"required,oneof=present absent unknown"`
	Alteration *string         `json:"alteration" validate:"omitempty,oneof='Exon 14 skipping' Amplification"`
}

// PDL1Expression records PD-L1 status with the tumor proportion score
type PDL1Expression struct {
	Status     BiomarkerStatus `json:"status" validate:"required,oneof=present absent unknown"`
	Percentage *int            `json:"percentage" validate:"omitempty,min=0,max=100"`
}

// LungPanel holds the NSCLC driver and immunotherapy biomarker panel
type LungPanel struct {
	EGFR EGFRMutation    `json:"EGFR"`
	ALK  BiomarkerStatus `json:"ALK" validate:"required,oneof=present absent unknown"`
	ROS1 BiomarkerStatus `json:"ROS1" validate:"required,oneof=present absent unknown"`
	KRAS KRASMutation    `json:"KRAS"`
	MET  METAlteration   `json:"MET"`
	BRAF BiomarkerStatus `json:"BRAF" validate:"required,oneof=present absent unknown"`
	PDL1 PDL1Expression  `json:"PDL1"`
}

// HasKRASG12C reports a KRAS mutation recorded specifically as G12C
func (l *LungPanel) HasKRASG12C() bool {
	return l.KRAS.Status == PRESENT && l.KRAS.Mutation != nil && *l.KRAS.Mutation == KRAS_G12C
}

// BiomarkerPanel is a tagged union: exactly one of Breast or Lung is set, selected
// by the owning profile's cancer type.
type BiomarkerPanel struct {
	Breast *BreastPanel
	Lung   *LungPanel
}

// NewBreastPanel wraps a breast panel
func NewBreastPanel(p BreastPanel) BiomarkerPanel {
	return BiomarkerPanel{Breast: &p}
}

// NewLungPanel wraps a lung panel
func NewLungPanel(p LungPanel) BiomarkerPanel {
	return BiomarkerPanel{Lung: &p}
}

// CancerType returns the cancer type of the populated variant, or "" when empty
func (b BiomarkerPanel) CancerType() CancerType {
	switch {
	case b.Breast != nil && b.Lung == nil:
		return BREAST
	case b.Lung != nil && b.Breast == nil:
		return LUNG
	default:
		return ""
	}
}

// MarshalJSON emits only the populated variant
func (b BiomarkerPanel) MarshalJSON() ([]byte, error) {
	switch {
	case b.Breast != nil:
		return json.Marshal(b.Breast)
	case b.Lung != nil:
		return json.Marshal(b.Lung)
	default:
		return []byte("null"), nil
	}
}

// Marker is the uniform view of one biomarker regardless of panel layout.
// For HER2, Status reports overexpression (positive) and Mutation carries the
// four-level value.
type Marker struct {
	Status     BiomarkerStatus
	Mutation   string
	Percentage *int
}

// Marker returns the named biomarker. ok is false when the panel does not carry it.
func (b BiomarkerPanel) Marker(name MarkerName) (Marker, bool) {
	if b.Breast != nil {
		p := b.Breast
		switch name {
		case MARKER_ER:
			return Marker{Status: p.ER}, true
		case MARKER_PR:
			return Marker{Status: p.PR}, true
		case MARKER_HER2:
			return Marker{Status: her2Presence(p.HER2), Mutation: string(p.HER2)}, true
		case MARKER_KI67:
			if p.Ki67 == nil {
				return Marker{Status: UNKNOWN}, true
			}
			return Marker{Status: PRESENT, Percentage: p.Ki67}, true
		}
		return Marker{}, false
	}
	if b.Lung != nil {
		p := b.Lung
		switch name {
		case MARKER_EGFR:
			return Marker{Status: p.EGFR.Status, Mutation: deref(p.EGFR.Mutation)}, true
		case MARKER_ALK:
			return Marker{Status: p.ALK}, true
		case MARKER_ROS1:
			return Marker{Status: p.ROS1}, true
		case MARKER_KRAS:
			return Marker{Status: p.KRAS.Status, Mutation: deref(p.KRAS.Mutation)}, true
		case MARKER_MET:
			return Marker{Status: p.MET.Status, Mutation: deref(p.MET.Alteration)}, true
		case MARKER_BRAF:
			return Marker{Status: p.BRAF}, true
		case MARKER_PDL1:
			return Marker{Status: p.PDL1.Status, Percentage: p.PDL1.Percentage}, true
		}
	}
	return Marker{}, false
}

func her2Presence(h HER2Status) BiomarkerStatus {
	switch h {
	case HER2_POSITIVE:
		return PRESENT
	case HER2_LOW, HER2_NEGATIVE:
		return ABSENT
	default:
		return UNKNOWN
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ParseMarkerName maps loose spellings ("pd-l1", "her-2", "Ki-67") to a MarkerName
func ParseMarkerName(s string) (MarkerName, bool) {
	key := strings.ToUpper(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s))
	switch key {
	case "ER":
		return MARKER_ER, true
	case "PR":
		return MARKER_PR, true
	case "HER2":
		return MARKER_HER2, true
	case "KI67":
		return MARKER_KI67, true
	case "EGFR":
		return MARKER_EGFR, true
	case "ALK":
		return MARKER_ALK, true
	case "ROS1":
		return MARKER_ROS1, true
	case "KRAS", "KRASG12C":
		return MARKER_KRAS, true
	case "MET":
		return MARKER_MET, true
	case "BRAF":
		return MARKER_BRAF, true
	case "PDL1":
		return MARKER_PDL1, true
	}
	return "", false
}

// NormalizeEGFRMutation maps free-text EGFR mutation descriptions onto the canonical
// labels. Empty and "unknown" yield nil; unrecognized text yields EGFR_OTHER.
func NormalizeEGFRMutation(s string) *string {
	v := strings.TrimSpace(s)
	lower := strings.ToLower(v)
	if lower == "" || lower == "unknown" {
		return nil
	}

	var out string
	switch {
	// point mutations first: T790M sits in exon 20 but is not an insertion
	case strings.Contains(lower, "t790m"):
		out = EGFR_T790M
	case strings.Contains(lower, "l858r"):
		out = EGFR_L858R
	case strings.Contains(lower, "exon 19") || strings.Contains(lower, "ex19") || strings.Contains(lower, "e19"):
		out = EGFR_EXON19_DELETION
	case strings.Contains(lower, "exon 20") || strings.Contains(lower, "ex20") || strings.Contains(lower, "e20"):
		out = EGFR_EXON20_INSERTION
	default:
		out = EGFR_OTHER
	}
	return &out
}
