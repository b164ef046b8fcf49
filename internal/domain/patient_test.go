package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const breastPatientJSON = `{
  "age": 52,
  "sex": "female",
  "cancer_type": "breast",
  "stage": "IV",
  "ecog": "1",
  "biomarkers": {"ER": "present", "PR": "present", "HER2": "low", "Ki67": 20},
  "prior_treatments": [{"category": "targeted_therapy", "name": "Palbociclib + Letrozole", "start_date": null, "end_date": null}],
  "line_of_therapy": "post_targeted"
}`

const lungPatientJSON = `{
  "age": 64,
  "sex": "male",
  "cancer_type": "lung",
  "stage": "IV",
  "ecog": "unknown",
  "biomarkers": {
    "EGFR": {"status": "present", "mutation": "Exon 19 deletion"},
    "ALK": "absent",
    "ROS1": "absent",
    "KRAS": {"status": "absent", "mutation": null},
    "MET": {"status": "unknown", "alteration": null},
    "BRAF": "absent",
    "PDL1": {"status": "present", "percentage": 30}
  },
  "prior_treatments": [],
  "line_of_therapy": "first"
}`

func TestPatientProfileUnmarshalSelectsPanel(t *testing.T) {
	var breast PatientProfile
	require.NoError(t, json.Unmarshal([]byte(breastPatientJSON), &breast))
	require.NotNil(t, breast.Biomarkers.Breast)
	assert.Nil(t, breast.Biomarkers.Lung)
	assert.Equal(t, HER2_LOW, breast.Biomarkers.Breast.HER2)
	assert.Equal(t, 20, *breast.Biomarkers.Breast.Ki67)
	assert.NoError(t, breast.Validate())

	var lung PatientProfile
	require.NoError(t, json.Unmarshal([]byte(lungPatientJSON), &lung))
	require.NotNil(t, lung.Biomarkers.Lung)
	assert.Equal(t, PRESENT, lung.Biomarkers.Lung.EGFR.Status)
	assert.Equal(t, 30, *lung.Biomarkers.Lung.PDL1.Percentage)
	assert.NoError(t, lung.Validate())
}

func TestPatientProfileRoundTrip(t *testing.T) {
	for _, input := range []string{breastPatientJSON, lungPatientJSON} {
		var first PatientProfile
		require.NoError(t, json.Unmarshal([]byte(input), &first))

		encoded, err := json.Marshal(first)
		require.NoError(t, err)

		var second PatientProfile
		require.NoError(t, json.Unmarshal(encoded, &second))
		assert.Equal(t, first, second)
		assert.JSONEq(t, input, string(encoded))
	}
}

func TestPatientProfileRejectsPanelMismatch(t *testing.T) {
	mismatched := `{
	  "age": 60, "sex": "female", "cancer_type": "breast", "stage": "IV", "ecog": "0",
	  "biomarkers": {"EGFR": {"status": "present"}, "ALK": "absent"},
	  "line_of_therapy": "first"
	}`

	var p PatientProfile
	err := json.Unmarshal([]byte(mismatched), &p)
	require.Error(t, err)

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "biomarkers", vErr.Field)
}

func TestPatientProfileValidate(t *testing.T) {
	base := func() PatientProfile {
		return PatientProfile{
			Age:             55,
			Sex:             FEMALE,
			CancerType:      BREAST,
			Stage:           STAGE_IV,
			ECOG:            ECOG_0,
			Biomarkers:      NewBreastPanel(BreastPanel{ER: PRESENT, PR: ABSENT, HER2: HER2_NEGATIVE}),
			PriorTreatments: []PriorTreatment{},
			LineOfTherapy:   FIRST_LINE,
		}
	}
	ki67 := 140

	tests := []struct {
		name   string
		mutate func(p *PatientProfile)
		field  string
	}{
		{"valid", func(p *PatientProfile) {}, ""},
		{"too young", func(p *PatientProfile) { p.Age = 17 }, "age"},
		{"too old", func(p *PatientProfile) { p.Age = 121 }, "age"},
		{"bad ecog", func(p *PatientProfile) { p.ECOG = ECOG("5") }, "ecog"},
		{"bad stage", func(p *PatientProfile) { p.Stage = Stage("V") }, "stage"},
		{"lung panel on breast patient", func(p *PatientProfile) {
			p.Biomarkers = NewLungPanel(LungPanel{ALK: ABSENT, ROS1: ABSENT, BRAF: ABSENT,
				EGFR: EGFRMutation{Status: ABSENT}, KRAS: KRASMutation{Status: ABSENT},
				MET: METAlteration{Status: ABSENT}, PDL1: PDL1Expression{Status: UNKNOWN}})
		}, "biomarkers"},
		{"missing panel", func(p *PatientProfile) { p.Biomarkers = BiomarkerPanel{} }, "biomarkers"},
		{"ki67 out of range", func(p *PatientProfile) { p.Biomarkers.Breast.Ki67 = &ki67 }, "biomarkers.Breast.Ki67"},
		{"bad treatment category", func(p *PatientProfile) {
			p.PriorTreatments = []PriorTreatment{{Category: TreatmentCategory("acupuncture")}}
		}, "prior_treatments[0].category"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base()
			tt.mutate(&p)
			err := p.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var errs ValidationErrors
			require.True(t, errors.As(err, &errs))
			fields := make([]string, 0, len(errs))
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestNormalizeLineOfTherapy(t *testing.T) {
	tests := []struct {
		input    string
		expected LineOfTherapy
	}{
		{"first", FIRST_LINE},
		{"First-Line", FIRST_LINE},
		{"first line", FIRST_LINE},
		{"firstline", FIRST_LINE},
		{"1L", FIRST_LINE},
		{"first line therapy", FIRST_LINE},
		{"First-line treatment", FIRST_LINE},
		{"2L", POST_TARGETED},
		{"post_targeted", POST_TARGETED},
		{"Post-Targeted", POST_TARGETED},
		{"post_cdk46", POST_TARGETED},
		{"second line", POST_TARGETED},
		{"later_line", LATER_LINE},
		{"third-line", LATER_LINE},
		{"LATER", LATER_LINE},
		{"", LATER_LINE},
		{"maintenance", LATER_LINE},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeLineOfTherapy(tt.input))
		})
	}
}

func TestNormalizeEGFRMutation(t *testing.T) {
	tests := []struct {
		input    string
		expected *string
	}{
		{"", nil},
		{"unknown", nil},
		{"exon 19 del", strPtr(EGFR_EXON19_DELETION)},
		{"ex19del", strPtr(EGFR_EXON19_DELETION)},
		{"L858R point mutation", strPtr(EGFR_L858R)},
		{"Exon 20 insertion", strPtr(EGFR_EXON20_INSERTION)},
		{"t790m", strPtr(EGFR_T790M)},
		{"T790M (exon 20)", strPtr(EGFR_T790M)},
		{"L858R in exon 21", strPtr(EGFR_L858R)},
		{"exon 20 ins", strPtr(EGFR_EXON20_INSERTION)},
		{"G719X", strPtr(EGFR_OTHER)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeEGFRMutation(tt.input))
		})
	}
}

func TestLineOfTherapyNormalizedOnDecode(t *testing.T) {
	input := `{"age": 70, "sex": "male", "cancer_type": "lung", "stage": "III", "ecog": "2",
	  "biomarkers": {"EGFR": {"status": "present", "mutation": "ex19"}, "ALK": "absent", "ROS1": "absent",
	    "KRAS": {"status": "absent"}, "MET": {"status": "absent"}, "BRAF": "absent", "PDL1": {"status": "unknown"}},
	  "line_of_therapy": "Second-Line"}`

	var p PatientProfile
	require.NoError(t, json.Unmarshal([]byte(input), &p))
	assert.Equal(t, POST_TARGETED, p.LineOfTherapy)
	assert.Equal(t, EGFR_EXON19_DELETION, *p.Biomarkers.Lung.EGFR.Mutation)
	assert.NotNil(t, p.PriorTreatments)
}

func TestBiomarkerPanelMarkerAccessor(t *testing.T) {
	pct := 55
	g12c := KRAS_G12C
	lung := NewLungPanel(LungPanel{
		EGFR: EGFRMutation{Status: ABSENT},
		ALK:  PRESENT,
		ROS1: ABSENT,
		KRAS: KRASMutation{Status: PRESENT, Mutation: &g12c},
		MET:  METAlteration{Status: UNKNOWN},
		BRAF: ABSENT,
		PDL1: PDL1Expression{Status: PRESENT, Percentage: &pct},
	})

	m, ok := lung.Marker(MARKER_KRAS)
	require.True(t, ok)
	assert.Equal(t, PRESENT, m.Status)
	assert.Equal(t, KRAS_G12C, m.Mutation)

	m, ok = lung.Marker(MARKER_PDL1)
	require.True(t, ok)
	assert.Equal(t, 55, *m.Percentage)

	_, ok = lung.Marker(MARKER_HER2)
	assert.False(t, ok, "lung panel does not carry HER2")

	breast := NewBreastPanel(BreastPanel{ER: PRESENT, PR: ABSENT, HER2: HER2_LOW})
	m, ok = breast.Marker(MARKER_HER2)
	require.True(t, ok)
	assert.Equal(t, ABSENT, m.Status)
	assert.Equal(t, "low", m.Mutation)

	m, ok = breast.Marker(MARKER_KI67)
	require.True(t, ok)
	assert.Equal(t, UNKNOWN, m.Status)
}

func TestParseMarkerName(t *testing.T) {
	tests := map[string]MarkerName{
		"PD-L1":     MARKER_PDL1,
		"pd_l1":     MARKER_PDL1,
		"her-2":     MARKER_HER2,
		"Ki-67":     MARKER_KI67,
		"KRAS_G12C": MARKER_KRAS,
		"ros1":      MARKER_ROS1,
	}
	for in, want := range tests {
		got, ok := ParseMarkerName(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseMarkerName("ESR1")
	assert.False(t, ok)
}

func strPtr(s string) *string {
	return &s
}
