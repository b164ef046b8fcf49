package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTrial() Trial {
	return Trial{
		ID:               "1",
		NCTNumber:        "NCT05234567",
		Title:            "Trastuzumab Deruxtecan in HER2-Low Metastatic Breast Cancer",
		Phase:            PHASE_III,
		Sponsor:          "AstraZeneca",
		Status:           RECRUITING,
		Location:         "Boston, MA",
		Distance:         8,
		CancerType:       BREAST,
		LastUpdated:      "2025-01-15",
		EligibilityScore: POSSIBLY_ELIGIBLE,
		MatchConfidence:  HIGH,
		EligibilityCriteria: []EligibilityCriterion{
			{Criterion: "HER2-low breast cancer", Met: CRITERION_MET, Category: CATEGORY_BIOMARKER, Required: true},
			{Criterion: "ECOG performance status 0-1", Met: CRITERION_UNKNOWN, Category: CATEGORY_PERFORMANCE, Required: true},
		},
	}
}

func TestCriterionMetJSON(t *testing.T) {
	tests := []struct {
		input    string
		expected CriterionMet
		encoded  string
	}{
		{`true`, CRITERION_MET, `true`},
		{`false`, CRITERION_NOT_MET, `false`},
		{`"unknown"`, CRITERION_UNKNOWN, `"unknown"`},
		{`null`, CRITERION_UNKNOWN, `"unknown"`},
		{`"TRUE"`, CRITERION_MET, `true`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var m CriterionMet
			require.NoError(t, json.Unmarshal([]byte(tt.input), &m))
			assert.Equal(t, tt.expected, m)

			out, err := json.Marshal(m)
			require.NoError(t, err)
			assert.Equal(t, tt.encoded, string(out))
		})
	}

	var m CriterionMet
	assert.Error(t, json.Unmarshal([]byte(`"maybe"`), &m))
	assert.Error(t, json.Unmarshal([]byte(`1`), &m))
}

func TestTrialValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(tr *Trial)
		field  string
	}{
		{"valid", func(tr *Trial) {}, ""},
		{"short NCT", func(tr *Trial) { tr.NCTNumber = "NCT1234" }, "nct_number"},
		{"lowercase NCT", func(tr *Trial) { tr.NCTNumber = "nct05234567" }, "nct_number"},
		{"missing title", func(tr *Trial) { tr.Title = "" }, "title"},
		{"negative distance", func(tr *Trial) { tr.Distance = -1 }, "distance"},
		{"bad phase", func(tr *Trial) { tr.Phase = TrialPhase("Phase IV") }, "phase"},
		{"bad category", func(tr *Trial) { tr.EligibilityCriteria[0].Category = "ecog" }, "eligibility_criteria[0].category"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := validTrial()
			tt.mutate(&tr)
			err := tr.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var errs ValidationErrors
			require.True(t, errors.As(err, &errs))
			found := false
			for _, e := range errs {
				if e.Field == tt.field {
					found = true
				}
			}
			assert.True(t, found, "expected failure on %s, got %v", tt.field, errs)
		})
	}
}

func TestTrialFilter(t *testing.T) {
	breast := BREAST
	recruiting := RECRUITING
	tr := validTrial()

	assert.True(t, TrialFilter{}.Matches(&tr))
	assert.True(t, TrialFilter{CancerType: &breast, Status: &recruiting}.Matches(&tr))

	lung := LUNG
	assert.False(t, TrialFilter{CancerType: &lung}.Matches(&tr))

	f := TrialFilter{Skip: -3, Limit: 500}.Normalize()
	assert.Equal(t, 0, f.Skip)
	assert.Equal(t, MaxListLimit, f.Limit)
}

func TestTrialPatchApply(t *testing.T) {
	tr := validTrial()
	status := COMPLETED
	distance := 22.5
	patch := &TrialPatch{Status: &status, Distance: &distance}

	updated := patch.Apply(tr)
	assert.Equal(t, COMPLETED, updated.Status)
	assert.Equal(t, 22.5, updated.Distance)
	assert.Equal(t, tr.Title, updated.Title)
	assert.Equal(t, RECRUITING, tr.Status, "original must not change")
}
