package extraction

import (
	"strings"

	"github.com/trialscout/trial-matcher/internal/domain"
)

const promptPreamble = `You extract clinical information from pathology reports and oncology notes for clinical trial screening.
Read the whole document and return ONLY a JSON object. Do not add markdown, commentary or code fences.

Document:
"""
%DOCUMENT%
"""
`

const breastPrompt = `
The patient has BREAST cancer. Return JSON with exactly this structure:
{
  "cancer_type": "breast",
  "patient_demographics": {"age": number or null, "sex": "female" | "male" | "unknown", "date_of_birth": "MM/DD/YYYY" or null},
  "clinical_status": {
    "stage": "I" | "II" | "III" | "IV" | "unknown",
    "ecog": "0" | "1" | "2" | "3" | "4" | "unknown",
    "ecog_description": string or null,
    "histology": "ductal" | "lobular" | "mixed" | "unknown",
    "grade": "1" | "2" | "3" | "unknown"
  },
  "treatment_status": {
    "current_status": "newly_diagnosed" | "progressed_on_targeted" | "progressed_on_chemo" | "progressed_on_immunotherapy" | "unknown",
    "line_of_therapy": "first_line" | "second_line" | "third_line_plus" | "unknown",
    "prior_regimen": string or null,
    "duration_months": number or null,
    "response": "complete response" | "partial response" | "stable disease" | "progression" | null
  },
  "biomarkers": {
    "ER": {"status": "present" | "absent" | "unknown", "percentage": number or null, "confidence": "high" | "medium" | "low"},
    "PR": {"status": "present" | "absent" | "unknown", "percentage": number or null, "confidence": "high" | "medium" | "low"},
    "HER2": {"status": "positive" | "low" | "negative" | "unknown", "ihc_score": "0" | "1+" | "2+" | "3+" | null, "confidence": "high" | "medium" | "low"},
    "Ki67_percentage": {"value": number or null, "confidence": "high" | "medium" | "low"}
  },
  "prior_treatments": [
    {"treatment": string, "date": "YYYY-MM" or null, "duration": string or null, "response": string or null, "details": string or null}
  ]
}

Rules:
1. Age: look for "Age:", "years old", "y/o" or a date of birth.
2. Sex: look for "Sex:", titles (Ms., Mrs., Mr.) and pronouns.
3. ECOG: "fully active" is 0, "ambulatory" or "light work" is 1, "self-care only" or "unable to work" is 2.
4. Treatment status: "newly diagnosed" with no prior therapy is newly_diagnosed. Progression on palbociclib, ribociclib, abemaciclib or trastuzumab is progressed_on_targeted. Progression on paclitaxel, docetaxel or doxorubicin is progressed_on_chemo.
5. List every surgery, chemotherapy, radiation, hormone therapy and targeted therapy mentioned anywhere in the document.
6. When a field is not stated use "unknown", null or [] rather than omitting it.
`

const lungPrompt = `
The patient has LUNG cancer (NSCLC unless stated otherwise). Return JSON with exactly this structure:
{
  "cancer_type": "lung",
  "patient_demographics": {"age": number or null, "sex": "female" | "male" | "unknown", "date_of_birth": "MM/DD/YYYY" or null},
  "clinical_status": {
    "stage": "I" | "II" | "III" | "IV" | "IVA" | "IVB" | "unknown",
    "ecog": "0" | "1" | "2" | "3" | "4" | "unknown",
    "ecog_description": string or null,
    "histology": "adenocarcinoma" | "squamous cell" | "small cell" | "unknown",
    "metastases_sites": [string]
  },
  "treatment_status": {
    "current_status": "newly_diagnosed" | "progressed_on_targeted" | "progressed_on_chemo" | "progressed_on_immunotherapy" | "unknown",
    "line_of_therapy": "first_line" | "second_line" | "third_line_plus" | "unknown",
    "prior_regimen": string or null,
    "progression_detected": true | false
  },
  "biomarkers": {
    "EGFR": {"status": "present" | "absent" | "unknown", "mutation": string or null, "confidence": "high" | "medium" | "low"},
    "ALK": {"status": "present" | "absent" | "unknown", "confidence": "high" | "medium" | "low"},
    "ROS1": {"status": "present" | "absent" | "unknown", "confidence": "high" | "medium" | "low"},
    "BRAF": {"status": "present" | "absent" | "unknown", "mutation": string or null, "confidence": "high" | "medium" | "low"},
    "KRAS_G12C": {"status": "present" | "absent" | "unknown", "confidence": "high" | "medium" | "low"},
    "MET": {"status": "present" | "absent" | "unknown", "alteration": "exon 14 skipping" | "amplification" | null, "confidence": "high" | "medium" | "low"},
    "RET": {"status": "present" | "absent" | "unknown", "fusion": string or null, "confidence": "high" | "medium" | "low"},
    "NTRK": {"status": "present" | "absent" | "unknown", "fusion": string or null, "confidence": "high" | "medium" | "low"},
    "PD_L1": {"percentage": number or null, "expression": "high" | "low" | "unknown", "confidence": "high" | "medium" | "low"}
  },
  "prior_treatments": [
    {"treatment": string, "date": "YYYY-MM" or null, "duration": string or null, "response": string or null, "site": string or null, "details": string or null}
  ]
}

Rules:
1. Age: look for "Age:", "years old", "y/o" or a date of birth.
2. Sex: look for "Sex:", titles (Ms., Mr.) and pronouns.
3. ECOG: "fully active" is 0, "ambulatory" or "capable of light work" is 1, "self-care only" or "unable to work" is 2.
4. Progression: phrases such as "progression on", "progressed after", "CNS progression" or "radiographic progression" next to a drug mean the patient progressed on that drug. Set progression_detected to true and prior_regimen to the drug.
   - osimertinib, erlotinib, gefitinib, afatinib, alectinib, crizotinib and other kinase inhibitors: progressed_on_targeted
   - carboplatin, cisplatin, paclitaxel, docetaxel, pemetrexed: progressed_on_chemo
   - pembrolizumab, nivolumab, atezolizumab, durvalumab: progressed_on_immunotherapy
   Without progression, "newly diagnosed" or "no prior therapy" is newly_diagnosed; otherwise use unknown.
5. Prior treatments: one entry per drug or procedure, with start date as YYYY-MM, duration, response, site and dose details when stated.
6. When a field is not stated use "unknown", null or [] rather than omitting it.
`

const genericPrompt = `
Determine the cancer type from the document and return JSON with this structure:
{
  "cancer_type": "breast" | "lung" | "unknown",
  "patient_demographics": {"age": number or null, "sex": "male" | "female" | "unknown"},
  "clinical_status": {"stage": "I" | "II" | "III" | "IV" | "unknown", "ecog": "0" | "1" | "2" | "3" | "4" | "unknown"},
  "treatment_status": {"current_status": "newly_diagnosed" | "progressed_on_targeted" | "progressed_on_chemo" | "progressed_on_immunotherapy" | "unknown"},
  "biomarkers": {},
  "prior_treatments": [{"treatment": string, "date": "YYYY-MM" or null}]
}
Fill "biomarkers" with every tested marker using the marker name as key and {"status": "present" | "absent" | "unknown"} as value.
`

// BuildPrompt renders the extraction prompt for the given cancer type hint.
// Hints other than breast and lung select the auto-detecting template.
func BuildPrompt(text, hint string) string {
	var sb strings.Builder
	sb.WriteString(strings.Replace(promptPreamble, "%DOCUMENT%", text, 1))

	switch normalizeHint(hint) {
	case domain.BREAST:
		sb.WriteString(breastPrompt)
	case domain.LUNG:
		sb.WriteString(lungPrompt)
	default:
		sb.WriteString(genericPrompt)
	}
	return sb.String()
}

func normalizeHint(hint string) domain.CancerType {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "breast":
		return domain.BREAST
	case "lung", "nsclc":
		return domain.LUNG
	}
	return ""
}
