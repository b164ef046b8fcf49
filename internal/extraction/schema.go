package extraction

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// outputSchema describes the shape every extraction answer must have after
// defaults are applied. Free-text fields accept null because the prompts allow it.
const outputSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["cancer_type", "biomarkers"],
  "properties": {
    "cancer_type": {"type": "string"},
    "patient_demographics": {
      "type": ["object", "null"],
      "properties": {
        "age": {"type": ["number", "null"], "minimum": 0, "maximum": 130},
        "sex": {"type": ["string", "null"]},
        "date_of_birth": {"type": ["string", "null"]}
      }
    },
    "clinical_status": {
      "type": ["object", "null"],
      "properties": {
        "stage": {"type": ["string", "null"]},
        "ecog": {"type": ["string", "null"]},
        "ecog_description": {"type": ["string", "null"]},
        "histology": {"type": ["string", "null"]},
        "grade": {"type": ["string", "null"]},
        "metastases_sites": {"type": ["array", "null"], "items": {"type": "string"}}
      }
    },
    "treatment_status": {
      "type": ["object", "null"],
      "properties": {
        "current_status": {"type": ["string", "null"]},
        "line_of_therapy": {"type": ["string", "null"]},
        "prior_regimen": {"type": ["string", "null"]},
        "duration_months": {"type": ["number", "null"]},
        "response": {"type": ["string", "null"]},
        "progression_detected": {"type": ["boolean", "null"]}
      }
    },
    "biomarkers": {
      "type": "object",
      "additionalProperties": {
        "type": ["object", "null"],
        "properties": {
          "status": {"type": ["string", "null"]},
          "mutation": {"type": ["string", "null"]},
          "alteration": {"type": ["string", "null"]},
          "fusion": {"type": ["string", "null"]},
          "ihc_score": {"type": ["string", "null"]},
          "percentage": {"type": ["number", "null"], "minimum": 0, "maximum": 100},
          "value": {"type": ["number", "null"], "minimum": 0, "maximum": 100},
          "expression": {"type": ["string", "null"]},
          "confidence": {"type": ["string", "null"]}
        }
      }
    },
    "prior_treatments": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["treatment"],
        "properties": {
          "treatment": {"type": "string"},
          "date": {"type": ["string", "null"]},
          "duration": {"type": ["string", "null"]},
          "response": {"type": ["string", "null"]},
          "site": {"type": ["string", "null"]},
          "details": {"type": ["string", "null"]}
        }
      }
    }
  }
}`

// SchemaValidator checks LLM answers against the extraction output schema
type SchemaValidator struct {
	schema *gojsonschema.Schema
}

// NewSchemaValidator compiles the output schema
func NewSchemaValidator() (*SchemaValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(outputSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile extraction schema: %w", err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// Validate returns an error listing every schema violation in doc
func (v *SchemaValidator) Validate(doc []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("failed to validate extraction output: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("extraction output does not match schema: %s", strings.Join(msgs, "; "))
}
