package domain

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var nctPattern = regexp.MustCompile(`^NCT\d{8}$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared struct validator with the domain tags registered
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("nct", func(fl validator.FieldLevel) bool {
			return IsValidNCTNumber(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// IsValidNCTNumber reports whether s is a ClinicalTrials.gov identifier (NCT + 8 digits)
func IsValidNCTNumber(s string) bool {
	return nctPattern.MatchString(s)
}

// structErrors runs tag validation and converts failures to ValidationErrors
func structErrors(s interface{}) ValidationErrors {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{NewValidationError("", err.Error(), nil)}
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, NewValidationError(fieldPath(fe), describe(fe), fe.Value()))
	}
	return out
}

// fieldPath drops the root struct name from the namespace ("PatientProfile.biomarkers.ER" -> "biomarkers.ER")
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "nct":
		return "must be NCT followed by 8 digits"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// ValidateStruct runs tag validation on any struct using the domain validators
// and returns ValidationErrors on failure.
func ValidateStruct(s interface{}) error {
	if errs := structErrors(s); len(errs) > 0 {
		return errs
	}
	return nil
}
