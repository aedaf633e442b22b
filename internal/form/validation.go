package form

// validation.go checks field values before a form or child row may be saved.
//
// A field fails when it is mandatory and empty, or when its non-empty value
// does not match the column's validation pattern. Yes/No fields are never
// empty: a missing value is a valid false. Validation only reads values.

import (
	"fmt"
	"strings"
)

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   string `json:"field"`   // Field label
	Value   string `json:"value"`   // The invalid value
	Message string `json:"message"` // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidationErrors aggregates every failing field of one validation pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "validation failed"
	case 1:
		return e[0].Error()
	}
	parts := make([]string, len(e))
	for i, ve := range e {
		parts[i] = ve.Error()
	}
	return fmt.Sprintf("%d fields are invalid: %s", len(e), strings.Join(parts, "; "))
}

// Fields returns the labels of the failing fields.
func (e ValidationErrors) Fields() []string {
	out := make([]string, len(e))
	for i, ve := range e {
		out[i] = ve.Field
	}
	return out
}

// ValidationResult is the outcome of validating a form.
type ValidationResult struct {
	Status  bool
	Message string
	Errors  ValidationErrors
}

// Err returns the aggregated errors, or nil when validation passed.
func (r ValidationResult) Err() error {
	if r.Status {
		return nil
	}
	return r.Errors
}

// CheckFormValidation validates every field of the form outside child-only
// sections. Child-container fields are skipped. The labels of failing
// fields are kept on the form.
func (f *Form) CheckFormValidation() ValidationResult {
	var errs ValidationErrors
	for _, s := range f.Sections {
		if s.ChildOnly {
			continue
		}
		errs = append(errs, validateFields(s.Fields)...)
	}
	return f.finishValidation(errs)
}

// CheckChildFormValidation validates a child form's fields, including its
// child-only sections.
func (f *Form) CheckChildFormValidation() ValidationResult {
	var errs ValidationErrors
	for _, s := range f.Sections {
		errs = append(errs, validateFields(s.Fields)...)
	}
	return f.finishValidation(errs)
}

func (f *Form) finishValidation(errs ValidationErrors) ValidationResult {
	f.errorFields = errs.Fields()
	if len(errs) == 0 {
		return ValidationResult{Status: true}
	}
	return ValidationResult{
		Status:  false,
		Message: fmt.Sprintf("Please correct the following fields: %s", strings.Join(f.errorFields, ", ")),
		Errors:  errs,
	}
}

func validateFields(fields []*Field) ValidationErrors {
	var errs ValidationErrors
	for _, fld := range fields {
		if fld.ChildForm != nil {
			continue
		}
		if err, ok := validateField(fld); !ok {
			errs = append(errs, err)
		}
	}
	return errs
}

func validateField(fld *Field) (ValidationError, bool) {
	c := fld.Column
	if c.DataType == TypeYesNo {
		return ValidationError{}, true
	}

	raw := fld.Value.Storage()
	if fld.Value.IsEmpty() {
		if c.Mandatory {
			return ValidationError{Field: fld.Label, Message: "required field is empty"}, false
		}
		return ValidationError{}, true
	}

	if re := c.Pattern(); re != nil && !re.MatchString(raw) {
		return ValidationError{
			Field:   fld.Label,
			Value:   raw,
			Message: fmt.Sprintf("value does not match format %q", re.String()),
		}, false
	}
	return ValidationError{}, true
}
