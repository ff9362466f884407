package importfile

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"school-identity-onboarding/internal/model"
	"school-identity-onboarding/internal/schema"
)

const minPhoneLength = 7

var (
	booleanValues = map[string]bool{"true": true, "false": true, "1": true, "0": true, "yes": true, "no": true}
	genderValues  = map[string]bool{"m": true, "f": true, "x": true, "male": true, "female": true, "other": true}
)

// RowValidator checks data rows against the field rules of a schema.
type RowValidator struct {
	dateRegex  *regexp.Regexp
	emailRegex *regexp.Regexp
	phoneRegex *regexp.Regexp
}

func NewRowValidator() *RowValidator {
	return &RowValidator{
		dateRegex:  regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
		emailRegex: regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`),
		phoneRegex: regexp.MustCompile(`^\+?[0-9 ().\-/]+$`),
	}
}

// ValidateRows returns every violation in the file. Rows are not
// short-circuited: one row can yield several errors.
func (v *RowValidator) ValidateRows(file *model.ParsedFile, s schema.Schema) []model.ValidationError {
	errs := []model.ValidationError{}
	if file == nil {
		return errs
	}

	columns := make(map[string]int, len(file.Headers))
	for i, h := range file.Headers {
		name := normalizeColumn(h)
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}

	fields := s.Fields()
	for i, row := range file.Rows {
		line := model.LineOf(i)
		for _, field := range fields {
			value := cell(row, columns, field.Name)
			if value == "" {
				if field.Required {
					errs = append(errs, model.ValidationError{
						Line:    line,
						Field:   field.Name,
						Message: "missing required field: " + field.Name,
					})
				}
				continue
			}
			if msg := v.checkFormat(field, value); msg != "" {
				errs = append(errs, model.ValidationError{
					Line:    line,
					Field:   field.Name,
					Message: msg,
				})
			}
		}
	}

	return errs
}

func (v *RowValidator) checkFormat(field schema.Field, value string) string {
	switch field.Kind {
	case schema.KindDate:
		if !v.dateRegex.MatchString(value) {
			return fmt.Sprintf("invalid date for %s: expected YYYY-MM-DD", field.Name)
		}
	case schema.KindBoolean:
		if !booleanValues[strings.ToLower(value)] {
			return fmt.Sprintf("invalid boolean for %s: expected true/false/1/0/yes/no", field.Name)
		}
	case schema.KindGender:
		if !genderValues[strings.ToLower(value)] {
			return fmt.Sprintf("invalid gender for %s: expected one of m/f/x/male/female/other", field.Name)
		}
	case schema.KindEmail:
		if !v.emailRegex.MatchString(value) {
			return "invalid email for " + field.Name
		}
	case schema.KindPhone:
		if utf8.RuneCountInString(value) < minPhoneLength || !v.phoneRegex.MatchString(value) {
			return "invalid phone for " + field.Name
		}
	}
	return ""
}

func cell(row []string, columns map[string]int, name string) string {
	idx, ok := columns[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
