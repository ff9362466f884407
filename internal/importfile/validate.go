package importfile

import (
	"context"

	"school-identity-onboarding/internal/logger"
	"school-identity-onboarding/internal/model"
	"school-identity-onboarding/internal/schema"
	"school-identity-onboarding/pkg/errors"

	"github.com/rs/zerolog"
)

// Report is the outcome of validating one import file for one role.
// Err is nil only when the file can be submitted.
type Report struct {
	Role      model.Role              `json:"role"`
	FileName  string                  `json:"file_name"`
	Rows      int                     `json:"rows"`
	Header    model.HeaderResult      `json:"header"`
	RowErrors []model.ValidationError `json:"row_errors"`
	Parsed    *model.ParsedFile       `json:"-"`
	Err       error                   `json:"-"`
}

func (r Report) OK() bool {
	return r.Err == nil
}

type Validator struct {
	rows *RowValidator
	log  zerolog.Logger
}

func NewValidator() *Validator {
	return &Validator{
		rows: NewRowValidator(),
		log:  logger.Get(),
	}
}

// Validate runs parse, header and row checks in that order. Each stage
// only runs when the previous one passed.
func (v *Validator) Validate(ctx context.Context, file model.ImportFile, role model.Role) Report {
	report := Report{Role: role, FileName: file.Name, RowErrors: []model.ValidationError{}}

	s, err := schema.Lookup(role)
	if err != nil {
		report.Err = err
		return report
	}

	parsed, err := StrategyFor(file.Name).Parse(ctx, file.Data)
	if err != nil {
		v.log.Debug().Err(err).Str("file", file.Name).Msg("Import file unreadable")
		report.Header = ValidateHeaders(nil, s)
		report.Err = errors.ErrFileRead
		return report
	}
	report.Parsed = parsed
	report.Rows = len(parsed.Rows)

	report.Header = ValidateHeaders(parsed.Headers, s)
	if !report.Header.OK {
		report.Err = errors.HeaderMismatchError{
			Missing: report.Header.Missing,
			Unknown: report.Header.Unknown,
		}
		return report
	}

	report.RowErrors = v.rows.ValidateRows(parsed, s)
	if len(report.RowErrors) > 0 {
		report.Err = errors.RowValidationErrors(report.RowErrors)
	}

	v.log.Debug().
		Str("file", file.Name).
		Str("role", role.String()).
		Int("rows", report.Rows).
		Int("row_errors", len(report.RowErrors)).
		Msg("Import file validated")

	return report
}
