package model

import "school-identity-onboarding/pkg/errors"

// ParsedFile is a delimited import file split into a header and data rows.
type ParsedFile struct {
	Delimiter rune       `json:"delimiter"`
	Headers   []string   `json:"headers"`
	Rows      [][]string `json:"rows"`
}

// LineOf returns the 1-based file line of a data row index (header is line 1).
func LineOf(rowIndex int) int {
	return rowIndex + 2
}

type HeaderResult struct {
	OK      bool     `json:"ok"`
	Missing []string `json:"missing"`
	Unknown []string `json:"unknown"`
}

type ValidationError = errors.ValidationError

// ImportFile is an uploaded file as received from the operator.
type ImportFile struct {
	Name string
	Data []byte
}
