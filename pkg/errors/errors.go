package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrFileRead           = errors.New("file is unreadable or empty")
	ErrEstablishmentUnset = errors.New("establishment is not set")
	ErrOperationInFlight  = errors.New("an operation is already in flight for this batch")
	ErrProvisioningExists = errors.New("a provisioning batch already exists for this identity batch")
	ErrUnknownRole        = errors.New("unknown role")
	ErrUnsupportedFormat  = errors.New("unsupported template format")
)

// Is and As are re-exported so callers only import one errors package.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func New(text string) error { return errors.New(text) }

// ValidationError is one line-numbered problem found in an import file.
// Line is 1-based and counts the header, so the first data row is line 2.
type ValidationError struct {
	Line    int    `json:"line"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

type HeaderMismatchError struct {
	Missing []string
	Unknown []string
}

func (e HeaderMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing columns: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown columns: "+strings.Join(e.Unknown, ", "))
	}
	if len(parts) == 0 {
		return "header mismatch"
	}
	return "header mismatch: " + strings.Join(parts, "; ")
}

type RowValidationErrors []ValidationError

func (e RowValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "no row errors"
	case 1:
		return e[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more)", e[0].Error(), len(e)-1)
	}
}

// SubmissionError means the remote import call did not produce a batch.
type SubmissionError struct {
	EstablishmentID string
	Err             error
}

func (e SubmissionError) Error() string {
	return fmt.Sprintf("import submission failed: %s", e.Err.Error())
}

func (e SubmissionError) Unwrap() error {
	return e.Err
}

type CommitError struct {
	BatchID string
	Err     error
}

func (e CommitError) Error() string {
	return fmt.Sprintf("commit of batch %s failed: %s", e.BatchID, e.Err.Error())
}

func (e CommitError) Unwrap() error {
	return e.Err
}

type PipelineStage string

const (
	StageCreate PipelineStage = "create"
	StageRun    PipelineStage = "run"
)

// ProvisioningPipelineError reports which step of create+run failed.
// ProvisioningBatchID is set when create succeeded and only run failed.
type ProvisioningPipelineError struct {
	Stage               PipelineStage
	ProvisioningBatchID string
	Err                 error
}

func (e ProvisioningPipelineError) Error() string {
	if e.Stage == StageRun {
		return fmt.Sprintf("provisioning run failed for batch %s: %s", e.ProvisioningBatchID, e.Err.Error())
	}
	return fmt.Sprintf("provisioning create failed: %s", e.Err.Error())
}

func (e ProvisioningPipelineError) Unwrap() error {
	return e.Err
}

// Retryable reports whether run alone can be retried without re-creating.
func (e ProvisioningPipelineError) Retryable() bool {
	return e.Stage == StageRun && e.ProvisioningBatchID != ""
}

type StreamTransportError struct {
	BatchID string
	Err     error
}

func (e StreamTransportError) Error() string {
	return fmt.Sprintf("progress stream for batch %s: %s", e.BatchID, e.Err.Error())
}

func (e StreamTransportError) Unwrap() error {
	return e.Err
}

// APIError is a non-2xx answer from the identity or provisioning service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote service returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("remote service returned HTTP %d: %s", e.StatusCode, e.Body)
}
