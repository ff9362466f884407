package model

import "time"

type HistoryKind string

const (
	HistorySubmit          HistoryKind = "SUBMIT"
	HistoryCommit          HistoryKind = "COMMIT"
	HistoryProvisionCreate HistoryKind = "PROVISION_CREATE"
	HistoryProvisionRun    HistoryKind = "PROVISION_RUN"
)

type HistoryStatus string

const (
	HistorySuccess HistoryStatus = "SUCCESS"
	HistoryFailed  HistoryStatus = "FAILED"
)

// HistoryEntry records one remote operation attempted by the orchestrator.
type HistoryEntry struct {
	ID              string        `json:"id" db:"id"`
	Kind            HistoryKind   `json:"kind" db:"kind"`
	EstablishmentID string        `json:"establishment_id" db:"establishment_id"`
	BatchID         string        `json:"batch_id,omitempty" db:"batch_id"`
	Role            Role          `json:"role,omitempty" db:"role"`
	FileName        string        `json:"file_name,omitempty" db:"file_name"`
	SourceFileURL   string        `json:"source_file_url,omitempty" db:"source_file_url"`
	Status          HistoryStatus `json:"status" db:"status"`
	ErrorMessage    *string       `json:"error_message,omitempty" db:"error_message"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
}
