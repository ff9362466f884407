package model

import "time"

type IdentityBatchStatus string

const (
	IdentityBatchPending    IdentityBatchStatus = "PENDING"
	IdentityBatchValidating IdentityBatchStatus = "VALIDATING"
	IdentityBatchCommitted  IdentityBatchStatus = "COMMITTED"
	IdentityBatchFailed     IdentityBatchStatus = "FAILED"
)

type IdentityBatch struct {
	ID              string              `json:"id"`
	EstablishmentID string              `json:"establishment_id"`
	SourceFileURL   string              `json:"source_file_url,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	Status          IdentityBatchStatus `json:"status"`
}

type ProvisioningBatch struct {
	ID                    string    `json:"id"`
	SourceIdentityBatchID string    `json:"source_identity_batch_id"`
	CreatedAt             time.Time `json:"created_at"`
}

// ImportState is the orchestrator's view of an identity batch it submitted.
type ImportState string

const (
	ImportNew             ImportState = "NEW"
	ImportSubmitted       ImportState = "SUBMITTED"
	ImportCommitRequested ImportState = "COMMIT_REQUESTED"
	ImportCommitted       ImportState = "COMMITTED"
	ImportCommitFailed    ImportState = "COMMIT_FAILED"
)

type ItemStatus string

const (
	ItemPending    ItemStatus = "PENDING"
	ItemProcessing ItemStatus = "PROCESSING"
	ItemSuccess    ItemStatus = "SUCCESS"
	ItemError      ItemStatus = "ERROR"
	ItemSkipped    ItemStatus = "SKIPPED"
)

// IdentityItemStatuses is the fixed set polled for per-status totals.
func IdentityItemStatuses() []ItemStatus {
	return []ItemStatus{ItemPending, ItemProcessing, ItemSuccess, ItemError, ItemSkipped}
}

type ProvisioningItemStatus string

const (
	ProvisioningEnqueued          ProvisioningItemStatus = "ENQUEUED"
	ProvisioningKCCreated         ProvisioningItemStatus = "KC_CREATED"
	ProvisioningKCUpdated         ProvisioningItemStatus = "KC_UPDATED"
	ProvisioningInviteSent        ProvisioningItemStatus = "INVITE_SENT"
	ProvisioningPendingActivation ProvisioningItemStatus = "PENDING_ACTIVATION"
	ProvisioningActivated         ProvisioningItemStatus = "ACTIVATED"
	ProvisioningExpired           ProvisioningItemStatus = "EXPIRED"
	ProvisioningDisabled          ProvisioningItemStatus = "DISABLED"
	ProvisioningError             ProvisioningItemStatus = "ERROR"
)

// BatchItem is a row-level outcome from either batch kind.
type BatchItem struct {
	RowNumber      int    `json:"row_number"`
	Status         string `json:"status"`
	IdentityOrKcID string `json:"identity_or_kc_id,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// CountByStatus aggregates items per status.
func CountByStatus(items []BatchItem) map[string]int {
	counts := make(map[string]int)
	for _, item := range items {
		counts[item.Status]++
	}
	return counts
}
