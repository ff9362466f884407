package model

import "time"

type SnapshotSource string

const (
	SourcePoll   SnapshotSource = "poll"
	SourceStream SnapshotSource = "stream"
)

// ProgressSnapshot is a point-in-time aggregate reading of a batch.
// StatusCounts holds per-item-status totals when the source provides them.
type ProgressSnapshot struct {
	BatchID      string         `json:"batch_id"`
	Status       string         `json:"status"`
	TotalItems   int            `json:"total_items"`
	NewCount     int            `json:"new_count"`
	UpdatedCount int            `json:"updated_count"`
	SkippedCount int            `json:"skipped_count"`
	InvalidCount int            `json:"invalid_count"`
	StatusCounts map[string]int `json:"status_counts,omitempty"`
	Source       SnapshotSource `json:"source"`
	ReceivedAt   time.Time      `json:"received_at"`
}

// Clone returns a copy that shares no map with the receiver.
func (s ProgressSnapshot) Clone() ProgressSnapshot {
	if s.StatusCounts != nil {
		counts := make(map[string]int, len(s.StatusCounts))
		for k, v := range s.StatusCounts {
			counts[k] = v
		}
		s.StatusCounts = counts
	}
	return s
}
