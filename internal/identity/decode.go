package identity

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"school-identity-onboarding/internal/model"
)

// DecodeSnapshot reads a batch status payload. The services are not
// consistent about key casing, so both snake_case and camelCase are read.
func DecodeSnapshot(data []byte) (model.ProgressSnapshot, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.ProgressSnapshot{}, fmt.Errorf("failed to decode batch status: %w", err)
	}
	if inner, ok := raw["data"].(map[string]any); ok {
		raw = inner
	}

	snap := model.ProgressSnapshot{
		BatchID:      stringField(raw, "batch_id", "batchId", "id"),
		Status:       stringField(raw, "status"),
		TotalItems:   intField(raw, "total_items", "totalItems"),
		NewCount:     intField(raw, "new_count", "newCount"),
		UpdatedCount: intField(raw, "updated_count", "updatedCount"),
		SkippedCount: intField(raw, "skipped_count", "skippedCount"),
		InvalidCount: intField(raw, "invalid_count", "invalidCount"),
		ReceivedAt:   time.Now(),
	}

	if counts, ok := firstMap(raw, "status_counts", "statusCounts"); ok {
		snap.StatusCounts = make(map[string]int, len(counts))
		for k := range counts {
			snap.StatusCounts[k] = intField(counts, k)
		}
	}

	return snap, nil
}

func extractBatchID(data []byte) (string, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", fmt.Errorf("failed to decode batch response: %w", err)
	}
	if inner, ok := raw["data"].(map[string]any); ok {
		raw = inner
	}
	id := stringField(raw, "batch_id", "batchId", "id")
	if id == "" {
		return "", fmt.Errorf("batch response carries no batch id")
	}
	return id, nil
}

func stringField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}

func intField(m map[string]any, keys ...string) int {
	for _, key := range keys {
		if v, ok := m[key].(float64); ok {
			return int(v)
		}
	}
	return 0
}

func firstMap(m map[string]any, keys ...string) (map[string]any, bool) {
	for _, key := range keys {
		if v, ok := m[key].(map[string]any); ok {
			return v, true
		}
	}
	return nil, false
}
