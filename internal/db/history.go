package db

import (
	"context"
	"database/sql"
	"time"

	"school-identity-onboarding/internal/model"

	"github.com/google/uuid"
)

type HistoryRepository interface {
	Record(ctx context.Context, entry *model.HistoryEntry) error
	ListByEstablishment(ctx context.Context, establishmentID string, limit, offset int) ([]model.HistoryEntry, error)
	CountByEstablishment(ctx context.Context, establishmentID string) (int, error)
	FindSubmission(ctx context.Context, batchID string) (*model.HistoryEntry, error)
}

type historyRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) HistoryRepository {
	return &historyRepository{db: db}
}

const historyColumns = `id, kind, establishment_id, batch_id, role, file_name, source_file_url, status, error_message, created_at`

// Record assigns an id and timestamp when the entry has none.
func (r *historyRepository) Record(ctx context.Context, entry *model.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO import_history (` + historyColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, entry.ID, entry.Kind, entry.EstablishmentID,
		entry.BatchID, entry.Role, entry.FileName, entry.SourceFileURL, entry.Status,
		entry.ErrorMessage, entry.CreatedAt)
	return err
}

func (r *historyRepository) ListByEstablishment(ctx context.Context, establishmentID string, limit, offset int) ([]model.HistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM import_history`
	args := []any{}
	if establishmentID != "" {
		query += ` WHERE establishment_id = ?`
		args = append(args, establishmentID)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []model.HistoryEntry{}
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	return entries, rows.Err()
}

func (r *historyRepository) CountByEstablishment(ctx context.Context, establishmentID string) (int, error) {
	query := `SELECT COUNT(*) FROM import_history`
	args := []any{}
	if establishmentID != "" {
		query += ` WHERE establishment_id = ?`
		args = append(args, establishmentID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// FindSubmission returns the successful submit entry for an identity batch,
// or nil when none was recorded.
func (r *historyRepository) FindSubmission(ctx context.Context, batchID string) (*model.HistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM import_history
			  WHERE batch_id = ? AND kind = ? AND status = ?
			  ORDER BY created_at DESC LIMIT 1`

	row := r.db.QueryRowContext(ctx, query, batchID, model.HistorySubmit, model.HistorySuccess)
	entry, err := scanHistory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHistory(s scanner) (*model.HistoryEntry, error) {
	var entry model.HistoryEntry
	var errorMessage sql.NullString
	err := s.Scan(&entry.ID, &entry.Kind, &entry.EstablishmentID, &entry.BatchID,
		&entry.Role, &entry.FileName, &entry.SourceFileURL, &entry.Status,
		&errorMessage, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	if errorMessage.Valid {
		entry.ErrorMessage = &errorMessage.String
	}
	return &entry, nil
}
