package db

import (
	"context"
	"database/sql"

	"school-identity-onboarding/internal/config"

	_ "github.com/go-sql-driver/mysql"
)

const historySchema = `CREATE TABLE IF NOT EXISTS import_history (
	id VARCHAR(36) NOT NULL PRIMARY KEY,
	kind VARCHAR(32) NOT NULL,
	establishment_id VARCHAR(64) NOT NULL,
	batch_id VARCHAR(64) NOT NULL DEFAULT '',
	role VARCHAR(32) NOT NULL DEFAULT '',
	file_name VARCHAR(255) NOT NULL DEFAULT '',
	source_file_url VARCHAR(1024) NOT NULL DEFAULT '',
	status VARCHAR(16) NOT NULL,
	error_message TEXT NULL,
	created_at DATETIME(3) NOT NULL,
	INDEX idx_import_history_establishment (establishment_id, created_at),
	INDEX idx_import_history_batch (batch_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

func NewConnection(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxConnections)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.Database.ConnectionLifetime)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}

// EnsureSchema creates the history table when it does not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, historySchema)
	return err
}
