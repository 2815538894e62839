package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/aonescu/shopkeeper/internal/types"
)

// PostgresStore mirrors the audit log into Postgres so it survives the host.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &PostgresStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	-- Audit entries: append-only lifecycle record
	CREATE TABLE IF NOT EXISTS audit_entries (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		action TEXT NOT NULL,
		store_id TEXT,
		details JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_audit_entries_timestamp ON audit_entries(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_entries_action ON audit_entries(action);
	CREATE INDEX IF NOT EXISTS idx_audit_entries_store ON audit_entries(store_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Append inserts one audit entry. Rows are never updated or deleted.
func (s *PostgresStore) Append(ctx context.Context, entry types.AuditEntry) error {
	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	var storeID sql.NullString
	if id, ok := entry.Details["id"]; ok {
		storeID = sql.NullString{String: id, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (timestamp, action, store_id, details)
		VALUES ($1, $2, $3, $4)
	`, entry.Timestamp, string(entry.Action), storeID, detailsJSON)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries matching action, newest first.
func (s *PostgresStore) Recent(ctx context.Context, action types.Action, limit int) ([]types.AuditEntry, error) {
	query := `
		SELECT timestamp, action, details
		FROM audit_entries
		WHERE 1=1
	`
	args := make([]interface{}, 0)

	if action != "" {
		query += " AND action = $1"
		args = append(args, string(action))
	}

	query += " ORDER BY id DESC LIMIT $" + fmt.Sprintf("%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]types.AuditEntry, 0)
	for rows.Next() {
		var (
			e           types.AuditEntry
			actionStr   string
			detailsJSON []byte
		)
		if err := rows.Scan(&e.Timestamp, &actionStr, &detailsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = types.Action(actionStr)
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode audit details: %w", err)
			}
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *PostgresStore) Ping() error {
	return s.db.Ping()
}
