package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// DBLogger implements audit logging to the audit_events table
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-backed audit logger. The table is
// created by the schema migrations.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Log inserts an audit event and sets its ID
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var metadataJSON []byte
	if len(event.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (
			occurred_at, event_type, status,
			user_id, project_id,
			resource_type, resource_id,
			ip_address, request_id,
			message, metadata
		) VALUES (
			$1, $2, $3,
			$4, $5,
			$6, $7,
			$8, $9,
			$10, $11
		) RETURNING id
	`

	err := l.db.QueryRowContext(ctx, query,
		event.OccurredAt, string(event.EventType), string(event.Status),
		event.UserID, event.ProjectID,
		nullString(string(event.ResourceType)), nullString(event.ResourceID),
		nullString(event.IPAddress), nullString(event.RequestID),
		nullString(event.Message), metadataJSON,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}

// Close does not close the shared database handle
func (l *DBLogger) Close() error {
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
