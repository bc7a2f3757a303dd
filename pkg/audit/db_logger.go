package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// TableSQL creates the audit table in a tenant database
const TableSQL = `
	CREATE TABLE IF NOT EXISTS authz_audit_logs (
		id BIGSERIAL PRIMARY KEY,
		occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		user_id BIGINT,
		resource VARCHAR(255),
		action VARCHAR(100),
		request_id VARCHAR(100),
		method VARCHAR(10),
		path TEXT,
		ip_address VARCHAR(64),
		user_agent TEXT,
		message TEXT,
		error_message TEXT,
		metadata JSONB
	);

	CREATE INDEX IF NOT EXISTS idx_authz_audit_logs_occurred_at ON authz_audit_logs(occurred_at DESC);
	CREATE INDEX IF NOT EXISTS idx_authz_audit_logs_user_id ON authz_audit_logs(user_id);
`

// DBSource returns the database of a tenant. tenant.Registry implements it.
type DBSource interface {
	DB(ctx context.Context, tenantID string) (*sql.DB, error)
}

// DBLogger writes audit events into the audit table of the event's tenant.
// Events without a tenant are skipped.
type DBLogger struct {
	source DBSource
}

// NewDBLogger creates a database-backed audit logger
func NewDBLogger(source DBSource) (*DBLogger, error) {
	if source == nil {
		return nil, fmt.Errorf("database source is required")
	}
	return &DBLogger{source: source}, nil
}

// Log inserts one event
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	enrich(ctx, event)
	if event.TenantID == "" {
		return nil
	}

	db, err := l.source.DB(ctx, event.TenantID)
	if err != nil {
		return fmt.Errorf("failed to get tenant database: %w", err)
	}

	var metadata []byte
	if event.Metadata != nil {
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO authz_audit_logs (
			occurred_at, event_type, status, user_id, resource, action,
			request_id, method, path, ip_address, user_agent, message, error_message, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = db.ExecContext(ctx, query,
		event.Timestamp,
		string(event.EventType),
		string(event.Status),
		nullInt64(event.UserID),
		nullString(event.Resource),
		nullString(event.Action),
		nullString(event.RequestID),
		nullString(event.Method),
		nullString(event.Path),
		nullString(event.IPAddress),
		nullString(event.UserAgent),
		nullString(event.Message),
		nullString(event.ErrorMessage),
		nullBytes(metadata),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}

// Close is a no-op; tenant databases are owned by the registry
func (l *DBLogger) Close() error {
	return nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBytes(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return string(b)
}
