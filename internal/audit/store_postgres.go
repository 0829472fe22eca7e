package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is the DDL for the security event table, applied by migrations.
//
//	CREATE TABLE IF NOT EXISTS security_events (
//	    id            TEXT        PRIMARY KEY,
//	    kind          TEXT        NOT NULL,
//	    identity      TEXT        NOT NULL DEFAULT '',
//	    purpose       TEXT        NOT NULL DEFAULT '',
//	    requesting_ip TEXT        NOT NULL DEFAULT '',
//	    device        TEXT        NOT NULL DEFAULT '',
//	    request_id    TEXT        NOT NULL DEFAULT '',
//	    detail        TEXT        NOT NULL DEFAULT '',
//	    occurred_at   TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX IF NOT EXISTS security_events_identity_idx
//	    ON security_events (identity, occurred_at DESC);

// PostgresStore persists security events for abuse review queries.
// This store is pure I/O; event construction belongs to the Recorder.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO security_events (id, kind, identity, purpose, requesting_ip, device, request_id, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.Kind, event.Identity, event.Purpose,
		event.RequestingIP, event.Device, event.RequestID, event.Detail, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("append security event: %w", err)
	}
	return nil
}

// ListByIdentity returns events for an identity, newest first.
func (s *PostgresStore) ListByIdentity(ctx context.Context, identity string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, kind, identity, purpose, requesting_ip, device, request_id, detail, occurred_at
		FROM security_events
		WHERE identity = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("list security events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Kind, &e.Identity, &e.Purpose, &e.RequestingIP, &e.Device, &e.RequestID, &e.Detail, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan security event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
