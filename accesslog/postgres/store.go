// Package postgres implements accesslog.Store against Postgres using the
// pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // register the pgx database/sql driver

	"github.com/ticketdesk/ticketdesk/accesslog"
)

var _ accesslog.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event accesslog.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	var identityID any
	if event.IdentityID != "" {
		identityID = event.IdentityID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_logs (id, member_id, event_type, ip, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, event.ID, identityID, string(event.Type), event.IP, event.Detail, event.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert access log: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, limit int) ([]accesslog.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, member_id, event_type, ip, detail, created_at
		FROM access_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query access logs: %w", err)
	}
	defer rows.Close()

	var events []accesslog.Event
	for rows.Next() {
		var (
			event      accesslog.Event
			identityID sql.NullString
			eventType  string
		)
		if err := rows.Scan(&event.ID, &identityID, &eventType, &event.IP, &event.Detail, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan access log: %w", err)
		}
		event.IdentityID = identityID.String
		event.Type = accesslog.EventType(eventType)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access logs: %w", err)
	}
	return events, nil
}
