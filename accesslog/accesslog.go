// Package accesslog defines the durable audit trail of login and logout
// events. The auth pipeline appends to it fire-and-forget.
package accesslog

import (
	"context"
	"time"
)

// EventType classifies an audit event.
type EventType string

const (
	EventLoginSuccess EventType = "LOGIN_SUCCESS"
	EventLoginFailure EventType = "LOGIN_FAILURE"
	EventLogout       EventType = "LOGOUT"
)

// Event is one access-log row. IdentityID may be empty for failures
// against unknown usernames.
type Event struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"member_id,omitempty"`
	Type       EventType `json:"type"`
	IP         string    `json:"ip"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Store interface {
	Append(ctx context.Context, event Event) error
	List(ctx context.Context, limit int) ([]Event, error)
}
