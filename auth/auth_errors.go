package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrMalformedRequest    = errors.New("malformed request")
	ErrMissingAccessToken  = errors.New("missing access token")
	ErrMissingRefreshToken = errors.New("missing refresh token")
	ErrInsufficientRole    = errors.New("insufficient role")
)

// PasswordMismatchError is returned when the username resolved but the
// password did not match. It carries the identity id so the audit row is
// complete; externally it still collapses into ErrInvalidCredentials.
type PasswordMismatchError struct {
	IdentityID string
}

func (e *PasswordMismatchError) Error() string {
	return ErrInvalidCredentials.Error()
}

func (e *PasswordMismatchError) Is(target error) bool {
	return target == ErrInvalidCredentials
}

// BlockedError is returned when a login attempt hits a live block. It
// carries the remaining block duration, which is surfaced to the client
// as a retry hint.
type BlockedError struct {
	RetryAfter time.Duration
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("account blocked, retry after %ds", e.RetryAfterSeconds())
}

// RetryAfterSeconds rounds the remaining block duration up to whole seconds.
func (e *BlockedError) RetryAfterSeconds() int {
	seconds := int((e.RetryAfter + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
