package token

import "errors"

var (
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenInvalidSignature = errors.New("token signature invalid")
	ErrTokenRevoked          = errors.New("token revoked")
	ErrTokenMalformed        = errors.New("token malformed")

	ErrRefreshTokenMismatch = errors.New("refresh token mismatch")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")
)
