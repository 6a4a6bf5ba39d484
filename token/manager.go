package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/ticketdesk/ticketdesk/identity"
)

const refreshTokenBytes = 32 // 256 bits

// Claims is the payload embedded in a signed access token.
type Claims struct {
	ID        string // jti, the revocation key
	SubjectID string
	Username  string
	Role      identity.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Manager creates and verifies signed access tokens and rotates opaque
// refresh tokens against the identity store.
type Manager struct {
	store              identity.Store
	signer             Signer
	revokedCache       RevokedTokenCache
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	nowFunc            func() time.Time
}

type ManagerOption func(*Manager)

func WithTokenExpiry(accessTokenExpiry, refreshTokenExpiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = accessTokenExpiry
		m.refreshTokenExpiry = refreshTokenExpiry
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithRevokedTokenCache(cache RevokedTokenCache) ManagerOption {
	return func(m *Manager) {
		m.revokedCache = cache
	}
}

func New(store identity.Store, signer Signer, options ...ManagerOption) *Manager {
	m := &Manager{
		store:  store,
		signer: signer,
	}

	for _, opt := range options {
		opt(m)
	}

	if m.accessTokenExpiry == 0 {
		m.accessTokenExpiry = 30 * time.Minute
	}
	if m.refreshTokenExpiry == 0 {
		m.refreshTokenExpiry = 7 * 24 * time.Hour
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	// The default cache must share the manager's clock, or revocation
	// entries would expire on a different timeline than the tokens they
	// blacklist.
	if m.revokedCache == nil {
		m.revokedCache = NewInMemoryRevokedTokenCache(WithRevokedCacheNowFunc(m.nowFunc))
	}
	return m
}

// RevokedCache exposes the revocation cache so the caller can run its sweeper.
func (m *Manager) RevokedCache() RevokedTokenCache {
	return m.revokedCache
}

// AccessTokenExpiry returns the configured access token lifetime.
func (m *Manager) AccessTokenExpiry() time.Duration {
	return m.accessTokenExpiry
}

// IssueAccessToken creates a signed, self-contained access token for the
// identity. No side effects beyond the token string.
func (m *Manager) IssueAccessToken(ident *identity.Identity) (string, error) {
	now := m.nowFunc()
	claims := jwt.MapClaims{
		"sub":      ident.ID,
		"username": ident.Username,
		"role":     string(ident.Role),
		"iat":      now.Unix(),
		"exp":      now.Add(m.accessTokenExpiry).Unix(),
		"jti":      uuid.New().String(), // Unique token ID for revocation
	}

	signedToken, err := m.signer.Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "Manager.IssueAccessToken Sign")
	}
	return signedToken, nil
}

// IssueRefreshToken creates an opaque random refresh token. It carries no
// embedded semantics and cannot be forged or decoded.
func (m *Manager) IssueRefreshToken() (string, error) {
	tokenBytes := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", errors.Wrap(err, "Manager.IssueRefreshToken rand.Read")
	}
	return hex.EncodeToString(tokenBytes), nil
}

// ValidateAccessToken checks signature, expiry and revocation, in that
// order, and returns the embedded claims.
func (m *Manager) ValidateAccessToken(rawToken string) (*Claims, error) {
	parsed, err := jwt.NewParser(jwt.WithTimeFunc(m.nowFunc)).Parse(rawToken, m.signer.GetVerificationKey)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		default:
			return nil, ErrTokenInvalidSignature
		}
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalidSignature
	}

	claims, err := claimsFromToken(parsed)
	if err != nil {
		return nil, err
	}

	if m.revokedCache.IsRevoked(claims.ID) {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// RotateRefreshToken exchanges the presented refresh token for a fresh
// access/refresh pair. The compare-and-replace on the stored token is a
// single atomic step in the store, so concurrent rotations of the same
// token produce exactly one winner.
func (m *Manager) RotateRefreshToken(ctx context.Context, ident *identity.Identity, presentedToken string) (accessToken, refreshToken string, err error) {
	if presentedToken == "" || ident.RefreshToken == "" {
		return "", "", ErrRefreshTokenMismatch
	}

	if m.nowFunc().Sub(ident.RefreshTokenIssuedAt) > m.refreshTokenExpiry {
		// The stored token is stale regardless of what was presented.
		_ = m.store.UpdateRefreshToken(ctx, ident.ID, "")
		return "", "", ErrRefreshTokenExpired
	}

	newRefreshToken, err := m.IssueRefreshToken()
	if err != nil {
		return "", "", err
	}

	replaced, err := m.store.ReplaceRefreshToken(ctx, ident.ID, presentedToken, newRefreshToken)
	if err != nil {
		return "", "", errors.Wrap(err, "Manager.RotateRefreshToken ReplaceRefreshToken")
	}
	if !replaced {
		return "", "", ErrRefreshTokenMismatch
	}

	// Issue the access token only after the rotation has been persisted.
	newAccessToken, err := m.IssueAccessToken(ident)
	if err != nil {
		return "", "", err
	}
	return newAccessToken, newRefreshToken, nil
}

// Revoke blacklists an access token for its remaining validity. Revoking
// an already-revoked or expired token is a no-op.
func (m *Manager) Revoke(rawToken string) error {
	parsed, err := jwt.NewParser(jwt.WithoutClaimsValidation()).Parse(rawToken, m.signer.GetVerificationKey)
	if err != nil || !parsed.Valid {
		return ErrTokenInvalidSignature
	}

	claims, err := claimsFromToken(parsed)
	if err != nil {
		return err
	}

	if !claims.ExpiresAt.After(m.nowFunc()) {
		return nil // already dead, nothing to blacklist
	}
	return m.revokedCache.Add(claims.ID, claims.ExpiresAt)
}

func claimsFromToken(parsed *jwt.Token) (*Claims, error) {
	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenMalformed
	}

	sub, _ := mapClaims["sub"].(string)
	username, _ := mapClaims["username"].(string)
	role, _ := mapClaims["role"].(string)
	jti, _ := mapClaims["jti"].(string)
	iat, _ := mapClaims["iat"].(float64)
	exp, _ := mapClaims["exp"].(float64)

	if sub == "" || jti == "" || exp == 0 {
		return nil, ErrTokenMalformed
	}

	return &Claims{
		ID:        jti,
		SubjectID: sub,
		Username:  username,
		Role:      identity.Role(role),
		IssuedAt:  time.Unix(int64(iat), 0),
		ExpiresAt: time.Unix(int64(exp), 0),
	}, nil
}
