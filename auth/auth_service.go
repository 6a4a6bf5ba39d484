package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/ticketdesk/ticketdesk/accesslog"
	"github.com/ticketdesk/ticketdesk/identity"
	"github.com/ticketdesk/ticketdesk/token"
)

const logAppendTimeout = 5 * time.Second

// Service drives the login, refresh and logout flows. It owns no HTTP
// concerns; the server package maps its results and errors onto responses.
type Service struct {
	verifier *Verifier
	tokens   *token.Manager
	store    identity.Store
	logs     accesslog.Store
	log      zerolog.Logger
	nowFunc  func() time.Time
}

type ServiceOption func(*Service)

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = now
	}
}

// WithLogger sets the service logger.
func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.log = log
	}
}

func NewService(verifier *Verifier, tokens *token.Manager, store identity.Store, logs accesslog.Store, options ...ServiceOption) (*Service, error) {
	if verifier == nil {
		return nil, errors.New("[NewService] verifier is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewService] token manager is required")
	}
	if store == nil {
		return nil, errors.New("[NewService] identity store is required")
	}
	if logs == nil {
		return nil, errors.New("[NewService] access log store is required")
	}

	s := &Service{
		verifier: verifier,
		tokens:   tokens,
		store:    store,
		logs:     logs,
		log:      zerolog.Nop(),
		nowFunc:  time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// LoginResult carries everything the login response needs.
type LoginResult struct {
	Identity     *identity.Identity
	AccessToken  string
	RefreshToken string
}

// RefreshResult carries the rotated token pair.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
}

// Login verifies credentials and, on success, issues an access token and a
// fresh refresh token. Persisting the refresh token overwrites any prior
// one, which unilaterally ends any other active session for the identity.
func (s *Service) Login(ctx context.Context, username, password, ip string) (*LoginResult, error) {
	ident, err := s.verifier.Verify(ctx, username, password)
	if err != nil {
		s.recordLoginFailure(username, ip, err)
		return nil, err
	}

	accessToken, err := s.tokens.IssueAccessToken(ident)
	if err != nil {
		return nil, errors.Wrap(err, "Service.Login IssueAccessToken")
	}

	refreshToken, err := s.tokens.IssueRefreshToken()
	if err != nil {
		return nil, errors.Wrap(err, "Service.Login IssueRefreshToken")
	}

	// The login is complete only once the refresh token is persisted; a
	// failure here means the client retries, not a half-open session.
	if err := s.store.UpdateRefreshToken(ctx, ident.ID, refreshToken); err != nil {
		return nil, errors.Wrap(err, "Service.Login UpdateRefreshToken")
	}

	s.appendLog(ident.ID, accesslog.EventLoginSuccess, ip, "")

	return &LoginResult{
		Identity:     ident,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Refresh rotates the presented refresh token into a new token pair.
func (s *Service) Refresh(ctx context.Context, presentedToken string) (*RefreshResult, error) {
	if presentedToken == "" {
		return nil, ErrMissingRefreshToken
	}

	ident, err := s.store.FindByRefreshToken(ctx, presentedToken)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, token.ErrRefreshTokenMismatch
		}
		return nil, errors.Wrap(err, "Service.Refresh FindByRefreshToken")
	}

	accessToken, refreshToken, err := s.tokens.RotateRefreshToken(ctx, ident, presentedToken)
	if err != nil {
		return nil, err
	}

	return &RefreshResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Logout revokes the access token, clears the stored refresh token and
// records the event. Calling it twice with an already-revoked token is a
// no-op on the revocation side.
func (s *Service) Logout(ctx context.Context, sc SecurityContext, rawAccessToken, ip string) error {
	if err := s.tokens.Revoke(rawAccessToken); err != nil {
		return errors.Wrap(err, "Service.Logout Revoke")
	}

	if err := s.store.UpdateRefreshToken(ctx, sc.IdentityID, ""); err != nil {
		return errors.Wrap(err, "Service.Logout UpdateRefreshToken")
	}

	s.appendLog(sc.IdentityID, accesslog.EventLogout, ip, "")
	return nil
}

func (s *Service) recordLoginFailure(username, ip string, cause error) {
	var (
		identityID string
		detail     string
		mismatch   *PasswordMismatchError
		blocked    *BlockedError
	)
	switch {
	case errors.Is(cause, ErrAccountNotFound):
		detail = "account not found: " + username
	case errors.As(cause, &mismatch):
		identityID = mismatch.IdentityID
		detail = "wrong password: " + username
	case errors.As(cause, &blocked):
		detail = "blocked: " + username
	default:
		return // infrastructure failure, not an auth event
	}
	s.appendLog(identityID, accesslog.EventLoginFailure, ip, detail)
}

// appendLog writes the audit event fire-and-forget: the request never
// waits on, or fails because of, the access log.
func (s *Service) appendLog(identityID string, eventType accesslog.EventType, ip, detail string) {
	event := accesslog.Event{
		IdentityID: identityID,
		Type:       eventType,
		IP:         ip,
		Detail:     detail,
		CreatedAt:  s.nowFunc(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), logAppendTimeout)
		defer cancel()
		if err := s.logs.Append(ctx, event); err != nil {
			s.log.Error().Err(err).Str("event", string(eventType)).Msg("access log append failed")
		}
	}()
}
