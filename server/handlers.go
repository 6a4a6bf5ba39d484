package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ticketdesk/ticketdesk/auth"
	"github.com/ticketdesk/ticketdesk/token"
)

// Stable error codes returned in the JSON error envelope.
const (
	CodeMalformedRequest    = "MALFORMED_REQUEST"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeAccountBlocked      = "ACCOUNT_BLOCKED"
	CodeMissingAccessToken  = "MISSING_ACCESS_TOKEN"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeTokenInvalid        = "TOKEN_INVALID"
	CodeTokenRevoked        = "TOKEN_REVOKED"
	CodeMissingRefreshToken = "MISSING_REFRESH_TOKEN"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeInsufficientRole    = "INSUFFICIENT_ROLE"
	CodeInternalError       = "INTERNAL_ERROR"
)

// refreshCookieName is the cookie carrying the opaque refresh token.
const refreshCookieName = "Refresh"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	MemberID    string `json:"memberId"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	ProfilePic  string `json:"profilePic,omitempty"`
	AccessToken string `json:"accessToken"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

type errorResponse struct {
	Error             string `json:"error"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}

// LoginHandler verifies credentials, returns the access token in the body
// and sets the refresh token as an http-only cookie scoped to /auth.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !isJSONRequest(r) || json.NewDecoder(r.Body).Decode(&req) != nil ||
			req.Username == "" || req.Password == "" {
			s.writeAuthError(w, r, auth.ErrMalformedRequest)
			return
		}

		result, err := s.auth.Login(r.Context(), req.Username, req.Password, clientIP(r))
		if err != nil {
			s.writeAuthError(w, r, err)
			return
		}

		s.setRefreshCookie(w, result.RefreshToken)
		writeJSON(w, http.StatusOK, loginResponse{
			MemberID:    result.Identity.ID,
			Username:    result.Identity.Username,
			Role:        string(result.Identity.Role),
			ProfilePic:  result.Identity.ProfilePicURL,
			AccessToken: result.AccessToken,
		})
	}
}

// RefreshHandler rotates the refresh token from the cookie. A stale token
// is an authentication error; nothing is silently re-issued.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(refreshCookieName)
		if err != nil || cookie.Value == "" {
			s.writeAuthError(w, r, auth.ErrMissingRefreshToken)
			return
		}

		result, err := s.auth.Refresh(r.Context(), cookie.Value)
		if err != nil {
			s.writeAuthError(w, r, err)
			return
		}

		s.setRefreshCookie(w, result.RefreshToken)
		writeJSON(w, http.StatusOK, refreshResponse{AccessToken: result.AccessToken})
	}
}

// LogoutHandler revokes the current access token, clears the stored
// refresh token and expires the cookie. Idempotent.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, ok := SecurityContextFrom(r.Context())
		if !ok {
			s.writeAuthError(w, r, auth.ErrMissingAccessToken)
			return
		}

		if err := s.auth.Logout(r.Context(), sc, accessTokenFrom(r.Context()), clientIP(r)); err != nil {
			s.writeAuthError(w, r, err)
			return
		}

		s.expireRefreshCookie(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

// MeHandler returns the authenticated security context.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, _ := SecurityContextFrom(r.Context())
		writeJSON(w, http.StatusOK, map[string]string{
			"memberId": sc.IdentityID,
			"username": sc.Username,
			"role":     string(sc.Role),
		})
	}
}

// AccessLogsHandler returns recent audit events. Manager and above.
func (s *Server) AccessLogsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := s.logs.List(r.Context(), 100)
		if err != nil {
			s.log.Error().Err(err).Msg("access log list failed")
			writeErrorResponse(w, http.StatusInternalServerError, CodeInternalError, 0)
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}

// writeAuthError maps a service error onto a response. Account-not-found
// and wrong-password collapse into one external code so account existence
// does not leak; a block is surfaced distinctly with a retry hint.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var blocked *auth.BlockedError
	if errors.As(err, &blocked) {
		writeErrorResponse(w, http.StatusUnauthorized, CodeAccountBlocked, blocked.RetryAfterSeconds())
		return
	}

	status, code := mapError(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("auth request failed")
	}
	writeErrorResponse(w, status, code, 0)
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrAccountNotFound), errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, CodeInvalidCredentials
	case errors.Is(err, auth.ErrMissingRefreshToken):
		return http.StatusUnauthorized, CodeMissingRefreshToken
	case errors.Is(err, auth.ErrMissingAccessToken):
		return http.StatusUnauthorized, CodeMissingAccessToken
	case errors.Is(err, auth.ErrInsufficientRole):
		return http.StatusForbidden, CodeInsufficientRole
	case errors.Is(err, auth.ErrMalformedRequest):
		return http.StatusBadRequest, CodeMalformedRequest
	case errors.Is(err, token.ErrTokenExpired):
		return http.StatusUnauthorized, CodeTokenExpired
	case errors.Is(err, token.ErrTokenRevoked):
		return http.StatusUnauthorized, CodeTokenRevoked
	case errors.Is(err, token.ErrTokenInvalidSignature), errors.Is(err, token.ErrTokenMalformed):
		return http.StatusUnauthorized, CodeTokenInvalid
	case errors.Is(err, token.ErrRefreshTokenMismatch), errors.Is(err, token.ErrRefreshTokenExpired):
		return http.StatusUnauthorized, CodeInvalidRefreshToken
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    refreshToken,
		Path:     "/auth",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(s.config.GetRefreshTokenExpiry().Seconds()),
	})
}

func (s *Server) expireRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/auth",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErrorResponse(w http.ResponseWriter, status int, code string, retryAfterSeconds int) {
	writeJSON(w, status, errorResponse{Error: code, RetryAfterSeconds: retryAfterSeconds})
}

func isJSONRequest(r *http.Request) bool {
	contentType := r.Header.Get("Content-Type")
	return strings.HasPrefix(contentType, "application/json")
}

// clientIP prefers the first X-Forwarded-For hop over the socket address.
func clientIP(r *http.Request) string {
	forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	return r.RemoteAddr
}
