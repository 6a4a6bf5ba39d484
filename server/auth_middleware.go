package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/ticketdesk/ticketdesk/auth"
	"github.com/ticketdesk/ticketdesk/identity"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeySecurityContext stores the authenticated security context
	ContextKeySecurityContext ContextKey = "security_context"
	// ContextKeyAccessToken stores the raw bearer token (needed by logout)
	ContextKeyAccessToken ContextKey = "access_token"
)

// SecurityContextFrom returns the request's security context. The second
// return is false on public paths where RequireAuth never ran.
func SecurityContextFrom(ctx context.Context) (auth.SecurityContext, bool) {
	sc, ok := ctx.Value(ContextKeySecurityContext).(auth.SecurityContext)
	return sc, ok
}

// accessTokenFrom returns the raw bearer token RequireAuth validated.
func accessTokenFrom(ctx context.Context) string {
	raw, _ := ctx.Value(ContextKeyAccessToken).(string)
	return raw
}

// RequireAuth validates the bearer token and populates the request-scoped
// security context. On failure the pipeline stops; no downstream handler
// runs.
func (s *Server) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawToken, ok := bearerToken(r)
		if !ok {
			s.writeAuthError(w, r, auth.ErrMissingAccessToken)
			return
		}

		claims, err := s.tokens.ValidateAccessToken(rawToken)
		if err != nil {
			s.writeAuthError(w, r, err)
			return
		}

		sc := auth.SecurityContext{
			IdentityID: claims.SubjectID,
			Username:   claims.Username,
			Role:       claims.Role,
		}
		ctx := context.WithValue(r.Context(), ContextKeySecurityContext, sc)
		ctx = context.WithValue(ctx, ContextKeyAccessToken, rawToken)
		next(w, r.WithContext(ctx))
	}
}

// RequireRole gates a route on the role order ADMIN > MANAGER > USER.
// Must be chained after RequireAuth.
func (s *Server) RequireRole(required identity.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			sc, ok := SecurityContextFrom(r.Context())
			if !ok || !sc.HasRole(required) {
				s.writeAuthError(w, r, auth.ErrInsufficientRole)
				return
			}
			next(w, r)
		}
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
