package auth

import "github.com/ticketdesk/ticketdesk/identity"

// SecurityContext is the per-request value carrying the authenticated
// identity, populated by the pipeline and consumed by downstream handlers.
type SecurityContext struct {
	IdentityID string
	Username   string
	Role       identity.Role
}

// HasRole reports whether the context's role satisfies the required role
// under the total order ADMIN > MANAGER > USER.
func (sc SecurityContext) HasRole(required identity.Role) bool {
	return sc.Role.AtLeast(required)
}
