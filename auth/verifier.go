package auth

import (
	"context"

	"github.com/pkg/errors"
	"github.com/ticketdesk/ticketdesk/identity"
	"github.com/ticketdesk/ticketdesk/logindefense"
)

// Verifier checks a password against the stored hash, consulting the login
// defense cache before and after.
type Verifier struct {
	store   identity.Store
	defense *logindefense.Cache
}

func NewVerifier(store identity.Store, defense *logindefense.Cache) *Verifier {
	return &Verifier{store: store, defense: defense}
}

// Verify runs the login-defense state machine: a live block fails fast
// before any credential work, a miss or mismatch records a failure, and a
// match clears the failure counter.
//
// Infrastructure failures from the store are returned as-is and never
// counted against the username's attempt budget.
func (v *Verifier) Verify(ctx context.Context, username, password string) (*identity.Identity, error) {
	if remaining := v.defense.BlockedFor(username); remaining > 0 {
		return nil, &BlockedError{RetryAfter: remaining}
	}

	ident, err := v.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			v.defense.RecordFailure(username)
			return nil, ErrAccountNotFound
		}
		return nil, errors.Wrap(err, "Verifier.Verify FindByUsername")
	}

	if !identity.CheckPasswordHash(password, ident.PasswordHash) {
		v.defense.RecordFailure(username)
		return nil, &PasswordMismatchError{IdentityID: ident.ID}
	}

	v.defense.RecordSuccess(username)
	return ident, nil
}
