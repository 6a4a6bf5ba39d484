package identity

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role represents a member's role within the ticket system.
type Role string

const (
	RoleUser    Role = "USER"
	RoleManager Role = "MANAGER"
	RoleAdmin   Role = "ADMIN"
)

// roleRank defines the total order ADMIN > MANAGER > USER.
var roleRank = map[Role]int{
	RoleUser:    1,
	RoleManager: 2,
	RoleAdmin:   3,
}

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether the role satisfies the required role.
// An unknown role never satisfies anything.
func (r Role) AtLeast(required Role) bool {
	return roleRank[r] >= roleRank[required] && roleRank[r] > 0
}

// Identity is the plain value type carried through the auth pipeline.
// It is owned by the identity store; the refresh token fields are mutated
// only through Store.UpdateRefreshToken / Store.ReplaceRefreshToken.
type Identity struct {
	ID            string `json:"id,omitempty"`
	Username      string `json:"username,omitempty"`
	PasswordHash  string `json:"-"` // never serialize
	Role          Role   `json:"role,omitempty"`
	ProfilePicURL string `json:"profile_pic_url,omitempty"`

	// RefreshToken is the single live refresh token for this identity.
	// Empty means no active session.
	RefreshToken         string    `json:"-"`
	RefreshTokenIssuedAt time.Time `json:"-"`
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash performs a constant-time comparison of a password
// against its bcrypt hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
