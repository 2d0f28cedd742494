package types

import (
	"strings"
	"time"
)

// GuestMailDomain is the reserved mail domain for auto-provisioned accounts.
// Addresses under it are synthesized and can never be registered through the
// API, so the suffix alone identifies guest rows.
const GuestMailDomain = "@guest.local"

// User represents an account in the system. Accounts are either registered
// explicitly or provisioned implicitly as guests on the first request that
// carries no valid session.
type User struct {
	// ID is the string-encoded UUID identifying the user.
	ID string `json:"id" db:"id"`

	// Name is the user's display name.
	Name string `json:"name" db:"name"`

	// Mail is the user's unique email address, stored trimmed and lowercased.
	Mail string `json:"mail" db:"mail"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// AvatarURL points at the user's uploaded avatar, when one exists.
	AvatarURL *string `json:"avatar_url,omitempty" db:"avatar_url"`

	// SessionID is the opaque session token currently bound to the user,
	// unique across all users when set. Cleared on logout.
	SessionID *string `json:"-" db:"session_id"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsGuest reports whether the account was auto-provisioned for an
// unauthenticated request.
func (u User) IsGuest() bool {
	return strings.HasSuffix(u.Mail, GuestMailDomain)
}

// NormalizeMail canonicalizes an email address for storage and lookup:
// surrounding whitespace is trimmed and the address is lowercased, so
// "  Ann@X.com " and "ann@x.com" address the same account.
func NormalizeMail(mail string) string {
	return strings.ToLower(strings.TrimSpace(mail))
}
