package types

import "time"

// User represents an account in the system.
// It contains identity, role, verification state, and audit metadata.
type User struct {
	// ID is the unique identifier of the user. It never changes.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's unique email address. Login is by email.
	Email string `json:"email" db:"email"`

	// Role indicates the user's authorization level within the system.
	Role Role `json:"role" db:"role"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// IsActive reports whether the account may log in.
	IsActive bool `json:"is_active" db:"is_active"`

	// IsVerified reports whether the user proved control of Email.
	IsVerified bool `json:"is_verified" db:"is_verified"`

	// VerificationTokenHash is the digest of the single outstanding
	// email verification token, if any.
	VerificationTokenHash *string `json:"-" db:"verification_token"`

	// VerificationExpiresAt is when the outstanding verification token
	// stops being redeemable.
	VerificationExpiresAt *time.Time `json:"-" db:"verification_token_expires"`

	// LastLoginAt is the timestamp of the most recent successful login.
	LastLoginAt *time.Time `json:"last_login,omitempty" db:"last_login"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RoleCount is the number of accounts holding a role.
type RoleCount struct {
	Role  Role `json:"role"`
	Count int  `json:"count"`
}
