package types

import "time"

// PasswordResetToken is a single-use credential allowing a password change.
// Rows are append-only: redemption flips Used instead of deleting the row,
// so a replayed token can be told apart from an unknown one.
type PasswordResetToken struct {
	// ID is the unique identifier of the reset record.
	ID int `json:"id" db:"id"`

	// UserID identifies the account the token belongs to.
	UserID int `json:"user_id" db:"user_id"`

	// TokenHash is the digest of the token mailed to the user.
	TokenHash string `json:"-" db:"token"`

	// ExpiresAt is when the token stops being redeemable.
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`

	// Used reports whether the token was already redeemed.
	Used bool `json:"used" db:"used"`

	// CreatedAt is the timestamp when the token was issued.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
