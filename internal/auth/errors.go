package auth

import "errors"

var (
	// ErrUnauthenticated is returned when no usable bearer credential was presented.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrInvalidToken is returned when a session token fails signature or format checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSessionExpired is returned when a correctly signed session token is past its expiry.
	ErrSessionExpired = errors.New("token expired")
	// ErrForbidden is returned when an authenticated identity lacks the required role.
	ErrForbidden = errors.New("insufficient permissions")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account is deactivated")
	ErrInvalidRole        = errors.New("invalid role")
	ErrAccountExists      = errors.New("user with this email or username already exists")

	// Ephemeral token redemption failures.
	ErrTokenNotFound = errors.New("invalid or unknown token")
	ErrTokenExpired  = errors.New("token has expired")
	ErrTokenUsed     = errors.New("token has already been used")

	// ErrHashing is a non-retryable failure of the password hasher.
	ErrHashing      = errors.New("password hashing failed")
	ErrWeakPassword = errors.New("password must be at least 6 characters")
)
