package services

import (
	"errors"

	"github.com/meincms/apiserver/internal/auth"
	"github.com/meincms/apiserver/internal/metrics"
)

var (
	ErrNoChanges  = errors.New("no fields to update")
	ErrSelfDelete = errors.New("cannot delete your own account")
	// ErrInvalidInput reports a blank or malformed account field.
	ErrInvalidInput = errors.New("invalid input")
)

// clientErrors are outcomes caused by the caller's input rather than the system.
var clientErrors = []error{
	auth.ErrUnauthenticated,
	auth.ErrInvalidToken,
	auth.ErrSessionExpired,
	auth.ErrForbidden,
	auth.ErrInvalidCredentials,
	auth.ErrAccountDeactivated,
	auth.ErrInvalidRole,
	auth.ErrAccountExists,
	auth.ErrTokenNotFound,
	auth.ErrTokenExpired,
	auth.ErrTokenUsed,
	auth.ErrWeakPassword,
	ErrNoChanges,
	ErrSelfDelete,
	ErrInvalidInput,
}

func isAuthError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case isAuthError(err):
		return metrics.OutcomeFailure
	default:
		return metrics.OutcomeError
	}
}
