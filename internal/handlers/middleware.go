package handlers

import (
	"net/http"

	"github.com/meincms/apiserver/internal/auth"
	"github.com/meincms/apiserver/types"
)

// Authenticator resolves and checks request identities.
type Authenticator interface {
	Authenticate(header string) (auth.Identity, error)
	RequireRoles(identity auth.Identity, allowed ...types.Role) error
	RequireMinRole(identity auth.Identity, min types.Role) error
}

// RequireAuth verifies the bearer token and stores the identity in the request context.
func RequireAuth(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := authenticator.Authenticate(r.Header.Get("Authorization"))
			if err != nil {
				writeServiceError(w, nil, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireRoles admits identities holding one of roles. It must run after RequireAuth.
func RequireRoles(authenticator Authenticator, roles ...types.Role) func(http.Handler) http.Handler {
	return requireIdentity(func(identity auth.Identity) error {
		return authenticator.RequireRoles(identity, roles...)
	})
}

// RequireMinRole admits identities ranked at or above min. It must run after RequireAuth.
func RequireMinRole(authenticator Authenticator, min types.Role) func(http.Handler) http.Handler {
	return requireIdentity(func(identity auth.Identity) error {
		return authenticator.RequireMinRole(identity, min)
	})
}

func requireIdentity(check func(auth.Identity) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				writeServiceError(w, nil, auth.ErrUnauthenticated)
				return
			}
			if err := check(identity); err != nil {
				writeServiceError(w, nil, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
