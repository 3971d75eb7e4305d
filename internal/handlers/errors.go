package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/meincms/apiserver/internal/auth"
	"github.com/meincms/apiserver/internal/services"
	"github.com/meincms/apiserver/internal/store"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// errorMappings translates service failures to responses. An empty message
// means the error's own text is safe to show.
var errorMappings = []errorMapping{
	{auth.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated", ""},
	{auth.ErrSessionExpired, http.StatusUnauthorized, "token_expired", ""},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "invalid_token", "invalid token"},
	{auth.ErrForbidden, http.StatusForbidden, "forbidden", ""},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "invalid email or password"},
	{auth.ErrAccountDeactivated, http.StatusForbidden, "account_deactivated", ""},
	{auth.ErrInvalidRole, http.StatusBadRequest, "invalid_role", "invalid role, must be one of: admin, operator, user, guest"},
	{auth.ErrAccountExists, http.StatusConflict, "account_exists", ""},
	{auth.ErrTokenNotFound, http.StatusBadRequest, "token_not_found", ""},
	{auth.ErrTokenExpired, http.StatusBadRequest, "token_expired", ""},
	{auth.ErrTokenUsed, http.StatusBadRequest, "token_used", ""},
	{auth.ErrWeakPassword, http.StatusBadRequest, "weak_password", ""},
	{services.ErrNoChanges, http.StatusBadRequest, "no_changes", ""},
	{services.ErrSelfDelete, http.StatusBadRequest, "self_delete", ""},
	{services.ErrInvalidInput, http.StatusBadRequest, "invalid_input", ""},
	{store.ErrNotFound, http.StatusNotFound, "not_found", "user not found"},
}

// writeServiceError maps err to a response. Unknown errors are logged and
// reported as 500 without detail.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		message := m.message
		if message == "" {
			message = err.Error()
		}
		writeJSON(w, m.status, ErrorResponse{Error: message, Code: m.code})
		return
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("request failed", slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "internal server error")
}
