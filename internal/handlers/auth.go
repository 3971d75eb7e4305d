package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/meincms/apiserver/internal/auth"
	"github.com/meincms/apiserver/internal/services"
	"github.com/meincms/apiserver/types"
)

// bcrypt ignores input past this length.
const maxPasswordBytes = 72

// AuthAPI is the auth gateway used by the handlers.
type AuthAPI interface {
	Authenticator
	Login(ctx context.Context, email, password string) (services.AuthResult, error)
	Register(ctx context.Context, in services.RegisterInput) (services.AuthResult, error)
	Profile(ctx context.Context, id int) (types.User, error)
}

// AccountTokenAPI covers email verification and password reset.
type AccountTokenAPI interface {
	RequestVerification(ctx context.Context, email string) error
	RedeemVerificationToken(ctx context.Context, token string) (int, error)
	RequestPasswordReset(ctx context.Context, email string) error
	RedeemResetToken(ctx context.Context, token, newPassword string) error
}

// AuthHandler provides JWT authentication endpoints.
type AuthHandler struct {
	auth     AuthAPI
	accounts AccountTokenAPI
	maxRole  types.Role
	logger   *slog.Logger
}

// NewAuthHandler constructs an AuthHandler. maxRole caps self-registration.
func NewAuthHandler(authService AuthAPI, accounts AccountTokenAPI, maxRole types.Role, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		auth:     authService,
		accounts: accounts,
		maxRole:  maxRole,
		logger:   logger,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, h *AuthHandler) {
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)

	r.Post("/request-verification", h.RequestVerification)
	r.Post("/verify-email", h.VerifyEmail)

	r.Post("/request-password-reset", h.RequestPasswordReset)
	r.Post("/reset-password", h.ResetPassword)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(h.auth))
		r.Get("/me", h.Me)
		r.Get("/profile", h.Me)
	})
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type EmailRequest struct {
	Email string `json:"email"`
}

type TokenRequest struct {
	Token string `json:"token"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type AuthResponse struct {
	Message string     `json:"message,omitempty"`
	Token   string     `json:"token"`
	User    types.User `json:"user"`
}

// Register creates a new account and returns a JWT.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username, email, and password are required")
		return
	}
	if len(req.Password) > maxPasswordBytes {
		writeError(w, http.StatusBadRequest, "password must be at most 72 bytes")
		return
	}

	result, err := h.auth.Register(r.Context(), services.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		MaxRole:  h.maxRole,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{
		Message: "registered, check your email to verify your account",
		Token:   result.Token,
		User:    result.User,
	})
}

// Login verifies credentials and returns a JWT.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: result.Token, User: result.User})
}

// RequestVerification answers identically whether or not the email is registered.
func (h *AuthHandler) RequestVerification(w http.ResponseWriter, r *http.Request) {
	email, ok := h.decodeEmail(w, r)
	if !ok {
		return
	}
	if err := h.accounts.RequestVerification(r.Context(), email); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "if the email exists, a verification link has been sent")
}

// VerifyEmail redeems a verification token.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	if _, err := h.accounts.RedeemVerificationToken(r.Context(), req.Token); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "email verified")
}

// RequestPasswordReset answers identically whether or not the email is registered.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	email, ok := h.decodeEmail(w, r)
	if !ok {
		return
	}
	if err := h.accounts.RequestPasswordReset(r.Context(), email); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "if the email exists, a password reset link has been sent")
}

// ResetPassword redeems a reset token and sets a new password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "token and new password are required")
		return
	}
	if len(req.NewPassword) > maxPasswordBytes {
		writeError(w, http.StatusBadRequest, "password must be at most 72 bytes")
		return
	}

	if err := h.accounts.RedeemResetToken(r.Context(), req.Token, req.NewPassword); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "password reset")
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeServiceError(w, h.logger, auth.ErrUnauthenticated)
		return
	}

	user, err := h.auth.Profile(r.Context(), identity.ID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) decodeEmail(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req EmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return "", false
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return "", false
	}
	return req.Email, true
}
