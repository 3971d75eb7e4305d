package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/meincms/apiserver/internal/auth"
	"github.com/meincms/apiserver/internal/metrics"
	"github.com/meincms/apiserver/internal/notify"
	"github.com/meincms/apiserver/internal/store"
	"github.com/meincms/apiserver/types"
)

// DefaultRegisterRole is assigned when registration names no role.
const DefaultRegisterRole = types.RoleGuest

// dummyPasswordHash keeps login timing flat for unknown emails.
var dummyPasswordHash = sync.OnceValue(func() string {
	hash, err := auth.HashPassword("not-a-real-password")
	if err != nil {
		panic(fmt.Sprintf("services: dummy password hash: %v", err))
	}
	return hash
})

// AuthResult is returned by Login and Register.
type AuthResult struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     string
	// MaxRole caps the role a caller may request. Empty means no cap.
	MaxRole types.Role
}

// AuthService authenticates requests and manages credentials.
type AuthService struct {
	repos         Repositories
	tokens        *auth.TokenService
	accountTokens *AccountTokenService
	dispatch      *dispatcher
	metrics       *metrics.Metrics
	logger        *slog.Logger
	now           func() time.Time
}

func NewAuthService(
	repos Repositories,
	tokens *auth.TokenService,
	accountTokens *AccountTokenService,
	notifier Notifier,
	logger *slog.Logger,
	m *metrics.Metrics,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		repos:         repos,
		tokens:        tokens,
		accountTokens: accountTokens,
		dispatch:      newDispatcher(notifier, logger, m),
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}

// Authenticate resolves an Authorization header value to an identity.
func (s *AuthService) Authenticate(header string) (auth.Identity, error) {
	raw, ok := bearerToken(header)
	if !ok {
		return auth.Identity{}, auth.ErrUnauthenticated
	}
	return s.tokens.Verify(raw)
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireRoles fails with ErrForbidden unless identity holds one of allowed.
func (s *AuthService) RequireRoles(identity auth.Identity, allowed ...types.Role) error {
	if auth.Authorize(identity.Role, allowed...) {
		return nil
	}
	names := make([]string, len(allowed))
	for i, role := range allowed {
		names[i] = role.String()
	}
	return fmt.Errorf("%w: requires one of [%s]", auth.ErrForbidden, strings.Join(names, ", "))
}

// RequireMinRole fails with ErrForbidden unless identity ranks at or above min.
func (s *AuthService) RequireMinRole(identity auth.Identity, min types.Role) error {
	if auth.AuthorizeMinRole(identity.Role, min) {
		return nil
	}
	return fmt.Errorf("%w: requires %s or higher", auth.ErrForbidden, min)
}

// Login checks credentials and returns a session token. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	const op = "services.AuthService.Login"

	result, err := s.login(ctx, strings.TrimSpace(email), password)
	s.metrics.AuthEvent("login", outcomeOf(err))
	if err != nil && !isAuthError(err) {
		return AuthResult{}, fmt.Errorf("%s: %w", op, err)
	}
	return result, err
}

func (s *AuthService) login(ctx context.Context, email, password string) (AuthResult, error) {
	user, err := s.repos.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			auth.VerifyPassword(password, dummyPasswordHash())
			return AuthResult{}, auth.ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	if !user.IsActive {
		return AuthResult{}, auth.ErrAccountDeactivated
	}
	if !auth.VerifyPassword(password, user.PasswordHash) {
		return AuthResult{}, auth.ErrInvalidCredentials
	}

	now := s.now()
	if err := s.repos.Users().TouchLastLogin(ctx, user.ID, now); err != nil {
		return AuthResult{}, err
	}
	user.LastLoginAt = &now

	token, err := s.tokens.Issue(auth.IdentityOf(user))
	if err != nil {
		return AuthResult{}, err
	}

	s.logger.Info("user logged in", slog.Int("user_id", user.ID))
	return AuthResult{Token: token, User: user}, nil
}

// Register creates an active, unverified account, sends its verification
// link and returns a session token for immediate use.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	const op = "services.AuthService.Register"

	result, err := s.register(ctx, in)
	s.metrics.AuthEvent("register", outcomeOf(err))
	if err != nil && !isAuthError(err) {
		return AuthResult{}, fmt.Errorf("%s: %w", op, err)
	}
	return result, err
}

func (s *AuthService) register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	role := DefaultRegisterRole
	if strings.TrimSpace(in.Role) != "" {
		parsed, ok := types.ParseRole(in.Role)
		if !ok {
			return AuthResult{}, auth.ErrInvalidRole
		}
		role = parsed
	}
	if in.MaxRole != "" && role.Level() > in.MaxRole.Level() {
		return AuthResult{}, fmt.Errorf("%w: self-registration is limited to %s", auth.ErrForbidden, in.MaxRole)
	}

	username, email, err := requireIdentifiers(in.Username, in.Email)
	if err != nil {
		return AuthResult{}, err
	}

	exists, err := s.repos.Users().ExistsByEmailOrUsername(ctx, email, username)
	if err != nil {
		return AuthResult{}, err
	}
	if exists {
		return AuthResult{}, auth.ErrAccountExists
	}

	passwordHash, err := auth.HashPassword(in.Password)
	if err != nil {
		return AuthResult{}, err
	}

	verification, err := s.accountTokens.newVerification()
	if err != nil {
		return AuthResult{}, err
	}

	user, err := s.repos.Users().Create(ctx, types.User{
		Username:              username,
		Email:                 email,
		PasswordHash:          passwordHash,
		Role:                  role,
		IsActive:              true,
		IsVerified:            false,
		VerificationTokenHash: &verification.hash,
		VerificationExpiresAt: &verification.expiresAt,
	})
	if err != nil {
		if store.IsUniqueViolation(err) {
			return AuthResult{}, auth.ErrAccountExists
		}
		return AuthResult{}, err
	}

	s.dispatch.send(ctx, notify.KindVerification, user.Email, func(ctx context.Context, n Notifier) error {
		return n.SendVerificationEmail(ctx, user.Email, verification.raw, user.Username)
	})

	token, err := s.tokens.Issue(auth.IdentityOf(user))
	if err != nil {
		return AuthResult{}, err
	}

	s.logger.Info("user registered", slog.Int("user_id", user.ID), slog.String("role", role.String()))
	return AuthResult{Token: token, User: user}, nil
}

// Profile returns the account behind an authenticated identity.
func (s *AuthService) Profile(ctx context.Context, id int) (types.User, error) {
	user, err := s.repos.Users().GetByID(ctx, id)
	if err != nil {
		return types.User{}, fmt.Errorf("services.AuthService.Profile: %w", err)
	}
	return user, nil
}

// WaitNotifications blocks until in-flight notifications have finished.
func (s *AuthService) WaitNotifications() {
	s.dispatch.wait()
}
