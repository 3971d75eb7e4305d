package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/meincms/apiserver/internal/auth"
	"github.com/meincms/apiserver/internal/store"
	"github.com/meincms/apiserver/types"
)

// CreateUserInput describes an account created by an administrator.
type CreateUserInput struct {
	Username   string
	Email      string
	Password   string
	Role       string
	IsActive   *bool
	IsVerified *bool
}

// UpdateUserInput carries optional changes; nil fields are left untouched.
type UpdateUserInput struct {
	Username   *string
	Email      *string
	Role       *string
	IsActive   *bool
	IsVerified *bool
	Password   *string
}

func (in UpdateUserInput) empty() bool {
	return in.Username == nil && in.Email == nil && in.Role == nil &&
		in.IsActive == nil && in.IsVerified == nil && (in.Password == nil || *in.Password == "")
}

const (
	// ListLimit caps the admin user listing.
	ListLimit = 500
	// recentUsersLimit is how many new accounts Stats reports.
	recentUsersLimit = 5
)

// Stats summarises the account population.
type Stats struct {
	TotalUsers  int               `json:"total_users"`
	UsersByRole []types.RoleCount `json:"users_by_role"`
	RecentUsers []types.User      `json:"recent_users"`
}

// UserService encapsulates administrative user use-cases.
type UserService struct {
	repos Repositories
}

func NewUserService(repos Repositories) *UserService {
	return &UserService{repos: repos}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repos.Users().GetByID(ctx, id)
}

// Create inserts an account directly, bypassing email verification.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (types.User, error) {
	role := DefaultRegisterRole
	if strings.TrimSpace(in.Role) != "" {
		parsed, ok := types.ParseRole(in.Role)
		if !ok {
			return types.User{}, auth.ErrInvalidRole
		}
		role = parsed
	}

	username, email, err := requireIdentifiers(in.Username, in.Email)
	if err != nil {
		return types.User{}, err
	}

	exists, err := s.repos.Users().ExistsByEmailOrUsername(ctx, email, username)
	if err != nil {
		return types.User{}, fmt.Errorf("services.UserService.Create: %w", err)
	}
	if exists {
		return types.User{}, auth.ErrAccountExists
	}

	passwordHash, err := auth.HashPassword(in.Password)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.repos.Users().Create(ctx, types.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		IsActive:     valueOr(in.IsActive, true),
		IsVerified:   valueOr(in.IsVerified, false),
	})
	if err != nil {
		if store.IsUniqueViolation(err) {
			return types.User{}, auth.ErrAccountExists
		}
		return types.User{}, fmt.Errorf("services.UserService.Create: %w", err)
	}
	return user, nil
}

// Update applies the non-nil fields of in to the account.
func (s *UserService) Update(ctx context.Context, id int, in UpdateUserInput) (types.User, error) {
	if in.empty() {
		return types.User{}, ErrNoChanges
	}

	var username, email string
	if in.Username != nil {
		if username = strings.TrimSpace(*in.Username); username == "" {
			return types.User{}, fmt.Errorf("%w: username must not be blank", ErrInvalidInput)
		}
	}
	if in.Email != nil {
		if email = strings.TrimSpace(*in.Email); email == "" {
			return types.User{}, fmt.Errorf("%w: email must not be blank", ErrInvalidInput)
		}
	}

	var role types.Role
	if in.Role != nil {
		parsed, ok := types.ParseRole(*in.Role)
		if !ok {
			return types.User{}, auth.ErrInvalidRole
		}
		role = parsed
	}

	var passwordHash string
	if in.Password != nil && *in.Password != "" {
		hashed, err := auth.HashPassword(*in.Password)
		if err != nil {
			return types.User{}, err
		}
		passwordHash = hashed
	}

	var updated types.User
	err := s.repos.WithTx(ctx, func(ctx context.Context, repos Repositories) error {
		user, err := repos.Users().GetByID(ctx, id)
		if err != nil {
			return err
		}

		if username != "" {
			user.Username = username
		}
		if email != "" {
			user.Email = email
		}
		if role != "" {
			user.Role = role
		}
		if in.IsActive != nil {
			user.IsActive = *in.IsActive
		}
		if in.IsVerified != nil {
			user.IsVerified = *in.IsVerified
		}
		if passwordHash != "" {
			user.PasswordHash = passwordHash
		}

		updated, err = repos.Users().Update(ctx, user)
		return err
	})
	if err != nil {
		if store.IsUniqueViolation(err) {
			return types.User{}, auth.ErrAccountExists
		}
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, err
		}
		return types.User{}, fmt.Errorf("services.UserService.Update: %w", err)
	}
	return updated, nil
}

// Delete removes an account. Administrators cannot delete themselves.
func (s *UserService) Delete(ctx context.Context, actor auth.Identity, id int) error {
	if actor.ID == id {
		return ErrSelfDelete
	}
	return s.repos.Users().Delete(ctx, id)
}

// List returns accounts newest first, capped at ListLimit.
func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	users, err := s.repos.Users().List(ctx, ListLimit)
	if err != nil {
		return nil, fmt.Errorf("services.UserService.List: %w", err)
	}
	return users, nil
}

// Stats returns account counts by role and the newest accounts.
func (s *UserService) Stats(ctx context.Context) (Stats, error) {
	const op = "services.UserService.Stats"

	counts, err := s.repos.Users().CountByRole(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("%s: %w", op, err)
	}
	recent, err := s.repos.Users().List(ctx, recentUsersLimit)
	if err != nil {
		return Stats{}, fmt.Errorf("%s: %w", op, err)
	}

	stats := Stats{UsersByRole: counts, RecentUsers: recent}
	for _, count := range counts {
		stats.TotalUsers += count.Count
	}
	return stats, nil
}

// requireIdentifiers trims username and email and rejects blanks.
func requireIdentifiers(username, email string) (string, string, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" {
		return "", "", fmt.Errorf("%w: username and email are required", ErrInvalidInput)
	}
	return username, email, nil
}

func valueOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}
