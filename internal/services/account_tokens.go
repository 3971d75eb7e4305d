package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meincms/apiserver/config"
	"github.com/meincms/apiserver/internal/auth"
	"github.com/meincms/apiserver/internal/metrics"
	"github.com/meincms/apiserver/internal/notify"
	"github.com/meincms/apiserver/internal/store"
	"github.com/meincms/apiserver/types"
)

const (
	defaultVerificationTTL = 24 * time.Hour
	defaultResetTTL        = time.Hour
)

// AccountTokenService issues and redeems single-use email verification and
// password reset tokens. Raw tokens only ever leave through the notifier;
// the database holds their SHA-256 digests.
type AccountTokenService struct {
	repos           Repositories
	dispatch        *dispatcher
	metrics         *metrics.Metrics
	verificationTTL time.Duration
	resetTTL        time.Duration
	now             func() time.Time
}

func NewAccountTokenService(repos Repositories, notifier Notifier, cfg config.AuthConfig, logger *slog.Logger, m *metrics.Metrics) *AccountTokenService {
	if logger == nil {
		logger = slog.Default()
	}
	verificationTTL := cfg.VerificationTTL
	if verificationTTL <= 0 {
		verificationTTL = defaultVerificationTTL
	}
	resetTTL := cfg.ResetTTL
	if resetTTL <= 0 {
		resetTTL = defaultResetTTL
	}

	return &AccountTokenService{
		repos:           repos,
		dispatch:        newDispatcher(notifier, logger, m),
		metrics:         m,
		verificationTTL: verificationTTL,
		resetTTL:        resetTTL,
		now:             time.Now,
	}
}

type mintedToken struct {
	raw       string
	hash      string
	expiresAt time.Time
}

func (s *AccountTokenService) mint(ttl time.Duration) (mintedToken, error) {
	raw, err := auth.NewOpaqueToken()
	if err != nil {
		return mintedToken{}, err
	}
	return mintedToken{
		raw:       raw,
		hash:      auth.HashToken(raw),
		expiresAt: s.now().Add(ttl),
	}, nil
}

// newVerification mints a verification token without persisting it.
func (s *AccountTokenService) newVerification() (mintedToken, error) {
	return s.mint(s.verificationTTL)
}

// IssueVerificationToken replaces the account's verification token with a
// fresh one and returns the raw value.
func (s *AccountTokenService) IssueVerificationToken(ctx context.Context, userID int) (string, error) {
	const op = "services.AccountTokenService.IssueVerificationToken"

	token, err := s.newVerification()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repos.Users().SetVerificationToken(ctx, userID, token.hash, token.expiresAt); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return token.raw, nil
}

// RedeemVerificationToken marks the holder of token as verified and returns its id.
// An expired token is left in place so the account stays unverified.
func (s *AccountTokenService) RedeemVerificationToken(ctx context.Context, token string) (int, error) {
	const op = "services.AccountTokenService.RedeemVerificationToken"

	id, err := s.redeemVerification(ctx, token)
	s.metrics.AuthEvent("verify_email", outcomeOf(err))
	if err != nil && !isAuthError(err) {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, err
}

func (s *AccountTokenService) redeemVerification(ctx context.Context, token string) (int, error) {
	if token == "" {
		return 0, auth.ErrTokenNotFound
	}
	tokenHash := auth.HashToken(token)

	user, err := s.repos.Users().GetByVerificationToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, auth.ErrTokenNotFound
		}
		return 0, err
	}

	if user.VerificationExpiresAt == nil || s.now().After(*user.VerificationExpiresAt) {
		return 0, auth.ErrTokenExpired
	}

	if err := s.repos.Users().MarkVerified(ctx, user.ID, tokenHash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, auth.ErrTokenNotFound
		}
		return 0, err
	}

	s.dispatch.send(ctx, notify.KindWelcome, user.Email, func(ctx context.Context, n Notifier) error {
		return n.SendWelcomeEmail(ctx, user.Email, user.Username)
	})
	return user.ID, nil
}

// IssueResetToken stores a new reset token for userID and returns the raw value.
// Earlier reset tokens stay valid until they expire or are used.
func (s *AccountTokenService) IssueResetToken(ctx context.Context, userID int) (string, error) {
	const op = "services.AccountTokenService.IssueResetToken"

	token, err := s.mint(s.resetTTL)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	_, err = s.repos.ResetTokens().Create(ctx, types.PasswordResetToken{
		UserID:    userID,
		TokenHash: token.hash,
		ExpiresAt: token.expiresAt,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return token.raw, nil
}

// RedeemResetToken sets a new password for the token's owner. The password
// change and consuming the token commit together or not at all.
func (s *AccountTokenService) RedeemResetToken(ctx context.Context, token, newPassword string) error {
	const op = "services.AccountTokenService.RedeemResetToken"

	err := s.redeemReset(ctx, token, newPassword)
	s.metrics.AuthEvent("reset_password", outcomeOf(err))
	if err != nil && !isAuthError(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return err
}

func (s *AccountTokenService) redeemReset(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < auth.MinPasswordLength {
		return auth.ErrWeakPassword
	}
	if token == "" {
		return auth.ErrTokenNotFound
	}

	reset, err := s.repos.ResetTokens().GetByTokenHash(ctx, auth.HashToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return auth.ErrTokenNotFound
		}
		return err
	}
	if reset.Used {
		return auth.ErrTokenUsed
	}
	if s.now().After(reset.ExpiresAt) {
		return auth.ErrTokenExpired
	}

	passwordHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}

	return s.repos.WithTx(ctx, func(ctx context.Context, repos Repositories) error {
		// Conditional on used = false, so a concurrent redemption loses here.
		if err := repos.ResetTokens().MarkUsed(ctx, reset.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return auth.ErrTokenUsed
			}
			return err
		}
		return repos.Users().UpdatePasswordHash(ctx, reset.UserID, passwordHash)
	})
}

// RequestVerification sends a fresh verification link to email. Unknown and
// already verified addresses succeed silently so callers cannot probe accounts.
func (s *AccountTokenService) RequestVerification(ctx context.Context, email string) error {
	const op = "services.AccountTokenService.RequestVerification"

	user, err := s.repos.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if user.IsVerified {
		return nil
	}

	token, err := s.IssueVerificationToken(ctx, user.ID)
	if err != nil {
		return err
	}
	s.dispatch.send(ctx, notify.KindVerification, user.Email, func(ctx context.Context, n Notifier) error {
		return n.SendVerificationEmail(ctx, user.Email, token, user.Username)
	})
	return nil
}

// RequestPasswordReset sends a reset link to email. Unknown addresses succeed silently.
func (s *AccountTokenService) RequestPasswordReset(ctx context.Context, email string) error {
	const op = "services.AccountTokenService.RequestPasswordReset"

	user, err := s.repos.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	token, err := s.IssueResetToken(ctx, user.ID)
	if err != nil {
		return err
	}
	s.dispatch.send(ctx, notify.KindPasswordReset, user.Email, func(ctx context.Context, n Notifier) error {
		return n.SendPasswordResetEmail(ctx, user.Email, token, user.Username)
	})
	return nil
}

// WaitNotifications blocks until in-flight notifications have finished.
func (s *AccountTokenService) WaitNotifications() {
	s.dispatch.wait()
}
