package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/meincms/apiserver/internal/db"
	"github.com/meincms/apiserver/types"
)

// ResetTokenRepository handles persistence for password reset tokens.
type ResetTokenRepository struct {
	db db.DBTX
}

func NewResetTokenRepository(db db.DBTX) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

func (r *ResetTokenRepository) Create(ctx context.Context, token types.PasswordResetToken) (types.PasswordResetToken, error) {
	token.CreatedAt = time.Now()

	const query = `
		INSERT INTO password_reset_tokens (user_id, token, expires_at, used, created_at)
		VALUES ($1, $2, $3, FALSE, $4)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		token.CreatedAt,
	).Scan(&token.ID); err != nil {
		return types.PasswordResetToken{}, err
	}
	token.Used = false
	return token, nil
}

func (r *ResetTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (types.PasswordResetToken, error) {
	const query = `
		SELECT id, user_id, token, expires_at, used, created_at
		FROM password_reset_tokens
		WHERE token = $1`
	var token types.PasswordResetToken
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.Used,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.PasswordResetToken{}, ErrNotFound
		}
		return types.PasswordResetToken{}, err
	}
	return token, nil
}

// MarkUsed flips the used flag. It fails with ErrNotFound when the token is
// unknown or was already used, so concurrent redemptions cannot both win.
func (r *ResetTokenRepository) MarkUsed(ctx context.Context, id int) error {
	const query = `UPDATE password_reset_tokens SET used = TRUE WHERE id = $1 AND used = FALSE`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}
