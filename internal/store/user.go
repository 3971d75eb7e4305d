package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/meincms/apiserver/internal/db"
	"github.com/meincms/apiserver/types"
)

const userColumns = `id, username, email, role, password_hash, is_active, is_verified,
		       verification_token, verification_token_expires, last_login, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db db.DBTX
}

func NewUserRepository(db db.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var (
		user         types.User
		role         string
		verification sql.NullString
		expires      sql.NullTime
		lastLogin    sql.NullTime
	)
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&role,
		&user.PasswordHash,
		&user.IsActive,
		&user.IsVerified,
		&verification,
		&expires,
		&lastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}

	user.Role = types.Role(role)
	if verification.Valid {
		user.VerificationTokenHash = &verification.String
	}
	if expires.Valid {
		user.VerificationExpiresAt = &expires.Time
	}
	if lastLogin.Valid {
		user.LastLoginAt = &lastLogin.Time
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// GetByVerificationToken finds the account holding the given verification token digest.
func (r *UserRepository) GetByVerificationToken(ctx context.Context, tokenHash string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE verification_token = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, tokenHash))
}

// ExistsByEmailOrUsername reports whether either identifier is taken, in one query.
func (r *UserRepository) ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 OR username = $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, email, username).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (username, email, password_hash, role, is_active, is_verified,
		                   verification_token, verification_token_expires, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.IsActive,
		user.IsVerified,
		nullString(user.VerificationTokenHash),
		nullTime(user.VerificationExpiresAt),
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET username = $1,
			email = $2,
			role = $3,
			is_active = $4,
			is_verified = $5,
			password_hash = $6,
			updated_at = $7
		WHERE id = $8`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Username,
		user.Email,
		string(user.Role),
		user.IsActive,
		user.IsVerified,
		user.PasswordHash,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, err
	}
	if err := expectAffected(result); err != nil {
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id int, passwordHash string) error {
	const query = `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, passwordHash, time.Now(), id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id int, at time.Time) error {
	const query = `UPDATE users SET last_login = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// SetVerificationToken replaces the account's outstanding verification token.
// An account holds at most one; writing a new one invalidates the previous.
func (r *UserRepository) SetVerificationToken(ctx context.Context, id int, tokenHash string, expiresAt time.Time) error {
	const query = `
		UPDATE users
		SET verification_token = $1,
			verification_token_expires = $2,
			updated_at = $3
		WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, tokenHash, expiresAt, time.Now(), id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// MarkVerified sets the verified flag and clears the token fields, but only
// while tokenHash is still the account's outstanding token.
func (r *UserRepository) MarkVerified(ctx context.Context, id int, tokenHash string) error {
	const query = `
		UPDATE users
		SET is_verified = TRUE,
			verification_token = NULL,
			verification_token_expires = NULL,
			updated_at = $1
		WHERE id = $2 AND verification_token = $3`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id, tokenHash)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

func (r *UserRepository) CountByRole(ctx context.Context) ([]types.RoleCount, error) {
	const query = `
		SELECT role, COUNT(1)
		FROM users
		GROUP BY role
		ORDER BY role`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make([]types.RoleCount, 0, len(types.AllRoles()))
	for rows.Next() {
		var (
			role  string
			count int
		)
		if err := rows.Scan(&role, &count); err != nil {
			return nil, err
		}
		counts = append(counts, types.RoleCount{Role: types.Role(role), Count: count})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

// List returns up to limit accounts, newest first.
func (r *UserRepository) List(ctx context.Context, limit int) ([]types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at DESC, id DESC
		LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]types.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func expectAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}
