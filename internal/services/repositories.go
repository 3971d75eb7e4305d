package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/meincms/apiserver/internal/db"
	"github.com/meincms/apiserver/internal/store"
	"github.com/meincms/apiserver/types"
)

// UserRepository defines persistence operations for users.
// Lookups return store.ErrNotFound when no row matches.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByVerificationToken(ctx context.Context, tokenHash string) (types.User, error)
	ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id int) error
	UpdatePasswordHash(ctx context.Context, id int, passwordHash string) error
	TouchLastLogin(ctx context.Context, id int, at time.Time) error
	SetVerificationToken(ctx context.Context, id int, tokenHash string, expiresAt time.Time) error
	MarkVerified(ctx context.Context, id int, tokenHash string) error
	CountByRole(ctx context.Context) ([]types.RoleCount, error)
	List(ctx context.Context, limit int) ([]types.User, error)
}

// ResetTokenRepository defines persistence operations for password reset tokens.
type ResetTokenRepository interface {
	Create(ctx context.Context, token types.PasswordResetToken) (types.PasswordResetToken, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (types.PasswordResetToken, error)
	MarkUsed(ctx context.Context, id int) error
}

// Repositories hands out repositories bound to one database handle.
// Inside WithTx the repos passed to fn share a transaction.
type Repositories interface {
	Users() UserRepository
	ResetTokens() ResetTokenRepository
	WithTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// SQLRepositories implements Repositories on top of database/sql.
type SQLRepositories struct {
	conn *sql.DB
	dbtx db.DBTX
	inTx bool
}

func NewSQLRepositories(conn *sql.DB) *SQLRepositories {
	return &SQLRepositories{conn: conn, dbtx: conn}
}

func (r *SQLRepositories) Users() UserRepository {
	return store.NewUserRepository(r.dbtx)
}

func (r *SQLRepositories) ResetTokens() ResetTokenRepository {
	return store.NewResetTokenRepository(r.dbtx)
}

// WithTx runs fn in a transaction. Nested calls join the outer transaction.
func (r *SQLRepositories) WithTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	if r.inTx {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.conn, nil, func(ctx context.Context, tx db.DBTX) error {
		return fn(ctx, &SQLRepositories{conn: r.conn, dbtx: tx, inTx: true})
	})
}
