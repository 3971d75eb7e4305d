package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/meincms/apiserver/config"
	"github.com/meincms/apiserver/internal/auth"
	"github.com/stretchr/testify/require"
)

func TestSQLRedeemResetRollsBack(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer conn.Close()

	account := NewAccountTokenService(NewSQLRepositories(conn), nil, config.AuthConfig{}, discardLogger(), nil)

	now := time.Now()
	mock.ExpectQuery(`FROM\s+password_reset_tokens\s+WHERE\s+token\s*=\s*\$1`).
		WithArgs(auth.HashToken("raw-token")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "used", "created_at"}).
			AddRow(5, 11, auth.HashToken("raw-token"), now.Add(time.Hour), false, now))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE\s+password_reset_tokens\s+SET\s+used\s*=\s*TRUE`).
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE\s+users\s+SET\s+password_hash`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 11).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err = account.RedeemResetToken(context.Background(), "raw-token", "new-password")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRedeemResetCommits(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer conn.Close()

	account := NewAccountTokenService(NewSQLRepositories(conn), nil, config.AuthConfig{}, discardLogger(), nil)

	now := time.Now()
	mock.ExpectQuery(`FROM\s+password_reset_tokens`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "used", "created_at"}).
			AddRow(5, 11, auth.HashToken("raw-token"), now.Add(time.Hour), false, now))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE\s+password_reset_tokens`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE\s+users\s+SET\s+password_hash`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, account.RedeemResetToken(context.Background(), "raw-token", "new-password"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepositoriesNestedTx(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	repos := NewSQLRepositories(conn)
	calls := 0
	err = repos.WithTx(context.Background(), func(ctx context.Context, tx Repositories) error {
		return tx.WithTx(ctx, func(context.Context, Repositories) error {
			calls++
			return nil
		})
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.NoError(t, mock.ExpectationsWereMet())
}
