package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/meincms/apiserver/types"
)

func TestResetTokenCreate(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()
	repo := NewResetTokenRepository(db)

	expires := time.Now().Add(time.Hour)
	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+password_reset_tokens\s*\(user_id,\s*token,\s*expires_at,\s*used,\s*created_at\).*RETURNING\s+id`).
		WithArgs(3, "digest", expires, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(21))

	got, err := repo.Create(context.Background(), types.PasswordResetToken{UserID: 3, TokenHash: "digest", ExpiresAt: expires})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != 21 || got.Used {
		t.Fatalf("unexpected token: %+v", got)
	}
}

func TestResetTokenGetByTokenHash(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()
	repo := NewResetTokenRepository(db)

	now := time.Now()
	mock.ExpectQuery(`(?s)FROM\s+password_reset_tokens\s+WHERE\s+token\s*=\s*\$1`).
		WithArgs("digest").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "used", "created_at"}).
			AddRow(21, 3, "digest", now.Add(time.Hour), true, now))

	got, err := repo.GetByTokenHash(context.Background(), "digest")
	if err != nil {
		t.Fatalf("GetByTokenHash error: %v", err)
	}
	if got.UserID != 3 || !got.Used {
		t.Fatalf("unexpected token: %+v", got)
	}

	mock.ExpectQuery(`(?s)FROM\s+password_reset_tokens`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "used", "created_at"}))
	if _, err := repo.GetByTokenHash(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByTokenHash error = %v, want ErrNotFound", err)
	}
}

func TestResetTokenMarkUsed_AlreadyUsed(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()
	repo := NewResetTokenRepository(db)

	mock.ExpectExec(`UPDATE\s+password_reset_tokens\s+SET\s+used\s*=\s*TRUE\s+WHERE\s+id\s*=\s*\$1\s+AND\s+used\s*=\s*FALSE`).
		WithArgs(21).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.MarkUsed(context.Background(), 21); !errors.Is(err, ErrNotFound) {
		t.Fatalf("MarkUsed error = %v, want ErrNotFound", err)
	}
}
