package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/meincms/apiserver/config"
	"github.com/meincms/apiserver/internal/auth"
	"github.com/meincms/apiserver/internal/db"
	"github.com/meincms/apiserver/internal/metrics"
	"github.com/meincms/apiserver/internal/mq"
	"github.com/meincms/apiserver/internal/notify"
	"github.com/meincms/apiserver/internal/services"
	"github.com/meincms/apiserver/types"
)

// App holds the wired services shared by the HTTP server and CLI commands.
type App struct {
	Config        config.Config
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
	Auth          *services.AuthService
	AccountTokens *services.AccountTokenService
	Users         *services.UserService

	db *sql.DB
	mq *mq.MQ
}

// NewApp validates cfg, connects to Postgres and the optional message
// queue, and builds the service layer.
func NewApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	const op = "server.NewApp"

	if logger == nil {
		logger = slog.Default()
	}

	warnings, err := cfg.Validate()
	for _, warning := range warnings {
		logger.Warn(warning)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	secret, err := signingSecret(cfg.Auth.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	conn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: open database: %w", op, err)
	}

	queue, notifier, err := openNotifier(ctx, cfg, logger)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	m := metrics.New()
	repos := services.NewSQLRepositories(conn)
	tokens := auth.NewTokenService(secret, cfg.Auth.TokenTTL)
	accountTokens := services.NewAccountTokenService(repos, notifier, cfg.Auth, logger, m)

	return &App{
		Config:        cfg,
		Logger:        logger,
		Metrics:       m,
		Auth:          services.NewAuthService(repos, tokens, accountTokens, notifier, logger, m),
		AccountTokens: accountTokens,
		Users:         services.NewUserService(repos),
		db:            conn,
		mq:            queue,
	}, nil
}

// SelfRegisterMaxRole is the highest role public registration may request.
func (a *App) SelfRegisterMaxRole() (types.Role, error) {
	role, ok := types.ParseRole(a.Config.Auth.SelfRegisterMaxRole)
	if !ok {
		return "", fmt.Errorf("invalid SELF_REGISTER_MAX_ROLE %q", a.Config.Auth.SelfRegisterMaxRole)
	}
	return role, nil
}

// Close waits for pending notifications, then releases the database and
// message queue connections.
func (a *App) Close() error {
	if a.Auth != nil {
		a.Auth.WaitNotifications()
	}
	if a.AccountTokens != nil {
		a.AccountTokens.WaitNotifications()
	}

	var errs []error
	if a.mq != nil {
		errs = append(errs, a.mq.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

// openNotifier picks the queue notifier when a backend is configured and
// falls back to logging links otherwise.
func openNotifier(ctx context.Context, cfg config.Config, logger *slog.Logger) (*mq.MQ, services.Notifier, error) {
	queue, err := mq.Open(ctx, cfg)
	switch {
	case errors.Is(err, mq.ErrNoBackend):
		logger.Info("no message queue configured, notifications are logged")
		return nil, notify.NewLogNotifier(cfg.AppURL, logger), nil
	case err != nil:
		return nil, nil, fmt.Errorf("open message queue: %w", err)
	}

	logger.Info("notifications published to message queue",
		slog.String("backend", cfg.MQ.Backend),
		slog.String("channel", cfg.MQ.NotificationChannel),
	)
	return queue, notify.NewQueueNotifier(queue, cfg.MQ.NotificationChannel, cfg.AppURL, logger), nil
}

// signingSecret returns the configured secret, or a random one when none is
// set. Validate has already refused an empty secret outside development.
func signingSecret(configured string) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate signing secret: %w", err)
	}
	return []byte(hex.EncodeToString(buf)), nil
}
