/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/meincms/apiserver/config"
	"github.com/meincms/apiserver/internal/logging"
	"github.com/meincms/apiserver/internal/mq"
	"github.com/meincms/apiserver/internal/notify"
	"github.com/spf13/cobra"
)

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Inspect account notification traffic",
}

var notificationsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Subscribe to the notification channel and log each event",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.Logging, cfg.Env)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg)
		if errors.Is(err, mq.ErrNoBackend) {
			return errors.New("MQ_BACKEND is not set")
		}
		if err != nil {
			return err
		}
		defer queue.Close()

		logger.Info("tailing notifications", slog.String("channel", cfg.MQ.NotificationChannel))
		err = queue.Subscribe(ctx, cfg.MQ.NotificationChannel, func(_ context.Context, msg mq.Message) error {
			var event notify.Event
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				logger.Warn("undecodable notification", slog.String("message_id", msg.ID), slog.String("error", err.Error()))
				return nil
			}
			logger.Info("notification",
				slog.String("id", event.ID.String()),
				slog.String("kind", event.Kind),
				slog.String("recipient", event.Recipient),
				slog.Time("created_at", event.CreatedAt),
			)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("subscribe failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notificationsCmd)
	notificationsCmd.AddCommand(notificationsTailCmd)
}
