/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/meincms/apiserver/config"
	"github.com/meincms/apiserver/internal/auth"
	"github.com/meincms/apiserver/internal/logging"
	"github.com/meincms/apiserver/internal/server"
	"github.com/meincms/apiserver/internal/services"
	"github.com/meincms/apiserver/types"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed initial data",
}

var seedAdminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Create the initial admin account from SEED_ADMIN_* settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.Logging, cfg.Env)

		seed := cfg.SeedAdmin
		if seed.Email == "" || seed.Password == "" {
			return errors.New("SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD are required")
		}

		app, err := server.NewApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		result, err := app.Auth.Register(cmd.Context(), services.RegisterInput{
			Username: seed.Username,
			Email:    seed.Email,
			Password: seed.Password,
			Role:     types.RoleAdmin.String(),
		})
		if errors.Is(err, auth.ErrAccountExists) {
			logger.Info("admin account already exists", slog.String("email", seed.Email))
			return nil
		}
		if err != nil {
			return fmt.Errorf("seed admin failed: %w", err)
		}

		logger.Info("admin account created",
			slog.Int("user_id", result.User.ID),
			slog.String("email", result.User.Email),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.AddCommand(seedAdminCmd)
}
