package main

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nwspush/nwspush/internal/config"
	"github.com/nwspush/nwspush/internal/dashboard"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verify dashboard credentials and persist the session",
	Run: func(cmd *cobra.Command, args []string) {
		login()
	},
}

func login() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return
	}

	push, err := dashboard.New(cfg, clockwork.NewRealClock())
	if err != nil {
		log.Error().Err(err).Msg("failed to initialise dashboard client")
		return
	}
	push.LoadSession(cfg.CookieFile)

	if push.LoggedIn(ctx) {
		log.Info().Msg("existing session is still valid")
		return
	}

	if err := push.Login(ctx); err != nil {
		log.Error().Err(err).Msg("login failed")
		return
	}
	if err := push.SaveSession(cfg.CookieFile); err != nil {
		log.Error().Err(err).Msg("failed to persist session")
		return
	}
	log.Info().Str("path", cfg.CookieFile).Msg("session persisted")
}
