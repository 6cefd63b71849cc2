package main

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nwspush/nwspush/internal/config"
	"github.com/nwspush/nwspush/internal/poller"
	"github.com/nwspush/nwspush/internal/store"
)

var pruneDays int

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove ledger records and log files older than the retention window",
	Run: func(cmd *cobra.Command, args []string) {
		prune()
	},
}

func init() {
	pruneCmd.Flags().IntVar(&pruneDays, "days", 0, "Override the retention window in days.")
}

func prune() {
	ctx := context.Background()
	clock := clockwork.NewRealClock()

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return
	}
	if cfg.DatabaseURL == "" {
		log.Error().Msg("DATABASE_URL is required to prune the ledger")
		return
	}

	days := cfg.RetentionDays
	if pruneDays > 0 {
		days = pruneDays
	}
	cutoff := clock.Now().UTC().AddDate(0, 0, -days)

	ledger, err := store.NewPostgres(ctx, cfg.DatabaseURL, clock)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialise ledger")
		return
	}
	defer ledger.Close()

	removed, err := ledger.PruneBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("ledger prune failed")
		return
	}
	logsRemoved := poller.PruneLogs(cfg.LogDir, cutoff)

	log.Info().
		Int64("ledger_removed", removed).
		Int("logs_removed", logsRemoved).
		Time("cutoff", cutoff).
		Msg("prune complete")
}
