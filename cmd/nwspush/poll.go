package main

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nwspush/nwspush/internal/config"
	"github.com/nwspush/nwspush/internal/dashboard"
	"github.com/nwspush/nwspush/internal/geometry"
	"github.com/nwspush/nwspush/internal/nws"
	"github.com/nwspush/nwspush/internal/poller"
	"github.com/nwspush/nwspush/internal/store"
)

var ephemeral bool

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll the alerts feed and deliver pushes",
	Run: func(cmd *cobra.Command, args []string) {
		poll()
	},
}

func init() {
	pollCmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "Use an in-memory seen-alert ledger instead of the database.")
}

func poll() {
	ctx := context.Background()
	clock := clockwork.NewRealClock()

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return
	}

	var ledger store.Ledger
	if ephemeral || cfg.DatabaseURL == "" {
		log.Warn().Msg("using ephemeral in-memory ledger; seen alerts will not survive a restart")
		ledger = store.NewMemory(clock)
	} else {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL, clock)
		if err != nil {
			log.Error().Err(err).Msg("failed to initialise ledger")
			return
		}
		defer pg.Close()
		ledger = pg
	}

	push, err := dashboard.New(cfg, clock)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialise dashboard client")
		return
	}
	push.LoadSession(cfg.CookieFile)

	feed := nws.NewClient(cfg)
	resolver := geometry.NewResolver(feed)
	simplifier := geometry.NewSimplifier(cfg)
	health := poller.NewHealth(prometheus.DefaultRegisterer)

	if cfg.MetricsAddr != "" {
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, promhttp.Handler()); err != nil {
				log.Error().Err(err).Msg("metrics listener failed")
			}
		}()
	}

	p := poller.New(cfg, feed, resolver, simplifier, ledger, push, clock, health)
	if err := p.Run(ctx); err != nil {
		log.Error().Err(err).Msg("poll loop stopped")
	}
}
