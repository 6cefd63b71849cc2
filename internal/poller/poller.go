// Package poller ties the fetcher, ledger, geometry pipeline, formatter, and
// delivery client into one cooperative polling loop.
package poller

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/nwspush/nwspush/internal/config"
	"github.com/nwspush/nwspush/internal/dashboard"
	"github.com/nwspush/nwspush/internal/geometry"
	"github.com/nwspush/nwspush/internal/nws"
	"github.com/nwspush/nwspush/internal/store"
	"github.com/nwspush/nwspush/pkg/headline"
)

// Pusher is the delivery-client surface the poller drives. Implemented by
// dashboard.Client; faked in tests.
type Pusher interface {
	LoggedIn(ctx context.Context) bool
	Login(ctx context.Context) error
	SaveSession(path string) error
	SendPush(ctx context.Context, message string, zones geometry.Payload) (*dashboard.Result, error)
}

// Poller drives the ingest/dedup/geometry/delivery pipeline. It is the only
// driver in the process; every operation it invokes blocks in sequence.
type Poller struct {
	cfg        *config.Config
	feed       *nws.Client
	resolver   *geometry.Resolver
	simplifier *geometry.Simplifier
	ledger     store.Ledger
	push       Pusher
	clock      clockwork.Clock
	health     *Health
	log        zerolog.Logger

	ignored   map[string]struct{}
	lastPrune string
}

func New(
	cfg *config.Config,
	feed *nws.Client,
	resolver *geometry.Resolver,
	simplifier *geometry.Simplifier,
	ledger store.Ledger,
	push Pusher,
	clock clockwork.Clock,
	health *Health,
) *Poller {
	ignored := make(map[string]struct{}, len(cfg.IgnoredEvents))
	for _, event := range cfg.IgnoredEvents {
		ignored[event] = struct{}{}
	}

	return &Poller{
		cfg:        cfg,
		feed:       feed,
		resolver:   resolver,
		simplifier: simplifier,
		ledger:     ledger,
		push:       push,
		clock:      clock,
		health:     health,
		log:        zlog.With().Str("component", "poller").Logger(),
		ignored:    ignored,
	}
}

// Run polls until the context is cancelled, sleeping the configured interval
// between iterations regardless of how long each took.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info().
		Dur("interval", p.cfg.PollInterval).
		Str("feed", p.cfg.AlertsURL).
		Msg("starting poll loop")

	for {
		p.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clock.After(p.cfg.PollInterval):
		}
	}
}

// RunOnce drives a single poll iteration. Nothing in the per-alert path is
// allowed to terminate the loop; failures are logged and scoped to the alert
// or page they occurred in.
func (p *Poller) RunOnce(ctx context.Context) {
	p.maybePrune(ctx)

	if err := p.ensureAuthenticated(ctx); err != nil {
		p.log.Error().Err(err).Msg("dashboard authentication failed, skipping iteration")
		return
	}

	pushes := 0
	err := p.feed.ActiveAlertPages(ctx, func(page nws.Page) error {
		p.processPage(ctx, page, &pushes)
		return nil
	})
	if err != nil {
		p.log.Error().Err(err).Msg("feed poll failed")
	}
}

func (p *Poller) ensureAuthenticated(ctx context.Context) error {
	if p.push.LoggedIn(ctx) {
		return nil
	}
	if err := p.push.Login(ctx); err != nil {
		return err
	}
	if err := p.push.SaveSession(p.cfg.CookieFile); err != nil {
		p.log.Warn().Err(err).Msg("failed to persist session")
	}
	return nil
}

// processPage partitions a page into new and already-seen alerts, refreshing
// the ledger's last-seen timestamp for the latter so active alerts are never
// pruned out from under the dedup window.
func (p *Poller) processPage(ctx context.Context, page nws.Page, pushes *int) {
	p.health.PagesFetched.Inc()

	var fresh []nws.Alert
	for _, alert := range page.Doc.Features {
		id := alert.AlertID()
		if id == "" {
			continue
		}
		seen, err := p.ledger.IsSeen(ctx, id)
		if err != nil {
			p.log.Error().Err(err).Str("alert", id).Msg("ledger lookup failed")
			continue
		}
		if seen {
			if err := p.ledger.MarkSeen(ctx, id); err != nil {
				p.log.Error().Err(err).Str("alert", id).Msg("ledger refresh failed")
			}
			continue
		}
		fresh = append(fresh, alert)
	}

	p.log.Info().
		Int("page", page.Index).
		Int("active", len(page.Doc.Features)).
		Int("new", len(fresh)).
		Str("url", page.URL).
		Msg("page fetched")

	for i := range fresh {
		p.processAlert(ctx, &fresh[i], pushes)
	}
}

func (p *Poller) processAlert(ctx context.Context, alert *nws.Alert, pushes *int) {
	id := alert.AlertID()
	props := alert.Properties
	log := p.log.With().Str("alert", id).Str("event", props.Event).Logger()

	// A panic while handling one alert must not take the loop down with it.
	// The alert stays unmarked and is retried on the next cycle.
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("alert processing panicked")
		}
	}()

	if _, ok := p.ignored[props.Event]; ok {
		p.health.AlertsSkipped.Inc()
		return
	}
	if props.MessageType != "Alert" {
		p.health.AlertsSkipped.Inc()
		return
	}
	p.health.AlertsNew.Inc()

	candidates := p.resolver.Resolve(ctx, alert)
	if len(candidates) == 0 {
		log.Info().Msg("no usable boundary, marking seen without delivery")
		p.health.NoBoundary.Inc()
		p.markSeen(ctx, id)
		return
	}

	union, err := p.simplifier.Union(candidates)
	if err != nil {
		log.Error().Err(err).Msg("boundary union failed")
		return
	}
	payload, err := p.simplifier.Payload(union)
	if err != nil {
		log.Error().Err(err).Msg("boundary simplification failed")
		return
	}
	if payload == nil {
		log.Info().Int("candidates", len(candidates)).Msg("boundary reduced to nothing, marking seen without delivery")
		p.health.NoBoundary.Inc()
		p.markSeen(ctx, id)
		return
	}

	raw := props.Headline
	if raw == "" {
		raw = props.Event
	}
	message := headline.FormatWithLimit(raw, p.clock.Now(), p.cfg.MessageLimit)

	log.Info().
		Int("candidates", len(candidates)).
		Int("rings", len(payload)).
		Msg("delivering push")

	p.sleepBetween(p.cfg.PushDelayMin, p.cfg.PushDelayMax)

	result, err := p.push.SendPush(ctx, message, payload)
	*pushes++
	if p.cfg.LongPauseEvery > 0 && *pushes%p.cfg.LongPauseEvery == 0 {
		p.sleepBetween(p.cfg.LongPauseMin, p.cfg.LongPauseMax)
	}

	if err != nil {
		log.Error().Err(err).Msg("push submission failed")
		p.health.PushesFailed.Inc()
		return
	}
	if !result.OK {
		log.Error().
			Int("status", result.Status).
			Str("location", result.Location).
			Str("body", result.Body).
			Msg("push rejected, leaving alert unmarked for retry")
		p.health.PushesFailed.Inc()
		return
	}

	log.Info().Msg("push queued")
	p.health.PushesSent.Inc()
	p.markSeen(ctx, id)
}

func (p *Poller) markSeen(ctx context.Context, id string) {
	if err := p.ledger.MarkSeen(ctx, id); err != nil {
		p.log.Error().Err(err).Str("alert", id).Msg("ledger mark failed")
	}
}

// maybePrune runs the retention prune on the first poll of each calendar
// month, guarded so it fires at most once per month.
func (p *Poller) maybePrune(ctx context.Context) {
	now := p.clock.Now().UTC()
	if now.Day() != 1 {
		return
	}
	key := now.Format("2006-01")
	if key == p.lastPrune {
		return
	}
	p.lastPrune = key

	cutoff := now.AddDate(0, 0, -p.cfg.RetentionDays)
	removed, err := p.ledger.PruneBefore(ctx, cutoff)
	if err != nil {
		p.log.Error().Err(err).Msg("ledger prune failed")
	} else {
		p.health.LedgerPruned.Add(float64(removed))
		p.log.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("monthly ledger prune")
	}

	logsRemoved := PruneLogs(p.cfg.LogDir, cutoff)
	p.log.Info().Int("removed", logsRemoved).Str("dir", p.cfg.LogDir).Msg("monthly log prune")
}

func (p *Poller) sleepBetween(min, max time.Duration) {
	if max <= 0 || max < min {
		return
	}
	d := min
	if span := max - min; span > 0 {
		d += time.Duration(rand.Int64N(int64(span)))
	}
	if d > 0 {
		p.clock.Sleep(d)
	}
}
