package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
)

const seenAlertsSchema = `
CREATE TABLE IF NOT EXISTS seen_alerts (
	alert_id      text PRIMARY KEY,
	first_seen_at timestamptz NOT NULL,
	last_seen_at  timestamptz NOT NULL
)`

// Postgres is the durable Ledger implementation. Every mutation commits
// immediately; there is no batching.
type Postgres struct {
	pool  *pgxpool.Pool
	clock clockwork.Clock
}

func NewPostgres(ctx context.Context, url string, clock clockwork.Clock) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	if _, err := pool.Exec(ctx, seenAlertsSchema); err != nil {
		return nil, fmt.Errorf("ensure seen_alerts table: %w", err)
	}

	return &Postgres{pool: pool, clock: clock}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) IsSeen(ctx context.Context, alertID string) (bool, error) {
	var seen bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM seen_alerts WHERE alert_id = $1)`,
		alertID,
	).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("query seen_alerts: %w", err)
	}
	return seen, nil
}

func (p *Postgres) MarkSeen(ctx context.Context, alertID string) error {
	now := p.clock.Now().UTC().Truncate(time.Second)
	_, err := p.pool.Exec(ctx,
		`INSERT INTO seen_alerts (alert_id, first_seen_at, last_seen_at)
		 VALUES ($1, $2, $2)
		 ON CONFLICT (alert_id) DO UPDATE SET last_seen_at = EXCLUDED.last_seen_at`,
		alertID, now,
	)
	if err != nil {
		return fmt.Errorf("upsert seen_alerts: %w", err)
	}
	return nil
}

func (p *Postgres) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM seen_alerts WHERE last_seen_at < $1`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune seen_alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}
