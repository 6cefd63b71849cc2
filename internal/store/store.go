// Package store holds the seen-alert ledger, the single source of truth for
// "already observed or already delivered" across process runs.
package store

import (
	"context"
	"time"
)

// Ledger deduplicates alerts across polls. MarkSeen is insert-or-refresh and
// safe to call redundantly; PruneBefore removes records whose last sighting
// predates the cutoff and returns the count removed.
type Ledger interface {
	IsSeen(ctx context.Context, alertID string) (bool, error)
	MarkSeen(ctx context.Context, alertID string) error
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
