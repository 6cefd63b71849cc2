package store

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryMarkSeenIdempotent(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)
	ledger := NewMemory(clock)

	seen, err := ledger.IsSeen(ctx, "alert-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, ledger.MarkSeen(ctx, "alert-1"))
	clock.Advance(time.Hour)
	require.NoError(t, ledger.MarkSeen(ctx, "alert-1"))

	seen, err = ledger.IsSeen(ctx, "alert-1")
	require.NoError(t, err)
	assert.True(t, seen)

	require.Len(t, ledger.records, 1)
	record := ledger.records["alert-1"]
	assert.Equal(t, start, record.firstSeen)
	assert.Equal(t, start.Add(time.Hour), record.lastSeen)
}

func TestMemoryPruneBefore(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)
	ledger := NewMemory(clock)

	require.NoError(t, ledger.MarkSeen(ctx, "old"))
	clock.Advance(40 * 24 * time.Hour)
	require.NoError(t, ledger.MarkSeen(ctx, "fresh"))
	require.NoError(t, ledger.MarkSeen(ctx, "boundary"))

	cutoff := clock.Now().UTC().Truncate(time.Second)
	removed, err := ledger.PruneBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	seen, _ := ledger.IsSeen(ctx, "old")
	assert.False(t, seen)

	// Records at exactly the cutoff survive; the prune is strictly "before".
	seen, _ = ledger.IsSeen(ctx, "boundary")
	assert.True(t, seen)
	seen, _ = ledger.IsSeen(ctx, "fresh")
	assert.True(t, seen)
}

func TestMemoryPruneKeepsRefreshedRecords(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	ledger := NewMemory(clock)

	require.NoError(t, ledger.MarkSeen(ctx, "long-lived"))
	clock.Advance(40 * 24 * time.Hour)
	// The alert is still active, so each poll refreshes last_seen.
	require.NoError(t, ledger.MarkSeen(ctx, "long-lived"))

	removed, err := ledger.PruneBefore(ctx, clock.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, removed)

	seen, _ := ledger.IsSeen(ctx, "long-lived")
	assert.True(t, seen)
}
