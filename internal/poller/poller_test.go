package poller

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nwspush/nwspush/internal/config"
	"github.com/nwspush/nwspush/internal/dashboard"
	"github.com/nwspush/nwspush/internal/geometry"
	"github.com/nwspush/nwspush/internal/nws"
	"github.com/nwspush/nwspush/internal/store"
)

const directPolygon = `{"type":"Polygon","coordinates":[[[-90.1,35.1],[-90.0,35.1],[-90.0,35.2],[-90.1,35.1]]]}`

type sendCall struct {
	message string
	zones   geometry.Payload
}

type fakePusher struct {
	loggedIn bool
	logins   int
	saves    int
	sends    []sendCall
	result   *dashboard.Result
	err      error
}

func (f *fakePusher) LoggedIn(context.Context) bool { return f.loggedIn }

func (f *fakePusher) Login(context.Context) error {
	f.logins++
	f.loggedIn = true
	return nil
}

func (f *fakePusher) SaveSession(string) error {
	f.saves++
	return nil
}

func (f *fakePusher) SendPush(_ context.Context, message string, zones geometry.Payload) (*dashboard.Result, error) {
	f.sends = append(f.sends, sendCall{message: message, zones: zones})
	return f.result, f.err
}

// trackingLedger wraps the memory ledger to record which identifiers were
// marked.
type trackingLedger struct {
	*store.Memory
	marked []string
	prunes int
}

func (l *trackingLedger) MarkSeen(ctx context.Context, id string) error {
	l.marked = append(l.marked, id)
	return l.Memory.MarkSeen(ctx, id)
}

func (l *trackingLedger) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	l.prunes++
	return l.Memory.PruneBefore(ctx, cutoff)
}

func testPoller(t *testing.T, feedJSON string, clock clockwork.Clock, ledger store.Ledger, push Pusher) *Poller {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feedJSON)
	}))
	t.Cleanup(server.Close)

	cfg := &config.Config{
		AlertsURL:         server.URL,
		UserAgent:         "nwspush-test/1.0",
		Accept:            "application/geo+json",
		IgnoredEvents:     []string{"Small Craft Advisory"},
		RequestTimeout:    5 * time.Second,
		PollInterval:      time.Minute,
		RetentionDays:     30,
		MaxPoints:         300,
		PreferredPoints:   250,
		SimplifyTolerance: 0.001,
		SimplifyRounds:    10,
		MessageLimit:      250,
		LogDir:            t.TempDir(),
	}

	feed := nws.NewClient(cfg)
	resolver := geometry.NewResolver(feed)
	simplifier := geometry.NewSimplifier(cfg)
	health := NewHealth(prometheus.NewRegistry())

	return New(cfg, feed, resolver, simplifier, ledger, push, clock, health)
}

func TestRunOncePartitionsNewAndSeen(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))
	ledger := &trackingLedger{Memory: store.NewMemory(clock)}
	require.NoError(t, ledger.Memory.MarkSeen(ctx, "alert-3"))

	feed := fmt.Sprintf(`{"features":[
		{"properties":{"id":"alert-1","event":"Flood Warning","headline":"Flood Warning issued","messageType":"Alert"},"geometry":%s},
		{"properties":{"id":"alert-2","event":"Tornado Warning","headline":"Tornado Warning issued","messageType":"Alert"},"geometry":%s},
		{"properties":{"id":"alert-3","event":"Flood Warning","headline":"Flood Warning issued","messageType":"Alert"},"geometry":%s}
	]}`, directPolygon, directPolygon, directPolygon)

	push := &fakePusher{result: &dashboard.Result{OK: true, Status: http.StatusFound}}
	p := testPoller(t, feed, clock, ledger, push)

	p.RunOnce(ctx)

	// Two never-seen alerts reach delivery; the already-seen one only gets
	// its last-seen refreshed.
	require.Len(t, push.sends, 2)
	assert.Equal(t, 1, push.logins)
	assert.Equal(t, 1, push.saves)
	assert.Contains(t, ledger.marked, "alert-3")
	assert.Contains(t, ledger.marked, "alert-1")
	assert.Contains(t, ledger.marked, "alert-2")

	for _, send := range push.sends {
		assert.Contains(t, send.message, "⚠️")
		require.NotEmpty(t, send.zones)
		ring := send.zones[0]
		assert.Equal(t, ring[0], ring[len(ring)-1])
	}
}

func TestRunOnceNoBoundaryMarksSeenWithoutDelivery(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))
	ledger := &trackingLedger{Memory: store.NewMemory(clock)}

	feed := `{"features":[
		{"properties":{"id":"alert-nogeom","event":"Flood Warning","headline":"Flood Warning issued","messageType":"Alert","affectedZones":[]},"geometry":null}
	]}`

	push := &fakePusher{loggedIn: true, result: &dashboard.Result{OK: true}}
	p := testPoller(t, feed, clock, ledger, push)

	p.RunOnce(ctx)

	assert.Empty(t, push.sends)
	seen, _ := ledger.IsSeen(ctx, "alert-nogeom")
	assert.True(t, seen)
}

func TestRunOnceFiltersInformationalAndIgnored(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))
	ledger := &trackingLedger{Memory: store.NewMemory(clock)}

	feed := fmt.Sprintf(`{"features":[
		{"properties":{"id":"alert-update","event":"Flood Warning","headline":"Flood Warning update","messageType":"Update"},"geometry":%s},
		{"properties":{"id":"alert-marine","event":"Small Craft Advisory","headline":"Small Craft Advisory issued","messageType":"Alert"},"geometry":%s}
	]}`, directPolygon, directPolygon)

	push := &fakePusher{loggedIn: true, result: &dashboard.Result{OK: true}}
	p := testPoller(t, feed, clock, ledger, push)

	p.RunOnce(ctx)

	assert.Empty(t, push.sends)
	assert.Empty(t, ledger.marked)
}

func TestRunOnceDeliveryFailureLeavesUnmarked(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))
	ledger := &trackingLedger{Memory: store.NewMemory(clock)}

	feed := fmt.Sprintf(`{"features":[
		{"properties":{"id":"alert-1","event":"Flood Warning","headline":"Flood Warning issued","messageType":"Alert"},"geometry":%s}
	]}`, directPolygon)

	// A redirect anywhere but the history path is a failure.
	push := &fakePusher{loggedIn: true, result: &dashboard.Result{OK: false, Status: http.StatusFound, Location: "/manage/"}}
	p := testPoller(t, feed, clock, ledger, push)

	p.RunOnce(ctx)

	require.Len(t, push.sends, 1)
	seen, _ := ledger.IsSeen(ctx, "alert-1")
	assert.False(t, seen)

	// Next cycle retries the same alert.
	p.RunOnce(ctx)
	assert.Len(t, push.sends, 2)
}

type panickyPusher struct {
	fakePusher
}

func (p *panickyPusher) SendPush(context.Context, string, geometry.Payload) (*dashboard.Result, error) {
	panic("TopologyException: side location conflict")
}

func TestRunOnceContainsPerAlertPanics(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))
	ledger := &trackingLedger{Memory: store.NewMemory(clock)}

	feed := fmt.Sprintf(`{"features":[
		{"properties":{"id":"alert-1","event":"Flood Warning","headline":"Flood Warning issued","messageType":"Alert"},"geometry":%s}
	]}`, directPolygon)

	push := &panickyPusher{}
	push.loggedIn = true
	p := testPoller(t, feed, clock, ledger, push)

	assert.NotPanics(t, func() { p.RunOnce(ctx) })

	// The alert stays unmarked and is retried on the next cycle.
	seen, _ := ledger.IsSeen(ctx, "alert-1")
	assert.False(t, seen)
	assert.NotPanics(t, func() { p.RunOnce(ctx) })
}

func TestMonthlyPruneGuard(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)
	ledger := &trackingLedger{Memory: store.NewMemory(clock)}
	// Last seen on May 1, well outside the 30-day window by July.
	require.NoError(t, ledger.Memory.MarkSeen(ctx, "stale-alert"))

	push := &fakePusher{loggedIn: true, result: &dashboard.Result{OK: true}}
	p := testPoller(t, `{"features":[]}`, clock, ledger, push)

	// Mid-month polls never prune.
	clock.Advance(time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC).Sub(start))
	p.RunOnce(ctx)
	assert.Zero(t, ledger.prunes)

	// First-of-month polls prune exactly once.
	clock.Advance(time.Date(2026, 7, 1, 0, 5, 0, 0, time.UTC).Sub(clock.Now()))
	p.RunOnce(ctx)
	p.RunOnce(ctx)
	assert.Equal(t, 1, ledger.prunes)

	seen, _ := ledger.IsSeen(ctx, "stale-alert")
	assert.False(t, seen)

	// The guard resets the following month.
	clock.Advance(31 * 24 * time.Hour)
	require.Equal(t, 1, clock.Now().UTC().Day())
	p.RunOnce(ctx)
	assert.Equal(t, 2, ledger.prunes)
}
