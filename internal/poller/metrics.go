package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Health struct {
	PagesFetched  prometheus.Counter
	AlertsNew     prometheus.Counter
	AlertsSkipped prometheus.Counter
	NoBoundary    prometheus.Counter
	PushesSent    prometheus.Counter
	PushesFailed  prometheus.Counter
	LedgerPruned  prometheus.Counter
}

func NewHealth(reg prometheus.Registerer) *Health {
	factory := promauto.With(reg)
	return &Health{
		PagesFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "feed_pages_fetched",
			Help: "Total number of alert feed pages fetched",
		}),
		AlertsNew: factory.NewCounter(prometheus.CounterOpts{
			Name: "alerts_new",
			Help: "Total number of never-seen alerts encountered",
		}),
		AlertsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "alerts_skipped",
			Help: "Total number of alerts skipped by the event or message-type filter",
		}),
		NoBoundary: factory.NewCounter(prometheus.CounterOpts{
			Name: "alerts_no_boundary",
			Help: "Total number of new alerts with no usable boundary",
		}),
		PushesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "pushes_sent",
			Help: "Total number of pushes accepted by the dashboard",
		}),
		PushesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "pushes_failed",
			Help: "Total number of push submissions that failed",
		}),
		LedgerPruned: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledger_records_pruned",
			Help: "Total number of seen-alert records removed by the monthly prune",
		}),
	}
}
