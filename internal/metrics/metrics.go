package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors shared by the poller, dashboard and indexer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	PollSessions    *prometheus.CounterVec
	PollQueries     prometheus.Counter
	PollDuration    *prometheus.HistogramVec
	ActiveSessions  prometheus.Gauge
	Refreshes       *prometheus.CounterVec
	RefreshDuration prometheus.Histogram
	LeaderboardSize prometheus.Gauge
	HeadBlock       prometheus.Gauge
	IndexedBlock    prometheus.Gauge
	IndexedEvents   prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PollSessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "packs",
			Name:      "poll_sessions_total",
			Help:      "Pack-open sessions by terminal state.",
		}, []string{"state"}),
		PollQueries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "packs",
			Name:      "poll_queries_total",
			Help:      "RewardClaimed queries issued while awaiting a reward.",
		}),
		PollDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "packs",
			Name:      "poll_session_duration_seconds",
			Help:      "Time from open request to terminal state.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 45, 60, 90},
		}, []string{"state"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "packs",
			Name:      "poll_sessions_active",
			Help:      "Sessions that have not reached a terminal state.",
		}),
		Refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "packs",
			Name:      "leaderboard_refreshes_total",
			Help:      "Leaderboard refresh passes by result.",
		}, []string{"result"}),
		RefreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "packs",
			Name:      "leaderboard_refresh_duration_seconds",
			Help:      "Duration of a leaderboard refresh pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		LeaderboardSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "packs",
			Name:      "leaderboard_accounts",
			Help:      "Accounts with at least one reward in the last snapshot.",
		}),
		HeadBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "packs",
			Name:      "head_block",
			Help:      "Latest block number seen by the head watcher.",
		}),
		IndexedBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "packs",
			Name:      "indexer_last_processed_block",
			Help:      "Last block archived by the indexer.",
		}),
		IndexedEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "packs",
			Name:      "indexer_events_total",
			Help:      "RewardClaimed events written by the indexer.",
		}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "packs",
			Name:      "errors_total",
			Help:      "Errors by taxonomy kind.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionFinished(state string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.PollSessions.WithLabelValues(state).Inc()
	m.PollDuration.WithLabelValues(state).Observe(elapsed.Seconds())
}

func (m *Metrics) PollQuery() {
	if m == nil {
		return
	}
	m.PollQueries.Inc()
}

func (m *Metrics) Refreshed(result string, elapsed time.Duration, accounts int) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(result).Inc()
	m.RefreshDuration.Observe(elapsed.Seconds())
	if result == "ok" {
		m.LeaderboardSize.Set(float64(accounts))
	}
}

func (m *Metrics) Head(block uint64) {
	if m == nil {
		return
	}
	m.HeadBlock.Set(float64(block))
}

func (m *Metrics) Indexed(block uint64, events int) {
	if m == nil {
		return
	}
	m.IndexedBlock.Set(float64(block))
	m.IndexedEvents.Add(float64(events))
}

func (m *Metrics) Error(kind string) {
	if m == nil || kind == "" {
		return
	}
	m.ErrorsTotal.WithLabelValues(kind).Inc()
}
