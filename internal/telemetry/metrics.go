package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/victornm/tquiz/internal/domain"
	"github.com/victornm/tquiz/internal/event"
)

const namespace = "tquiz"

// Metrics holds the service collectors. Register it once per registry.
type Metrics struct {
	quizEvents   *prometheus.CounterVec
	quizScores   prometheus.Histogram
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		quizEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quiz_events_total",
			Help:      "Quiz lifecycle events by name.",
		}, []string{"event"}),

		quizScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quiz_score",
			Help:      "Scores of completed quizzes.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),

		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Register adds the collectors to reg, plus a gauge reading the number of
// live sessions from activeSessions.
func (m *Metrics) Register(reg prometheus.Registerer, activeSessions func() int) error {
	collectors := []prometheus.Collector{
		m.quizEvents,
		m.quizScores,
		m.httpRequests,
		m.httpLatency,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Quiz sessions currently held in memory.",
		}, func() float64 { return float64(activeSessions()) }),
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}

	return nil
}

// Observe counts quiz lifecycle events published on eb.
func (m *Metrics) Observe(eb *event.Bus) {
	count := func(_ context.Context, e event.Event) error {
		m.quizEvents.WithLabelValues(e.Name()).Inc()
		return nil
	}

	eb.Subscribe(domain.EventNameQuizStarted, count)
	eb.Subscribe(domain.EventNameQuizStartFailed, count)
	eb.Subscribe(domain.EventNameQuizReset, count)
	eb.Subscribe(domain.EventNameQuizCompleted, func(ctx context.Context, e event.Event) error {
		m.quizScores.Observe(float64(e.(domain.EventQuizCompleted).Session.Results.Score))
		return count(ctx, e)
	})
}
