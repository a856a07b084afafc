package telemetry_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/tquiz/internal/domain"
	"github.com/victornm/tquiz/internal/event"
	"github.com/victornm/tquiz/internal/telemetry"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()

	rec := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	b, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(b)
}

func TestMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics()
	require.NoError(t, m.Register(reg, func() int { return 3 }))

	eb := event.NewBus()
	m.Observe(eb)

	ctx := context.Background()
	eb.Publish(ctx, domain.EventQuizStarted{SessionID: "s1"})
	eb.Publish(ctx, domain.EventQuizStarted{SessionID: "s2"})
	eb.Publish(ctx, domain.EventQuizCompleted{Session: domain.CompletedSession{
		SessionID:   "s1",
		Results:     domain.Results{Score: 47},
		CompletedAt: time.Now(),
	}})
	eb.Stop()

	out := scrape(t, reg)
	assert.Contains(t, out, `tquiz_quiz_events_total{event="quiz.started"} 2`)
	assert.Contains(t, out, `tquiz_quiz_events_total{event="quiz.completed"} 1`)
	assert.Contains(t, out, `tquiz_quiz_score_sum 47`)
	assert.Contains(t, out, `tquiz_sessions_active 3`)
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics()
	require.NoError(t, m.Register(reg, func() int { return 0 }))

	e := gin.New()
	e.Use(telemetry.GinMiddleware(m))
	e.GET("/v1/sessions/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, path := range []string{"/v1/sessions/a", "/v1/sessions/b", "/nowhere"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	out := scrape(t, reg)
	assert.Contains(t, out, `tquiz_http_requests_total{method="GET",route="/v1/sessions/:id",status="404"} 2`)
	assert.Contains(t, out, `tquiz_http_requests_total{method="GET",route="unmatched",status="404"} 1`)
}
