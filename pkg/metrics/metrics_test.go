package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainCollectors(t *testing.T) {
	t.Parallel()
	m := New(prometheus.NewRegistry())

	m.TriggerAccepted("manual")
	m.TriggerFolded("voice")
	m.TriggerFolded("voice")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.triggersTotal.WithLabelValues("manual", "accepted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.triggersTotal.WithLabelValues("voice", "folded")))

	m.Transition("active")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emergencyActive))
	m.Transition("idle")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.emergencyActive))

	m.ObserveAttempt("sms", "failed")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attemptsTotal.WithLabelValues("sms", "failed")))

	m.ObserveCompaction(3, 1024)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.compactionsTotal))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.compactedBytes))

	m.ClipUploaded(true, 4096)
	m.ClipUploaded(false, 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.clipUploadsTotal.WithLabelValues("failed")))

	m.BreakerState("sms", "open")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.breakerState.WithLabelValues("sms")))
	m.BreakerState("sms", "half-open")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.breakerState.WithLabelValues("sms")))

	m.ViewerCount("a1", 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.livestreamViewers))
}

func TestHandlerAndMiddleware(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)
	m := New(nil)

	r := gin.New()
	r.Use(Middleware(m))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/ping", "200")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "raksha_http_requests_total"))
}
