package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"Raksha/pkg/i18n"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimiterPerRoute(t *testing.T) {
	t.Parallel()
	obs := NewPrometheusObserver(prometheus.NewRegistry())
	rl := NewRateLimiter(RateLimiterConfig{
		Rate:          "100-M",
		PerRouteRates: map[string]string{"/trigger": "2-M"},
		AddHeaders:    true,
		SkipPaths:     []string{"/health"},
	}, nil).WithObserver(obs)

	r := gin.New()
	r.Use(rl.Middleware())
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }
	r.POST("/trigger", ok)
	r.GET("/health", ok)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/trigger", nil))
		codes = append(codes, w.Code)
		if i == 2 {
			assert.NotEmpty(t, w.Header().Get("Retry-After"))
			assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
		}
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 2.0, testutil.ToFloat64(obs.allow.WithLabelValues("/trigger")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.deny.WithLabelValues("/trigger")))

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusNoContent, w.Code)
	}
}

func TestRateLimiterWhitelist(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(RateLimiterConfig{Rate: "1-M", WhitelistCIDRs: []string{"192.0.2.0/24"}}, nil)
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestLanguageMiddleware(t *testing.T) {
	t.Parallel()
	support, err := i18n.NewI18nSupport("en")
	require.NoError(t, err)

	r := gin.New()
	r.Use(LanguageMiddleware(support, "en"))
	r.GET("/lang", func(c *gin.Context) { c.String(http.StatusOK, Language(c, "en")) })

	cases := []struct {
		query, header, want string
	}{
		{"", "", "en"},
		{"hi", "", "hi"},
		{"zz", "", "en"},
		{"", "hi-IN,en;q=0.8", "hi"},
		{"", "fr-FR", "en"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/lang?lang="+tc.query, nil)
		if tc.header != "" {
			req.Header.Set("Accept-Language", tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Body.String(), "query=%q header=%q", tc.query, tc.header)
	}
}
