package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimiterConfig
//
// Rate: "10-M", "100-H". PerRouteRates overrides it by route template,
// e.g. {"/api/emergency/trigger": "5-M"}. Identifier is ip, header or
// ip+route. SkipPaths and WhitelistCIDRs bypass the limiter.
type RateLimiterConfig struct {
	Rate           string            `json:"rate"`
	PerRouteRates  map[string]string `json:"per_route_rates"`
	Identifier     string            `json:"identifier"`
	HeaderName     string            `json:"header_name"`
	WhitelistCIDRs []string          `json:"whitelist_cidrs"`
	SkipPaths      []string          `json:"skip_paths"`
	AddHeaders     bool              `json:"add_headers"`
	DenyStatus     int               `json:"deny_status"`
	DenyMessage    string            `json:"deny_message"`
}

type MetricsObserver interface {
	OnAllow(route string, key string)
	OnDeny(route string, key string)
}

type PrometheusObserver struct {
	allow *prometheus.CounterVec
	deny  *prometheus.CounterVec
}

func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	f := promauto.With(reg)
	return &PrometheusObserver{
		allow: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_allow_total",
			Help: "Allowed requests by rate limiter",
		}, []string{"route"}),
		deny: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_deny_total",
			Help: "Denied requests by rate limiter",
		}, []string{"route"}),
	}
}

func (p *PrometheusObserver) OnAllow(route, key string) { p.allow.WithLabelValues(route).Inc() }
func (p *PrometheusObserver) OnDeny(route, key string)  { p.deny.WithLabelValues(route).Inc() }

// RateLimiter caches one limiter per distinct rate.
type RateLimiter struct {
	cfg            RateLimiterConfig
	store          limiter.Store
	observer       MetricsObserver
	limitersByRate map[string]*limiter.Limiter
	mu             sync.Mutex
	whiteCIDRs     []*net.IPNet
}

// NewRateLimiter uses an in-memory store when store is nil.
func NewRateLimiter(cfg RateLimiterConfig, store limiter.Store) *RateLimiter {
	if store == nil {
		store = memory.NewStore()
	}
	l := &RateLimiter{
		cfg:            cfg,
		store:          store,
		limitersByRate: make(map[string]*limiter.Limiter),
	}
	for _, c := range cfg.WhitelistCIDRs {
		if _, ipnet, err := net.ParseCIDR(strings.TrimSpace(c)); err == nil {
			l.whiteCIDRs = append(l.whiteCIDRs, ipnet)
		}
	}
	return l
}

func (l *RateLimiter) WithObserver(observer MetricsObserver) *RateLimiter {
	l.observer = observer
	return l
}

func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		if pathSkipped(l.cfg.SkipPaths, route) {
			c.Next()
			return
		}
		clientIP := clientIPFromRequest(c)
		if ipListed(clientIP, l.whiteCIDRs) {
			c.Next()
			return
		}

		key := buildLimitKey(l.cfg, c, clientIP, route)
		lim := l.getLimiter(l.pickRate(route))

		lc, err := lim.Get(c, key)
		if err != nil {
			// A store error fails open.
			c.Next()
			return
		}
		if l.cfg.AddHeaders {
			setStandardHeaders(c, lc)
		}
		if lc.Reached {
			setRetryAfter(c, time.Until(time.Unix(lc.Reset, 0)))
			if l.observer != nil {
				l.observer.OnDeny(route, key)
			}
			l.deny(c)
			return
		}
		if l.observer != nil {
			l.observer.OnAllow(route, key)
		}
		c.Next()
	}
}

func (l *RateLimiter) getLimiter(rateStr string) *limiter.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limitersByRate[rateStr]; ok {
		return lim
	}
	r, err := limiter.NewRateFromFormatted(rateStr)
	if err != nil {
		r = limiter.Rate{Period: time.Second, Limit: 10}
	}
	lim := limiter.New(l.store, r)
	l.limitersByRate[rateStr] = lim
	return lim
}

func (l *RateLimiter) pickRate(route string) string {
	if r, ok := l.cfg.PerRouteRates[route]; ok && r != "" {
		return r
	}
	if l.cfg.Rate != "" {
		return l.cfg.Rate
	}
	return "10-S"
}

func (l *RateLimiter) deny(c *gin.Context) {
	status := l.cfg.DenyStatus
	if status == 0 {
		status = http.StatusTooManyRequests
	}
	msg := l.cfg.DenyMessage
	if msg == "" {
		msg = "Too Many Requests"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func pathSkipped(prefixes []string, path string) bool {
	for _, pref := range prefixes {
		if pref != "" && strings.HasPrefix(path, pref) {
			return true
		}
	}
	return false
}

func clientIPFromRequest(c *gin.Context) string {
	return strings.TrimPrefix(c.ClientIP(), "::ffff:")
}

func ipListed(ip string, nets []*net.IPNet) bool {
	pip := net.ParseIP(ip)
	if pip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(pip) {
			return true
		}
	}
	return false
}

func buildLimitKey(cfg RateLimiterConfig, c *gin.Context, ip, route string) string {
	switch cfg.Identifier {
	case "header":
		if hv := strings.TrimSpace(c.GetHeader(cfg.HeaderName)); hv != "" {
			return "hdr:" + cfg.HeaderName + ":" + hv
		}
		return "ip:" + ip
	case "ip+route":
		return "iprt:" + ip + ":" + route
	default:
		return "ip:" + ip
	}
}

func setStandardHeaders(c *gin.Context, ctx limiter.Context) {
	c.Header("X-RateLimit-Limit", strconv.FormatInt(ctx.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(ctx.Remaining, 10))
	resetSec := int(time.Until(time.Unix(ctx.Reset, 0)).Seconds())
	if resetSec < 0 {
		resetSec = 0
	}
	c.Header("X-RateLimit-Reset", strconv.Itoa(resetSec))
}

func setRetryAfter(c *gin.Context, d time.Duration) {
	sec := int(d.Seconds())
	if sec < 0 {
		sec = 0
	}
	c.Header("Retry-After", strconv.Itoa(sec))
}
