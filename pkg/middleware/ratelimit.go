package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/groundwork/pkg/contextkeys"
	"github.com/platinummonkey/groundwork/pkg/httputil"
	"github.com/platinummonkey/groundwork/pkg/observability"
	"github.com/platinummonkey/groundwork/pkg/rbac"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// TierLimits is the number of requests allowed per window for each tier
type TierLimits map[rbac.RateLimitTier]int

// DefaultTierLimits returns the default per-window limits
func DefaultTierLimits() TierLimits {
	return TierLimits{
		rbac.TierHigh:     600,
		rbac.TierStandard: 300,
		rbac.TierLow:      120,
	}
}

// Limiter decides whether key may make another request
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) (allowed bool, remaining int, err error)
	Window() time.Duration
}

// MemoryLimiter keeps a token bucket per key in process memory
type MemoryLimiter struct {
	window  time.Duration
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	limit    int
	lastSeen time.Time
}

// NewMemoryLimiter creates a limiter refilling limit tokens per window
func NewMemoryLimiter(window time.Duration) *MemoryLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{
		window:  window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Window returns the limiter window
func (m *MemoryLimiter) Window() time.Duration {
	return m.window
}

// Allow takes one token from key's bucket
func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int) (bool, int, error) {
	if limit <= 0 {
		return false, 0, nil
	}
	now := m.now()

	m.mu.Lock()
	b, ok := m.buckets[key]
	if !ok || b.limit != limit {
		every := m.window / time.Duration(limit)
		b = &bucket{limiter: rate.NewLimiter(rate.Every(every), limit), limit: limit}
		m.buckets[key] = b
	}
	b.lastSeen = now
	m.mu.Unlock()

	allowed := b.limiter.AllowN(now, 1)
	remaining := int(b.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining, nil
}

// Cleanup drops buckets idle for more than two windows and returns how
// many were removed.
func (m *MemoryLimiter) Cleanup() int {
	cutoff := m.now().Add(-2 * m.window)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, b := range m.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(m.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// TierResolver returns the rate limit tier of a user
type TierResolver interface {
	GetRateLimitTier(ctx context.Context, userID string) (rbac.RateLimitTier, error)
}

// RateLimitMiddleware provides HTTP rate limiting
type RateLimitMiddleware struct {
	limiter Limiter
	tiers   TierResolver
	limits  TierLimits
	metrics *observability.Metrics
	logger  logrus.FieldLogger
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(limiter Limiter, tiers TierResolver, metrics *observability.Metrics, logger logrus.FieldLogger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		tiers:   tiers,
		limits:  DefaultTierLimits(),
		metrics: metrics,
		logger:  logger,
	}
}

// WithLimits overrides the per-tier limits
func (m *RateLimitMiddleware) WithLimits(limits TierLimits) *RateLimitMiddleware {
	m.limits = limits
	return m
}

// Handler wraps an HTTP handler with rate limiting
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		tier := rbac.TierLow
		key := "ip:" + getClientIP(r)
		if userID := contextkeys.GetUserID(ctx); userID != "" {
			key = "user:" + userID
			resolved, err := m.tiers.GetRateLimitTier(ctx, userID)
			if err != nil {
				m.logger.WithError(err).Warn("Failed to resolve rate limit tier")
			} else {
				tier = resolved
			}
		}
		limit := m.limits[tier]

		allowed, remaining, err := m.limiter.Allow(ctx, key, limit)
		if err != nil {
			// Fail open
			if m.metrics != nil {
				m.metrics.RateLimitBackendErrors.Inc()
			}
			m.logger.WithError(err).Warn("Rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			if m.metrics != nil {
				m.metrics.RateLimitRejectionsTotal.WithLabelValues(string(tier)).Inc()
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(m.limiter.Window().Seconds())))
			httputil.WriteTooManyRequests(w, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
