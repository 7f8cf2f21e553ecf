package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"permitflow/internal/transport/http/api"
)

type RateLimitKeyFunc func(r *http.Request) string

type RateLimitOption func(*windowLimiter)

func WithKeyFunc(fn RateLimitKeyFunc) RateLimitOption {
	return func(l *windowLimiter) {
		if fn != nil {
			l.keyFn = fn
		}
	}
}

// RateLimit allows limit requests per caller per window. Callers are keyed by
// user when authenticated, otherwise by client IP.
func RateLimit(limit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	l := newWindowLimiter(limit, window)
	for _, opt := range opts {
		opt(l)
	}
	return l.middleware(nil)
}

// DecisionRateLimit gives workflow mutations (submit, decisions, cancel,
// attestations, balance resets) half of the general budget.
func DecisionRateLimit(baseLimit int, window time.Duration) func(http.Handler) http.Handler {
	return newWindowLimiter(max(baseLimit/2, 1), window).middleware(isWorkflowMutation)
}

type counter struct {
	hits    int
	resetAt time.Time
}

type verdict struct {
	allowed   bool
	remaining int
	resetIn   int
}

type windowLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	keyFn   RateLimitKeyFunc
	now     func() time.Time
	counts  map[string]*counter
	sweepAt time.Time
}

func newWindowLimiter(limit int, window time.Duration) *windowLimiter {
	return &windowLimiter{
		limit:  limit,
		window: window,
		keyFn:  actorOrIPKey,
		now:    time.Now,
		counts: map[string]*counter{},
	}
}

func (l *windowLimiter) middleware(applies func(*http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.limit <= 0 || (applies != nil && !applies(r)) {
				next.ServeHTTP(w, r)
				return
			}
			key := l.keyFn(r)
			if key == "" {
				key = clientIPKey(r)
			}
			v := l.take(key)
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
			h.Set("X-RateLimit-Reset", strconv.Itoa(v.resetIn))
			if !v.allowed {
				slog.Warn("rate limit exceeded", "key", key, "method", r.Method, "path", r.URL.Path, "limit", l.limit)
				api.Throttle(w, http.StatusTooManyRequests, max(v.resetIn, 1), "rate_limited", "too many requests", GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *windowLimiter) take(key string) verdict {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.sweepAt) {
		for k, c := range l.counts {
			if now.After(c.resetAt) {
				delete(l.counts, k)
			}
		}
		l.sweepAt = now.Add(l.window)
	}

	c, ok := l.counts[key]
	if !ok || now.After(c.resetAt) {
		c = &counter{resetAt: now.Add(l.window)}
		l.counts[key] = c
	}
	c.hits++

	resetIn := 0
	if left := c.resetAt.Sub(now); left > 0 {
		resetIn = max(int(left.Seconds()), 1)
	}
	return verdict{
		allowed:   c.hits <= l.limit,
		remaining: max(l.limit-c.hits, 0),
		resetIn:   resetIn,
	}
}

func actorOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.UserID != "" {
		return "user:" + user.UserID
	}
	return clientIPKey(r)
}

func clientIPKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	return addr
}

var workflowActions = map[string]bool{"submit": true, "approve": true, "reject": true, "cancel": true}

func isWorkflowMutation(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1"), "/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] != "permits" {
		return false
	}
	switch {
	case path == "permits/balances/reset", path == "permits/attestations":
		return true
	case len(parts) == 3:
		return workflowActions[parts[2]]
	}
	return false
}
