package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Collector struct {
	totalRequests   uint64
	errorRequests   uint64
	rateLimited     uint64
	totalDurationMs uint64

	balanceAnomalies   uint64
	retries            uint64
	transientFailures  uint64
	notificationsSent  uint64
	notificationErrors uint64
	notificationsDrop  uint64

	mu          sync.Mutex
	transitions map[string]uint64
}

func New() *Collector {
	return &Collector{transitions: make(map[string]uint64)}
}

func (c *Collector) Record(status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	if status == 429 {
		atomic.AddUint64(&c.rateLimited, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

// Transition counts a request entering status.
func (c *Collector) Transition(status string) {
	c.mu.Lock()
	c.transitions[status]++
	c.mu.Unlock()
}

func (c *Collector) BalanceAnomaly() {
	atomic.AddUint64(&c.balanceAnomalies, 1)
}

func (c *Collector) Retry() {
	atomic.AddUint64(&c.retries, 1)
}

func (c *Collector) TransientFailure() {
	atomic.AddUint64(&c.transientFailures, 1)
}

func (c *Collector) NotificationSent() {
	atomic.AddUint64(&c.notificationsSent, 1)
}

func (c *Collector) NotificationFailed() {
	atomic.AddUint64(&c.notificationErrors, 1)
}

func (c *Collector) NotificationDropped() {
	atomic.AddUint64(&c.notificationsDrop, 1)
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	errs := atomic.LoadUint64(&c.errorRequests)
	limited := atomic.LoadUint64(&c.rateLimited)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}

	c.mu.Lock()
	keys := make([]string, 0, len(c.transitions))
	for k := range c.transitions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	transitions := make(map[string]uint64, len(keys))
	for _, k := range keys {
		transitions[k] = c.transitions[k]
	}
	c.mu.Unlock()

	return map[string]any{
		"requestsTotal":          total,
		"errorsTotal":            errs,
		"rateLimitedTotal":       limited,
		"avgDurationMs":          avg,
		"totalDurationMs":        totalMs,
		"transitionsTotal":       transitions,
		"balanceAnomaliesTotal":  atomic.LoadUint64(&c.balanceAnomalies),
		"retriesTotal":           atomic.LoadUint64(&c.retries),
		"transientFailuresTotal": atomic.LoadUint64(&c.transientFailures),
		"notificationsSentTotal": atomic.LoadUint64(&c.notificationsSent),
		"notificationErrors":     atomic.LoadUint64(&c.notificationErrors),
		"notificationsDropped":   atomic.LoadUint64(&c.notificationsDrop),
	}
}
