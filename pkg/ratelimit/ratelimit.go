// Package ratelimit implements the resource-server's tumbling-window rate
// limiter (§4.5): a mapping from origin_token to (count, window_start) with
// linearizable per-token check/increment and periodic pruning of expired
// windows.
package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type entry struct {
	count       int
	windowStart time.Time
}

// Result is the outcome of a check() call.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter is a tumbling-window rate limiter keyed by origin_token.
// Windows do not slide per request: once a window is opened it runs for
// exactly WindowSeconds regardless of traffic within it.
type Limiter struct {
	mu             sync.Mutex
	entries        map[string]*entry
	maxPerWindow   int
	window         time.Duration
	now            func() time.Time
	requestCount   int64 // lifetime count of Check calls, mirroring requestsTotal

	stopPrune chan struct{}
	pruneOnce sync.Once

	registry      *prometheus.Registry
	tokensGauge   prometheus.Gauge
	requestsTotal prometheus.Counter
	deniedTotal   prometheus.Counter
}

// New constructs a Limiter. maxPerWindow and windowSeconds come directly
// from the resource server's RateLimit* configuration. Each Limiter owns a
// private prometheus.Registry rather than registering into the global
// default registerer, so constructing more than one Limiter in a process
// (as the test suite does) never collides on metric names; Registry
// exposes it for a caller's /metrics handler to merge in.
func New(maxPerWindow, windowSeconds int) *Limiter {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Limiter{
		entries:      make(map[string]*entry),
		maxPerWindow: maxPerWindow,
		window:       time.Duration(windowSeconds) * time.Second,
		now:          time.Now,
		registry:     reg,
		tokensGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "zkcred_ratelimit_live_tokens",
			Help: "Number of origin tokens with a live rate-limit window.",
		}),
		requestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "zkcred_ratelimit_requests_total",
			Help: "Total requests seen by the rate limiter, allowed or denied.",
		}),
		deniedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "zkcred_ratelimit_denied_total",
			Help: "Total requests denied by the rate limiter.",
		}),
	}
}

// Registry exposes this limiter's metric registry for mounting under
// /metrics.
func (l *Limiter) Registry() *prometheus.Registry {
	return l.registry
}

// Check evaluates and records one request against token's window.
func (l *Limiter) Check(token string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requestsTotal.Inc()
	l.requestCount++

	now := l.now()
	e, ok := l.entries[token]
	if !ok || now.Sub(e.windowStart) >= l.window {
		e = &entry{count: 1, windowStart: now}
		l.entries[token] = e
		l.tokensGauge.Set(float64(len(l.entries)))
		return Result{Allowed: true, Remaining: l.maxPerWindow - 1, ResetAt: now.Add(l.window)}
	}

	resetAt := e.windowStart.Add(l.window)
	if e.count >= l.maxPerWindow {
		l.deniedTotal.Inc()
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}

	e.count++
	return Result{Allowed: true, Remaining: l.maxPerWindow - e.count, ResetAt: resetAt}
}

// Prune deletes windows that have fully elapsed.
func (l *Limiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for token, e := range l.entries {
		if now.Sub(e.windowStart) >= l.window {
			delete(l.entries, token)
		}
	}
	l.tokensGauge.Set(float64(len(l.entries)))
}

// Stats reports totals over currently-live entries.
type Stats struct {
	TotalTokens   int64
	TotalRequests int64
}

// Stats returns the number of live tokens and the sum of their window
// request counts.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	var requests int64
	for _, e := range l.entries {
		requests += int64(e.count)
	}
	return Stats{
		TotalTokens:   int64(len(l.entries)),
		TotalRequests: requests,
	}
}

// StartPruning runs Prune on a periodic timer in a background goroutine,
// which exits when Stop is called.
func (l *Limiter) StartPruning(interval time.Duration) {
	l.stopPrune = make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Prune()
			case <-l.stopPrune:
				return
			}
		}
	}()
}

// Stop halts the pruning goroutine if one was started. Safe to call more
// than once.
func (l *Limiter) Stop() {
	l.pruneOnce.Do(func() {
		if l.stopPrune != nil {
			close(l.stopPrune)
		}
	})
}
