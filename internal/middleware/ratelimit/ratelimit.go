// Package ratelimit throttles requests per client key, in process or through a shared Redis bucket.
package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Store decides whether one more request for key fits its bucket.
type Store interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Config holds rate limiter configuration
type Config struct {
	RequestsPerMinute int
	Burst             int
	CleanupInterval   time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		Burst:             20,
		CleanupInterval:   5 * time.Minute,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = d.RequestsPerMinute
	}
	if c.Burst <= 0 {
		c.Burst = d.Burst
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	return c
}

// Limiter keeps one token bucket per client in memory.
type Limiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once

	limit           rate.Limit
	burst           int
	cleanupInterval time.Duration
}

type clientInfo struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a new in-memory limiter and starts its cleanup goroutine.
func NewLimiter(config Config) *Limiter {
	config = config.normalized()
	rl := &Limiter{
		clients:         make(map[string]*clientInfo),
		stopCleanup:     make(chan struct{}),
		limit:           rate.Limit(float64(config.RequestsPerMinute) / 60.0),
		burst:           config.Burst,
		cleanupInterval: config.CleanupInterval,
	}
	go rl.startCleanup()
	return rl
}

// Allow never fails; the error is there to satisfy Store.
func (rl *Limiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	c, ok := rl.clients[key]
	if !ok {
		c = &clientInfo{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = time.Now()
	rl.mu.Unlock()
	return c.limiter.Allow(), nil
}

func (rl *Limiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries drops clients idle for two cleanup intervals; a fresh bucket starts full anyway.
func (rl *Limiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-2 * rl.cleanupInterval)
	for key, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
		}
	}
}

// ActiveClients returns the number of currently tracked clients
func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Stop gracefully shuts down the rate limiter cleanup goroutine
func (rl *Limiter) Stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// Metrics for monitoring rate limit performance
type Metrics struct {
	Rejected    int64
	StoreErrors int64
}

// Middleware enforces a Store per client key.
type Middleware struct {
	store     Store
	extractIP func(*http.Request) string
	onLimit   func(http.ResponseWriter, *http.Request)

	rejected    atomic.Int64
	storeErrors atomic.Int64
}

// NewMiddleware wires store into HTTP. onLimit may be nil for a plain 429.
func NewMiddleware(store Store, extractIP func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) *Middleware {
	return &Middleware{store: store, extractIP: extractIP, onLimit: onLimit}
}

// Handler fails open when the store is unreachable; throttling is not worth an outage.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.extractIP(r)
		ok, err := m.store.Allow(r.Context(), key)
		if err != nil {
			m.storeErrors.Add(1)
			slog.WarnContext(r.Context(), "Rate limit store unavailable, allowing request",
				"client_ip", key,
				"error", err)
			ok = true
		}
		if !ok {
			m.rejected.Add(1)
			if m.onLimit != nil {
				m.onLimit(w, r)
				return
			}
			w.Header().Set("Retry-After", strconv.Itoa(60))
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetMetrics returns current metrics
func (m *Middleware) GetMetrics() Metrics {
	return Metrics{
		Rejected:    m.rejected.Load(),
		StoreErrors: m.storeErrors.Load(),
	}
}
