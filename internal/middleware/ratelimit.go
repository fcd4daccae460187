package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedClients caps the limiter map between cleanups.
const maxTrackedClients = 10000

// RateLimiter limits requests per client IP.
type RateLimiter struct {
	limiters   map[string]*clientLimiter
	mu         sync.Mutex
	rate       rate.Limit
	burst      int
	maxClients int
	logger     *slog.Logger
	now        func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second per
// client with the given burst.
func NewRateLimiter(rps float64, burst int, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		rate:       rate.Limit(rps),
		burst:      burst,
		maxClients: maxTrackedClients,
		logger:     logger,
		now:        time.Now,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.limiters[key]
	if !ok {
		if len(rl.limiters) >= rl.maxClients {
			rl.evictLocked()
		}
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = cl
	}
	cl.lastSeen = rl.now()
	return cl.limiter
}

// Handler returns the rate limiting middleware.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !rl.getLimiter(key).Allow() {
			rl.logger.Warn("rate limit exceeded",
				slog.String("client", key),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":"RATE_LIMITED","message":"too many requests"}}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Cleanup drops limiters idle for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.dropIdleLocked(rl.now().Add(-maxIdle))
}

func (rl *RateLimiter) dropIdleLocked(cutoff time.Time) {
	for key, cl := range rl.limiters {
		if cl.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}
}

// evictLocked makes room for one more client. Limiters idle long enough to
// have refilled their burst are dropped first, since a fresh limiter is
// equivalent. Failing that, the least recently seen client goes.
func (rl *RateLimiter) evictLocked() {
	if refill, ok := rl.refillTime(); ok {
		rl.dropIdleLocked(rl.now().Add(-refill))
	}
	if len(rl.limiters) < rl.maxClients {
		return
	}

	var oldestKey string
	var oldest time.Time
	for key, cl := range rl.limiters {
		if oldestKey == "" || cl.lastSeen.Before(oldest) {
			oldestKey, oldest = key, cl.lastSeen
		}
	}
	delete(rl.limiters, oldestKey)
}

// refillTime is how long an unused limiter takes to refill its burst.
// ok is false when it never refills.
func (rl *RateLimiter) refillTime() (time.Duration, bool) {
	if rl.rate == rate.Inf {
		return 0, true
	}
	if rl.rate <= 0 {
		return 0, false
	}
	secs := float64(rl.burst) / float64(rl.rate)
	if secs > (24 * time.Hour).Seconds() {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

// StartCleanup runs Cleanup every interval until stop is closed.
func (rl *RateLimiter) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup(interval)
			case <-stop:
				return
			}
		}
	}()
}

// clientKey is the client IP. chi's RealIP has already rewritten RemoteAddr
// from X-Forwarded-For / X-Real-IP when present.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
