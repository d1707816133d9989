package api

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-IP request limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	CleanupInterval   time.Duration // eviction period for idle IPs
}

// DefaultRateLimitConfig is used when no config is supplied.
var DefaultRateLimitConfig = RateLimitConfig{
	RequestsPerSecond: 20,
	Burst:             40,
	CleanupInterval:   5 * time.Minute,
}

// visitor is the limiter state of one client IP.
type visitor struct {
	lim  *rate.Limiter
	seen atomic.Int64 // unix nanos of the last request
}

// IPRateLimiter throttles HTTP requests per client IP. Visitors idle for two
// cleanup intervals are evicted.
type IPRateLimiter struct {
	cfg        RateLimitConfig
	retryAfter string
	visitors   sync.Map // map[string]*visitor

	cancel context.CancelFunc
	done   chan struct{}

	rejected atomic.Uint64
	allowed  atomic.Uint64
}

// NewIPRateLimiter creates a limiter and starts its eviction loop. Call Stop
// to end it.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultRateLimitConfig.CleanupInterval
	}

	retry := 1
	if cfg.RequestsPerSecond > 0 && cfg.RequestsPerSecond < 1 {
		retry = int(math.Ceil(1 / cfg.RequestsPerSecond))
	}

	ctx, cancel := context.WithCancel(context.Background())
	rl := &IPRateLimiter{
		cfg:        cfg,
		retryAfter: strconv.Itoa(retry),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go rl.evictLoop(ctx)
	return rl
}

// Stop ends the eviction loop and waits for it. Safe to call twice.
func (rl *IPRateLimiter) Stop() {
	rl.cancel()
	<-rl.done
}

func (rl *IPRateLimiter) visitor(ip string, now time.Time) *visitor {
	v, ok := rl.visitors.Load(ip)
	if !ok {
		v, _ = rl.visitors.LoadOrStore(ip, &visitor{
			lim: rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst),
		})
	}
	vis := v.(*visitor)
	vis.seen.Store(now.UnixNano())
	return vis
}

func (rl *IPRateLimiter) evictLoop(ctx context.Context) {
	defer close(rl.done)

	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.evictIdle(now)
		}
	}
}

// evictIdle drops visitors idle for two cleanup intervals and returns how
// many were removed.
func (rl *IPRateLimiter) evictIdle(now time.Time) int {
	cutoff := now.Add(-2 * rl.cfg.CleanupInterval).UnixNano()
	evicted := 0
	rl.visitors.Range(func(ip, v any) bool {
		if v.(*visitor).seen.Load() < cutoff {
			rl.visitors.Delete(ip)
			evicted++
		}
		return true
	})
	return evicted
}

// Allow reports whether ip may make another request now.
func (rl *IPRateLimiter) Allow(ip string) bool {
	ok := rl.visitor(ip, time.Now()).lim.Allow()
	if ok {
		rl.allowed.Add(1)
	} else {
		rl.rejected.Add(1)
	}
	return ok
}

// Middleware rejects throttled requests with 429 and a Retry-After hint
// derived from the refill rate.
func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.Allow(GetClientIP(r)) {
			next.ServeHTTP(w, r)
			return
		}
		RecordConnectionRejected("rate_limit")
		w.Header().Set("Retry-After", rl.retryAfter)
		writeError(w, "Too Many Requests", http.StatusTooManyRequests)
	})
}

// RateLimitStats are limiter counters.
type RateLimitStats struct {
	Allowed  uint64 `json:"allowed"`
	Rejected uint64 `json:"rejected"`
}

// Stats returns the allowed and rejected request counts.
func (rl *IPRateLimiter) Stats() RateLimitStats {
	return RateLimitStats{
		Allowed:  rl.allowed.Load(),
		Rejected: rl.rejected.Load(),
	}
}

// GetClientIP returns the client address of r. The first X-Forwarded-For
// hop wins, then X-Real-IP, then RemoteAddr. Header values that do not
// parse as an IP are ignored.
func GetClientIP(r *http.Request) string {
	first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	for _, candidate := range []string{first, r.Header.Get("X-Real-IP")} {
		candidate = strings.TrimSpace(candidate)
		if candidate != "" && net.ParseIP(candidate) != nil {
			return candidate
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ConnLimiter caps concurrent WebSocket connections per IP. Entries are
// dropped when their last connection is released.
type ConnLimiter struct {
	mu       sync.Mutex
	open     map[string]int
	maxPerIP int
}

// NewConnLimiter creates a per-IP connection limiter.
func NewConnLimiter(maxPerIP int) *ConnLimiter {
	return &ConnLimiter{open: make(map[string]int), maxPerIP: maxPerIP}
}

// Acquire reserves a connection slot for ip.
func (cl *ConnLimiter) Acquire(ip string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.open[ip] >= cl.maxPerIP {
		return false
	}
	cl.open[ip]++
	return true
}

// Release frees a slot reserved by Acquire.
func (cl *ConnLimiter) Release(ip string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	switch n := cl.open[ip]; {
	case n > 1:
		cl.open[ip] = n - 1
	case n == 1:
		delete(cl.open, ip)
	}
}

// Count returns the open connections for ip.
func (cl *ConnLimiter) Count(ip string) int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.open[ip]
}

// originAllowed matches origin against patterns that may contain a single
// "*" wildcard, the same syntax go-chi/cors accepts.
func originAllowed(origin string, patterns []string) bool {
	if origin == "" {
		// non-browser clients send no Origin
		return true
	}
	origin = strings.ToLower(origin)
	for _, p := range patterns {
		p = strings.ToLower(p)
		if p == "*" || p == origin {
			return true
		}
		if i := strings.IndexByte(p, '*'); i >= 0 {
			prefix, suffix := p[:i], p[i+1:]
			if len(origin) >= len(prefix)+len(suffix) &&
				strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
				return true
			}
		}
	}
	return false
}
