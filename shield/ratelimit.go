package shield

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPRateConfig controls the per-IP limiter. Zero values take defaults.
// The defaults leave room for clients polling several jobs at once.
type IPRateConfig struct {
	RPS         float64       // requests per second per IP (default 20)
	Burst       int           // burst per IP (default 40)
	IdleEvict   time.Duration // drop limiters idle this long (default 10m)
	ExcludePath []string      // exact paths exempt from limiting (default /health)
}

func (c *IPRateConfig) applyDefaults() {
	if c.RPS == 0 {
		c.RPS = 20
	}
	if c.Burst == 0 {
		c.Burst = 40
	}
	if c.IdleEvict == 0 {
		c.IdleEvict = 10 * time.Minute
	}
	if c.ExcludePath == nil {
		c.ExcludePath = []string{"/health"}
	}
}

// IPRateLimiter throttles requests per client IP with token buckets.
// Limiters for idle clients are evicted lazily on the next sweep.
type IPRateLimiter struct {
	cfg IPRateConfig

	mu      sync.Mutex
	clients map[string]*client
	sweepAt time.Time
}

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewIPRateLimiter creates a limiter with the given config.
func NewIPRateLimiter(cfg IPRateConfig) *IPRateLimiter {
	cfg.applyDefaults()
	return &IPRateLimiter{
		cfg:     cfg,
		clients: make(map[string]*client),
		sweepAt: time.Now().Add(cfg.IdleEvict),
	}
}

// Middleware rejects over-limit requests with 429.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, p := range l.cfg.ExcludePath {
			if r.URL.Path == p {
				next.ServeHTTP(w, r)
				return
			}
		}
		ip := clientIP(r)
		if !l.allow(ip) {
			slog.Warn("shield: rate limit exceeded", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *IPRateLimiter) allow(ip string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.sweepAt) {
		for k, c := range l.clients {
			if now.Sub(c.seen) > l.cfg.IdleEvict {
				delete(l.clients, k)
			}
		}
		l.sweepAt = now.Add(l.cfg.IdleEvict)
	}

	c, ok := l.clients[ip]
	if !ok {
		c = &client{lim: rate.NewLimiter(rate.Limit(l.cfg.RPS), l.cfg.Burst)}
		l.clients[ip] = c
	}
	c.seen = now
	return c.lim.Allow()
}

// clientIP strips the port from RemoteAddr. Proxy headers are ignored:
// prowl binds directly, and trusting X-Forwarded-For would let clients
// reset their own bucket.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
