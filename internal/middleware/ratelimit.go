package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cutiecart/internal/model"
)

// RateLimitConfig sizes the per-client token buckets.
type RateLimitConfig struct {
	RPS   float64
	Burst int

	// MaxClients bounds memory; idle buckets are swept when it is reached.
	MaxClients int
	// IdleAfter is how long a bucket must go unused before it can be swept.
	IdleAfter time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterSet struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// RateLimit returns middleware giving each remote IP its own token bucket.
// The session header is chosen by the client, so it never selects a bucket.
// RPS <= 0 disables limiting.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return rateLimit(cfg, time.Now)
}

func rateLimit(cfg RateLimitConfig, now func() time.Time) func(http.Handler) http.Handler {
	if cfg.RPS <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 10000
	}
	if cfg.IdleAfter <= 0 {
		cfg.IdleAfter = 10 * time.Minute
	}
	set := &limiterSet{cfg: cfg, now: now, buckets: make(map[string]*bucket)}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !set.allow(clientKey(r)) {
				w.Header().Set("Retry-After", "1")
				writeError(w, model.NewRateLimitError("request"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *limiterSet) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, ok := s.buckets[key]
	if !ok {
		if len(s.buckets) >= s.cfg.MaxClients {
			s.sweepLocked(now)
		}
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(s.cfg.RPS), s.cfg.Burst)}
		s.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// sweepLocked drops idle buckets; if none are idle the oldest one goes.
func (s *limiterSet) sweepLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, b := range s.buckets {
		if now.Sub(b.lastSeen) >= s.cfg.IdleAfter {
			delete(s.buckets, k)
			continue
		}
		if oldestKey == "" || b.lastSeen.Before(oldest) {
			oldestKey, oldest = k, b.lastSeen
		}
	}
	if len(s.buckets) >= s.cfg.MaxClients && oldestKey != "" {
		delete(s.buckets, oldestKey)
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
