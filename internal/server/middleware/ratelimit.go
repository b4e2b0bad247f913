package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterSweepEvery = 10 * time.Minute
	limiterIdleAfter  = 30 * time.Minute
)

const tooManyRequests = `{"title":"Too Many Requests","status":429,"detail":"rate limit exceeded"}`

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// keyedLimiters holds one token bucket per key and forgets idle keys.
type keyedLimiters struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int
}

func newKeyedLimiters(ctx context.Context, rps float64, burst int) *keyedLimiters {
	k := &keyedLimiters{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
	go k.sweep(ctx)
	return k
}

func (k *keyedLimiters) allow(key string) bool {
	now := time.Now()

	k.mu.Lock()
	b, ok := k.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(k.rps, k.burst)}
		k.buckets[key] = b
	}
	b.lastSeen = now
	k.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

func (k *keyedLimiters) sweep(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			cutoff := now.Add(-limiterIdleAfter)
			k.mu.Lock()
			for key, b := range k.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(k.buckets, key)
				}
			}
			k.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

// limit wraps next so requests sharing a key share a bucket. Requests for
// which key reports false are not limited.
func (k *keyedLimiters) limit(key func(*http.Request) (string, bool)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, ok := key(r); ok && !k.allow(id) {
				http.Error(w, tooManyRequests, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP limits unauthenticated endpoints (health, metrics) per client
// address. Put it behind chi's RealIP so proxies are accounted for.
func RateLimitByIP(ctx context.Context, requestsPerSecond float64, burst int) func(http.Handler) http.Handler {
	return newKeyedLimiters(ctx, requestsPerSecond, burst).limit(clientIP)
}

// RateLimit limits authenticated requests per operator. Requests without an
// operator pass through.
func RateLimit(ctx context.Context, requestsPerSecond float64, burst int) func(http.Handler) http.Handler {
	return newKeyedLimiters(ctx, requestsPerSecond, burst).limit(func(r *http.Request) (string, bool) {
		return OperatorFromContext(r.Context())
	})
}

func clientIP(r *http.Request) (string, bool) {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host, true
	}
	return r.RemoteAddr, true
}
