package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit applies a per-owner token bucket. All guest traffic shares
// one bucket, which is the point: anonymous uploads should not be able
// to starve the analysis engine.
func RateLimit(perSecond float64, burst int) func(http.Handler) http.Handler {
	limiters := sync.Map{} // ownerID -> *cachedLimiter
	const ttl = 5 * time.Minute

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if perSecond <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			owner := OwnerFromContext(r.Context())
			limiter := getOrCreateLimiter(&limiters, owner, perSecond, burst, ttl)
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type cachedLimiter struct {
	limiter   *rate.Limiter
	expiresAt time.Time
}

func getOrCreateLimiter(limiters *sync.Map, owner string, perSecond float64, burst int, ttl time.Duration) *rate.Limiter {
	if v, ok := limiters.Load(owner); ok {
		cached := v.(*cachedLimiter)
		if time.Now().Before(cached.expiresAt) {
			return cached.limiter
		}
	}

	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	limiters.Store(owner, &cachedLimiter{
		limiter:   limiter,
		expiresAt: time.Now().Add(ttl),
	})
	return limiter
}
