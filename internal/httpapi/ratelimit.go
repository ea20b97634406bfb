// Package httpapi hosts the HTTP edge in front of the orchestrator and read
// API: routing, the per-tenant rate limiter, and JSON response helpers.
package httpapi

import (
	"container/list"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/meetbot/platform/internal/auth"
	"github.com/meetbot/platform/internal/metrics"
)

// TenantRateLimiter keeps one token-bucket limiter per resolved tenant in an
// LRU-bounded map, grounded on the teacher gateway's per-key rate-limiting
// middleware lineage, generalized from a Redis fixed-window counter to an
// in-process token bucket since there is no separate API-key-vs-tenant tier
// here.
type TenantRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*list.Element
	order    *list.List
	maxSize  int
	rps      rate.Limit
	burst    int
}

type limiterEntry struct {
	tenantID string
	limiter  *rate.Limiter
}

func NewTenantRateLimiter(rps float64, burst, maxSize int) *TenantRateLimiter {
	return &TenantRateLimiter{
		limiters: make(map[string]*list.Element),
		order:    list.New(),
		maxSize:  maxSize,
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (rl *TenantRateLimiter) get(tenantID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if el, ok := rl.limiters[tenantID]; ok {
		rl.order.MoveToFront(el)
		return el.Value.(*limiterEntry).limiter
	}

	limiter := rate.NewLimiter(rl.rps, rl.burst)
	el := rl.order.PushFront(&limiterEntry{tenantID: tenantID, limiter: limiter})
	rl.limiters[tenantID] = el

	if rl.order.Len() > rl.maxSize {
		oldest := rl.order.Back()
		if oldest != nil {
			rl.order.Remove(oldest)
			delete(rl.limiters, oldest.Value.(*limiterEntry).tenantID)
		}
	}

	return limiter
}

// Middleware rejects requests from a resolved tenant that has exceeded its
// bucket, and passes through unauthenticated requests (auth runs first).
func (rl *TenantRateLimiter) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.FromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			if !rl.get(principal.TenantID.String()).Allow() {
				metrics.RateLimitRejections.WithLabelValues(route).Inc()
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"status":"error","message":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
