package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/render"
	"golang.org/x/time/rate"
)

const (
	clientSweepInterval = time.Minute
	clientIdleEviction  = 3 * time.Minute
)

// RateLimiter throttles callers per remote address. Webhook traffic from
// the provider and dashboard polling share the same budget.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds a per-address limiter and starts the idle-entry
// sweeper.
func NewRateLimiter(limit rate.Limit, burst int) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*client),
		limit:   limit,
		burst:   burst,
	}

	go rl.sweep()

	return rl
}

func (rl *RateLimiter) sweep() {
	for range time.Tick(clientSweepInterval) {
		rl.mu.Lock()
		for addr, c := range rl.clients {
			if time.Since(c.lastSeen) > clientIdleEviction {
				delete(rl.clients, addr)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *RateLimiter) limiterFor(addr string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[addr]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[addr] = c
	}
	c.lastSeen = time.Now()

	return c.limiter
}

// Middleware rejects over-budget requests with 429.
func (rl *RateLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.limiterFor(r.RemoteAddr).Allow() {
				w.WriteHeader(http.StatusTooManyRequests)
				render.JSON(w, r, map[string]interface{}{
					"error":   ErrorCodeRateLimitExceeded,
					"message": ErrorMessageRateLimitExceeded,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
