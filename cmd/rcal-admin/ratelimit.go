package main

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// queryLimiter throttles the query endpoints (EVT_QUERY/EVI_QUERY) per
// caller, on top of chi/httprate's coarser router-wide per-IP limit — query
// parsing and instance expansion are the most expensive operations the
// engine exposes, so they get their own, tighter budget.
type queryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newQueryLimiter(rps float64, burst int) *queryLimiter {
	return &queryLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (q *queryLimiter) limiterFor(key string) *rate.Limiter {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.limiters[key]
	if !ok {
		l = rate.NewLimiter(q.rps, q.burst)
		q.limiters[key] = l
	}
	return l
}

// Middleware keys the limiter by remote address; a deployment behind a
// trusted proxy would key by an authenticated subject instead.
func (q *queryLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !q.limiterFor(r.RemoteAddr).Allow() {
			http.Error(w, "query rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
