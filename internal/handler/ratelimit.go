package handler

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per user.
type rateLimiter struct {
	mu        sync.Mutex
	users     map[string]*userLimiter
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}

	return &rateLimiter{
		users: make(map[string]*userLimiter),
		limit: limit,
		burst: burst,
	}
}

func (l *rateLimiter) allow(userID string) bool {
	return l.getLimiter(userID).Allow()
}

func (l *rateLimiter) getLimiter(userID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > time.Minute {
		for id, u := range l.users {
			if now.Sub(u.lastSeen) > limiterIdleTTL {
				delete(l.users, id)
			}
		}
		l.lastSweep = now
	}

	u, exists := l.users[userID]
	if !exists {
		u = &userLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.users[userID] = u
	}
	u.lastSeen = now

	return u.limiter
}
