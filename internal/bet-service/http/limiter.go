package http

import (
	"sync"

	"golang.org/x/time/rate"
)

// maxTrackedUsers limita o mapa de limiters; ao estourar, o mapa é recriado
const maxTrackedUsers = 100_000

// userLimiter aplica um token bucket por usuário em POST /bets
type userLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newUserLimiter(perSecond float64, burst int) *userLimiter {
	return &userLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow consome um token do usuário. perSecond <= 0 desliga o limite.
func (u *userLimiter) Allow(userID string) bool {
	if u == nil || u.limit <= 0 {
		return true
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	l, ok := u.limiters[userID]
	if !ok {
		if len(u.limiters) >= maxTrackedUsers {
			u.limiters = make(map[string]*rate.Limiter)
		}
		l = rate.NewLimiter(u.limit, u.burst)
		u.limiters[userID] = l
	}
	return l.Allow()
}
