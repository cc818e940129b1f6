package signal

import (
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/patrickmn/go-cache"
)

// RoomRateLimiter allows at most limit room creations per connection in a
// fixed window. Counters expire with the window.
type RoomRateLimiter struct {
	counters *cache.Cache
	limit    int
	interval time.Duration
}

func NewRoomRateLimiter(limit int, interval time.Duration) *RoomRateLimiter {
	return &RoomRateLimiter{
		counters: cache.New(interval, 2*interval),
		limit:    limit,
		interval: interval,
	}
}

func (rl *RoomRateLimiter) Allow(sid core.SessionID) bool {
	if rl.limit <= 0 {
		return true
	}
	key := string(sid)
	for range 2 {
		if err := rl.counters.Add(key, 1, rl.interval); err == nil {
			return true
		}
		n, err := rl.counters.IncrementInt(key, 1)
		if err != nil {
			// window expired between Add and IncrementInt
			continue
		}
		return n <= rl.limit
	}
	return false
}

func (rl *RoomRateLimiter) Forget(sid core.SessionID) {
	rl.counters.Delete(string(sid))
}
