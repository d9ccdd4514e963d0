package server

import (
	"sync"

	"golang.org/x/time/rate"
)

// checkInLimiter applies a per-beacon token bucket to the check-in endpoint.
// A beacon stuck in a tight retry loop gets 429s instead of hammering the
// claim path.
type checkInLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	ratePerS rate.Limit
	burst    int
}

func newCheckInLimiter(perMinute float64, burst int) *checkInLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	if burst <= 0 {
		burst = 10
	}
	return &checkInLimiter{
		limiters: make(map[string]*rate.Limiter),
		ratePerS: rate.Limit(perMinute / 60.0),
		burst:    burst,
	}
}

// allow reports whether a check-in from the beacon may proceed.
func (l *checkInLimiter) allow(beaconID string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[beaconID]
	if !ok {
		lim = rate.NewLimiter(l.ratePerS, l.burst)
		l.limiters[beaconID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// setRate updates the limits for beacons seen from now on (config reload).
func (l *checkInLimiter) setRate(perMinute float64, burst int) {
	if perMinute <= 0 || burst <= 0 {
		return
	}
	l.mu.Lock()
	l.ratePerS = rate.Limit(perMinute / 60.0)
	l.burst = burst
	l.limiters = make(map[string]*rate.Limiter)
	l.mu.Unlock()
}
