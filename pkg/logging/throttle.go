package logging

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle suppresses repeated log lines sharing the same key within
// a window, tracking how many were suppressed so the next allowed
// line can report the count.
//
// Grounded on the original Python's AntiSpamLogger
// (src/ntrip.py): a per-key sliding window that allows up to
// max_count log lines per time_window and counts the rest as
// suppressed. Re-expressed here as one golang.org/x/time/rate.Limiter
// per key rather than a hand-rolled timestamp list, since a token
// bucket is the idiomatic Go way to express "N events per window" and
// x/time/rate is already a pack-wide dependency (bluenviron-mediamtx).
type Throttle struct {
	mu       sync.Mutex
	window   time.Duration
	burst    int
	limiters map[string]*entry
}

type entry struct {
	limiter    *rate.Limiter
	suppressed int
}

// NewThrottle allows burst log lines per key every window before
// suppressing the rest.
func NewThrottle(window time.Duration, burst int) *Throttle {
	if window <= 0 {
		window = time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{
		window:   window,
		burst:    burst,
		limiters: make(map[string]*entry),
	}
}

// Allow reports whether a log line keyed by key should be emitted now.
// When ok is true, suppressed is how many lines under the same key were
// suppressed since the last one that was allowed; when ok is false, it
// is the running suppressed count including this call.
func (t *Throttle) Allow(key string) (ok bool, suppressed int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok2 := t.limiters[key]
	if !ok2 {
		e = &entry{limiter: rate.NewLimiter(rate.Every(t.window/time.Duration(t.burst)), t.burst)}
		t.limiters[key] = e
	}

	if e.limiter.Allow() {
		s := e.suppressed
		e.suppressed = 0
		return true, s
	}
	e.suppressed++
	return false, e.suppressed
}
