package util

import "time"

// SkipThrottler lets an action through at most once per period, and skips it otherwise.
type SkipThrottler struct {
	d    time.Duration
	last time.Time

	now func() time.Time
}

func NewSkipThrottler(d time.Duration) *SkipThrottler {
	tt := &SkipThrottler{d: d, now: time.Now}
	return tt
}

// Ok reports whether the action may run now, and if so starts a new period.
// The first call always succeeds.
func (tt *SkipThrottler) Ok() bool {
	now := tt.now()
	if !tt.last.IsZero() && now.Before(tt.last.Add(tt.d)) {
		return false
	}

	tt.last = now
	return true
}
