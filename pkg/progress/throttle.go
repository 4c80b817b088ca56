package progress

import "time"

// DefaultInterval is the minimum spacing between two emitted snapshots.
const DefaultInterval = 200 * time.Millisecond

// Throttle rate limits snapshot emission for a single transfer. The completing
// snapshot always passes. A Throttle is not safe for concurrent use.
type Throttle struct {
	interval time.Duration
	last     time.Time
}

func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Throttle{interval: interval}
}

// Ready reports whether a snapshot taken at now should be emitted, and if so
// records now as the last emission.
func (t *Throttle) Ready(now time.Time, percent int) bool {
	if percent < 100 && !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}
