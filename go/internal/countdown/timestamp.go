package countdown

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// millisThreshold separates second-resolution epoch timestamps from
// millisecond-resolution ones. Anything below 1e12 (Sun Sep 09 2001 in ms)
// is assumed to be seconds.
const millisThreshold = 1_000_000_000_000

// NormalizeMillis canonicalizes an epoch timestamp of ambiguous unit into
// epoch milliseconds. Idempotent: NormalizeMillis(NormalizeMillis(x)) ==
// NormalizeMillis(x).
func NormalizeMillis(ts int64) int64 {
	if ts < millisThreshold {
		return ts * 1000
	}
	return ts
}

// nowMillis returns the clock's current time as epoch milliseconds.
func nowMillis(clock clockwork.Clock) int64 {
	return clock.Now().UnixMilli()
}

// millis converts a duration to whole milliseconds.
func millis(d time.Duration) int64 {
	return d.Milliseconds()
}
