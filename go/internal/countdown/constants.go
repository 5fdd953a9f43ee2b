package countdown

import "time"

const (
	// MaxTimestampDeviation is how far past its deadline a candidate pair
	// may be before it is rejected as expired-beyond-tolerance rather than
	// treated as a legitimately finished countdown.
	MaxTimestampDeviation = 5 * time.Minute

	// MaxFutureTime bounds how far in the future a deadline may sit.
	// Anything beyond this is treated as server misconfiguration.
	MaxFutureTime = 365 * 24 * time.Hour

	// RequestDelayTolerance is the round-trip delay above which the
	// accepted serverNow is shifted forward by the observed delay.
	RequestDelayTolerance = 2 * time.Second

	// MaxRetries bounds how many times a failed sync is retried before
	// falling back to the cached snapshot.
	MaxRetries = 3

	// MaxCacheAge is how long a persisted snapshot stays usable.
	MaxCacheAge = 24 * time.Hour

	// DeadlineJumpTolerance is the largest serverEndTime increase accepted
	// across consecutive syncs. Bigger jumps are reverted as anomalies.
	DeadlineJumpTolerance = 2 * time.Second

	// SyncCooldown is the minimum gap between two full sync cycles,
	// regardless of how many trigger sources fire.
	SyncCooldown = time.Second

	// DefaultSyncTimeout bounds a single sync round trip.
	DefaultSyncTimeout = 15 * time.Second
)

// retryDelays is the inter-retry backoff schedule. The last entry is reused
// when the retry count outruns the schedule.
var retryDelays = []time.Duration{time.Second, 3 * time.Second, 5 * time.Second}

// retryDelayFor returns the wait before retry number attempt (zero-based).
func retryDelayFor(attempt int) time.Duration {
	if attempt >= len(retryDelays) {
		return retryDelays[len(retryDelays)-1]
	}
	return retryDelays[attempt]
}
