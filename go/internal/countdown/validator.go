package countdown

import "errors"

var (
	// ErrMissingTimestamp flags a candidate pair with an absent or
	// non-positive timestamp.
	ErrMissingTimestamp = errors.New("countdown: missing or non-positive timestamp")

	// ErrExpiredBeyondTolerance flags a pair whose deadline sits further in
	// the past than MaxTimestampDeviation allows.
	ErrExpiredBeyondTolerance = errors.New("countdown: deadline expired beyond tolerance")

	// ErrTooFarInFuture flags a deadline more than MaxFutureTime away.
	ErrTooFarInFuture = errors.New("countdown: deadline too far in the future")
)

// ValidatedPair is a sanity-checked (serverEndTime, serverNow) pair in
// canonical epoch milliseconds. ServerNow is latency-adjusted when the
// request delay exceeded tolerance; ServerEndTime is never shifted.
type ValidatedPair struct {
	ServerEndTime int64
	ServerNow     int64
}

// ValidatePair is the single validation entry point for both live sync
// responses and cache-derived candidates.
//
// rawEnd and rawNow may be in seconds or milliseconds; they are normalized
// before comparison. requestSendTime is the local epoch-ms timestamp at
// which the request left, or 0 when unknown (cache candidates). localNow is
// the local epoch-ms time at which the pair is being accepted.
//
// The returned pair carries no client reference point. Stamping clientNow
// is the caller's job, tied to the moment of acceptance.
func ValidatePair(rawEnd, rawNow, requestSendTime, localNow int64) (ValidatedPair, error) {
	if rawEnd <= 0 || rawNow <= 0 {
		return ValidatedPair{}, ErrMissingTimestamp
	}

	end := NormalizeMillis(rawEnd)
	now := NormalizeMillis(rawNow)

	diff := end - now
	if diff < -millis(MaxTimestampDeviation) {
		return ValidatedPair{}, ErrExpiredBeyondTolerance
	}
	if diff > millis(MaxFutureTime) {
		return ValidatedPair{}, ErrTooFarInFuture
	}

	// Latency compensation: the server produced its "now" one round trip
	// ago. Only worth correcting once the delay exceeds tolerance.
	if requestSendTime > 0 {
		if delay := localNow - requestSendTime; delay > millis(RequestDelayTolerance) {
			now += delay
		}
	}

	return ValidatedPair{ServerEndTime: end, ServerNow: now}, nil
}
