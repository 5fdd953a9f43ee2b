package countdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMillis(t *testing.T) {
	assert.Equal(t, int64(1_700_000_000_000), NormalizeMillis(1_700_000_000))
	assert.Equal(t, int64(1_700_000_000_000), NormalizeMillis(1_700_000_000_000))
	assert.Equal(t, NormalizeMillis(1_700_000_000), NormalizeMillis(NormalizeMillis(1_700_000_000)))
}

func TestValidatePairRejectsMissing(t *testing.T) {
	_, err := ValidatePair(0, baseMillis, 0, baseMillis)
	assert.ErrorIs(t, err, ErrMissingTimestamp)

	_, err = ValidatePair(baseMillis, 0, 0, baseMillis)
	assert.ErrorIs(t, err, ErrMissingTimestamp)

	_, err = ValidatePair(-1, -1, 0, baseMillis)
	assert.ErrorIs(t, err, ErrMissingTimestamp)
}

func TestValidatePairExpiredTolerance(t *testing.T) {
	// Exactly five minutes past the deadline is still a finished countdown.
	pair, err := ValidatePair(baseMillis-300_000, baseMillis, 0, baseMillis)
	require.NoError(t, err)
	assert.Equal(t, baseMillis-300_000, pair.ServerEndTime)

	// One millisecond further is stale data, not a finished countdown.
	_, err = ValidatePair(baseMillis-300_001, baseMillis, 0, baseMillis)
	assert.ErrorIs(t, err, ErrExpiredBeyondTolerance)
}

func TestValidatePairFutureBound(t *testing.T) {
	yearMs := int64(365 * 24 * 3_600_000)

	_, err := ValidatePair(baseMillis+yearMs, baseMillis, 0, baseMillis)
	require.NoError(t, err)

	_, err = ValidatePair(baseMillis+yearMs+1, baseMillis, 0, baseMillis)
	assert.ErrorIs(t, err, ErrTooFarInFuture)
}

func TestValidatePairNormalizesSeconds(t *testing.T) {
	pair, err := ValidatePair(1_700_000_060, 1_700_000_000, 0, baseMillis)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_060_000), pair.ServerEndTime)
	assert.Equal(t, int64(1_700_000_000_000), pair.ServerNow)
}

func TestValidatePairLatencyCompensation(t *testing.T) {
	send := baseMillis

	// A five second round trip shifts serverNow forward by the full delay.
	pair, err := ValidatePair(baseMillis+60_000, baseMillis, send, baseMillis+5_000)
	require.NoError(t, err)
	assert.Equal(t, baseMillis+5_000, pair.ServerNow)
	assert.Equal(t, baseMillis+60_000, pair.ServerEndTime)

	// At exactly the tolerance no shift is applied.
	pair, err = ValidatePair(baseMillis+60_000, baseMillis, send, baseMillis+2_000)
	require.NoError(t, err)
	assert.Equal(t, baseMillis, pair.ServerNow)

	// Unknown send time (the cache path) never shifts.
	pair, err = ValidatePair(baseMillis+60_000, baseMillis, 0, baseMillis+5_000)
	require.NoError(t, err)
	assert.Equal(t, baseMillis, pair.ServerNow)
}
