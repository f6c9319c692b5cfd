package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedanceCost(t *testing.T) {
	cost, err := SeedanceCost("480p", "4")
	require.NoError(t, err)
	assert.Equal(t, int64(40), cost)

	cost, err = SeedanceCost("720p", "12")
	require.NoError(t, err)
	assert.Equal(t, int64(240), cost)

	_, err = SeedanceCost("1080p", "4")
	assert.ErrorIs(t, err, ErrUnknownPricing)

	_, err = SeedanceCost("480p", "6")
	assert.ErrorIs(t, err, ErrUnknownPricing)
}

func TestWan26Cost(t *testing.T) {
	cost, err := Wan26Cost("720p", "5")
	require.NoError(t, err)
	assert.Equal(t, int64(70), cost)

	cost, err = Wan26Cost("1080p", "15")
	require.NoError(t, err)
	assert.Equal(t, int64(315), cost)

	_, err = Wan26Cost("480p", "5")
	assert.ErrorIs(t, err, ErrUnknownPricing)
}

func TestVideoCost_Dispatch(t *testing.T) {
	cost, err := VideoCost("seedance", "480p", "8")
	require.NoError(t, err)
	assert.Equal(t, int64(80), cost)

	cost, err = VideoCost("wan-2.6", "720p", "10")
	require.NoError(t, err)
	assert.Equal(t, int64(140), cost)

	_, err = VideoCost("unknown-model", "480p", "4")
	assert.ErrorIs(t, err, ErrUnknownPricing)
}
