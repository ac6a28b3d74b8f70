package scanhead

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurationDefaults(t *testing.T) {
	t.Parallel()

	c := NewConfiguration()
	minV, defV, maxV := c.LaserOnTime()
	assert.Equal(t, [3]uint32{100, 500, 1000}, [3]uint32{minV, defV, maxV})
	assert.Equal(t, uint32(120), c.LaserDetectionThreshold())
	assert.Equal(t, uint32(800), c.SaturationThreshold())
	assert.Equal(t, uint32(30), c.SaturationPercentage())
}

func TestSetLaserOnTimeRejectsUnordered(t *testing.T) {
	t.Parallel()

	c := NewConfiguration()
	require.NoError(t, c.SetLaserOnTime(100, 500, 1000))

	// A failed update leaves the previous values untouched.
	err := c.SetLaserOnTime(600, 500, 1000)
	assert.ErrorIs(t, err, ErrConfigRange)
	minV, defV, maxV := c.LaserOnTime()
	assert.Equal(t, [3]uint32{100, 500, 1000}, [3]uint32{minV, defV, maxV})
}

func TestSetLaserOnTimeRange(t *testing.T) {
	t.Parallel()

	c := NewConfiguration()
	assert.ErrorIs(t, c.SetLaserOnTime(10, 500, 1000), ErrConfigRange)
	assert.ErrorIs(t, c.SetLaserOnTime(100, 500, MaxLaserOnTimeUs+1), ErrConfigRange)
	assert.NoError(t, c.SetLaserOnTime(MinLaserOnTimeUs, 500, MaxLaserOnTimeUs))
}

func TestSetLaserOnTimeAllZeroDisablesLaser(t *testing.T) {
	t.Parallel()

	c := NewConfiguration()
	require.NoError(t, c.SetLaserOnTime(0, 0, 0))
	minV, defV, maxV := c.LaserOnTime()
	assert.Equal(t, [3]uint32{0, 0, 0}, [3]uint32{minV, defV, maxV})
}

func TestSetCameraExposureTime(t *testing.T) {
	t.Parallel()

	c := NewConfiguration()
	assert.NoError(t, c.SetCameraExposureTime(MinCameraExposureUs, 100000, MaxCameraExposureUs))
	assert.ErrorIs(t, c.SetCameraExposureTime(0, 100, 1000), ErrConfigRange)
	assert.ErrorIs(t, c.SetCameraExposureTime(100, 50, 1000), ErrConfigRange)
}

func TestThresholdSetters(t *testing.T) {
	t.Parallel()

	c := NewConfiguration()
	assert.NoError(t, c.SetLaserDetectionThreshold(0))
	assert.NoError(t, c.SetLaserDetectionThreshold(MaxThreshold))
	assert.ErrorIs(t, c.SetLaserDetectionThreshold(MaxThreshold+1), ErrConfigRange)

	assert.NoError(t, c.SetSaturationThreshold(1023))
	assert.ErrorIs(t, c.SetSaturationThreshold(2000), ErrConfigRange)

	assert.NoError(t, c.SetSaturationPercentage(1))
	assert.NoError(t, c.SetSaturationPercentage(100))
	assert.ErrorIs(t, c.SetSaturationPercentage(0), ErrConfigRange)
	assert.ErrorIs(t, c.SetSaturationPercentage(101), ErrConfigRange)
}

func TestMaxScanRateBoundedByLaser(t *testing.T) {
	t.Parallel()

	c := NewConfiguration()
	require.NoError(t, c.SetLaserOnTime(100, 500, 1000))
	assert.InDelta(t, 1000.0, c.MaxScanRate(), 1e-9, "1ms max laser limits rate to 1kHz")

	require.NoError(t, c.SetLaserOnTime(15, 15, 100))
	assert.InDelta(t, MaxScanRateHz, c.MaxScanRate(), 1e-9, "device ceiling applies")

	require.NoError(t, c.SetLaserOnTime(0, 0, 0))
	assert.InDelta(t, MaxScanRateHz, c.MaxScanRate(), 1e-9)
}
