// Package scanhead models a single scan head: its operating configuration
// and the session that exchanges datagrams with it.
package scanhead

import (
	"errors"
	"fmt"
)

// Operating limits enforced on every configuration change.
const (
	MinLaserOnTimeUs = 15
	MaxLaserOnTimeUs = 650000

	MinCameraExposureUs = 15
	MaxCameraExposureUs = 2000000

	MaxThreshold = 1023

	MinScanRateHz = 0.02
	MaxScanRateHz = 4000.0
)

// ErrConfigRange reports a configuration value outside its allowed range.
// A failed setter leaves the previous configuration untouched.
var ErrConfigRange = errors.New("scanhead: configuration value out of range")

// Configuration holds the operating parameters sent with every scan
// request. The zero value is not usable; NewConfiguration supplies
// defaults that work on a bare head.
type Configuration struct {
	minLaserOnUs uint32
	defLaserOnUs uint32
	maxLaserOnUs uint32

	minExposureUs uint32
	defExposureUs uint32
	maxExposureUs uint32

	laserDetectionThreshold uint32
	saturationThreshold     uint32
	saturationPercentage    uint32

	scanOffsetUs uint32
}

// NewConfiguration returns a configuration with conservative defaults.
func NewConfiguration() *Configuration {
	return &Configuration{
		minLaserOnUs:            100,
		defLaserOnUs:            500,
		maxLaserOnUs:            1000,
		minExposureUs:           10000,
		defExposureUs:           500000,
		maxExposureUs:           1000000,
		laserDetectionThreshold: 120,
		saturationThreshold:     800,
		saturationPercentage:    30,
	}
}

// SetLaserOnTime bounds the laser exposure auto-adjustment, in
// microseconds. Zero for all three disables the laser; otherwise each value
// must be within the device limits and min <= def <= max.
func (c *Configuration) SetLaserOnTime(minUs, defUs, maxUs uint32) error {
	if minUs == 0 && defUs == 0 && maxUs == 0 {
		c.minLaserOnUs, c.defLaserOnUs, c.maxLaserOnUs = 0, 0, 0
		return nil
	}
	if err := checkRange("laser on time", minUs, defUs, maxUs, MinLaserOnTimeUs, MaxLaserOnTimeUs); err != nil {
		return err
	}
	c.minLaserOnUs, c.defLaserOnUs, c.maxLaserOnUs = minUs, defUs, maxUs
	return nil
}

// SetCameraExposureTime bounds the camera exposure auto-adjustment, in
// microseconds. Each value must be within the device limits and
// min <= def <= max.
func (c *Configuration) SetCameraExposureTime(minUs, defUs, maxUs uint32) error {
	if err := checkRange("camera exposure", minUs, defUs, maxUs, MinCameraExposureUs, MaxCameraExposureUs); err != nil {
		return err
	}
	c.minExposureUs, c.defExposureUs, c.maxExposureUs = minUs, defUs, maxUs
	return nil
}

// SetLaserDetectionThreshold sets the minimum brightness a pixel must reach
// to count as a laser peak, 0 to 1023.
func (c *Configuration) SetLaserDetectionThreshold(threshold uint32) error {
	if threshold > MaxThreshold {
		return fmt.Errorf("%w: laser detection threshold %d > %d", ErrConfigRange, threshold, MaxThreshold)
	}
	c.laserDetectionThreshold = threshold
	return nil
}

// SetSaturationThreshold sets the brightness at which a pixel counts as
// saturated, 0 to 1023.
func (c *Configuration) SetSaturationThreshold(threshold uint32) error {
	if threshold > MaxThreshold {
		return fmt.Errorf("%w: saturation threshold %d > %d", ErrConfigRange, threshold, MaxThreshold)
	}
	c.saturationThreshold = threshold
	return nil
}

// SetSaturationPercentage sets the fraction of saturated pixels tolerated
// before exposure is lowered, 1 to 100.
func (c *Configuration) SetSaturationPercentage(percentage uint32) error {
	if percentage < 1 || percentage > 100 {
		return fmt.Errorf("%w: saturation percentage %d outside [1, 100]", ErrConfigRange, percentage)
	}
	c.saturationPercentage = percentage
	return nil
}

// SetScanOffset delays this head's scans relative to the shared schedule,
// in microseconds. Used to interleave heads whose lasers would otherwise
// interfere.
func (c *Configuration) SetScanOffset(offsetUs uint32) {
	c.scanOffsetUs = offsetUs
}

// LaserOnTime returns the configured bounds in microseconds.
func (c *Configuration) LaserOnTime() (minUs, defUs, maxUs uint32) {
	return c.minLaserOnUs, c.defLaserOnUs, c.maxLaserOnUs
}

// CameraExposureTime returns the configured bounds in microseconds.
func (c *Configuration) CameraExposureTime() (minUs, defUs, maxUs uint32) {
	return c.minExposureUs, c.defExposureUs, c.maxExposureUs
}

// LaserDetectionThreshold returns the configured peak threshold.
func (c *Configuration) LaserDetectionThreshold() uint32 { return c.laserDetectionThreshold }

// SaturationThreshold returns the configured saturation level.
func (c *Configuration) SaturationThreshold() uint32 { return c.saturationThreshold }

// SaturationPercentage returns the configured saturation tolerance.
func (c *Configuration) SaturationPercentage() uint32 { return c.saturationPercentage }

// ScanOffset returns the configured schedule offset in microseconds.
func (c *Configuration) ScanOffset() uint32 { return c.scanOffsetUs }

// MaxScanRate returns the highest scan rate the laser bounds allow, in hertz.
// A head cannot scan faster than its longest permitted laser exposure.
func (c *Configuration) MaxScanRate() float64 {
	if c.maxLaserOnUs == 0 {
		return MaxScanRateHz
	}
	rate := 1e6 / float64(c.maxLaserOnUs)
	if rate > MaxScanRateHz {
		return MaxScanRateHz
	}
	return rate
}

func checkRange(what string, minV, defV, maxV, lo, hi uint32) error {
	for _, v := range []uint32{minV, defV, maxV} {
		if v < lo || v > hi {
			return fmt.Errorf("%w: %s %d outside [%d, %d]", ErrConfigRange, what, v, lo, hi)
		}
	}
	if minV > defV || defV > maxV {
		return fmt.Errorf("%w: %s min %d, def %d, max %d not ordered", ErrConfigRange, what, minV, defV, maxV)
	}
	return nil
}
