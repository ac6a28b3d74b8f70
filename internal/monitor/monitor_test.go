package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scanlink-data/scanlink/internal/profile"
)

func flatProfile(y int32, validEvery int) *profile.Profile {
	p := &profile.Profile{
		PacketsReceived: 1,
		PacketsExpected: 1,
		Points:          make([]profile.Point, profile.ProfileDataLen),
	}
	for i := range p.Points {
		if i%validEvery == 0 {
			p.Points[i] = profile.Point{X: int32(i), Y: y, Brightness: 100}
		} else {
			p.Points[i] = profile.Point{X: profile.InvalidXY, Y: profile.InvalidXY}
		}
	}
	return p
}

func TestProfileStatsCounts(t *testing.T) {
	t.Parallel()

	ps := NewProfileStats()
	ps.AddProfile(flatProfile(100, 1))
	incompleteProfile := flatProfile(100, 2)
	incompleteProfile.PacketsExpected = 2
	ps.AddProfile(incompleteProfile)

	profiles, points, incomplete, _ := ps.GetAndReset()
	assert.Equal(t, int64(2), profiles)
	assert.Equal(t, int64(profile.ProfileDataLen+profile.ProfileDataLen/2), points)
	assert.Equal(t, int64(1), incomplete)

	// Counters reset after a read.
	profiles, _, _, _ = ps.GetAndReset()
	assert.Zero(t, profiles)
}

func TestSummarizeFlatSurface(t *testing.T) {
	t.Parallel()

	s := Summarize(flatProfile(2500, 1))
	assert.Equal(t, profile.ProfileDataLen, s.ValidPoints)
	assert.InDelta(t, 2500, s.MeanY, 1e-9)
	assert.InDelta(t, 0, s.StdDevY, 1e-9)
	assert.InDelta(t, 2500, s.MedianY, 1e-9)
	assert.InDelta(t, 2500, s.P05Y, 1e-9)
	assert.InDelta(t, 2500, s.P95Y, 1e-9)
	assert.InDelta(t, 0, s.MinX, 1e-9)
	assert.InDelta(t, profile.ProfileDataLen-1, s.MaxX, 1e-9)
}

func TestSummarizeEmptyProfile(t *testing.T) {
	t.Parallel()

	p := &profile.Profile{Points: make([]profile.Point, profile.ProfileDataLen)}
	for i := range p.Points {
		p.Points[i] = profile.Point{X: profile.InvalidXY, Y: profile.InvalidXY}
	}
	assert.Equal(t, Summary{}, Summarize(p))
}
