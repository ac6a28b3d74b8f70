// Package monitor tracks data plane throughput and computes summary
// statistics over assembled profiles.
package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/scanlink-data/scanlink/internal/monitoring"
	"github.com/scanlink-data/scanlink/internal/profile"
)

// StatsSnapshot represents a snapshot of current statistics
type StatsSnapshot struct {
	ProfilesPerSec  float64
	PointsPerSec    float64
	IncompleteCount int64
	Timestamp       time.Time
}

// ProfileStats tracks profile throughput with thread-safe operations
type ProfileStats struct {
	mu              sync.Mutex
	profileCount    int64
	pointCount      int64
	incompleteCount int64
	lastReset       time.Time
	startTime       time.Time
	latestSnapshot  *StatsSnapshot
}

// NewProfileStats creates a new ProfileStats instance
func NewProfileStats() *ProfileStats {
	now := time.Now()
	return &ProfileStats{
		lastReset: now,
		startTime: now,
	}
}

// AddProfile counts one assembled profile and its valid points
func (ps *ProfileStats) AddProfile(p *profile.Profile) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.profileCount++
	for _, pt := range p.Points {
		if pt.Valid() {
			ps.pointCount++
		}
	}
	if !p.Complete() {
		ps.incompleteCount++
	}
}

// GetAndReset returns current stats and resets counters
func (ps *ProfileStats) GetAndReset() (profiles, points, incomplete int64, duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	duration = now.Sub(ps.lastReset)
	profiles = ps.profileCount
	points = ps.pointCount
	incomplete = ps.incompleteCount

	ps.profileCount = 0
	ps.pointCount = 0
	ps.incompleteCount = 0
	ps.lastReset = now

	return
}

// Snapshot returns the most recently logged snapshot, if any
func (ps *ProfileStats) Snapshot() *StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.latestSnapshot
}

// LogStats logs formatted statistics and stores a snapshot
func (ps *ProfileStats) LogStats() {
	profiles, points, incomplete, duration := ps.GetAndReset()
	if profiles == 0 && incomplete == 0 {
		return
	}
	profilesPerSec := float64(profiles) / duration.Seconds()
	pointsPerSec := float64(points) / duration.Seconds()

	ps.mu.Lock()
	ps.latestSnapshot = &StatsSnapshot{
		ProfilesPerSec:  profilesPerSec,
		PointsPerSec:    pointsPerSec,
		IncompleteCount: incomplete,
		Timestamp:       time.Now(),
	}
	ps.mu.Unlock()

	logMsg := fmt.Sprintf("Scan stats (/sec): %.1f profiles, %.0f points", profilesPerSec, pointsPerSec)
	if incomplete > 0 {
		logMsg += fmt.Sprintf(", %d incomplete", incomplete)
	}
	monitoring.Logf("%s", logMsg)
}
