package recorder

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanlink-data/scanlink/internal/profile"
)

func openTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "scans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func testProfile(timestamp uint64) *profile.Profile {
	p := &profile.Profile{
		ScanHeadID:      3,
		CameraID:        1,
		TimestampNs:     timestamp,
		Encoders:        []int64{42},
		PacketsReceived: 4,
		PacketsExpected: 4,
		Points:          make([]profile.Point, profile.ProfileDataLen),
	}
	for i := range p.Points {
		p.Points[i] = profile.Point{X: profile.InvalidXY, Y: profile.InvalidXY, Brightness: profile.InvalidBrightness}
	}
	p.Points[10] = profile.Point{X: 100, Y: -200, Brightness: 50}
	p.Points[20] = profile.Point{X: 300, Y: 400, Brightness: 90}
	return p
}

func TestOpenAppliesMigrations(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "scans.db")
	r, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	// Re-opening an already migrated database is a no-op.
	r, err = Open(path)
	require.NoError(t, err)
	assert.NoError(t, r.Close())
}

func TestRecordAndLoadProfiles(t *testing.T) {
	t.Parallel()

	r := openTestRecorder(t)
	scanID, err := r.BeginScan("fixture run", 500)
	require.NoError(t, err)
	require.NoError(t, uuid.Validate(scanID))

	require.NoError(t, r.RecordProfile(scanID, testProfile(100)))
	require.NoError(t, r.RecordProfile(scanID, testProfile(200)))

	n, err := r.ProfileCount(scanID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := r.Profiles(scanID, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(100), got[0].TimestampNs)
	assert.Equal(t, int64(42), got[0].Encoder)
	require.Len(t, got[0].Points, 2)
	assert.Equal(t, StoredPoint{Column: 10, X: 100, Y: -200, Brightness: 50}, got[0].Points[0])
	assert.Equal(t, StoredPoint{Column: 20, X: 300, Y: 400, Brightness: 90}, got[0].Points[1])

	require.NoError(t, r.EndScan(scanID))
	scans, err := r.ListScans()
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, "fixture run", scans[0].Description)
	assert.InDelta(t, 500.0, scans[0].ScanRateHz, 1e-9)
	assert.NotNil(t, scans[0].EndedAt)
}

func TestEndScanUnknownID(t *testing.T) {
	t.Parallel()

	r := openTestRecorder(t)
	assert.Error(t, r.EndScan(uuid.NewString()))
}

func TestPointCodecRoundTrip(t *testing.T) {
	t.Parallel()

	p := testProfile(1)
	blob := encodePoints(p)
	assert.Len(t, blob, 2*pointRecordSize)

	pts, err := decodePoints(blob)
	require.NoError(t, err)
	require.Len(t, pts, 2)
	assert.Equal(t, int32(-200), pts[0].Y)

	_, err = decodePoints(blob[:5])
	assert.Error(t, err)
}
