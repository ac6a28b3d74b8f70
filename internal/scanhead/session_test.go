package scanhead

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanlink-data/scanlink/internal/profile"
	"github.com/scanlink-data/scanlink/internal/wire"
)

func newLoopbackSession(t *testing.T) (*Session, *net.UDPConn) {
	t.Helper()
	s, err := NewSession(45001, 1, net.IPv4(127, 0, 0, 1), nil)
	require.NoError(t, err)
	s.Start()
	t.Cleanup(s.Shutdown)

	head, err := net.DialUDP("udp4", nil, &net.UDPAddr{
		IP:   net.IPv4(127, 0, 0, 1),
		Port: int(s.LocalPort()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { head.Close() })
	return s, head
}

func scanDatagrams(t *testing.T, timestamp uint64) [][]byte {
	t.Helper()
	pts := make([]profile.RawPoint, profile.ProfileDataLen)
	for i := range pts {
		pts[i] = profile.RawPoint{X: int16(i % 1000), Y: int16(i % 500), Brightness: 128}
	}
	bufs, err := profile.BuildDatagrams(profile.BuilderConfig{
		ScanHeadID:  1,
		TimestampNs: timestamp,
		DataTypes:   wire.DataTypeBrightness | wire.DataTypeXY,
		Steps:       []uint16{1, 1},
		EndColumn:   profile.ProfileDataLen - 1,
	}, pts)
	require.NoError(t, err)
	return bufs
}

func TestSessionAssemblesReceivedProfiles(t *testing.T) {
	t.Parallel()

	s, head := newLoopbackSession(t)
	for _, b := range scanDatagrams(t, 100) {
		_, err := head.Write(b)
		require.NoError(t, err)
	}

	require.True(t, s.WaitUntilAvailable(1, 2*time.Second))
	got := s.Pop(10)
	require.Len(t, got, 1)
	assert.True(t, got[0].Complete())
	assert.Equal(t, uint64(100), got[0].TimestampNs)
	assert.Zero(t, s.Available())
}

func TestSessionTracksStatus(t *testing.T) {
	t.Parallel()

	s, head := newLoopbackSession(t)
	_, _, ok := s.Status()
	assert.False(t, ok, "no status before the head reports")

	msg := wire.StatusMessage{
		Version:      wire.VersionInformation{Major: 2, Minor: 1},
		SerialNumber: 45001,
		GlobalTimeNs: 5555,
	}
	buf, err := msg.Serialize()
	require.NoError(t, err)
	_, err = head.Write(buf)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, _, ok := s.Status()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	got, at, ok := s.Status()
	require.True(t, ok)
	assert.Equal(t, uint32(45001), got.SerialNumber)
	assert.Equal(t, uint64(5555), got.GlobalTimeNs)
	assert.WithinDuration(t, time.Now(), at, 2*time.Second)
}

func TestSessionIgnoresGarbage(t *testing.T) {
	t.Parallel()

	s, head := newLoopbackSession(t)
	_, err := head.Write([]byte{0x00, 0x01, 0x02})
	require.NoError(t, err)
	_, err = head.Write([]byte{0xFA})
	require.NoError(t, err)

	// The loop keeps running and still assembles real traffic.
	for _, b := range scanDatagrams(t, 7) {
		_, err := head.Write(b)
		require.NoError(t, err)
	}
	assert.True(t, s.WaitUntilAvailable(1, 2*time.Second))
}

func TestWaitUntilAvailableTimesOut(t *testing.T) {
	t.Parallel()

	s, _ := newLoopbackSession(t)
	start := time.Now()
	assert.False(t, s.WaitUntilAvailable(1, 100*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestStartDiscardsProfilesFromEarlierScan(t *testing.T) {
	t.Parallel()

	s, head := newLoopbackSession(t)
	for _, b := range scanDatagrams(t, 100) {
		_, err := head.Write(b)
		require.NoError(t, err)
	}
	require.True(t, s.WaitUntilAvailable(1, 2*time.Second))

	// A new scan starts: whatever the previous scan left queued must not
	// reach the new scan's consumer.
	s.Start()
	assert.Zero(t, s.Available())
	assert.Empty(t, s.Pop(10))

	for _, b := range scanDatagrams(t, 200) {
		_, err := head.Write(b)
		require.NoError(t, err)
	}
	require.True(t, s.WaitUntilAvailable(1, 2*time.Second))
	got := s.Pop(10)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(200), got[0].TimestampNs)
}

func TestStartDropsPartiallyAssembledScan(t *testing.T) {
	t.Parallel()

	s, head := newLoopbackSession(t)
	bufs := scanDatagrams(t, 300)
	require.Greater(t, len(bufs), 1)
	_, err := head.Write(bufs[0])
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.AssemblerStats().DatagramsAccepted >= 1
	}, 2*time.Second, 10*time.Millisecond)

	s.Start()

	// The held-back fragments arrive after the restart; without the first
	// datagram the scan can never complete, and flushing must not emit a
	// remnant of the pre-restart scan.
	for _, b := range bufs[1:] {
		_, err := head.Write(b)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		return s.AssemblerStats().DatagramsAccepted >= uint64(len(bufs))
	}, 2*time.Second, 10*time.Millisecond)

	s.Flush()
	got := s.Pop(10)
	require.Len(t, got, 1)
	assert.False(t, got[0].Complete())
	assert.Equal(t, len(bufs)-1, got[0].PacketsReceived)
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	t.Parallel()

	s, err := NewSession(1, 1, net.IPv4(127, 0, 0, 1), nil)
	require.NoError(t, err)
	defer s.Shutdown()

	for i := 0; i < MaxQueuedProfiles+5; i++ {
		s.push(&profile.Profile{TimestampNs: uint64(i)})
	}
	assert.Equal(t, MaxQueuedProfiles, s.Available())
	got := s.Pop(1)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(5), got[0].TimestampNs, "oldest five were discarded")
}
