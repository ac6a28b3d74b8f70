package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanlink-data/scanlink/internal/geometry"
	"github.com/scanlink-data/scanlink/internal/wire"
)

func testPoints(n int) []RawPoint {
	pts := make([]RawPoint, n)
	for i := range pts {
		pts[i] = RawPoint{X: int16(i), Y: int16(-i), Brightness: uint8(1 + i%255)}
	}
	return pts
}

func fullFrameConfig(timestamp uint64) BuilderConfig {
	return BuilderConfig{
		ScanHeadID:     2,
		CameraID:       0,
		LaserID:        0,
		TimestampNs:    timestamp,
		LaserOnTimeUs:  500,
		ExposureTimeUs: 900,
		Encoders:       []int64{1200, -7},
		DataTypes:      wire.DataTypeBrightness | wire.DataTypeXY,
		Steps:          []uint16{1, 1},
		StartColumn:    0,
		EndColumn:      ProfileDataLen - 1,
	}
}

// straightAlignment keeps camera coordinates unchanged so assertions can
// compare against the raw input.
func straightAlignment(uint8) *geometry.Alignment {
	return geometry.NewAlignment(0, 0, 0, geometry.CableDownstream)
}

func TestFragmentValueDistribution(t *testing.T) {
	t.Parallel()

	// Ten columns at full resolution over three datagrams split 4/3/3.
	h := wire.DatagramHeader{StartColumn: 0, EndColumn: 9, NumberDatagrams: 3}
	h.DatagramPosition = 0
	assert.Equal(t, 4, fragmentValues(&h, 1))
	h.DatagramPosition = 1
	assert.Equal(t, 3, fragmentValues(&h, 1))
	h.DatagramPosition = 2
	assert.Equal(t, 3, fragmentValues(&h, 1))
}

func TestBuildDatagramsFitFrameBudget(t *testing.T) {
	t.Parallel()

	bufs, err := BuildDatagrams(fullFrameConfig(1), testPoints(ProfileDataLen))
	require.NoError(t, err)
	require.Greater(t, len(bufs), 1, "full resolution scan cannot fit one frame")
	for i, b := range bufs {
		assert.LessOrEqual(t, len(b), wire.MaxFramePayload, "datagram %d", i)
	}
}

func TestAssembleFullProfile(t *testing.T) {
	t.Parallel()

	pts := testPoints(ProfileDataLen)
	bufs, err := BuildDatagrams(fullFrameConfig(42), pts)
	require.NoError(t, err)

	var got []*Profile
	asm := NewAssembler(straightAlignment, func(p *Profile) { got = append(got, p) })
	for _, b := range bufs {
		require.NoError(t, asm.Feed(b))
	}

	require.Len(t, got, 1)
	p := got[0]
	assert.True(t, p.Complete())
	assert.Equal(t, uint64(42), p.TimestampNs)
	assert.Equal(t, uint16(500), p.LaserOnTimeUs)
	assert.Equal(t, uint32(900), p.ExposureTimeUs)
	assert.Equal(t, []int64{1200, -7}, p.Encoders)
	require.Len(t, p.Points, ProfileDataLen)
	for i, pt := range p.Points {
		require.True(t, pt.Valid(), "column %d", i)
		assert.Equal(t, int32(pts[i].X), pt.X, "column %d", i)
		assert.Equal(t, int32(pts[i].Y), pt.Y, "column %d", i)
		assert.Equal(t, int32(pts[i].Brightness), pt.Brightness, "column %d", i)
	}

	stats := asm.Stats()
	assert.Equal(t, uint64(1), stats.ProfilesEmitted)
	assert.Zero(t, stats.ProfilesIncomplete)
}

func TestAssembleAppliesAlignment(t *testing.T) {
	t.Parallel()

	pts := testPoints(ProfileDataLen)
	bufs, err := BuildDatagrams(fullFrameConfig(7), pts)
	require.NoError(t, err)

	var got *Profile
	mirrored := geometry.DefaultAlignment()
	asm := NewAssembler(func(uint8) *geometry.Alignment { return mirrored }, func(p *Profile) { got = p })
	for _, b := range bufs {
		require.NoError(t, asm.Feed(b))
	}
	require.NotNil(t, got)
	assert.Equal(t, int32(-100), got.Points[100].X, "mirrored X")
	assert.Equal(t, int32(-100), got.Points[100].Y)
}

func TestAssemblerFlushesPartialOnNewTimestamp(t *testing.T) {
	t.Parallel()

	pts := testPoints(ProfileDataLen)
	first, err := BuildDatagrams(fullFrameConfig(1), pts)
	require.NoError(t, err)
	second, err := BuildDatagrams(fullFrameConfig(2), pts)
	require.NoError(t, err)

	var got []*Profile
	asm := NewAssembler(straightAlignment, func(p *Profile) { got = append(got, p) })

	// Everything from the first scan except its last datagram, then the
	// complete second scan.
	for _, b := range first[:len(first)-1] {
		require.NoError(t, asm.Feed(b))
	}
	for _, b := range second {
		require.NoError(t, asm.Feed(b))
	}

	require.Len(t, got, 2)
	assert.False(t, got[0].Complete())
	assert.Equal(t, len(first)-1, got[0].PacketsReceived)
	assert.Equal(t, len(first), got[0].PacketsExpected)
	assert.True(t, got[1].Complete())

	stats := asm.Stats()
	assert.Equal(t, uint64(1), stats.ProfilesEmitted)
	assert.Equal(t, uint64(1), stats.ProfilesIncomplete)
}

func TestAssemblerSentinelColumnsStayInvalid(t *testing.T) {
	t.Parallel()

	pts := testPoints(ProfileDataLen)
	pts[10] = InvalidRawPoint
	pts[1200] = InvalidRawPoint
	bufs, err := BuildDatagrams(fullFrameConfig(9), pts)
	require.NoError(t, err)

	var got *Profile
	asm := NewAssembler(straightAlignment, func(p *Profile) { got = p })
	for _, b := range bufs {
		require.NoError(t, asm.Feed(b))
	}
	require.NotNil(t, got)
	assert.False(t, got.Points[10].Valid())
	assert.Equal(t, int32(InvalidBrightness), got.Points[10].Brightness)
	assert.False(t, got.Points[1200].Valid())
	assert.True(t, got.Points[11].Valid())
	assert.Len(t, got.ValidPoints(), ProfileDataLen-2)
}

func TestAssemblerZeroBrightnessStaysInvalid(t *testing.T) {
	t.Parallel()

	pts := testPoints(ProfileDataLen)
	pts[5].Brightness = 0
	bufs, err := BuildDatagrams(fullFrameConfig(11), pts)
	require.NoError(t, err)

	var got *Profile
	asm := NewAssembler(straightAlignment, func(p *Profile) { got = p })
	for _, b := range bufs {
		require.NoError(t, asm.Feed(b))
	}
	require.NotNil(t, got)
	// The head reports zero when it measured no intensity; the point keeps
	// its coordinates but no brightness.
	assert.True(t, got.Points[5].Valid())
	assert.Equal(t, int32(5), got.Points[5].X)
	assert.Equal(t, int32(InvalidBrightness), got.Points[5].Brightness)
	assert.Equal(t, int32(pts[6].Brightness), got.Points[6].Brightness)
}

func TestAssemblerHalfResolution(t *testing.T) {
	t.Parallel()

	cfg := fullFrameConfig(3)
	cfg.Steps = []uint16{2, 2}
	pts := testPoints(ProfileDataLen)
	bufs, err := BuildDatagrams(cfg, pts)
	require.NoError(t, err)

	var got *Profile
	asm := NewAssembler(straightAlignment, func(p *Profile) { got = p })
	for _, b := range bufs {
		require.NoError(t, asm.Feed(b))
	}
	require.NotNil(t, got)
	assert.Len(t, got.ValidPoints(), ProfileDataLen/2)
	assert.True(t, got.Points[0].Valid())
	assert.False(t, got.Points[1].Valid(), "odd columns not sampled")
	assert.True(t, got.Points[2].Valid())
}

func TestAssemblerRejectsSubpixel(t *testing.T) {
	t.Parallel()

	asm := NewAssembler(nil, nil)
	pkt := &Packet{Header: wire.DatagramHeader{
		Magic: wire.DataMagic, DataType: wire.DataTypeSubpixel,
		NumberDatagrams: 1, EndColumn: 1455,
	}}
	assert.Error(t, asm.Accept(pkt))
}

func TestAssemblerRejectsMalformed(t *testing.T) {
	t.Parallel()

	asm := NewAssembler(nil, nil)
	assert.Error(t, asm.Feed([]byte{0xFA, 0xCD, 0x00}))
	assert.Equal(t, uint64(1), asm.Stats().DatagramsRejected)
}

func TestParsePacketRejectsBadFraming(t *testing.T) {
	t.Parallel()

	h := wire.DatagramHeader{Magic: wire.DataMagic, DataType: wire.DataTypeXY,
		NumberDatagrams: 0, EndColumn: 9}
	_, err := ParsePacket(h.AppendTo(nil))
	assert.ErrorIs(t, err, wire.ErrDecode)

	h.NumberDatagrams = 2
	h.DatagramPosition = 2
	_, err = ParsePacket(h.AppendTo(nil))
	assert.ErrorIs(t, err, wire.ErrDecode)
}

func TestParsePacketRejectsMismatchedSteps(t *testing.T) {
	t.Parallel()

	h := wire.DatagramHeader{
		Magic:           wire.DataMagic,
		DataType:        wire.DataTypeBrightness | wire.DataTypeXY,
		NumberDatagrams: 1,
		EndColumn:       9,
	}
	buf := h.AppendTo(nil)
	// Brightness at every column, XY at every second: ten 1-byte values
	// and five 4-byte values. Positional pairing cannot hold.
	buf = append(buf, 0x00, 0x01, 0x00, 0x02)
	buf = append(buf, make([]byte, 10+5*4)...)
	_, err := ParsePacket(buf)
	assert.ErrorIs(t, err, wire.ErrDecode)
}
