package wire

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionInformationString(t *testing.T) {
	t.Parallel()

	v := VersionInformation{Major: 2, Minor: 11, Patch: 3, Commit: 0x1234abcd}
	assert.Equal(t, "2.11.3+1234abcd", v.String())

	v.Flags = VersionFlagDirty | VersionFlagDevelop
	assert.Equal(t, "2.11.3-dirty-develop+1234abcd", v.String())
}

func TestVersionCompatible(t *testing.T) {
	t.Parallel()

	a := VersionInformation{Major: 2, Minor: 5, Patch: 0}
	b := VersionInformation{Major: 2, Minor: 11, Patch: 9}
	c := VersionInformation{Major: 3, Minor: 0, Patch: 0}

	assert.True(t, a.Compatible(b))
	assert.True(t, b.Compatible(a))
	assert.False(t, a.Compatible(c))
}

func TestStatusMessageRoundTrip(t *testing.T) {
	t.Parallel()

	in := StatusMessage{
		Version: VersionInformation{
			Major: 2, Minor: 11, Patch: 3, Commit: 0xdeadbeef, Product: 28,
		},
		SerialNumber:   45123,
		MaxScanRate:    5000,
		ScanHeadIP:     0xC0A80105,
		ClientIP:       0xC0A80102,
		ClientPort:     41234,
		ScanSyncID:     7,
		GlobalTimeNs:   123456789012,
		PacketsSent:    99182,
		ProfilesSent:   4410,
		Encoders:       []int64{-1200, 88},
		PixelsInWindow: []int32{310114, 298001},
		CameraTemps:    []int32{41, 43},
	}

	buf, err := in.Serialize()
	require.NoError(t, err)
	assert.Equal(t, int(buf[2]), len(buf), "size byte must match true length")

	out, err := ParseStatusMessage(buf)
	require.NoError(t, err)
	if diff := cmp.Diff(&in, out); diff != "" {
		t.Errorf("status message mismatch (-want +got):\n%s", diff)
	}
}

func TestStatusMessageNoPeripherals(t *testing.T) {
	t.Parallel()

	in := StatusMessage{SerialNumber: 1}
	buf, err := in.Serialize()
	require.NoError(t, err)
	assert.Equal(t, statusFixedSize, len(buf))

	out, err := ParseStatusMessage(buf)
	require.NoError(t, err)
	assert.Empty(t, out.Encoders)
	assert.Empty(t, out.PixelsInWindow)
}

func TestStatusMessageLimits(t *testing.T) {
	t.Parallel()

	in := StatusMessage{Encoders: make([]int64, MaxEncoders+1)}
	_, err := in.Serialize()
	assert.Error(t, err)
}

func TestParseStatusMessageRejectsGarbage(t *testing.T) {
	t.Parallel()

	cases := map[string][]byte{
		"empty":       nil,
		"short":       {0xFA, 0xCE},
		"wrong magic": append([]byte{0x12, 0x34, 94, byte(TypeStatus)}, make([]byte, 90)...),
		"wrong type":  append([]byte{0xFA, 0xCE, 94, byte(TypeDisconnect)}, make([]byte, 90)...),
		"truncated":   append([]byte{0xFA, 0xCE, 110, byte(TypeStatus)}, make([]byte, 90)...),
	}
	for name, buf := range cases {
		buf := buf
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseStatusMessage(buf)
			assert.Error(t, err)
		})
	}
}

func TestBroadcastConnectRoundTrip(t *testing.T) {
	t.Parallel()

	in := BroadcastConnectMessage{
		ClientIP:     0x0A000002,
		ClientPort:   40001,
		SessionID:    3,
		ScanHeadID:   1,
		Connection:   ConnectionNormal,
		SerialNumber: 45123,
	}
	buf := in.Serialize()
	require.Len(t, buf, broadcastConnectSize)

	out, err := ParseBroadcastConnectMessage(buf)
	require.NoError(t, err)
	if diff := cmp.Diff(&in, out); diff != "" {
		t.Errorf("broadcast connect mismatch (-want +got):\n%s", diff)
	}
}

func TestBroadcastConnectZeroPort(t *testing.T) {
	t.Parallel()

	in := BroadcastConnectMessage{SerialNumber: 1}
	out, err := ParseBroadcastConnectMessage(in.Serialize())
	require.NoError(t, err)
	assert.Equal(t, uint16(ScanServerPort), out.ClientPort)
}

func TestDisconnectRoundTrip(t *testing.T) {
	t.Parallel()

	buf := SerializeDisconnect()
	assert.Len(t, buf, InfoHeaderSize)
	assert.NoError(t, ParseDisconnect(buf))
	assert.Error(t, ParseDisconnect(buf[:2]))
}

func TestSetWindowRoundTrip(t *testing.T) {
	t.Parallel()

	in := SetWindowMessage{
		CameraID: 1,
		Constraints: []WindowConstraintPoints{
			{X0: -20000, Y0: 30000, X1: 20000, Y1: 30000},
			{X0: 20000, Y0: -30000, X1: -20000, Y1: -30000},
			{X0: 20000, Y0: 30000, X1: 20000, Y1: -30000},
			{X0: -20000, Y0: -30000, X1: -20000, Y1: 30000},
		},
	}
	buf := in.Serialize()
	// The size byte deliberately undercounts the tail; receivers size the
	// constraint list from the datagram length.
	assert.Equal(t, setWindowFixedSize+12*4, int(buf[2]))
	assert.Len(t, buf, setWindowFixedSize+16*4)

	out, err := ParseSetWindowMessage(buf)
	require.NoError(t, err)
	if diff := cmp.Diff(&in, out); diff != "" {
		t.Errorf("set window mismatch (-want +got):\n%s", diff)
	}
}

func TestScanRequestRoundTrip(t *testing.T) {
	t.Parallel()

	in := ScanRequestMessage{
		ClientIP:                0xC0A80102,
		ClientPort:              41234,
		RequestSequence:         9,
		ScanHeadID:              2,
		CameraID:                1,
		LaserID:                 0,
		MinLaserOnTimeUs:        100,
		DefLaserOnTimeUs:        500,
		MaxLaserOnTimeUs:        1000,
		MinCameraExposureUs:     10000,
		DefCameraExposureUs:     500000,
		MaxCameraExposureUs:     1000000,
		LaserDetectionThreshold: 120,
		SaturationThreshold:     800,
		SaturationPercentage:    30,
		ScanIntervalUs:          2000,
		ScanOffsetUs:            500,
		NumberOfScans:           250,
		DataTypes:               DataTypeBrightness | DataTypeXY,
		EndColumn:               1455,
		Steps:                   []uint16{1, 1},
	}
	buf, err := in.Serialize()
	require.NoError(t, err)
	require.Len(t, buf, scanRequestFixedSize+4)

	out, err := ParseScanRequestMessage(buf)
	require.NoError(t, err)
	if diff := cmp.Diff(&in, out); diff != "" {
		t.Errorf("scan request mismatch (-want +got):\n%s", diff)
	}
}

func TestScanRequestZeroScanCount(t *testing.T) {
	t.Parallel()

	in := ScanRequestMessage{DataTypes: DataTypeXY, Steps: []uint16{1}}
	buf, err := in.Serialize()
	require.NoError(t, err)

	out, err := ParseScanRequestMessage(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(defaultScanCount), out.NumberOfScans)
}

func TestScanRequestStepMismatch(t *testing.T) {
	t.Parallel()

	in := ScanRequestMessage{DataTypes: DataTypeBrightness | DataTypeXY, Steps: []uint16{1}}
	_, err := in.Serialize()
	assert.Error(t, err)
}

func TestDatagramHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	in := DatagramHeader{
		Magic:            DataMagic,
		ExposureTimeUs:   900,
		ScanHeadID:       4,
		CameraID:         1,
		LaserID:          0,
		TimestampNs:      987654321,
		LaserOnTimeUs:    500,
		DataType:         DataTypeBrightness | DataTypeXY,
		DataLength:       1456,
		NumberEncoders:   2,
		DatagramPosition: 1,
		NumberDatagrams:  3,
		StartColumn:      0,
		EndColumn:        1455,
	}
	buf := in.AppendTo(nil)
	require.Len(t, buf, DatagramHeaderSize)

	out, err := ParseDatagramHeader(buf)
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("datagram header mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, DatagramHeaderSize+4, out.EncoderOffset())
	assert.Equal(t, DatagramHeaderSize+4+16, out.PayloadOffset())
}

func TestParseDatagramHeaderRejectsControlMagic(t *testing.T) {
	t.Parallel()

	buf := make([]byte, DatagramHeaderSize)
	buf[0] = 0xFA
	buf[1] = 0xCE
	_, err := ParseDatagramHeader(buf)
	assert.ErrorIs(t, err, ErrProtocolMismatch)
}

func TestDataTypeSizes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, DataTypeBrightness.Size())
	assert.Equal(t, 4, DataTypeXY.Size())
	assert.Equal(t, 2, DataTypeWidth.Size())
	assert.Equal(t, 2, DataTypeSecondMoment.Size())
	assert.Equal(t, 1, DataTypeImage.Size())
	assert.Equal(t, 2, (DataTypeBrightness | DataTypeXY).Count())
}

func TestDataFormatLayouts(t *testing.T) {
	t.Parallel()

	for _, f := range []DataFormat{
		FormatXYBrightnessFull, FormatXYBrightnessHalf, FormatXYBrightnessQuarter,
		FormatXYFull, FormatXYHalf, FormatXYQuarter,
	} {
		mask, steps, err := f.Layout()
		require.NoError(t, err, f.String())
		assert.Equal(t, mask.Count(), len(steps), f.String())
		assert.True(t, mask.Has(DataTypeXY), f.String())
	}

	_, _, err := DataFormat(99).Layout()
	assert.Error(t, err)
}
