package profile

import (
	"github.com/scanlink-data/scanlink/internal/wire"
)

const (
	// ProfileDataLen is the number of camera columns, and so the maximum
	// number of points in one profile.
	ProfileDataLen = 1456

	// ImageWidth and ImageHeight are the dimensions of a diagnostic
	// camera image.
	ImageWidth  = 1456
	ImageHeight = 1088

	// imageRowsPerDatagram is how many pixel rows one image datagram
	// carries.
	imageRowsPerDatagram = 4
	imageDatagramBytes   = imageRowsPerDatagram * ImageWidth

	// InvalidBrightness fills columns with no measured point.
	InvalidBrightness = -1
)

// Point is one measured profile point in mill space, 1/1000 inch units.
// Columns the head reported nothing for keep X and Y at InvalidXY.
type Point struct {
	X          int32
	Y          int32
	Brightness int32
}

// Valid reports whether the point carries a real measurement.
func (p Point) Valid() bool {
	return p.X != InvalidXY && p.Y != InvalidXY
}

// Profile is one complete scan from a single camera/laser pair, assembled
// from its datagrams. PacketsReceived below PacketsExpected marks a profile
// that lost datagrams in flight and has gaps.
type Profile struct {
	ScanHeadID     uint8
	CameraID       uint8
	LaserID        uint8
	Flags          uint8
	TimestampNs    uint64
	LaserOnTimeUs  uint16
	ExposureTimeUs uint32
	Encoders       []int64
	DataTypes      wire.DataType

	Points []Point
	Image  []byte

	PacketsReceived int
	PacketsExpected int
}

// Complete reports whether every datagram of the scan arrived.
func (p *Profile) Complete() bool {
	return p.PacketsReceived == p.PacketsExpected
}

// ValidPoints returns only the points that carry real measurements.
func (p *Profile) ValidPoints() []Point {
	out := make([]Point, 0, len(p.Points))
	for _, pt := range p.Points {
		if pt.Valid() {
			out = append(out, pt)
		}
	}
	return out
}

func newProfile(pkt *Packet) *Profile {
	h := pkt.Header
	p := &Profile{
		ScanHeadID:      h.ScanHeadID,
		CameraID:        h.CameraID,
		LaserID:         h.LaserID,
		Flags:           h.Flags,
		TimestampNs:     h.TimestampNs,
		LaserOnTimeUs:   h.LaserOnTimeUs,
		ExposureTimeUs:  uint32(h.ExposureTimeUs),
		Encoders:        pkt.Encoders,
		DataTypes:       h.DataType,
		PacketsExpected: int(h.NumberDatagrams),
	}
	if h.DataType.Has(wire.DataTypeImage) {
		// Image exposure is reported in a coarser unit on the wire.
		p.ExposureTimeUs = uint32(h.ExposureTimeUs) << 8
		p.Image = make([]byte, ImageWidth*ImageHeight)
	} else {
		p.Points = make([]Point, ProfileDataLen)
		for i := range p.Points {
			p.Points[i] = Point{X: InvalidXY, Y: InvalidXY, Brightness: InvalidBrightness}
		}
	}
	return p
}
