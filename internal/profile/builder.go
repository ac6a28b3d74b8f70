package profile

import (
	"encoding/binary"
	"fmt"

	"github.com/scanlink-data/scanlink/internal/wire"
)

// RawPoint is one camera-space measurement before fragmentation, as the
// head's triangulation produces it.
type RawPoint struct {
	X          int16
	Y          int16
	Brightness uint8
}

// InvalidRawPoint marks a column with no measurement.
var InvalidRawPoint = RawPoint{X: InvalidXY, Y: InvalidXY}

// BuilderConfig describes one scan to fragment into datagrams. Points are
// indexed by column offset from StartColumn.
type BuilderConfig struct {
	ScanHeadID     uint8
	CameraID       uint8
	LaserID        uint8
	TimestampNs    uint64
	LaserOnTimeUs  uint16
	ExposureTimeUs uint16
	Encoders       []int64
	DataTypes      wire.DataType
	// Steps holds the column step per set bit in DataTypes, ascending.
	Steps       []uint16
	StartColumn uint16
	EndColumn   uint16
}

// BuildDatagrams fragments one scan into datagrams, each within the single
// ethernet frame budget, with columns dealt round-robin so the receiver's
// reassembly arithmetic reverses the split exactly. It supports the
// geometry content types; image scans are produced by the head itself and
// never built client-side.
func BuildDatagrams(cfg BuilderConfig, points []RawPoint) ([][]byte, error) {
	if cfg.DataTypes.Has(wire.DataTypeImage) || cfg.DataTypes.Has(wire.DataTypeSubpixel) {
		return nil, fmt.Errorf("profile: cannot build %#x datagrams", uint16(cfg.DataTypes))
	}
	if !cfg.DataTypes.Has(wire.DataTypeXY) {
		return nil, fmt.Errorf("profile: datagrams need XY data")
	}
	if len(cfg.Steps) != cfg.DataTypes.Count() {
		return nil, fmt.Errorf("profile: %d steps for %d content types", len(cfg.Steps), cfg.DataTypes.Count())
	}
	if cfg.EndColumn < cfg.StartColumn {
		return nil, fmt.Errorf("profile: columns %d..%d", cfg.StartColumn, cfg.EndColumn)
	}
	cols := int(cfg.EndColumn) - int(cfg.StartColumn) + 1
	if len(points) < cols {
		return nil, fmt.Errorf("profile: %d points for %d columns", len(points), cols)
	}

	numDatagrams := 1
	for maxDatagramSize(cfg, cols, numDatagrams) > wire.MaxFramePayload {
		numDatagrams++
	}

	out := make([][]byte, 0, numDatagrams)
	for pos := 0; pos < numDatagrams; pos++ {
		out = append(out, buildOne(cfg, points, pos, numDatagrams))
	}
	return out, nil
}

func maxDatagramSize(cfg BuilderConfig, cols, numDatagrams int) int {
	size := wire.DatagramHeaderSize + 2*len(cfg.Steps) + 8*len(cfg.Encoders)
	stepIdx := 0
	for bit := wire.DataType(1); bit <= wire.DataTypeImage; bit <<= 1 {
		if !cfg.DataTypes.Has(bit) {
			continue
		}
		total := cols / int(cfg.Steps[stepIdx])
		stepIdx++
		n := total / numDatagrams
		if total%numDatagrams != 0 {
			n++
		}
		size += n * bit.Size()
	}
	return size
}

func buildOne(cfg BuilderConfig, points []RawPoint, pos, numDatagrams int) []byte {
	cols := int(cfg.EndColumn) - int(cfg.StartColumn) + 1
	h := wire.DatagramHeader{
		Magic:            wire.DataMagic,
		ExposureTimeUs:   cfg.ExposureTimeUs,
		ScanHeadID:       cfg.ScanHeadID,
		CameraID:         cfg.CameraID,
		LaserID:          cfg.LaserID,
		TimestampNs:      cfg.TimestampNs,
		LaserOnTimeUs:    cfg.LaserOnTimeUs,
		DataType:         cfg.DataTypes,
		DataLength:       uint16(cols),
		NumberEncoders:   uint8(len(cfg.Encoders)),
		DatagramPosition: uint32(pos),
		NumberDatagrams:  uint32(numDatagrams),
		StartColumn:      cfg.StartColumn,
		EndColumn:        cfg.EndColumn,
	}
	buf := h.AppendTo(make([]byte, 0, wire.MaxFramePayload))
	for _, s := range cfg.Steps {
		buf = binary.BigEndian.AppendUint16(buf, s)
	}
	for _, e := range cfg.Encoders {
		buf = binary.BigEndian.AppendUint64(buf, uint64(e))
	}

	stepIdx := 0
	for bit := wire.DataType(1); bit <= wire.DataTypeImage; bit <<= 1 {
		if !cfg.DataTypes.Has(bit) {
			continue
		}
		step := int(cfg.Steps[stepIdx])
		stepIdx++
		n := fragmentValues(&h, uint16(step))
		for i := 0; i < n; i++ {
			colOff := (pos + i*numDatagrams) * step
			pt := InvalidRawPoint
			if colOff < cols {
				pt = points[colOff]
			}
			switch bit {
			case wire.DataTypeBrightness:
				buf = append(buf, pt.Brightness)
			case wire.DataTypeXY:
				buf = binary.BigEndian.AppendUint16(buf, uint16(pt.X))
				buf = binary.BigEndian.AppendUint16(buf, uint16(pt.Y))
			case wire.DataTypeWidth, wire.DataTypeSecondMoment:
				buf = binary.BigEndian.AppendUint16(buf, 0)
			}
		}
	}
	return buf
}
