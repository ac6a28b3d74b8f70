package wire

import (
	"encoding/binary"
	"fmt"
)

const (
	scanRequestFixedSize = 74

	// averageImageIntensity is the target brightness for image mode auto
	// exposure. The server expects it on every request.
	averageImageIntensity = 50

	// defaultScanCount substitutes for a zero scan count, which means
	// scan until told to stop.
	defaultScanCount = 1000000
)

// ScanRequestMessage asks one camera/laser pair on a scan head to begin
// scanning. One request is sent per pair, and the current set is re-sent
// periodically while scanning so a rebooted head resumes on its own.
type ScanRequestMessage struct {
	ClientIP        uint32
	ClientPort      uint16
	RequestSequence uint8
	ScanHeadID      uint8
	CameraID        uint8
	LaserID         uint8
	Flags           uint8

	MinLaserOnTimeUs uint32
	DefLaserOnTimeUs uint32
	MaxLaserOnTimeUs uint32

	MinCameraExposureUs uint32
	DefCameraExposureUs uint32
	MaxCameraExposureUs uint32

	LaserDetectionThreshold uint32
	SaturationThreshold     uint32
	SaturationPercentage    uint32

	ScanIntervalUs uint32
	ScanOffsetUs   uint32
	NumberOfScans  uint32

	DataTypes   DataType
	StartColumn uint16
	EndColumn   uint16
	// Steps holds the column step for each set bit in DataTypes, in
	// ascending bit order.
	Steps []uint16
}

// Serialize encodes the scan request. A zero scan count is replaced with
// the default so the head keeps scanning until stopped.
func (m *ScanRequestMessage) Serialize() ([]byte, error) {
	if len(m.Steps) != m.DataTypes.Count() {
		return nil, fmt.Errorf("wire: %d steps for %d content types", len(m.Steps), m.DataTypes.Count())
	}
	scans := m.NumberOfScans
	if scans == 0 {
		scans = defaultScanCount
	}

	size := scanRequestFixedSize + 2*len(m.Steps)
	buf := make([]byte, 0, size)
	buf = InfoHeader{Magic: CommandMagic, Size: uint8(size), Type: TypeStartScanning}.appendTo(buf)
	buf = binary.BigEndian.AppendUint32(buf, m.ClientIP)
	buf = binary.BigEndian.AppendUint16(buf, m.ClientPort)
	buf = append(buf, m.RequestSequence, m.ScanHeadID, m.CameraID, m.LaserID, 0, m.Flags)
	buf = binary.BigEndian.AppendUint32(buf, m.MinLaserOnTimeUs)
	buf = binary.BigEndian.AppendUint32(buf, m.DefLaserOnTimeUs)
	buf = binary.BigEndian.AppendUint32(buf, m.MaxLaserOnTimeUs)
	buf = binary.BigEndian.AppendUint32(buf, m.MinCameraExposureUs)
	buf = binary.BigEndian.AppendUint32(buf, m.DefCameraExposureUs)
	buf = binary.BigEndian.AppendUint32(buf, m.MaxCameraExposureUs)
	buf = binary.BigEndian.AppendUint32(buf, m.LaserDetectionThreshold)
	buf = binary.BigEndian.AppendUint32(buf, m.SaturationThreshold)
	buf = binary.BigEndian.AppendUint32(buf, m.SaturationPercentage)
	buf = binary.BigEndian.AppendUint32(buf, averageImageIntensity)
	buf = binary.BigEndian.AppendUint32(buf, m.ScanIntervalUs)
	buf = binary.BigEndian.AppendUint32(buf, m.ScanOffsetUs)
	buf = binary.BigEndian.AppendUint32(buf, scans)
	buf = binary.BigEndian.AppendUint16(buf, uint16(m.DataTypes))
	buf = binary.BigEndian.AppendUint16(buf, m.StartColumn)
	buf = binary.BigEndian.AppendUint16(buf, m.EndColumn)
	for _, s := range m.Steps {
		buf = binary.BigEndian.AppendUint16(buf, s)
	}
	return buf, nil
}

// ParseScanRequestMessage decodes a scan request.
func ParseScanRequestMessage(buf []byte) (*ScanRequestMessage, error) {
	h, err := parseInfoHeader(buf)
	if err != nil {
		return nil, err
	}
	if err := h.validate(TypeStartScanning, scanRequestFixedSize, 255); err != nil {
		return nil, err
	}
	if len(buf) < scanRequestFixedSize {
		return nil, errShort(len(buf), scanRequestFixedSize)
	}

	var m ScanRequestMessage
	p := buf[InfoHeaderSize:]
	m.ClientIP = binary.BigEndian.Uint32(p[0:4])
	m.ClientPort = binary.BigEndian.Uint16(p[4:6])
	m.RequestSequence = p[6]
	m.ScanHeadID = p[7]
	m.CameraID = p[8]
	m.LaserID = p[9]
	m.Flags = p[11]
	m.MinLaserOnTimeUs = binary.BigEndian.Uint32(p[12:16])
	m.DefLaserOnTimeUs = binary.BigEndian.Uint32(p[16:20])
	m.MaxLaserOnTimeUs = binary.BigEndian.Uint32(p[20:24])
	m.MinCameraExposureUs = binary.BigEndian.Uint32(p[24:28])
	m.DefCameraExposureUs = binary.BigEndian.Uint32(p[28:32])
	m.MaxCameraExposureUs = binary.BigEndian.Uint32(p[32:36])
	m.LaserDetectionThreshold = binary.BigEndian.Uint32(p[36:40])
	m.SaturationThreshold = binary.BigEndian.Uint32(p[40:44])
	m.SaturationPercentage = binary.BigEndian.Uint32(p[44:48])
	// Skip the fixed average intensity word.
	m.ScanIntervalUs = binary.BigEndian.Uint32(p[52:56])
	m.ScanOffsetUs = binary.BigEndian.Uint32(p[56:60])
	m.NumberOfScans = binary.BigEndian.Uint32(p[60:64])
	m.DataTypes = DataType(binary.BigEndian.Uint16(p[64:66]))
	m.StartColumn = binary.BigEndian.Uint16(p[66:68])
	m.EndColumn = binary.BigEndian.Uint16(p[68:70])

	want := 2 * m.DataTypes.Count()
	tail := p[70:]
	if len(tail) < want {
		return nil, fmt.Errorf("%w: %d step bytes, need %d", ErrDecode, len(tail), want)
	}
	m.Steps = make([]uint16, m.DataTypes.Count())
	for i := range m.Steps {
		m.Steps[i] = binary.BigEndian.Uint16(tail[i*2:])
	}
	return &m, nil
}
