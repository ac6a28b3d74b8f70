package wire

import (
	"encoding/binary"
	"fmt"
)

const (
	// MaxEncoders is the most encoder inputs a scan head reports.
	MaxEncoders = 3
	// MaxCameras is the most cameras a scan head reports.
	MaxCameras = 2

	statusReservedWords = 8

	// statusFixedSize is the length of a status message with no encoders
	// and no cameras. The variable tail adds 8 bytes per encoder and 8
	// bytes per camera.
	statusFixedSize = InfoHeaderSize + VersionInformationSize + 38 + statusReservedWords*4
	statusMaxSize   = statusFixedSize + MaxEncoders*8 + MaxCameras*8
)

// StatusMessage is the periodic self-report a scan head sends to its client,
// and the broadcast reply it sends during connection.
type StatusMessage struct {
	Version        VersionInformation
	SerialNumber   uint32
	MaxScanRate    uint32
	ScanHeadIP     uint32
	ClientIP       uint32
	ClientPort     uint16
	ScanSyncID     uint16
	GlobalTimeNs   uint64
	PacketsSent    uint32
	ProfilesSent   uint32
	Encoders       []int64
	PixelsInWindow []int32
	CameraTemps    []int32
}

// Serialize encodes the status message. The header size byte is patched
// after the variable tail is written, so it reflects the true length.
func (m *StatusMessage) Serialize() ([]byte, error) {
	if len(m.Encoders) > MaxEncoders {
		return nil, fmt.Errorf("wire: %d encoders exceeds limit %d", len(m.Encoders), MaxEncoders)
	}
	if len(m.PixelsInWindow) > MaxCameras || len(m.CameraTemps) != len(m.PixelsInWindow) {
		return nil, fmt.Errorf("wire: camera fields %d/%d invalid, limit %d", len(m.PixelsInWindow), len(m.CameraTemps), MaxCameras)
	}

	buf := make([]byte, 0, statusMaxSize)
	buf = InfoHeader{Magic: ResponseMagic, Type: TypeStatus}.appendTo(buf)
	buf = m.Version.appendTo(buf)
	buf = binary.BigEndian.AppendUint32(buf, m.SerialNumber)
	buf = binary.BigEndian.AppendUint32(buf, m.MaxScanRate)
	buf = binary.BigEndian.AppendUint32(buf, m.ScanHeadIP)
	buf = binary.BigEndian.AppendUint32(buf, m.ClientIP)
	buf = binary.BigEndian.AppendUint16(buf, m.ClientPort)
	buf = binary.BigEndian.AppendUint16(buf, m.ScanSyncID)
	buf = binary.BigEndian.AppendUint64(buf, m.GlobalTimeNs)
	buf = binary.BigEndian.AppendUint32(buf, m.PacketsSent)
	buf = binary.BigEndian.AppendUint32(buf, m.ProfilesSent)
	buf = append(buf, uint8(len(m.Encoders)), uint8(len(m.PixelsInWindow)))
	for i := 0; i < statusReservedWords; i++ {
		buf = binary.BigEndian.AppendUint32(buf, 0xFFFFFFFF)
	}
	for _, e := range m.Encoders {
		buf = binary.BigEndian.AppendUint64(buf, uint64(e))
	}
	for _, p := range m.PixelsInWindow {
		buf = binary.BigEndian.AppendUint32(buf, uint32(p))
	}
	for _, t := range m.CameraTemps {
		buf = binary.BigEndian.AppendUint32(buf, uint32(t))
	}
	buf[2] = uint8(len(buf))
	return buf, nil
}

// ParseStatusMessage decodes a status message received from a scan head.
func ParseStatusMessage(buf []byte) (*StatusMessage, error) {
	h, err := parseInfoHeader(buf)
	if err != nil {
		return nil, err
	}
	if err := h.validate(TypeStatus, statusFixedSize, statusMaxSize); err != nil {
		return nil, err
	}
	if len(buf) < int(h.Size) {
		return nil, fmt.Errorf("%w: %d bytes, header claims %d", ErrDecode, len(buf), h.Size)
	}

	var m StatusMessage
	m.Version, err = parseVersionInformation(buf[InfoHeaderSize:])
	if err != nil {
		return nil, err
	}
	p := buf[InfoHeaderSize+VersionInformationSize:]
	m.SerialNumber = binary.BigEndian.Uint32(p[0:4])
	m.MaxScanRate = binary.BigEndian.Uint32(p[4:8])
	m.ScanHeadIP = binary.BigEndian.Uint32(p[8:12])
	m.ClientIP = binary.BigEndian.Uint32(p[12:16])
	m.ClientPort = binary.BigEndian.Uint16(p[16:18])
	m.ScanSyncID = binary.BigEndian.Uint16(p[18:20])
	m.GlobalTimeNs = binary.BigEndian.Uint64(p[20:28])
	m.PacketsSent = binary.BigEndian.Uint32(p[28:32])
	m.ProfilesSent = binary.BigEndian.Uint32(p[32:36])
	numEncoders := int(p[36])
	numCameras := int(p[37])
	if numEncoders > MaxEncoders {
		return nil, fmt.Errorf("%w: %d encoders exceeds limit %d", ErrDecode, numEncoders, MaxEncoders)
	}
	if numCameras > MaxCameras {
		return nil, fmt.Errorf("%w: %d cameras exceeds limit %d", ErrDecode, numCameras, MaxCameras)
	}
	p = p[38+statusReservedWords*4:]
	want := numEncoders*8 + numCameras*8
	if len(p) < want {
		return nil, fmt.Errorf("%w: %d tail bytes, need %d", ErrDecode, len(p), want)
	}

	m.Encoders = make([]int64, numEncoders)
	for i := range m.Encoders {
		m.Encoders[i] = int64(binary.BigEndian.Uint64(p[i*8:]))
	}
	p = p[numEncoders*8:]
	m.PixelsInWindow = make([]int32, numCameras)
	for i := range m.PixelsInWindow {
		m.PixelsInWindow[i] = int32(binary.BigEndian.Uint32(p[i*4:]))
	}
	p = p[numCameras*4:]
	m.CameraTemps = make([]int32, numCameras)
	for i := range m.CameraTemps {
		m.CameraTemps[i] = int32(binary.BigEndian.Uint32(p[i*4:]))
	}
	return &m, nil
}
