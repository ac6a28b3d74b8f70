package wire

import (
	"encoding/binary"
)

const broadcastConnectSize = InfoHeaderSize + 13

// BroadcastConnectMessage is sent on every active interface's broadcast
// address to claim a scan head by serial number. The head answers with a
// status message addressed to ClientIP:ClientPort.
type BroadcastConnectMessage struct {
	ClientIP     uint32
	ClientPort   uint16
	SessionID    uint8
	ScanHeadID   uint8
	Connection   ConnectionType
	SerialNumber uint32
}

// Serialize encodes the broadcast connect message. A zero client port is
// replaced with the scan server port.
func (m *BroadcastConnectMessage) Serialize() []byte {
	port := m.ClientPort
	if port == 0 {
		port = ScanServerPort
	}
	buf := make([]byte, 0, broadcastConnectSize)
	buf = InfoHeader{Magic: CommandMagic, Size: broadcastConnectSize, Type: TypeBroadcastConnect}.appendTo(buf)
	buf = binary.BigEndian.AppendUint32(buf, m.ClientIP)
	buf = binary.BigEndian.AppendUint16(buf, port)
	buf = append(buf, m.SessionID, m.ScanHeadID, uint8(m.Connection))
	buf = binary.BigEndian.AppendUint32(buf, m.SerialNumber)
	return buf
}

// ParseBroadcastConnectMessage decodes a broadcast connect message.
func ParseBroadcastConnectMessage(buf []byte) (*BroadcastConnectMessage, error) {
	h, err := parseInfoHeader(buf)
	if err != nil {
		return nil, err
	}
	if err := h.validate(TypeBroadcastConnect, broadcastConnectSize, broadcastConnectSize); err != nil {
		return nil, err
	}
	if len(buf) < broadcastConnectSize {
		return nil, errShort(len(buf), broadcastConnectSize)
	}
	p := buf[InfoHeaderSize:]
	return &BroadcastConnectMessage{
		ClientIP:     binary.BigEndian.Uint32(p[0:4]),
		ClientPort:   binary.BigEndian.Uint16(p[4:6]),
		SessionID:    p[6],
		ScanHeadID:   p[7],
		Connection:   ConnectionType(p[8]),
		SerialNumber: binary.BigEndian.Uint32(p[9:13]),
	}, nil
}

// SerializeDisconnect encodes the bare disconnect command.
func SerializeDisconnect() []byte {
	return InfoHeader{Magic: CommandMagic, Size: InfoHeaderSize, Type: TypeDisconnect}.appendTo(nil)
}

// ParseDisconnect validates a disconnect command.
func ParseDisconnect(buf []byte) error {
	h, err := parseInfoHeader(buf)
	if err != nil {
		return err
	}
	return h.validate(TypeDisconnect, InfoHeaderSize, InfoHeaderSize)
}
