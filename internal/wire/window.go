package wire

import (
	"encoding/binary"
	"fmt"
)

// WindowConstraintPoints is one half-plane constraint in camera space, in
// 1/1000 inch units. Points to the left of the directed segment (X0,Y0) to
// (X1,Y1) satisfy the constraint.
type WindowConstraintPoints struct {
	X0, Y0 int32
	X1, Y1 int32
}

const setWindowFixedSize = InfoHeaderSize + 4

// SetWindowMessage programs the scan window of one camera. The header size
// byte undercounts the constraint tail for historical reasons, so receivers
// must derive the constraint count from the datagram length instead.
type SetWindowMessage struct {
	CameraID    uint8
	Constraints []WindowConstraintPoints
}

// Serialize encodes the set-window command.
func (m *SetWindowMessage) Serialize() []byte {
	buf := make([]byte, 0, setWindowFixedSize+16*len(m.Constraints))
	size := uint8(setWindowFixedSize + 12*len(m.Constraints))
	buf = InfoHeader{Magic: CommandMagic, Size: size, Type: TypeSetWindow}.appendTo(buf)
	buf = append(buf, m.CameraID, 0, 0, 0)
	for _, c := range m.Constraints {
		buf = binary.BigEndian.AppendUint32(buf, uint32(c.X0))
		buf = binary.BigEndian.AppendUint32(buf, uint32(c.Y0))
		buf = binary.BigEndian.AppendUint32(buf, uint32(c.X1))
		buf = binary.BigEndian.AppendUint32(buf, uint32(c.Y1))
	}
	return buf
}

// ParseSetWindowMessage decodes a set-window command.
func ParseSetWindowMessage(buf []byte) (*SetWindowMessage, error) {
	h, err := parseInfoHeader(buf)
	if err != nil {
		return nil, err
	}
	if err := h.validate(TypeSetWindow, setWindowFixedSize, 255); err != nil {
		return nil, err
	}
	if len(buf) < setWindowFixedSize {
		return nil, errShort(len(buf), setWindowFixedSize)
	}
	tail := len(buf) - setWindowFixedSize
	if tail%16 != 0 {
		return nil, fmt.Errorf("%w: constraint tail %d bytes not a multiple of 16", ErrDecode, tail)
	}
	m := &SetWindowMessage{
		CameraID:    buf[InfoHeaderSize],
		Constraints: make([]WindowConstraintPoints, tail/16),
	}
	p := buf[setWindowFixedSize:]
	for i := range m.Constraints {
		m.Constraints[i] = WindowConstraintPoints{
			X0: int32(binary.BigEndian.Uint32(p[0:4])),
			Y0: int32(binary.BigEndian.Uint32(p[4:8])),
			X1: int32(binary.BigEndian.Uint32(p[8:12])),
			Y1: int32(binary.BigEndian.Uint32(p[12:16])),
		}
		p = p[16:]
	}
	return m, nil
}
