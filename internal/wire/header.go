package wire

import (
	"encoding/binary"
	"fmt"
)

// InfoHeaderSize is the fixed length of the header carried by every control
// message.
const InfoHeaderSize = 4

// InfoHeader is the 4-byte prefix of every message that is not a profile
// data datagram. The size field is the total message length in bytes; for
// messages with a variable tail it is patched after the tail is written.
type InfoHeader struct {
	Magic uint16
	Size  uint8
	Type  PacketType
}

func (h InfoHeader) appendTo(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, h.Magic)
	buf = append(buf, h.Size, uint8(h.Type))
	return buf
}

func parseInfoHeader(buf []byte) (InfoHeader, error) {
	if len(buf) < InfoHeaderSize {
		return InfoHeader{}, fmt.Errorf("%w: %d bytes, need %d for info header", ErrDecode, len(buf), InfoHeaderSize)
	}
	return InfoHeader{
		Magic: binary.BigEndian.Uint16(buf[0:2]),
		Size:  buf[2],
		Type:  PacketType(buf[3]),
	}, nil
}

// validate checks an info header against the expected type and size range.
// Size bounds are inclusive; pass the same value twice for fixed sizes.
func (h InfoHeader) validate(typ PacketType, minSize, maxSize int) error {
	if h.Magic != CommandMagic {
		return fmt.Errorf("%w: magic 0x%04X", ErrProtocolMismatch, h.Magic)
	}
	if int(h.Size) < minSize || int(h.Size) > maxSize {
		return fmt.Errorf("%w: size %d outside [%d, %d]", ErrProtocolMismatch, h.Size, minSize, maxSize)
	}
	if h.Type != typ {
		return fmt.Errorf("%w: type %d, want %d", ErrProtocolMismatch, h.Type, typ)
	}
	return nil
}

func errShort(got, want int) error {
	return fmt.Errorf("%w: %d bytes, need %d", ErrDecode, got, want)
}

// PeekMagic returns the leading magic value of a datagram, used by receive
// loops to classify inbound traffic before parsing.
func PeekMagic(buf []byte) (uint16, bool) {
	if len(buf) < 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(buf[0:2]), true
}
