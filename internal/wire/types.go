// Package wire implements the binary UDP protocol spoken by the scan heads:
// the fixed info header shared by all control messages, the 36-byte data
// datagram header, and the serialize/deserialize routines for every message
// type. All multi-byte integers are network byte order.
package wire

import (
	"errors"
	"math/bits"
)

const (
	// ResponseMagic identifies status messages from a scan head. Command
	// messages from the client reuse the same magic value.
	ResponseMagic uint16 = 0xFACE
	// CommandMagic identifies control messages sent by the client.
	CommandMagic uint16 = ResponseMagic
	// DataMagic identifies high-rate profile data datagrams.
	DataMagic uint16 = 0xFACD

	// ScanServerPort is the UDP port the server on each scan head listens on.
	ScanServerPort = 12346

	// MaxFramePayload caps every datagram so it fits one ethernet frame,
	// reserving 32 bytes for the IP and UDP headers.
	MaxFramePayload = 1468
)

// PacketType enumerates the control message types carried in the info header.
type PacketType uint8

const (
	TypeInvalid PacketType = 0
	// TypeConnect is deprecated and kept only so the value is never reused.
	TypeConnect          PacketType = 1
	TypeStartScanning    PacketType = 2
	TypeStatus           PacketType = 3
	TypeSetWindow        PacketType = 4
	TypeGetMappleTable   PacketType = 5
	TypeDisconnect       PacketType = 6
	TypeBroadcastConnect PacketType = 7
)

// ConnectionType selects the mode a scan head connects in.
type ConnectionType uint8

const (
	ConnectionNormal  ConnectionType = 0
	ConnectionMappler ConnectionType = 1
)

// DataType is a bitmask of the content types present in a data datagram.
// The payload carries one contiguous block per set bit, in ascending bit
// order.
type DataType uint16

const (
	DataTypeBrightness   DataType = 0x01
	DataTypeXY           DataType = 0x02
	DataTypeWidth        DataType = 0x04
	DataTypeSecondMoment DataType = 0x08
	DataTypeSubpixel     DataType = 0x10
	DataTypeImage        DataType = 0x20
)

// Size returns the number of bytes one value of the content type occupies on
// the wire.
func (d DataType) Size() int {
	switch d {
	case DataTypeXY:
		return 4
	case DataTypeWidth, DataTypeSecondMoment, DataTypeSubpixel:
		return 2
	default:
		// Brightness and Image are single bytes.
		return 1
	}
}

// Count returns the number of content types set in the mask.
func (d DataType) Count() int {
	return bits.OnesCount16(uint16(d))
}

// Has reports whether the mask includes the given content type.
func (d DataType) Has(t DataType) bool {
	return d&t != 0
}

var (
	// ErrDecode reports a datagram too short or malformed to parse. The
	// data plane drops such datagrams and keeps receiving.
	ErrDecode = errors.New("wire: malformed datagram")

	// ErrProtocolMismatch reports a control message whose magic, size, or
	// type field does not match the expected message.
	ErrProtocolMismatch = errors.New("wire: protocol mismatch")
)
