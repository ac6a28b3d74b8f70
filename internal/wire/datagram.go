package wire

import (
	"encoding/binary"
	"fmt"
)

// DatagramHeaderSize is the fixed length of the header on every profile
// data datagram.
const DatagramHeaderSize = 36

// DatagramHeader prefixes every high-rate data datagram. Encoder values
// follow the per-type step words, then one contiguous block per set bit in
// DataType, in ascending bit order.
type DatagramHeader struct {
	Magic            uint16
	ExposureTimeUs   uint16
	ScanHeadID       uint8
	CameraID         uint8
	LaserID          uint8
	Flags            uint8
	TimestampNs      uint64
	LaserOnTimeUs    uint16
	DataType         DataType
	DataLength       uint16
	NumberEncoders   uint8
	DatagramPosition uint32
	NumberDatagrams  uint32
	StartColumn      uint16
	EndColumn        uint16
}

// AppendTo serializes the datagram header.
func (h *DatagramHeader) AppendTo(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, h.Magic)
	buf = binary.BigEndian.AppendUint16(buf, h.ExposureTimeUs)
	buf = append(buf, h.ScanHeadID, h.CameraID, h.LaserID, h.Flags)
	buf = binary.BigEndian.AppendUint64(buf, h.TimestampNs)
	buf = binary.BigEndian.AppendUint16(buf, h.LaserOnTimeUs)
	buf = binary.BigEndian.AppendUint16(buf, uint16(h.DataType))
	buf = binary.BigEndian.AppendUint16(buf, h.DataLength)
	buf = append(buf, h.NumberEncoders, 0)
	buf = binary.BigEndian.AppendUint32(buf, h.DatagramPosition)
	buf = binary.BigEndian.AppendUint32(buf, h.NumberDatagrams)
	buf = binary.BigEndian.AppendUint16(buf, h.StartColumn)
	buf = binary.BigEndian.AppendUint16(buf, h.EndColumn)
	return buf
}

// ParseDatagramHeader decodes the header of a data datagram.
func ParseDatagramHeader(buf []byte) (DatagramHeader, error) {
	if len(buf) < DatagramHeaderSize {
		return DatagramHeader{}, errShort(len(buf), DatagramHeaderSize)
	}
	h := DatagramHeader{
		Magic:            binary.BigEndian.Uint16(buf[0:2]),
		ExposureTimeUs:   binary.BigEndian.Uint16(buf[2:4]),
		ScanHeadID:       buf[4],
		CameraID:         buf[5],
		LaserID:          buf[6],
		Flags:            buf[7],
		TimestampNs:      binary.BigEndian.Uint64(buf[8:16]),
		LaserOnTimeUs:    binary.BigEndian.Uint16(buf[16:18]),
		DataType:         DataType(binary.BigEndian.Uint16(buf[18:20])),
		DataLength:       binary.BigEndian.Uint16(buf[20:22]),
		NumberEncoders:   buf[22],
		DatagramPosition: binary.BigEndian.Uint32(buf[24:28]),
		NumberDatagrams:  binary.BigEndian.Uint32(buf[28:32]),
		StartColumn:      binary.BigEndian.Uint16(buf[32:34]),
		EndColumn:        binary.BigEndian.Uint16(buf[34:36]),
	}
	if h.Magic != DataMagic {
		return DatagramHeader{}, fmt.Errorf("%w: data magic 0x%04X", ErrProtocolMismatch, h.Magic)
	}
	return h, nil
}

// EncoderOffset returns the byte offset of the encoder values, which sit
// after the per-type step words.
func (h *DatagramHeader) EncoderOffset() int {
	return DatagramHeaderSize + 2*h.DataType.Count()
}

// PayloadOffset returns the byte offset of the first content block.
func (h *DatagramHeader) PayloadOffset() int {
	return h.EncoderOffset() + 8*int(h.NumberEncoders)
}
