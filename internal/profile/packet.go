// Package profile reassembles high-rate data datagrams into complete
// profiles. A single scan is fragmented across several datagrams so each
// fits one ethernet frame; the assembler folds fragments back together
// keyed by source and timestamp and hands finished profiles to a callback.
package profile

import (
	"encoding/binary"
	"fmt"

	"github.com/scanlink-data/scanlink/internal/wire"
)

// InvalidXY marks a column the head found no laser peak for. It doubles as
// the wire sentinel for absent points inside a datagram.
const InvalidXY = -32768

// Fragment is one content type's slice of a datagram payload.
type Fragment struct {
	Step      uint16
	NumValues int
	Raw       []byte
}

// Packet is one parsed data datagram.
type Packet struct {
	Header    wire.DatagramHeader
	Encoders  []int64
	Fragments map[wire.DataType]Fragment
}

// SourceID collapses the head, camera, and laser of a datagram into one
// comparable key.
func (p *Packet) SourceID() uint32 {
	h := p.Header
	return uint32(h.ScanHeadID)<<16 | uint32(h.CameraID)<<8 | uint32(h.LaserID)
}

// fragmentValues returns how many values of one content type this datagram
// carries. Columns are dealt round-robin across the datagrams of a scan, so
// early datagrams carry one extra value when the division is uneven.
func fragmentValues(h *wire.DatagramHeader, step uint16) int {
	cols := int(h.EndColumn) - int(h.StartColumn) + 1
	total := cols / int(step)
	n := total / int(h.NumberDatagrams)
	if total%int(h.NumberDatagrams) > int(h.DatagramPosition) {
		n++
	}
	return n
}

// ParsePacket decodes one data datagram into its header, encoder values,
// and per-type payload fragments.
func ParsePacket(buf []byte) (*Packet, error) {
	h, err := wire.ParseDatagramHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.NumberDatagrams == 0 || int(h.DatagramPosition) >= int(h.NumberDatagrams) {
		return nil, fmt.Errorf("%w: datagram %d of %d", wire.ErrDecode, h.DatagramPosition, h.NumberDatagrams)
	}
	if h.EndColumn < h.StartColumn {
		return nil, fmt.Errorf("%w: columns %d..%d", wire.ErrDecode, h.StartColumn, h.EndColumn)
	}

	numTypes := h.DataType.Count()
	steps := make([]uint16, numTypes)
	off := wire.DatagramHeaderSize
	if len(buf) < off+2*numTypes {
		return nil, fmt.Errorf("%w: %d bytes, need %d for steps", wire.ErrDecode, len(buf), off+2*numTypes)
	}
	for i := range steps {
		steps[i] = binary.BigEndian.Uint16(buf[off:])
		if steps[i] == 0 {
			return nil, fmt.Errorf("%w: zero column step", wire.ErrDecode)
		}
		off += 2
	}

	encoders := make([]int64, h.NumberEncoders)
	if len(buf) < off+8*len(encoders) {
		return nil, fmt.Errorf("%w: %d bytes, need %d for encoders", wire.ErrDecode, len(buf), off+8*len(encoders))
	}
	for i := range encoders {
		encoders[i] = int64(binary.BigEndian.Uint64(buf[off:]))
		off += 8
	}

	p := &Packet{
		Header:    h,
		Encoders:  encoders,
		Fragments: make(map[wire.DataType]Fragment, numTypes),
	}
	stepIdx := 0
	for bit := wire.DataType(1); bit <= wire.DataTypeImage; bit <<= 1 {
		if !h.DataType.Has(bit) {
			continue
		}
		step := steps[stepIdx]
		stepIdx++
		n := fragmentValues(&h, step)
		if bit == wire.DataTypeImage {
			// Image payloads report their own length; the column
			// arithmetic above does not apply to pixel rows.
			n = int(h.DataLength)
		}
		size := n * bit.Size()
		if len(buf) < off+size {
			return nil, fmt.Errorf("%w: %d bytes, need %d for %#x payload", wire.ErrDecode, len(buf), off+size, uint16(bit))
		}
		p.Fragments[bit] = Fragment{Step: step, NumValues: n, Raw: buf[off : off+size]}
		off += size
	}
	// Brightness values pair positionally with XY values, which only holds
	// when both types share one column step. No defined format mixes steps.
	if xy, ok := p.Fragments[wire.DataTypeXY]; ok {
		if br, ok := p.Fragments[wire.DataTypeBrightness]; ok && br.Step != xy.Step {
			return nil, fmt.Errorf("%w: brightness step %d differs from xy step %d",
				wire.ErrDecode, br.Step, xy.Step)
		}
	}
	return p, nil
}
