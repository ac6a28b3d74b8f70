package profile

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/scanlink-data/scanlink/internal/geometry"
	"github.com/scanlink-data/scanlink/internal/monitoring"
	"github.com/scanlink-data/scanlink/internal/wire"
)

// AlignmentFunc resolves the camera-to-mill transform for a camera ID.
type AlignmentFunc func(cameraID uint8) *geometry.Alignment

// Stats counts assembler activity since construction.
type Stats struct {
	DatagramsAccepted  uint64
	DatagramsRejected  uint64
	ProfilesEmitted    uint64
	ProfilesIncomplete uint64
}

// Assembler folds data datagrams into profiles. Datagrams of one scan share
// a source and timestamp; a datagram with a new key flushes whatever scan
// is in progress, complete or not, so a lost datagram delays at most one
// profile.
type Assembler struct {
	mu        sync.Mutex
	alignment AlignmentFunc
	emit      func(*Profile)
	stats     Stats

	curSource    uint32
	curTimestamp uint64
	cur          *Profile
}

// NewAssembler builds an assembler that hands finished profiles to emit.
// A nil alignment uses the identity mounting for every camera.
func NewAssembler(alignment AlignmentFunc, emit func(*Profile)) *Assembler {
	if alignment == nil {
		def := geometry.DefaultAlignment()
		alignment = func(uint8) *geometry.Alignment { return def }
	}
	return &Assembler{alignment: alignment, emit: emit}
}

// Feed parses and accepts one raw datagram. Malformed datagrams are counted
// and dropped.
func (a *Assembler) Feed(buf []byte) error {
	pkt, err := ParsePacket(buf)
	if err != nil {
		a.mu.Lock()
		a.stats.DatagramsRejected++
		a.mu.Unlock()
		return err
	}
	return a.Accept(pkt)
}

// Accept folds one parsed datagram into the profile being assembled.
func (a *Assembler) Accept(pkt *Packet) error {
	h := pkt.Header
	if h.DataType.Has(wire.DataTypeSubpixel) && !h.DataType.Has(wire.DataTypeImage) {
		a.mu.Lock()
		a.stats.DatagramsRejected++
		a.mu.Unlock()
		return fmt.Errorf("profile: subpixel data type not implemented")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	source := pkt.SourceID()
	if a.cur != nil && (source != a.curSource || h.TimestampNs != a.curTimestamp) {
		a.flushLocked()
	}
	if a.cur == nil {
		a.cur = newProfile(pkt)
		a.curSource = source
		a.curTimestamp = h.TimestampNs
	}

	a.stats.DatagramsAccepted++
	a.cur.PacketsReceived++
	if h.DataType.Has(wire.DataTypeImage) {
		a.insertImage(pkt)
	} else {
		a.insertPoints(pkt)
	}
	if a.cur.PacketsReceived >= a.cur.PacketsExpected {
		a.flushLocked()
	}
	return nil
}

// Reset discards the scan in progress without emitting it, so fragments of
// an earlier scan cannot leak into the one that starts next.
func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cur = nil
}

// Flush emits the scan in progress even though datagrams may still be
// outstanding. Called when scanning stops.
func (a *Assembler) Flush() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.flushLocked()
}

// Stats returns a snapshot of the assembler counters.
func (a *Assembler) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

func (a *Assembler) flushLocked() {
	if a.cur == nil {
		return
	}
	p := a.cur
	a.cur = nil
	if p.Complete() {
		a.stats.ProfilesEmitted++
	} else {
		a.stats.ProfilesIncomplete++
		monitoring.Logf("profile: head %d camera %d laser %d t=%d incomplete, %d/%d datagrams",
			p.ScanHeadID, p.CameraID, p.LaserID, p.TimestampNs, p.PacketsReceived, p.PacketsExpected)
	}
	if a.emit != nil {
		a.emit(p)
	}
}

func (a *Assembler) insertPoints(pkt *Packet) {
	frag, ok := pkt.Fragments[wire.DataTypeXY]
	if !ok {
		return
	}
	h := pkt.Header
	align := a.alignment(h.CameraID)
	bright, hasBright := pkt.Fragments[wire.DataTypeBrightness]

	step := int(frag.Step)
	idx := int(h.StartColumn) + int(h.DatagramPosition)*step
	stride := int(h.NumberDatagrams) * step
	for i := 0; i < frag.NumValues && idx < len(a.cur.Points); i++ {
		x := int16(binary.BigEndian.Uint16(frag.Raw[i*4:]))
		y := int16(binary.BigEndian.Uint16(frag.Raw[i*4+2:]))
		if x != InvalidXY && y != InvalidXY {
			m := align.CameraToMill(float64(x), float64(y))
			pt := Point{X: int32(m.X), Y: int32(m.Y), Brightness: InvalidBrightness}
			// A wire brightness of zero means no measurement, not black.
			if hasBright && i < bright.NumValues && bright.Raw[i] != 0 {
				pt.Brightness = int32(bright.Raw[i])
			}
			a.cur.Points[idx] = pt
		}
		idx += stride
	}
}

func (a *Assembler) insertImage(pkt *Packet) {
	h := pkt.Header
	// The final datagram of an image scan carries subpixel peak data,
	// not pixels.
	if h.DatagramPosition+1 == h.NumberDatagrams {
		return
	}
	frag, ok := pkt.Fragments[wire.DataTypeImage]
	if !ok {
		return
	}
	off := int(h.DatagramPosition) * imageDatagramBytes
	if off >= len(a.cur.Image) {
		return
	}
	copy(a.cur.Image[off:], frag.Raw)
}
