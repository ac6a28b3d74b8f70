// Package scansys coordinates a group of scan heads as one system: the
// registry of heads, broadcast connection, window programming, and the
// shared scan schedule.
package scansys

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/scanlink-data/scanlink/internal/geometry"
	"github.com/scanlink-data/scanlink/internal/profile"
	"github.com/scanlink-data/scanlink/internal/scanhead"
	"github.com/scanlink-data/scanlink/internal/wire"
)

// ScanHead is one registered head within a system. Configuration, alignment,
// and window changes are rejected while the system is scanning; they take
// effect on the next connect or scan start.
type ScanHead struct {
	serial   uint32
	id       uint8
	scanning func() bool

	mu         sync.Mutex
	config     *scanhead.Configuration
	alignments map[uint8]*geometry.Alignment
	window     *geometry.ScanWindow
	format     wire.DataFormat
	session    *scanhead.Session
}

func newScanHead(serial uint32, id uint8, scanning func() bool) (*ScanHead, error) {
	window, err := geometry.NewScanWindow(100.0, -100.0, -100.0, 100.0)
	if err != nil {
		return nil, err
	}
	h := &ScanHead{
		serial:     serial,
		id:         id,
		scanning:   scanning,
		config:     scanhead.NewConfiguration(),
		alignments: make(map[uint8]*geometry.Alignment),
		window:     window,
		format:     wire.FormatXYBrightnessFull,
	}
	if err := h.ensureSession(); err != nil {
		return nil, err
	}
	return h, nil
}

// Serial returns the head's serial number.
func (h *ScanHead) Serial() uint32 { return h.serial }

// ID returns the user-assigned head ID.
func (h *ScanHead) ID() uint8 { return h.id }

// Configuration returns the head's operating configuration for editing.
func (h *ScanHead) Configuration() *scanhead.Configuration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.config
}

// SetAlignment sets the camera-to-mill transform for one camera. Roll is in
// degrees, shifts in inches.
func (h *ScanHead) SetAlignment(cameraID uint8, rollDegrees, shiftX, shiftY float64, orientation geometry.CableOrientation) error {
	if h.scanning() {
		return fmt.Errorf("%w: cannot change alignment while scanning", ErrState)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alignments[cameraID] = geometry.NewAlignment(rollDegrees, shiftX, shiftY, orientation)
	return nil
}

// Alignment returns the transform for one camera, identity if never set.
func (h *ScanHead) Alignment(cameraID uint8) *geometry.Alignment {
	h.mu.Lock()
	defer h.mu.Unlock()
	if a, ok := h.alignments[cameraID]; ok {
		return a
	}
	return geometry.DefaultAlignment()
}

// SetWindow bounds the region of mill space the head reports points from,
// in inches. Narrower windows allow faster scanning.
func (h *ScanHead) SetWindow(topInches, bottomInches, leftInches, rightInches float64) error {
	if h.scanning() {
		return fmt.Errorf("%w: cannot change window while scanning", ErrState)
	}
	w, err := geometry.NewScanWindow(topInches, bottomInches, leftInches, rightInches)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.window = w
	return nil
}

// Window returns the configured scan window.
func (h *ScanHead) Window() *geometry.ScanWindow {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.window
}

// SetDataFormat selects the content and resolution of scanned profiles.
func (h *ScanHead) SetDataFormat(f wire.DataFormat) error {
	if h.scanning() {
		return fmt.Errorf("%w: cannot change data format while scanning", ErrState)
	}
	if _, _, err := f.Layout(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.format = f
	return nil
}

// DataFormat returns the configured data format.
func (h *ScanHead) DataFormat() wire.DataFormat {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.format
}

// Status returns the most recent status report from the head.
func (h *ScanHead) Status() (*wire.StatusMessage, time.Time, bool) {
	s := h.currentSession()
	if s == nil {
		return nil, time.Time{}, false
	}
	return s.Status()
}

// AvailableProfiles returns how many profiles are queued for delivery.
func (h *ScanHead) AvailableProfiles() int {
	if s := h.currentSession(); s != nil {
		return s.Available()
	}
	return 0
}

// WaitUntilProfilesAvailable blocks until at least count profiles are
// queued or the timeout passes.
func (h *ScanHead) WaitUntilProfilesAvailable(count int, timeout time.Duration) bool {
	if s := h.currentSession(); s != nil {
		return s.WaitUntilAvailable(count, timeout)
	}
	return false
}

// GetProfiles removes and returns up to max queued profiles, oldest first.
func (h *ScanHead) GetProfiles(max int) []*profile.Profile {
	if s := h.currentSession(); s != nil {
		return s.Pop(max)
	}
	return nil
}

// AssemblerStats returns the head's data plane counters.
func (h *ScanHead) AssemblerStats() profile.Stats {
	if s := h.currentSession(); s != nil {
		return s.AssemblerStats()
	}
	return profile.Stats{}
}

func (h *ScanHead) currentSession() *scanhead.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session
}

// ensureSession creates the receive session if the previous one was torn
// down by a disconnect.
func (h *ScanHead) ensureSession() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session != nil {
		return nil
	}
	s, err := scanhead.NewSession(h.serial, h.id, net.IPv4zero, h.alignmentFor)
	if err != nil {
		return fmt.Errorf("head %d: %w", h.serial, err)
	}
	h.session = s
	return nil
}

func (h *ScanHead) closeSession() {
	h.mu.Lock()
	s := h.session
	h.session = nil
	h.mu.Unlock()
	if s != nil {
		s.Shutdown()
	}
}

// alignmentFor is the assembler's camera lookup. It must not call locking
// accessors that could recurse.
func (h *ScanHead) alignmentFor(cameraID uint8) *geometry.Alignment {
	h.mu.Lock()
	defer h.mu.Unlock()
	if a, ok := h.alignments[cameraID]; ok {
		return a
	}
	return geometry.DefaultAlignment()
}

// headAddr returns where to send commands, learned from the head's status.
func (h *ScanHead) headAddr(serverPort int) (*net.UDPAddr, bool) {
	status, _, ok := h.Status()
	if !ok {
		return nil, false
	}
	ip := make(net.IP, 4)
	ip[0] = byte(status.ScanHeadIP >> 24)
	ip[1] = byte(status.ScanHeadIP >> 16)
	ip[2] = byte(status.ScanHeadIP >> 8)
	ip[3] = byte(status.ScanHeadIP)
	return &net.UDPAddr{IP: ip, Port: serverPort}, true
}
