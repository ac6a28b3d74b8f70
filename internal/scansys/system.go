package scansys

import (
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/scanlink-data/scanlink/internal/network"
	"github.com/scanlink-data/scanlink/internal/profile"
	"github.com/scanlink-data/scanlink/internal/scanhead"
	"github.com/scanlink-data/scanlink/internal/wire"
)

var (
	// ErrState reports an operation invalid in the system's current state,
	// such as scanning before connecting.
	ErrState = errors.New("scansys: invalid state for operation")

	// ErrDuplicateSerial reports a second head registered with a serial
	// number already in use.
	ErrDuplicateSerial = errors.New("scansys: serial number already registered")

	// ErrDuplicateID reports a second head registered with an ID already
	// in use.
	ErrDuplicateID = errors.New("scansys: scan head ID already registered")

	// ErrUnknownHead reports a lookup for a head that was never registered.
	ErrUnknownHead = errors.New("scansys: scan head not registered")

	// ErrVersionIncompatible reports a head running firmware the client
	// cannot interoperate with. Connection is aborted for all heads.
	ErrVersionIncompatible = errors.New("scansys: scan head firmware version incompatible")
)

const (
	broadcastInterval = 500 * time.Millisecond
	connectPoll       = 50 * time.Millisecond

	// windowSettleTimeout bounds the wait for a fresh status report after
	// window programming, so a head that dies mid-connect cannot hang the
	// caller forever.
	windowSettleTimeout = 10 * time.Second
)

type systemState int

const (
	stateDisconnected systemState = iota
	stateConnected
	stateScanning
)

// ClientVersion is the protocol version this client reports during
// connection. Heads with a different major version are rejected.
var ClientVersion = wire.VersionInformation{Major: 2, Minor: 11, Patch: 0}

// Option adjusts system construction.
type Option func(*System)

// WithServerPort overrides the UDP port commands are sent to. Used by tests
// and the head emulator.
func WithServerPort(port int) Option {
	return func(s *System) { s.serverPort = port }
}

// WithInterfaces overrides the interfaces connection broadcasts go out on.
func WithInterfaces(ifaces []network.Interface) Option {
	return func(s *System) { s.ifaces = ifaces }
}

// WithClientVersion overrides the version reported during connection.
func WithClientVersion(v wire.VersionInformation) Option {
	return func(s *System) { s.clientVersion = v }
}

// System owns a group of scan heads and drives them through the
// connect / scan / disconnect lifecycle. All commands funnel through one
// paced sender; profile data arrives on each head's own session socket.
type System struct {
	serverPort    int
	ifaces        []network.Interface
	clientVersion wire.VersionInformation

	heads map[uint32]*ScanHead
	byID  map[uint8]*ScanHead

	sessionID  uint8
	requestSeq uint8
	state      systemState
	scanRateHz float64

	senderConn *net.UDPConn
	sender     *network.Sender
}

// NewSystem creates an empty system. Callers register heads, connect, then
// scan. Close releases the sender socket.
func NewSystem(opts ...Option) (*System, error) {
	s := &System{
		serverPort:    wire.ScanServerPort,
		clientVersion: ClientVersion,
		heads:         make(map[uint32]*ScanHead),
		byID:          make(map[uint8]*ScanHead),
	}
	for _, opt := range opts {
		opt(s)
	}
	conn, err := network.OpenUDP(net.IPv4zero, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open command socket: %w", err)
	}
	s.senderConn = conn
	s.sender = network.NewSender(conn)
	s.sender.Start()
	return s, nil
}

// Close stops the sender and tears down every session.
func (s *System) Close() {
	if s.state == stateScanning {
		_ = s.StopScanning()
	}
	s.sender.Shutdown()
	s.senderConn.Close()
	for _, h := range s.heads {
		h.closeSession()
	}
	s.state = stateDisconnected
}

// CreateScanHead registers a head by serial number and user-assigned ID.
func (s *System) CreateScanHead(serial uint32, id uint8) (*ScanHead, error) {
	if s.state != stateDisconnected {
		return nil, fmt.Errorf("%w: cannot add heads while connected", ErrState)
	}
	if _, ok := s.heads[serial]; ok {
		return nil, fmt.Errorf("%w: serial %d", ErrDuplicateSerial, serial)
	}
	if _, ok := s.byID[id]; ok {
		return nil, fmt.Errorf("%w: id %d", ErrDuplicateID, id)
	}
	h, err := newScanHead(serial, id, s.IsScanning)
	if err != nil {
		return nil, err
	}
	s.heads[serial] = h
	s.byID[id] = h
	return h, nil
}

// ScanHeadBySerial returns the registered head with the given serial.
func (s *System) ScanHeadBySerial(serial uint32) (*ScanHead, error) {
	h, ok := s.heads[serial]
	if !ok {
		return nil, fmt.Errorf("%w: serial %d", ErrUnknownHead, serial)
	}
	return h, nil
}

// ScanHeadByID returns the registered head with the given ID.
func (s *System) ScanHeadByID(id uint8) (*ScanHead, error) {
	h, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownHead, id)
	}
	return h, nil
}

// RemoveScanHead unregisters a head. Not allowed while connected.
func (s *System) RemoveScanHead(serial uint32) error {
	if s.state != stateDisconnected {
		return fmt.Errorf("%w: cannot remove heads while connected", ErrState)
	}
	h, ok := s.heads[serial]
	if !ok {
		return fmt.Errorf("%w: serial %d", ErrUnknownHead, serial)
	}
	h.closeSession()
	delete(s.heads, serial)
	delete(s.byID, h.id)
	return nil
}

// ScanHeads returns every registered head.
func (s *System) ScanHeads() []*ScanHead {
	out := make([]*ScanHead, 0, len(s.heads))
	for _, h := range s.heads {
		out = append(out, h)
	}
	return out
}

// IsConnected reports whether every registered head is connected.
func (s *System) IsConnected() bool { return s.state == stateConnected || s.state == stateScanning }

// IsScanning reports whether a scan is in progress.
func (s *System) IsScanning() bool { return s.state == stateScanning }

// Connect claims every registered head by broadcasting on the active
// interfaces until each responds or the timeout passes. It returns the
// heads that responded; a timeout with no responders returns an empty
// slice and no error. A head running incompatible firmware aborts the
// whole connect.
func (s *System) Connect(timeout time.Duration) ([]*ScanHead, error) {
	if s.state != stateDisconnected {
		return nil, fmt.Errorf("%w: already connected", ErrState)
	}
	if len(s.heads) == 0 {
		return nil, nil
	}

	ifaces := s.ifaces
	if len(ifaces) == 0 {
		var err error
		ifaces, err = network.ActiveInterfaces()
		if err != nil {
			return nil, err
		}
		if len(ifaces) == 0 {
			return nil, fmt.Errorf("scansys: no usable broadcast interfaces")
		}
	}

	for _, h := range s.heads {
		if err := h.ensureSession(); err != nil {
			return nil, err
		}
		h.currentSession().Start()
	}
	s.sessionID++

	connected := make(map[uint32]*ScanHead)
	attemptStart := time.Now()
	deadline := attemptStart.Add(timeout)
	var lastBroadcast time.Time

	for time.Now().Before(deadline) && len(connected) < len(s.heads) {
		if time.Since(lastBroadcast) >= broadcastInterval {
			s.broadcastConnect(ifaces, connected)
			lastBroadcast = time.Now()
		}
		time.Sleep(connectPoll)

		for serial, h := range s.heads {
			if _, ok := connected[serial]; ok {
				continue
			}
			status, at, ok := h.Status()
			if !ok || !at.After(attemptStart) {
				continue
			}
			if !s.clientVersion.Compatible(status.Version) {
				return nil, fmt.Errorf("%w: head %d runs %s, client %s",
					ErrVersionIncompatible, serial, status.Version, s.clientVersion)
			}
			log.Printf("Scan head %d connected (%s, max rate %d Hz)",
				serial, status.Version, status.MaxScanRate)
			connected[serial] = h
		}
	}

	out := make([]*ScanHead, 0, len(connected))
	for _, h := range connected {
		out = append(out, h)
	}
	if len(connected) != len(s.heads) {
		log.Printf("Connect incomplete: %d of %d heads responded", len(connected), len(s.heads))
		return out, nil
	}

	s.state = stateConnected
	if err := s.sendWindows(); err != nil {
		return out, err
	}
	return out, nil
}

// broadcastConnect spams every interface with a claim for each head that
// has not yet responded.
func (s *System) broadcastConnect(ifaces []network.Interface, connected map[uint32]*ScanHead) {
	for _, ifc := range ifaces {
		for serial, h := range s.heads {
			if _, ok := connected[serial]; ok {
				continue
			}
			msg := wire.BroadcastConnectMessage{
				ClientIP:     network.IPToUint32(ifc.IP),
				ClientPort:   h.currentSession().LocalPort(),
				SessionID:    s.sessionID,
				ScanHeadID:   h.id,
				Connection:   wire.ConnectionNormal,
				SerialNumber: serial,
			}
			s.sender.Enqueue(network.Datagram{
				Data: msg.Serialize(),
				Addr: &net.UDPAddr{IP: ifc.Broadcast, Port: s.serverPort},
			})
		}
	}
}

// sendWindows programs every camera's scan window and waits for a fresh
// status from each head, so max scan rates reported afterwards reflect the
// new windows.
func (s *System) sendWindows() error {
	sentAt := time.Now()
	for _, h := range s.heads {
		addr, ok := h.headAddr(s.serverPort)
		if !ok {
			return fmt.Errorf("scansys: head %d has no status after connect", h.serial)
		}
		status, _, _ := h.Status()
		cameras := len(status.PixelsInWindow)
		if cameras == 0 {
			cameras = 1
		}
		for cam := 0; cam < cameras; cam++ {
			msg := wire.SetWindowMessage{
				CameraID:    uint8(cam),
				Constraints: h.Window().CameraConstraints(h.Alignment(uint8(cam))),
			}
			s.sender.Enqueue(network.Datagram{Data: msg.Serialize(), Addr: addr})
		}
	}

	settle := time.Now().Add(windowSettleTimeout)
	for _, h := range s.heads {
		for {
			_, at, ok := h.Status()
			if ok && at.After(sentAt) {
				break
			}
			if time.Now().After(settle) {
				return fmt.Errorf("scansys: head %d sent no status after window programming", h.serial)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	return nil
}

// Disconnect releases every head and tears down their sessions.
func (s *System) Disconnect() error {
	if s.state != stateConnected {
		return fmt.Errorf("%w: not connected", ErrState)
	}
	msg := wire.SerializeDisconnect()
	for _, h := range s.heads {
		if addr, ok := h.headAddr(s.serverPort); ok {
			s.sender.Enqueue(network.Datagram{Data: msg, Addr: addr})
		}
	}
	for _, h := range s.heads {
		h.closeSession()
	}
	s.state = stateDisconnected
	return nil
}

// MaxScanRate returns the fastest rate every connected head can sustain,
// the minimum over per-head configuration and reported limits.
func (s *System) MaxScanRate() float64 {
	rate := scanRateCeiling()
	for _, h := range s.heads {
		if r := h.Configuration().MaxScanRate(); r < rate {
			rate = r
		}
		if status, _, ok := h.Status(); ok && status.MaxScanRate > 0 {
			if r := float64(status.MaxScanRate); r < rate {
				rate = r
			}
		}
	}
	return rate
}

// StartScanning begins scanning on every head at the given rate in hertz.
func (s *System) StartScanning(rateHz float64) error {
	return s.startScanning(rateHz, s.ScanHeads())
}

// StartScanningHead begins scanning on a single registered head.
func (s *System) StartScanningHead(rateHz float64, h *ScanHead) error {
	if _, ok := s.heads[h.serial]; !ok {
		return fmt.Errorf("%w: serial %d", ErrUnknownHead, h.serial)
	}
	return s.startScanning(rateHz, []*ScanHead{h})
}

func (s *System) startScanning(rateHz float64, heads []*ScanHead) error {
	if s.state == stateScanning {
		return fmt.Errorf("%w: already scanning", ErrState)
	}
	if s.state != stateConnected {
		return fmt.Errorf("%w: not connected", ErrState)
	}
	if err := s.validateRate(rateHz); err != nil {
		return err
	}
	intervalUs := uint32(1e6 / rateHz)
	s.requestSeq++

	var requests []network.Datagram
	for _, h := range heads {
		addr, ok := h.headAddr(s.serverPort)
		if !ok {
			return fmt.Errorf("scansys: head %d has no status", h.serial)
		}
		req, err := s.buildScanRequest(h, intervalUs)
		if err != nil {
			return err
		}
		requests = append(requests, network.Datagram{Data: req, Addr: addr})
	}

	// Restart the receive side before the first request goes out, dropping
	// anything still buffered from an earlier scan.
	for _, h := range heads {
		if sess := h.currentSession(); sess != nil {
			sess.Start()
		}
	}

	s.sender.EnqueueScanRequests(requests)
	s.scanRateHz = rateHz
	s.state = stateScanning
	return nil
}

func (s *System) buildScanRequest(h *ScanHead, intervalUs uint32) ([]byte, error) {
	mask, steps, err := h.DataFormat().Layout()
	if err != nil {
		return nil, err
	}
	cfg := h.Configuration()
	laserMin, laserDef, laserMax := cfg.LaserOnTime()
	expMin, expDef, expMax := cfg.CameraExposureTime()

	sess := h.currentSession()
	msg := wire.ScanRequestMessage{
		ClientIP:                network.IPToUint32(sess.LocalIP()),
		ClientPort:              sess.LocalPort(),
		RequestSequence:         s.requestSeq,
		ScanHeadID:              h.id,
		MinLaserOnTimeUs:        laserMin,
		DefLaserOnTimeUs:        laserDef,
		MaxLaserOnTimeUs:        laserMax,
		MinCameraExposureUs:     expMin,
		DefCameraExposureUs:     expDef,
		MaxCameraExposureUs:     expMax,
		LaserDetectionThreshold: cfg.LaserDetectionThreshold(),
		SaturationThreshold:     cfg.SaturationThreshold(),
		SaturationPercentage:    cfg.SaturationPercentage(),
		ScanIntervalUs:          intervalUs,
		ScanOffsetUs:            cfg.ScanOffset(),
		DataTypes:               mask,
		StartColumn:             0,
		EndColumn:               profile.ProfileDataLen - 1,
		Steps:                   steps,
	}
	return msg.Serialize()
}

// StopScanning halts the scan request retransmission; heads stop on their
// own once requests stop refreshing. Partial profiles are flushed so the
// last scan is delivered.
func (s *System) StopScanning() error {
	if s.state != stateScanning {
		return fmt.Errorf("%w: not scanning", ErrState)
	}
	s.sender.ClearScanRequests()
	for _, h := range s.heads {
		if sess := h.currentSession(); sess != nil {
			sess.Flush()
		}
	}
	s.state = stateConnected
	return nil
}

func (s *System) validateRate(rateHz float64) error {
	if rateHz < minScanRate() || rateHz > scanRateCeiling() {
		return fmt.Errorf("%w: scan rate %.3f Hz outside [%.2f, %.0f]",
			scanhead.ErrConfigRange, rateHz, minScanRate(), scanRateCeiling())
	}
	if limit := s.MaxScanRate(); rateHz > limit {
		return fmt.Errorf("%w: scan rate %.3f Hz exceeds system limit %.3f",
			scanhead.ErrConfigRange, rateHz, limit)
	}
	return nil
}

func minScanRate() float64 { return scanhead.MinScanRateHz }

func scanRateCeiling() float64 { return scanhead.MaxScanRateHz }
