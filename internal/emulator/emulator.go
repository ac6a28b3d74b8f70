// Package emulator implements a software scan head: it answers connection
// broadcasts, reports status, and streams synthetic profile datagrams in
// response to scan requests. It exists so the full client stack can be
// exercised over loopback without hardware.
package emulator

import (
	"log"
	"math"
	"net"
	"sync"
	"time"

	"github.com/scanlink-data/scanlink/internal/network"
	"github.com/scanlink-data/scanlink/internal/profile"
	"github.com/scanlink-data/scanlink/internal/wire"
)

// requestStaleAfter is how long the emulator keeps scanning without a
// refreshed scan request. Clients re-send requests every 500ms while
// scanning, so a few missed refreshes stop the stream.
const requestStaleAfter = 1600 * time.Millisecond

// Config describes the emulated head.
type Config struct {
	Serial         uint32
	Version        wire.VersionInformation
	MaxScanRate    uint32
	Cameras        int
	Encoders       int
	StatusInterval time.Duration
	// IP is the address to listen on; defaults to loopback.
	IP net.IP
	// Port is the server port; zero picks an ephemeral port.
	Port int
}

func (c *Config) setDefaults() {
	if c.Version == (wire.VersionInformation{}) {
		c.Version = wire.VersionInformation{Major: 2, Minor: 11, Patch: 0}
	}
	if c.MaxScanRate == 0 {
		c.MaxScanRate = 2000
	}
	if c.Cameras == 0 {
		c.Cameras = 2
	}
	if c.Encoders == 0 {
		c.Encoders = 1
	}
	if c.StatusInterval == 0 {
		c.StatusInterval = 200 * time.Millisecond
	}
	if c.IP == nil {
		c.IP = net.IPv4(127, 0, 0, 1)
	}
}

// Head is a running emulated scan head.
type Head struct {
	cfg  Config
	conn *net.UDPConn

	mu          sync.Mutex
	client      *net.UDPAddr
	scanHeadID  uint8
	connected   bool
	windowSets  int
	packetsSent uint32

	scanMu      sync.Mutex
	scanActive  bool
	scanStop    chan struct{}
	lastRequest time.Time

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Start launches the emulated head.
func Start(cfg Config) (*Head, error) {
	cfg.setDefaults()
	conn, err := network.OpenUDP(cfg.IP, cfg.Port)
	if err != nil {
		return nil, err
	}
	h := &Head{
		cfg:  cfg,
		conn: conn,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go h.run()
	return h, nil
}

// Port returns the UDP port the head listens on.
func (h *Head) Port() int {
	return h.conn.LocalAddr().(*net.UDPAddr).Port
}

// Shutdown stops the head.
func (h *Head) Shutdown() {
	h.once.Do(func() { close(h.stop) })
	<-h.done
	h.conn.Close()
}

func (h *Head) run() {
	defer close(h.done)
	statusTicker := time.NewTicker(h.cfg.StatusInterval)
	defer statusTicker.Stop()
	go func() {
		for {
			select {
			case <-h.stop:
				return
			case <-statusTicker.C:
				h.sendStatus()
			}
		}
	}()

	buf := make([]byte, 2048)
	for {
		select {
		case <-h.stop:
			h.stopScanning()
			return
		default:
		}
		h.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, src, err := h.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			continue
		}
		h.handle(buf[:n], src)
	}
}

func (h *Head) handle(pkt []byte, src *net.UDPAddr) {
	if len(pkt) < wire.InfoHeaderSize {
		return
	}
	magic, _ := wire.PeekMagic(pkt)
	if magic != wire.CommandMagic {
		return
	}
	switch wire.PacketType(pkt[3]) {
	case wire.TypeBroadcastConnect:
		msg, err := wire.ParseBroadcastConnectMessage(pkt)
		if err != nil || msg.SerialNumber != h.cfg.Serial {
			return
		}
		ip := network.Uint32ToIP(msg.ClientIP)
		if ip.IsUnspecified() {
			ip = src.IP
		}
		h.mu.Lock()
		h.client = &net.UDPAddr{IP: ip, Port: int(msg.ClientPort)}
		h.scanHeadID = msg.ScanHeadID
		h.connected = true
		h.mu.Unlock()
		h.sendStatus()
	case wire.TypeSetWindow:
		if _, err := wire.ParseSetWindowMessage(pkt); err != nil {
			return
		}
		h.mu.Lock()
		h.windowSets++
		h.mu.Unlock()
		h.sendStatus()
	case wire.TypeStartScanning:
		msg, err := wire.ParseScanRequestMessage(pkt)
		if err != nil {
			return
		}
		h.startScanning(msg)
	case wire.TypeDisconnect:
		h.mu.Lock()
		h.connected = false
		h.client = nil
		h.mu.Unlock()
		h.stopScanning()
	}
}

func (h *Head) sendStatus() {
	h.mu.Lock()
	client := h.client
	connected := h.connected
	sent := h.packetsSent
	h.mu.Unlock()
	if !connected || client == nil {
		return
	}

	msg := wire.StatusMessage{
		Version:      h.cfg.Version,
		SerialNumber: h.cfg.Serial,
		MaxScanRate:  h.cfg.MaxScanRate,
		ScanHeadIP:   network.IPToUint32(h.conn.LocalAddr().(*net.UDPAddr).IP),
		ClientIP:     network.IPToUint32(client.IP),
		ClientPort:   uint16(client.Port),
		GlobalTimeNs: uint64(time.Now().UnixNano()),
		PacketsSent:  sent,
		Encoders:     make([]int64, h.cfg.Encoders),
		CameraTemps:  make([]int32, h.cfg.Cameras),
	}
	msg.PixelsInWindow = make([]int32, h.cfg.Cameras)
	for i := range msg.PixelsInWindow {
		msg.PixelsInWindow[i] = profile.ProfileDataLen * 100
		msg.CameraTemps[i] = 40
	}
	buf, err := msg.Serialize()
	if err != nil {
		return
	}
	if _, err := h.conn.WriteToUDP(buf, client); err != nil {
		log.Printf("emulator: status send to %v failed: %v", client, err)
	}
}

func (h *Head) startScanning(req *wire.ScanRequestMessage) {
	h.scanMu.Lock()
	defer h.scanMu.Unlock()
	h.lastRequest = time.Now()
	if h.scanActive {
		return
	}
	h.scanActive = true
	h.scanStop = make(chan struct{})
	go h.scanLoop(req, h.scanStop)
}

func (h *Head) stopScanning() {
	h.scanMu.Lock()
	defer h.scanMu.Unlock()
	if h.scanActive {
		close(h.scanStop)
		h.scanActive = false
	}
}

func (h *Head) scanLoop(req *wire.ScanRequestMessage, stop chan struct{}) {
	interval := time.Duration(req.ScanIntervalUs) * time.Microsecond
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	dst := &net.UDPAddr{
		IP:   network.Uint32ToIP(req.ClientIP),
		Port: int(req.ClientPort),
	}
	if dst.IP.IsUnspecified() {
		h.mu.Lock()
		if h.client != nil {
			dst.IP = h.client.IP
		}
		h.mu.Unlock()
	}

	var scan uint64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		h.scanMu.Lock()
		stale := time.Since(h.lastRequest) > requestStaleAfter
		if stale {
			h.scanActive = false
		}
		h.scanMu.Unlock()
		if stale {
			return
		}

		scan++
		bufs, err := profile.BuildDatagrams(profile.BuilderConfig{
			ScanHeadID:     req.ScanHeadID,
			TimestampNs:    uint64(time.Now().UnixNano()),
			LaserOnTimeUs:  uint16(req.DefLaserOnTimeUs),
			ExposureTimeUs: uint16(req.DefCameraExposureUs / 1000),
			Encoders:       []int64{int64(scan)},
			DataTypes:      req.DataTypes,
			Steps:          req.Steps,
			StartColumn:    req.StartColumn,
			EndColumn:      req.EndColumn,
		}, wavePoints(scan, int(req.EndColumn-req.StartColumn)+1))
		if err != nil {
			log.Printf("emulator: build datagrams: %v", err)
			return
		}
		for _, b := range bufs {
			if _, err := h.conn.WriteToUDP(b, dst); err != nil {
				return
			}
			h.mu.Lock()
			h.packetsSent++
			h.mu.Unlock()
		}
	}
}

// wavePoints synthesizes a drifting sine surface so consecutive profiles
// differ visibly.
func wavePoints(phase uint64, cols int) []profile.RawPoint {
	pts := make([]profile.RawPoint, cols)
	for i := range pts {
		y := 5000.0 * math.Sin(float64(i)/80.0+float64(phase)/10.0)
		pts[i] = profile.RawPoint{
			X:          int16(i*20 - cols*10),
			Y:          int16(y),
			Brightness: uint8(128 + 64*math.Sin(float64(i)/40.0)),
		}
	}
	return pts
}
