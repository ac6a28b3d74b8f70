package network

import (
	"net"
	"sync"
	"time"

	"github.com/scanlink-data/scanlink/internal/monitoring"
)

const (
	// sendPause spaces consecutive commands out so a burst aimed at many
	// heads does not overflow anyone's receive buffer.
	sendPause = 10 * time.Millisecond

	// retransmitInterval is how often the active scan request set is
	// re-sent while scanning, so a head that reboots mid-scan resumes
	// without client intervention.
	retransmitInterval = 500 * time.Millisecond
)

// Datagram is one outbound command and its destination.
type Datagram struct {
	Data []byte
	Addr *net.UDPAddr
}

// Sender serializes every outbound command through one socket and one
// worker, pacing sends and periodically re-sending the active scan request
// set while scanning.
type Sender struct {
	conn *net.UDPConn

	mu           sync.Mutex
	queue        []Datagram
	scanRequests []Datagram
	scanning     bool

	notify chan struct{}
	done   chan struct{}
	stop   chan struct{}
	once   sync.Once
}

// NewSender wraps an open socket. Call Start to launch the worker and
// Shutdown to stop it; the socket remains owned by the caller.
func NewSender(conn *net.UDPConn) *Sender {
	return &Sender{
		conn:   conn,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}
}

// Start launches the send worker.
func (s *Sender) Start() {
	go s.run()
}

// Enqueue queues one command for transmission.
func (s *Sender) Enqueue(d Datagram) {
	s.mu.Lock()
	s.queue = append(s.queue, d)
	s.mu.Unlock()
	s.wake()
}

// EnqueueScanRequests replaces the retransmit set and queues each request
// for immediate transmission. The worker re-sends the set periodically
// until ClearScanRequests.
func (s *Sender) EnqueueScanRequests(ds []Datagram) {
	s.mu.Lock()
	s.scanRequests = append([]Datagram(nil), ds...)
	s.scanning = true
	s.queue = append(s.queue, ds...)
	s.mu.Unlock()
	s.wake()
}

// ClearScanRequests stops the periodic retransmission.
func (s *Sender) ClearScanRequests() {
	s.mu.Lock()
	s.scanRequests = nil
	s.scanning = false
	s.mu.Unlock()
}

// Shutdown stops the worker after the queue drains.
func (s *Sender) Shutdown() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Sender) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Sender) run() {
	defer close(s.done)
	ticker := time.NewTicker(retransmitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			s.drain()
			return
		case <-s.notify:
			s.drain()
		case <-ticker.C:
			s.mu.Lock()
			if s.scanning {
				s.queue = append(s.queue, s.scanRequests...)
			}
			s.mu.Unlock()
			s.drain()
		}
	}
}

func (s *Sender) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		d := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if _, err := s.conn.WriteToUDP(d.Data, d.Addr); err != nil {
			monitoring.Logf("Send error to %v: %v", d.Addr, err)
		}
		time.Sleep(sendPause)
	}
}
