package scanhead

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/scanlink-data/scanlink/internal/network"
	"github.com/scanlink-data/scanlink/internal/profile"
	"github.com/scanlink-data/scanlink/internal/wire"
)

// MaxQueuedProfiles bounds the delivery queue. When a client falls behind,
// the oldest profiles are discarded first so the queue stays current.
const MaxQueuedProfiles = 1000

const readTimeout = 100 * time.Millisecond

// Session is the receive side of one scan head: a bound UDP socket, the
// datagram classifier, the profile assembler, and the bounded delivery
// queue clients pop from. Commands to the head go through the shared
// sender, not the session socket, but carry the session's address so the
// head knows where to reply.
type Session struct {
	serial uint32
	id     uint8
	conn   *net.UDPConn
	asm    *profile.Assembler

	queue  chan *profile.Profile
	notify chan struct{}

	mu       sync.Mutex
	started  bool
	status   *wire.StatusMessage
	statusAt time.Time

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewSession binds an ephemeral UDP port on the given client IP for one
// scan head. The alignment function maps camera points into mill space
// during assembly.
func NewSession(serial uint32, id uint8, clientIP net.IP, alignment profile.AlignmentFunc) (*Session, error) {
	conn, err := network.OpenUDP(clientIP, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open session socket for head %d: %w", serial, err)
	}
	s := &Session{
		serial: serial,
		id:     id,
		conn:   conn,
		queue:  make(chan *profile.Profile, MaxQueuedProfiles),
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.asm = profile.NewAssembler(alignment, s.push)
	return s, nil
}

// Serial returns the scan head serial number this session serves.
func (s *Session) Serial() uint32 { return s.serial }

// ID returns the user-assigned scan head ID.
func (s *Session) ID() uint8 { return s.id }

// LocalIP returns the client IP the session socket is bound to.
func (s *Session) LocalIP() net.IP {
	return s.conn.LocalAddr().(*net.UDPAddr).IP
}

// LocalPort returns the UDP port the head must address its traffic to.
func (s *Session) LocalPort() uint16 {
	return uint16(s.conn.LocalAddr().(*net.UDPAddr).Port)
}

// Start launches the receive loop. It always discards queued profiles and
// any partially matched scan first, so a restart never delivers data left
// over from before. Calling Start on a running session only resets.
func (s *Session) Start() {
	s.Reset()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	go s.run()
}

// Reset empties the delivery queue and drops the profile being assembled.
func (s *Session) Reset() {
	s.asm.Reset()
	for {
		select {
		case <-s.queue:
		default:
			select {
			case <-s.notify:
			default:
			}
			return
		}
	}
}

// Shutdown stops the receive loop and closes the socket. Queued profiles
// remain poppable.
func (s *Session) Shutdown() {
	s.once.Do(func() { close(s.stop) })
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
	s.conn.Close()
}

// Flush emits any partially assembled profile. Called when scanning stops
// so the last scan is not stranded.
func (s *Session) Flush() {
	s.asm.Flush()
}

// Status returns the most recent status message and when it arrived.
func (s *Session) Status() (*wire.StatusMessage, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.statusAt, s.status != nil
}

// AssemblerStats returns the data plane counters for this head.
func (s *Session) AssemblerStats() profile.Stats {
	return s.asm.Stats()
}

// Available returns how many profiles are queued for delivery.
func (s *Session) Available() int {
	return len(s.queue)
}

// WaitUntilAvailable blocks until at least count profiles are queued or the
// timeout passes, and reports which happened.
func (s *Session) WaitUntilAvailable(count int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if len(s.queue) >= count {
			return true
		}
		select {
		case <-s.notify:
		case <-deadline.C:
			return len(s.queue) >= count
		}
	}
}

// Pop removes and returns up to max queued profiles, oldest first. It does
// not block.
func (s *Session) Pop(max int) []*profile.Profile {
	var out []*profile.Profile
	for len(out) < max {
		select {
		case p := <-s.queue:
			out = append(out, p)
		default:
			return out
		}
	}
	return out
}

func (s *Session) push(p *profile.Profile) {
	for {
		select {
		case s.queue <- p:
			select {
			case s.notify <- struct{}{}:
			default:
			}
			return
		default:
			// Queue full; make room by discarding the oldest.
			select {
			case <-s.queue:
			default:
			}
		}
	}
}

func (s *Session) run() {
	defer close(s.done)
	buf := make([]byte, wire.MaxFramePayload+64)
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-s.stop:
				return
			default:
			}
			continue
		}
		s.handle(buf[:n])
	}
}

func (s *Session) handle(pkt []byte) {
	magic, ok := wire.PeekMagic(pkt)
	if !ok {
		return
	}
	switch magic {
	case wire.DataMagic:
		// Malformed datagrams are counted by the assembler; the loop
		// keeps receiving either way.
		_ = s.asm.Feed(pkt)
	case wire.ResponseMagic:
		msg, err := wire.ParseStatusMessage(pkt)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.status = msg
		s.statusAt = time.Now()
		s.mu.Unlock()
	}
}
