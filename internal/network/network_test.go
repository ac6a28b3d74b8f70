package network

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPConversionRoundTrip(t *testing.T) {
	t.Parallel()

	ip := net.IPv4(192, 168, 1, 105).To4()
	v := IPToUint32(ip)
	assert.Equal(t, uint32(0xC0A80169), v)
	assert.True(t, Uint32ToIP(v).Equal(ip))

	assert.Zero(t, IPToUint32(net.ParseIP("::1")))
}

func TestBroadcastAddr(t *testing.T) {
	t.Parallel()

	ip := net.IPv4(10, 1, 2, 3).To4()
	mask := net.CIDRMask(24, 32)
	assert.Equal(t, "10.1.2.255", broadcastAddr(ip, mask).String())

	mask = net.CIDRMask(16, 32)
	assert.Equal(t, "10.1.255.255", broadcastAddr(ip, mask).String())
}

func TestActiveInterfacesHaveIPv4(t *testing.T) {
	t.Parallel()

	ifaces, err := ActiveInterfaces()
	require.NoError(t, err)
	for _, ifc := range ifaces {
		assert.NotNil(t, ifc.IP.To4(), ifc.Name)
		assert.NotNil(t, ifc.Broadcast.To4(), ifc.Name)
	}
}

func TestSenderDeliversQueuedDatagrams(t *testing.T) {
	t.Parallel()

	recv, err := OpenUDP(net.IPv4(127, 0, 0, 1), 0)
	require.NoError(t, err)
	defer recv.Close()

	send, err := OpenUDP(net.IPv4(127, 0, 0, 1), 0)
	require.NoError(t, err)
	defer send.Close()

	s := NewSender(send)
	s.Start()
	defer s.Shutdown()

	dst := recv.LocalAddr().(*net.UDPAddr)
	s.Enqueue(Datagram{Data: []byte("one"), Addr: dst})
	s.Enqueue(Datagram{Data: []byte("two"), Addr: dst})

	buf := make([]byte, 64)
	for _, want := range []string{"one", "two"} {
		require.NoError(t, recv.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, _, err := recv.ReadFromUDP(buf)
		require.NoError(t, err)
		assert.Equal(t, want, string(buf[:n]))
	}
}

func TestSenderRetransmitsScanRequests(t *testing.T) {
	t.Parallel()

	recv, err := OpenUDP(net.IPv4(127, 0, 0, 1), 0)
	require.NoError(t, err)
	defer recv.Close()

	send, err := OpenUDP(net.IPv4(127, 0, 0, 1), 0)
	require.NoError(t, err)
	defer send.Close()

	s := NewSender(send)
	s.Start()
	defer s.Shutdown()

	dst := recv.LocalAddr().(*net.UDPAddr)
	s.EnqueueScanRequests([]Datagram{{Data: []byte("req"), Addr: dst}})

	// The immediate send plus at least one periodic retransmission.
	buf := make([]byte, 64)
	for i := 0; i < 2; i++ {
		require.NoError(t, recv.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, _, err := recv.ReadFromUDP(buf)
		require.NoError(t, err, "datagram %d", i)
		assert.Equal(t, "req", string(buf[:n]))
	}

	s.ClearScanRequests()
}
