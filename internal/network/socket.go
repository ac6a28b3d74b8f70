// Package network provides the socket plumbing shared by the control plane:
// local interface discovery for broadcast connection, address conversions
// for the wire protocol's packed IPv4 fields, and the paced sender that
// serializes all outbound commands.
package network

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Interface is one usable local IPv4 endpoint and its directed broadcast
// address.
type Interface struct {
	Name      string
	IP        net.IP
	Broadcast net.IP
}

// ActiveInterfaces enumerates the up interfaces with an IPv4 address.
// Connection broadcasts go out on every one of them, since the client does
// not know ahead of time which network the scan heads live on.
func ActiveInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate interfaces: %w", err)
	}
	var out []Interface
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil {
				continue
			}
			out = append(out, Interface{
				Name:      ifc.Name,
				IP:        ip4,
				Broadcast: broadcastAddr(ip4, ipnet.Mask),
			})
		}
	}
	return out, nil
}

func broadcastAddr(ip net.IP, mask net.IPMask) net.IP {
	b := make(net.IP, 4)
	for i := range b {
		b[i] = ip[i] | ^mask[i]
	}
	return b
}

// IPToUint32 packs an IPv4 address the way the wire protocol carries it.
func IPToUint32(ip net.IP) uint32 {
	ip4 := ip.To4()
	if ip4 == nil {
		return 0
	}
	return binary.BigEndian.Uint32(ip4)
}

// Uint32ToIP unpacks a wire-format IPv4 address.
func Uint32ToIP(v uint32) net.IP {
	b := make(net.IP, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// OpenUDP binds a UDP socket on the given local IP. Port zero picks an
// ephemeral port; the chosen port is readable from the connection's local
// address.
func OpenUDP(ip net.IP, port int) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: ip, Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to bind UDP socket on %s:%d: %w", ip, port, err)
	}
	return conn, nil
}
