//go:build pcap
// +build pcap

// Command pcap-replay reads a capture of scan head data traffic and
// reassembles the profiles offline. It can also forward the raw datagrams
// to a live client for replay testing. Build with the 'pcap' tag:
//
//	go build -tags pcap ./cmd/tools/pcap-replay
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/scanlink-data/scanlink/internal/geometry"
	"github.com/scanlink-data/scanlink/internal/monitor"
	"github.com/scanlink-data/scanlink/internal/profile"
)

var (
	pcapFile = flag.String("file", "", "PCAP file to read (required)")
	udpPort  = flag.Int("port", 0, "Only process UDP packets on this port (0 = any)")
	forward  = flag.String("forward", "", "Forward datagram payloads to this UDP address instead of assembling")
	pace     = flag.Bool("pace", false, "When forwarding, pace packets by their capture timestamps")
	summary  = flag.Bool("summary", false, "Print a height summary per assembled profile")
)

func main() {
	flag.Parse()

	if *pcapFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	handle, err := pcap.OpenOffline(*pcapFile)
	if err != nil {
		log.Fatalf("Failed to open PCAP file %s: %v", *pcapFile, err)
	}
	defer handle.Close()

	filter := "udp"
	if *udpPort != 0 {
		filter = fmt.Sprintf("udp port %d", *udpPort)
	}
	if err := handle.SetBPFFilter(filter); err != nil {
		log.Fatalf("Failed to set BPF filter %q: %v", filter, err)
	}

	var forwardConn *net.UDPConn
	if *forward != "" {
		addr, err := net.ResolveUDPAddr("udp4", *forward)
		if err != nil {
			log.Fatalf("Invalid forward address %q: %v", *forward, err)
		}
		forwardConn, err = net.DialUDP("udp4", nil, addr)
		if err != nil {
			log.Fatalf("Failed to dial forward address: %v", err)
		}
		defer forwardConn.Close()
		log.Printf("Forwarding datagrams to %s", addr)
	}

	stats := monitor.NewProfileStats()
	asm := profile.NewAssembler(
		func(cameraID uint8) *geometry.Alignment { return geometry.DefaultAlignment() },
		func(p *profile.Profile) {
			stats.AddProfile(p)
			if *summary {
				s := monitor.Summarize(p)
				log.Printf("head=%d camera=%d ts=%d points=%d meanY=%.1f stddevY=%.1f x=[%.0f,%.0f]",
					p.ScanHeadID, p.CameraID, p.TimestampNs,
					s.ValidPoints, s.MeanY, s.StdDevY, s.MinX, s.MaxX)
			}
		},
	)

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	packetCount := 0
	start := time.Now()
	var lastCapture time.Time

	for packet := range source.Packets() {
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		packetCount++

		if forwardConn != nil {
			if *pace {
				ts := packet.Metadata().Timestamp
				if !lastCapture.IsZero() && ts.After(lastCapture) {
					time.Sleep(ts.Sub(lastCapture))
				}
				lastCapture = ts
			}
			if _, err := forwardConn.Write(udp.Payload); err != nil {
				log.Printf("Forward write failed at packet %d: %v", packetCount, err)
			}
			continue
		}

		if err := asm.Feed(udp.Payload); err != nil {
			log.Printf("Skipping packet %d: %v", packetCount, err)
		}

		if packetCount%10000 == 0 {
			elapsed := time.Since(start)
			log.Printf("Progress: %d packets in %v (%.0f pkt/s)",
				packetCount, elapsed, float64(packetCount)/elapsed.Seconds())
		}
	}

	asm.Flush()
	aStats := asm.Stats()
	elapsed := time.Since(start)
	log.Printf("Done: %d packets in %v", packetCount, elapsed)
	if forwardConn == nil {
		log.Printf("Assembled %d profiles (%d incomplete, %d datagrams rejected)",
			aStats.ProfilesEmitted, aStats.ProfilesIncomplete, aStats.DatagramsRejected)
		stats.LogStats()
	}
}
