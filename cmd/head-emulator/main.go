package main

import (
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scanlink-data/scanlink/internal/emulator"
)

var (
	serial   = flag.Uint("serial", 100001, "Serial number the emulated head answers to")
	listenIP = flag.String("ip", "127.0.0.1", "Address to listen on")
	port     = flag.Int("port", 12346, "UDP port to listen on")
	cameras  = flag.Int("cameras", 2, "Number of cameras to report")
	encoders = flag.Int("encoders", 1, "Number of encoders to report")
	maxRate  = flag.Uint("max-rate", 2000, "Maximum scan rate in Hz to advertise")
	interval = flag.Duration("status-interval", 200*time.Millisecond, "Interval between status broadcasts to the connected client")
)

func main() {
	flag.Parse()

	ip := net.ParseIP(*listenIP)
	if ip == nil {
		log.Fatalf("Invalid listen address %q", *listenIP)
	}

	head, err := emulator.Start(emulator.Config{
		Serial:         uint32(*serial),
		IP:             ip,
		Port:           *port,
		Cameras:        *cameras,
		Encoders:       *encoders,
		MaxScanRate:    uint32(*maxRate),
		StatusInterval: *interval,
	})
	if err != nil {
		log.Fatalf("Failed to start emulated scan head: %v", err)
	}
	log.Printf("Emulated scan head %d listening on UDP port %d (%d cameras, max %d Hz)",
		*serial, head.Port(), *cameras, *maxRate)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Printf("Received %v, shutting down", s)
	head.Shutdown()
}
