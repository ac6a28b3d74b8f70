package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scanlink-data/scanlink/internal/config"
	"github.com/scanlink-data/scanlink/internal/geometry"
	"github.com/scanlink-data/scanlink/internal/monitor"
	"github.com/scanlink-data/scanlink/internal/profile"
	"github.com/scanlink-data/scanlink/internal/recorder"
	"github.com/scanlink-data/scanlink/internal/scansys"
	"github.com/scanlink-data/scanlink/internal/units"
	"github.com/scanlink-data/scanlink/internal/version"
	"github.com/scanlink-data/scanlink/internal/wire"
)

var (
	configPath = flag.String("config", "scanlink.json", "Path to head configuration file")
	rate       = flag.Int("rate", 0, "Scan rate in Hz (overrides config)")
	duration   = flag.Duration("duration", 0, "Stop scanning after this long (0 = run until signal)")
	record     = flag.String("record", "", "Record profiles to this SQLite database (overrides config)")
	statsEvery = flag.Duration("stats", 10*time.Second, "Interval between scan statistics log lines")
	unitsFlag  = flag.String("units", units.Thousandths, "Distance units for summary output ("+units.GetValidUnitsString()+")")
)

func main() {
	flag.Parse()

	log.Printf("scanlink %s", version.String())

	if !units.IsValid(*unitsFlag) {
		log.Fatalf("Invalid units %q, expected one of: %s", *unitsFlag, units.GetValidUnitsString())
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	scanRate := cfg.GetScanRate()
	if *rate > 0 {
		scanRate = float64(*rate)
	}
	recordPath := cfg.GetRecordPath()
	if *record != "" {
		recordPath = *record
	}

	system, err := scansys.NewSystem()
	if err != nil {
		log.Fatalf("Failed to create scan system: %v", err)
	}
	defer system.Close()

	heads, err := registerHeads(system, cfg)
	if err != nil {
		log.Fatalf("Failed to register scan heads: %v", err)
	}
	log.Printf("Registered %d scan heads, connecting...", len(heads))

	connected, err := system.Connect(cfg.GetConnectTimeout())
	if err != nil {
		log.Fatalf("Connect failed: %v", err)
	}
	if len(connected) != len(heads) {
		for _, h := range heads {
			if _, _, ok := h.Status(); !ok {
				log.Printf("Scan head %d did not respond", h.Serial())
			}
		}
		log.Fatalf("Only %d of %d scan heads connected", len(connected), len(heads))
	}

	log.Printf("All heads connected (max scan rate %.1f Hz)", system.MaxScanRate())

	var rec *recorder.Recorder
	var scanID string
	if recordPath != "" {
		rec, err = recorder.Open(recordPath)
		if err != nil {
			log.Fatalf("Failed to open recorder database: %v", err)
		}
		defer rec.Close()

		scanID, err = rec.BeginScan("scanlink capture", scanRate)
		if err != nil {
			log.Fatalf("Failed to begin scan record: %v", err)
		}
		log.Printf("Recording to %s (scan %s)", recordPath, scanID)
	}

	if err := system.StartScanning(scanRate); err != nil {
		log.Fatalf("Failed to start scanning at %.1f Hz: %v", scanRate, err)
	}
	log.Printf("Scanning at %.1f Hz", scanRate)

	stop := make(chan struct{})
	go drainProfiles(heads, rec, scanID, *statsEvery, *unitsFlag, stop)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	if *duration > 0 {
		select {
		case s := <-sig:
			log.Printf("Received %v, shutting down", s)
		case <-time.After(*duration):
			log.Printf("Scan duration %v elapsed, shutting down", *duration)
		}
	} else {
		s := <-sig
		log.Printf("Received %v, shutting down", s)
	}

	if err := system.StopScanning(); err != nil {
		log.Printf("Failed to stop scanning: %v", err)
	}
	close(stop)

	if rec != nil && scanID != "" {
		if err := rec.EndScan(scanID); err != nil {
			log.Printf("Failed to close scan record: %v", err)
		}
	}

	for _, h := range heads {
		stats := h.AssemblerStats()
		log.Printf("Head %d: %d profiles, %d incomplete, %d datagrams rejected",
			h.Serial(), stats.ProfilesEmitted, stats.ProfilesIncomplete, stats.DatagramsRejected)
	}

	if err := system.Disconnect(); err != nil {
		log.Printf("Disconnect failed: %v", err)
	}
}

// registerHeads creates a scan head per config entry and applies its
// alignment, window, exposure, and data format settings.
func registerHeads(system *scansys.System, cfg *config.Config) ([]*scansys.ScanHead, error) {
	heads := make([]*scansys.ScanHead, 0, len(cfg.Heads))
	for _, hc := range cfg.Heads {
		h, err := system.CreateScanHead(hc.Serial, hc.ID)
		if err != nil {
			return nil, err
		}
		if err := configureHead(h, hc, cfg.GetDataFormat()); err != nil {
			return nil, fmt.Errorf("head %d: %w", hc.Serial, err)
		}
		heads = append(heads, h)
	}
	return heads, nil
}

func configureHead(h *scansys.ScanHead, hc config.HeadConfig, format wire.DataFormat) error {
	for _, a := range hc.Alignments {
		orientation := geometry.CableUpstream
		if a.CableDownstream {
			orientation = geometry.CableDownstream
		}
		if err := h.SetAlignment(a.Camera, a.RollDegrees, a.ShiftXInches, a.ShiftYInches, orientation); err != nil {
			return err
		}
	}
	if w := hc.Window; w != nil {
		if err := h.SetWindow(w.TopInches, w.BottomInches, w.LeftInches, w.RightInches); err != nil {
			return err
		}
	}
	conf := h.Configuration()
	if e := hc.LaserOnTime; e != nil {
		if err := conf.SetLaserOnTime(e.MinUs, e.DefUs, e.MaxUs); err != nil {
			return err
		}
	}
	if e := hc.CameraExposure; e != nil {
		if err := conf.SetCameraExposureTime(e.MinUs, e.DefUs, e.MaxUs); err != nil {
			return err
		}
	}
	if t := hc.LaserDetectionThreshold; t != nil {
		if err := conf.SetLaserDetectionThreshold(*t); err != nil {
			return err
		}
	}
	if t := hc.SaturationThreshold; t != nil {
		if err := conf.SetSaturationThreshold(*t); err != nil {
			return err
		}
	}
	if p := hc.SaturationPercentage; p != nil {
		if err := conf.SetSaturationPercentage(*p); err != nil {
			return err
		}
	}
	if o := hc.ScanOffsetUs; o != nil {
		conf.SetScanOffset(*o)
	}
	return h.SetDataFormat(format)
}

// drainProfiles pulls assembled profiles off every head, feeds the
// recorder when one is configured, and logs periodic throughput stats and
// a surface summary in the requested units.
func drainProfiles(heads []*scansys.ScanHead, rec *recorder.Recorder, scanID string, statsInterval time.Duration, distUnits string, stop chan struct{}) {
	stats := monitor.NewProfileStats()
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	var last *profile.Profile
	logSummary := func() {
		stats.LogStats()
		if last == nil {
			return
		}
		s := monitor.Summarize(last)
		log.Printf("Surface (%s): meanY=%.3f stddevY=%.3f x=[%.3f, %.3f], %d valid points",
			distUnits,
			units.ConvertDistance(s.MeanY, distUnits),
			units.ConvertDistance(s.StdDevY, distUnits),
			units.ConvertDistance(s.MinX, distUnits),
			units.ConvertDistance(s.MaxX, distUnits),
			s.ValidPoints)
	}

	for {
		select {
		case <-stop:
			logSummary()
			return
		case <-ticker.C:
			logSummary()
		default:
		}

		idle := true
		for _, h := range heads {
			profiles := h.GetProfiles(100)
			if len(profiles) == 0 {
				continue
			}
			idle = false
			for _, p := range profiles {
				stats.AddProfile(p)
				last = p
				if rec != nil {
					if err := rec.RecordProfile(scanID, p); err != nil {
						log.Printf("Failed to record profile from head %d: %v", h.Serial(), err)
					}
				}
			}
		}
		if idle {
			time.Sleep(10 * time.Millisecond)
		}
	}
}
