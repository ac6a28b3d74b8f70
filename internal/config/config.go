// Package config loads the scan system configuration from JSON: which
// heads to claim, their mounting geometry and exposure settings, and the
// shared scan schedule.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/scanlink-data/scanlink/internal/wire"
)

// AlignmentConfig is one camera's mounting correction. Roll is in degrees,
// shifts in inches.
type AlignmentConfig struct {
	Camera          uint8   `json:"camera"`
	RollDegrees     float64 `json:"roll_degrees"`
	ShiftXInches    float64 `json:"shift_x_inches"`
	ShiftYInches    float64 `json:"shift_y_inches"`
	CableDownstream bool    `json:"cable_downstream"`
}

// WindowConfig bounds the scanned region in mill space, inches.
type WindowConfig struct {
	TopInches    float64 `json:"top_inches"`
	BottomInches float64 `json:"bottom_inches"`
	LeftInches   float64 `json:"left_inches"`
	RightInches  float64 `json:"right_inches"`
}

// ExposureConfig is a min/default/max triple in microseconds.
type ExposureConfig struct {
	MinUs uint32 `json:"min_us"`
	DefUs uint32 `json:"def_us"`
	MaxUs uint32 `json:"max_us"`
}

// HeadConfig describes one scan head to register.
type HeadConfig struct {
	Serial uint32 `json:"serial"`
	ID     uint8  `json:"id"`

	Alignments []AlignmentConfig `json:"alignments,omitempty"`
	Window     *WindowConfig     `json:"window,omitempty"`

	LaserOnTime    *ExposureConfig `json:"laser_on_time,omitempty"`
	CameraExposure *ExposureConfig `json:"camera_exposure,omitempty"`

	LaserDetectionThreshold *uint32 `json:"laser_detection_threshold,omitempty"`
	SaturationThreshold     *uint32 `json:"saturation_threshold,omitempty"`
	SaturationPercentage    *uint32 `json:"saturation_percentage,omitempty"`
	ScanOffsetUs            *uint32 `json:"scan_offset_us,omitempty"`
}

// Config is the root scan system configuration. Omitted fields fall back
// to the Get* method defaults, so partial configs are safe.
type Config struct {
	ScanRateHz     *float64 `json:"scan_rate_hz,omitempty"`
	DataFormat     *string  `json:"data_format,omitempty"`
	ConnectTimeout *string  `json:"connect_timeout,omitempty"` // duration string like "10s"
	RecordPath     *string  `json:"record_path,omitempty"`

	Heads []HeadConfig `json:"heads"`
}

var dataFormats = map[string]wire.DataFormat{
	"xy_brightness_full":    wire.FormatXYBrightnessFull,
	"xy_brightness_half":    wire.FormatXYBrightnessHalf,
	"xy_brightness_quarter": wire.FormatXYBrightnessQuarter,
	"xy_full":               wire.FormatXYFull,
	"xy_half":               wire.FormatXYHalf,
	"xy_quarter":            wire.FormatXYQuarter,
}

// LoadConfig loads a Config from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if len(c.Heads) == 0 {
		return fmt.Errorf("at least one head must be configured")
	}
	serials := make(map[uint32]bool)
	ids := make(map[uint8]bool)
	for i, h := range c.Heads {
		if h.Serial == 0 {
			return fmt.Errorf("head %d: serial must be set", i)
		}
		if serials[h.Serial] {
			return fmt.Errorf("head %d: duplicate serial %d", i, h.Serial)
		}
		if ids[h.ID] {
			return fmt.Errorf("head %d: duplicate id %d", i, h.ID)
		}
		serials[h.Serial] = true
		ids[h.ID] = true

		if h.Window != nil {
			if h.Window.TopInches <= h.Window.BottomInches {
				return fmt.Errorf("head %d: window top must exceed bottom", i)
			}
			if h.Window.RightInches <= h.Window.LeftInches {
				return fmt.Errorf("head %d: window right must exceed left", i)
			}
		}
	}

	if c.ScanRateHz != nil && *c.ScanRateHz <= 0 {
		return fmt.Errorf("scan_rate_hz must be positive, got %f", *c.ScanRateHz)
	}
	if c.DataFormat != nil {
		if _, ok := dataFormats[*c.DataFormat]; !ok {
			return fmt.Errorf("unknown data_format %q", *c.DataFormat)
		}
	}
	if c.ConnectTimeout != nil && *c.ConnectTimeout != "" {
		if _, err := time.ParseDuration(*c.ConnectTimeout); err != nil {
			return fmt.Errorf("invalid connect_timeout %q: %w", *c.ConnectTimeout, err)
		}
	}
	return nil
}

// GetScanRate returns the configured scan rate in hertz.
func (c *Config) GetScanRate() float64 {
	if c.ScanRateHz == nil {
		return 100.0 // default
	}
	return *c.ScanRateHz
}

// GetDataFormat returns the configured profile data format.
func (c *Config) GetDataFormat() wire.DataFormat {
	if c.DataFormat == nil {
		return wire.FormatXYBrightnessFull
	}
	return dataFormats[*c.DataFormat]
}

// GetConnectTimeout parses and returns the connect timeout.
func (c *Config) GetConnectTimeout() time.Duration {
	if c.ConnectTimeout == nil || *c.ConnectTimeout == "" {
		return 10 * time.Second // default
	}
	d, _ := time.ParseDuration(*c.ConnectTimeout)
	return d
}

// GetRecordPath returns the recording database path, empty when recording
// is disabled.
func (c *Config) GetRecordPath() string {
	if c.RecordPath == nil {
		return ""
	}
	return *c.RecordPath
}
