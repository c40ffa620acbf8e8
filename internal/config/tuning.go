package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the tuning defaults file. It mirrors
// DefaultTuningConfig and is the starting point for -config files.
const DefaultConfigPath = "config/tuning.defaults.json"

// Built-in fallbacks used by the Get* accessors when a field is omitted.
const (
	DefaultMaxMatchDistance = 50.0
	DefaultMinTrackLength   = 5
	DefaultMaxTracksWarning = 1000
	DefaultFrameBuffer      = 8
	DefaultFrameWidth       = 1280
	DefaultFrameHeight      = 720
)

// TuningConfig represents the root configuration for tracking parameters.
// The JSON read by -config is also stored with each persisted session.
type TuningConfig struct {
	// Association params
	MaxMatchDistance *float64 `json:"max_match_distance,omitempty"` // same units as centroids (pixels)

	// Motion params
	MinTrackLength *int `json:"min_track_length,omitempty"` // lag window, in frames

	// Track lifetime params
	MaxMisses        *int `json:"max_misses,omitempty"`         // 0 keeps tracks forever
	MaxTracksWarning *int `json:"max_tracks_warning,omitempty"` // 0 disables the growth warning

	// Session params
	FrameBuffer *int `json:"frame_buffer,omitempty"` // decoded frames queued ahead of the tracker

	// Render params
	FrameWidth    *int  `json:"frame_width,omitempty"`
	FrameHeight   *int  `json:"frame_height,omitempty"`
	OverlayCounts *bool `json:"overlay_counts,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// from the built-in defaults. It does not touch the filesystem.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		MaxMatchDistance: ptrFloat64(DefaultMaxMatchDistance),
		MinTrackLength:   ptrInt(DefaultMinTrackLength),
		MaxMisses:        ptrInt(0),
		MaxTracksWarning: ptrInt(DefaultMaxTracksWarning),
		FrameBuffer:      ptrInt(DefaultFrameBuffer),
		FrameWidth:       ptrInt(DefaultFrameWidth),
		FrameHeight:      ptrInt(DefaultFrameHeight),
		OverlayCounts:    ptrBool(true),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
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

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/<pkg>/ or cmd/trajectory/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.MaxMatchDistance != nil && *c.MaxMatchDistance <= 0 {
		return fmt.Errorf("max_match_distance must be positive, got %f", *c.MaxMatchDistance)
	}

	// A lag window needs at least two points to define a displacement.
	if c.MinTrackLength != nil && *c.MinTrackLength < 2 {
		return fmt.Errorf("min_track_length must be at least 2, got %d", *c.MinTrackLength)
	}

	if c.MaxMisses != nil && *c.MaxMisses < 0 {
		return fmt.Errorf("max_misses must be non-negative, got %d", *c.MaxMisses)
	}

	if c.MaxTracksWarning != nil && *c.MaxTracksWarning < 0 {
		return fmt.Errorf("max_tracks_warning must be non-negative, got %d", *c.MaxTracksWarning)
	}

	if c.FrameBuffer != nil && *c.FrameBuffer < 0 {
		return fmt.Errorf("frame_buffer must be non-negative, got %d", *c.FrameBuffer)
	}

	if c.FrameWidth != nil && *c.FrameWidth <= 0 {
		return fmt.Errorf("frame_width must be positive, got %d", *c.FrameWidth)
	}
	if c.FrameHeight != nil && *c.FrameHeight <= 0 {
		return fmt.Errorf("frame_height must be positive, got %d", *c.FrameHeight)
	}

	return nil
}

// GetMaxMatchDistance returns the max_match_distance value or the default.
func (c *TuningConfig) GetMaxMatchDistance() float64 {
	if c.MaxMatchDistance == nil {
		return DefaultMaxMatchDistance
	}
	return *c.MaxMatchDistance
}

// GetMinTrackLength returns the min_track_length value or the default.
func (c *TuningConfig) GetMinTrackLength() int {
	if c.MinTrackLength == nil {
		return DefaultMinTrackLength
	}
	return *c.MinTrackLength
}

// GetMaxMisses returns the max_misses value or the default (never evict).
func (c *TuningConfig) GetMaxMisses() int {
	if c.MaxMisses == nil {
		return 0
	}
	return *c.MaxMisses
}

// GetMaxTracksWarning returns the max_tracks_warning value or the default.
func (c *TuningConfig) GetMaxTracksWarning() int {
	if c.MaxTracksWarning == nil {
		return DefaultMaxTracksWarning
	}
	return *c.MaxTracksWarning
}

// GetFrameBuffer returns the frame_buffer value or the default.
func (c *TuningConfig) GetFrameBuffer() int {
	if c.FrameBuffer == nil {
		return DefaultFrameBuffer
	}
	return *c.FrameBuffer
}

// GetFrameWidth returns the frame_width value or the default.
func (c *TuningConfig) GetFrameWidth() int {
	if c.FrameWidth == nil {
		return DefaultFrameWidth
	}
	return *c.FrameWidth
}

// GetFrameHeight returns the frame_height value or the default.
func (c *TuningConfig) GetFrameHeight() int {
	if c.FrameHeight == nil {
		return DefaultFrameHeight
	}
	return *c.FrameHeight
}

// GetOverlayCounts returns the overlay_counts value or the default.
func (c *TuningConfig) GetOverlayCounts() bool {
	if c.OverlayCounts == nil {
		return true
	}
	return *c.OverlayCounts
}
