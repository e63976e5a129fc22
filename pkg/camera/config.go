// Package camera owns the single live capture session: device enumeration,
// stream start with fallback, and frame grabbing as JPEG.
package camera

import "fmt"

// Config holds capture parameters requested from the device.
type Config struct {
	Width     int `json:"width"`     // Requested frame width in pixels, 0 = device default
	Height    int `json:"height"`    // Requested frame height in pixels, 0 = device default
	Framerate int `json:"framerate"` // Requested FPS, 0 = device default
	Quality   int `json:"quality"`   // JPEG quality 1-100
}

// Limits for requested capture sizes.
const (
	MaxWidth  = 4096
	MaxHeight = 2160
)

// DefaultConfig returns a small capture size suited to a classifier that
// works on 224x224 input.
func DefaultConfig() Config {
	return Config{
		Width:     320,
		Height:    240,
		Framerate: 15,
		Quality:   85,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Width != 0 && (c.Width < 64 || c.Width > MaxWidth) {
		errors = append(errors, fmt.Sprintf("width must be 0 or between 64 and %d", MaxWidth))
	}
	if c.Height != 0 && (c.Height < 48 || c.Height > MaxHeight) {
		errors = append(errors, fmt.Sprintf("height must be 0 or between 48 and %d", MaxHeight))
	}
	if c.Framerate < 0 || c.Framerate > 120 {
		errors = append(errors, "framerate must be between 0 and 120")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	return errors
}
