package camera

import (
	"context"
	"errors"
	"image"
	"time"
)

// Sentinel errors for capture conditions.
var (
	// ErrPermissionDenied is returned when camera access is refused.
	ErrPermissionDenied = errors.New("camera: permission denied")

	// ErrNoDeviceFound is returned when no video input device exists.
	ErrNoDeviceFound = errors.New("camera: no device found")

	// ErrNoSession is returned when capturing without a live session.
	ErrNoSession = errors.New("camera: no active session")

	// ErrDeviceUnavailable is returned when a device cannot be opened.
	ErrDeviceUnavailable = errors.New("camera: device unavailable")

	// ErrBackendUnavailable is returned by builds without a capture backend.
	ErrBackendUnavailable = errors.New("camera: capture backend not compiled in")
)

// Device is one video input device.
type Device struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Stream is an open camera stream.
type Stream interface {
	// Read returns the current frame.
	Read() (image.Image, error)

	// Close releases the device.
	Close() error
}

// Source is the platform capture capability.
type Source interface {
	// Enumerate lists video input devices in a stable order.
	Enumerate(ctx context.Context) ([]Device, error)

	// Open opens exactly the given device.
	Open(ctx context.Context, deviceID string, cfg Config) (Stream, error)

	// OpenDefault opens the platform default video source.
	OpenDefault(ctx context.Context, cfg Config) (Stream, error)
}

// Session is the live capture session.
type Session struct {
	ID       string    `json:"id"`
	Device   Device    `json:"device"`
	Fallback bool      `json:"fallback"` // true when the default source replaced the requested device
	OpenedAt time.Time `json:"opened_at"`

	stream Stream
}
