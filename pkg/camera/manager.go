package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultDeviceID names the platform default source in sessions opened by
// fallback.
const DefaultDeviceID = "default"

// Manager holds the single live capture session.
type Manager struct {
	source Source
	config Config
	logger *slog.Logger

	mu      sync.Mutex
	session *Session
	devices []Device

	// Callback after a new session is started
	OnSessionChange func(s *Session)
}

// NewManager creates a camera manager over the given source.
func NewManager(source Source, cfg Config, logger *slog.Logger) (*Manager, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera: invalid config: %v", errs)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		source: source,
		config: cfg,
		logger: logger.With("component", "camera"),
	}, nil
}

// Config returns the capture configuration.
func (m *Manager) Config() Config {
	return m.config
}

// EnsurePermission opens the default source and releases it immediately,
// surfacing ErrPermissionDenied before anything else runs. A missing
// default device is returned as ErrDeviceUnavailable; whether any camera
// exists at all is for ListCameras to say.
func (m *Manager) EnsurePermission(ctx context.Context) error {
	s, err := m.source.OpenDefault(ctx, m.config)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) ||
			errors.Is(err, ErrBackendUnavailable) ||
			errors.Is(err, ErrDeviceUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	if err := s.Close(); err != nil {
		m.logger.Warn("release probe stream", "error", err)
	}
	m.logger.Info("camera permission granted")
	return nil
}

// ListCameras enumerates video input devices. Devices without a label are
// named "Camera N".
func (m *Manager) ListCameras(ctx context.Context) ([]Device, error) {
	devices, err := m.source.Enumerate(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate cameras: %w", err)
	}
	if len(devices) == 0 {
		return nil, ErrNoDeviceFound
	}

	out := make([]Device, len(devices))
	for i, d := range devices {
		if d.Label == "" {
			d.Label = fmt.Sprintf("Camera %d", i+1)
		}
		out[i] = d
	}

	m.mu.Lock()
	m.devices = out
	m.mu.Unlock()

	m.logger.Info("cameras listed", "count", len(out))
	return out, nil
}

// Devices returns the result of the last ListCameras call.
func (m *Manager) Devices() []Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Device, len(m.devices))
	copy(out, m.devices)
	return out
}

// StartStream releases the current session and opens deviceID, falling
// back to the default source when the exact device cannot be opened.
// At most one stream is open at any time.
func (m *Manager) StartStream(ctx context.Context, deviceID string) (*Session, error) {
	m.mu.Lock()

	m.releaseLocked()

	device := m.lookupLocked(deviceID)
	fallback := false
	stream, err := m.source.Open(ctx, deviceID, m.config)
	if err != nil {
		m.logger.Warn("exact camera not available, falling back to default",
			"device", deviceID,
			"error", err,
		)
		stream, err = m.source.OpenDefault(ctx, m.config)
		if err != nil {
			m.mu.Unlock()
			return nil, fmt.Errorf("start stream %s: %w", deviceID, err)
		}
		device = Device{ID: DefaultDeviceID, Label: "Default camera"}
		fallback = true
	}

	s := &Session{
		ID:       uuid.New().String(),
		Device:   device,
		Fallback: fallback,
		OpenedAt: time.Now(),
		stream:   stream,
	}
	m.session = s
	callback := m.OnSessionChange
	m.mu.Unlock()

	m.logger.Info("stream started",
		"session", s.ID,
		"device", s.Device.ID,
		"fallback", fallback,
	)

	if callback != nil {
		callback(s)
	}
	return s, nil
}

// Current returns the live session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// CaptureFrame reads the current frame and encodes it as JPEG.
func (m *Manager) CaptureFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, ErrNoSession
	}

	img, err := m.session.stream.Read()
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: m.config.Quality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// Close releases the live session.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releaseLocked()
}

func (m *Manager) releaseLocked() error {
	if m.session == nil {
		return nil
	}
	s := m.session
	m.session = nil

	err := s.stream.Close()
	if err != nil {
		m.logger.Warn("release stream", "session", s.ID, "error", err)
	} else {
		m.logger.Debug("stream released", "session", s.ID, "device", s.Device.ID)
	}
	return err
}

func (m *Manager) lookupLocked(id string) Device {
	for _, d := range m.devices {
		if d.ID == id {
			return d
		}
	}
	return Device{ID: id}
}
