package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
)

// MockSource implements Source for testing. It tracks how many streams are
// open at once so tests can assert that switching never holds two devices.
type MockSource struct {
	// Devices returned by Enumerate.
	Devices []Device

	// EnumerateErr is returned by Enumerate when set.
	EnumerateErr error

	// OpenErr maps device IDs to errors returned by Open.
	OpenErr map[string]error

	// DefaultErr is returned by OpenDefault when set.
	DefaultErr error

	// ReadErr is returned by stream reads when set.
	ReadErr error

	mu      sync.Mutex
	open    int
	maxOpen int
	events  []string
}

// NewMockSource creates a mock with the given device IDs.
func NewMockSource(ids ...string) *MockSource {
	m := &MockSource{OpenErr: map[string]error{}}
	for _, id := range ids {
		m.Devices = append(m.Devices, Device{ID: id})
	}
	return m
}

// Enumerate returns Devices or EnumerateErr.
func (m *MockSource) Enumerate(ctx context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EnumerateErr != nil {
		return nil, m.EnumerateErr
	}
	out := make([]Device, len(m.Devices))
	copy(out, m.Devices)
	return out, nil
}

// Open opens a mock stream for deviceID.
func (m *MockSource) Open(ctx context.Context, deviceID string, cfg Config) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.OpenErr[deviceID]; err != nil {
		m.events = append(m.events, "open-fail:"+deviceID)
		return nil, err
	}
	return m.openLocked(deviceID, cfg), nil
}

// OpenDefault opens a mock stream for the default device.
func (m *MockSource) OpenDefault(ctx context.Context, cfg Config) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DefaultErr != nil {
		m.events = append(m.events, "open-fail:"+DefaultDeviceID)
		return nil, m.DefaultErr
	}
	return m.openLocked(DefaultDeviceID, cfg), nil
}

func (m *MockSource) openLocked(id string, cfg Config) *mockStream {
	m.open++
	if m.open > m.maxOpen {
		m.maxOpen = m.open
	}
	m.events = append(m.events, "open:"+id)

	w, h := cfg.Width, cfg.Height
	if w == 0 {
		w = 32
	}
	if h == 0 {
		h = 24
	}
	return &mockStream{source: m, id: id, w: w, h: h}
}

// OpenCount returns the number of streams currently open.
func (m *MockSource) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// MaxOpen returns the highest number of simultaneously open streams.
func (m *MockSource) MaxOpen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxOpen
}

// Events returns the ordered open/close log, e.g. "open:cam1", "close:cam1".
func (m *MockSource) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	copy(out, m.events)
	return out
}

type mockStream struct {
	source *MockSource
	id     string
	w, h   int
	frames int
	closed bool
}

func (s *mockStream) Read() (image.Image, error) {
	s.source.mu.Lock()
	readErr := s.source.ReadErr
	closed := s.closed
	s.source.mu.Unlock()

	if closed {
		return nil, fmt.Errorf("read from closed stream %s", s.id)
	}
	if readErr != nil {
		return nil, readErr
	}

	s.frames++
	img := image.NewRGBA(image.Rect(0, 0, s.w, s.h))
	shade := uint8(s.frames * 40)
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	return img, nil
}

func (s *mockStream) Close() error {
	s.source.mu.Lock()
	defer s.source.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.source.open--
	s.source.events = append(s.source.events, "close:"+s.id)
	return nil
}

var _ Source = (*MockSource)(nil)
