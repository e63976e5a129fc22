// Package monitor runs the posture watch: a startup sequence followed by a
// fixed-interval loop of capture, predict, and lockout control.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-posture/pkg/camera"
	"github.com/teslashibe/go-posture/pkg/lockout"
	"github.com/teslashibe/go-posture/pkg/predict"
)

// Camera is the capture side the monitor drives. *camera.Manager
// implements it.
type Camera interface {
	EnsurePermission(ctx context.Context) error
	ListCameras(ctx context.Context) ([]camera.Device, error)
	StartStream(ctx context.Context, deviceID string) (*camera.Session, error)
	CaptureFrame(ctx context.Context) ([]byte, error)
	Close() error
}

// Config holds loop settings.
type Config struct {
	// Interval between ticks.
	Interval time.Duration

	// TickTimeout bounds the predict request of one tick.
	TickTimeout time.Duration

	// PingOnStart checks the inference service before anything else.
	PingOnStart bool

	// DeviceID is the preferred camera. Empty selects the first one.
	DeviceID string

	Logger *slog.Logger
}

// DefaultConfig returns a 1 tick/second loop.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Second,
		TickTimeout: 5 * time.Second,
		PingOnStart: true,
		Logger:      slog.Default(),
	}
}

// Monitor owns the capture session, the predictor and the lockout
// controller for one running watch.
type Monitor struct {
	cam       Camera
	predictor predict.Predictor
	ctrl      *lockout.Controller
	cfg       Config
	logger    *slog.Logger

	// OnFrame receives each captured JPEG, e.g. for a live preview.
	OnFrame func(jpeg []byte)

	// tickMu serializes ticks with camera switches.
	tickMu sync.Mutex
	busy   atomic.Bool
	wg     sync.WaitGroup

	ticks   atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64

	statusMu sync.RWMutex
	status   Status
	sinks    []StatusSink
}

// New creates a monitor.
func New(cam Camera, predictor predict.Predictor, ctrl *lockout.Controller, cfg Config) (*Monitor, error) {
	if cam == nil || predictor == nil || ctrl == nil {
		return nil, errors.New("monitor: camera, predictor and controller are required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("monitor: interval must be positive")
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = cfg.Interval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		cam:       cam,
		predictor: predictor,
		ctrl:      ctrl,
		cfg:       cfg,
		logger:    logger.With("component", "monitor"),
		status:    Status{Text: TextStarting, Level: LevelInfo, At: time.Now()},
	}, nil
}

// AddSink registers a status sink. The current status is delivered
// immediately.
func (m *Monitor) AddSink(s StatusSink) {
	m.statusMu.Lock()
	m.sinks = append(m.sinks, s)
	current := m.status
	m.statusMu.Unlock()
	s.SetStatus(current)
}

// Status returns the latest status.
func (m *Monitor) Status() Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status
}

// Stats returns loop counters.
func (m *Monitor) Stats() Stats {
	return Stats{
		Ticks:   m.ticks.Load(),
		Dropped: m.dropped.Load(),
		Failed:  m.failed.Load(),
	}
}

// Controller returns the lockout controller.
func (m *Monitor) Controller() *lockout.Controller {
	return m.ctrl
}

// Start checks the service, acquires camera permission, lists cameras and
// starts a stream. Any error means the loop should not run; the status
// already explains why.
func (m *Monitor) Start(ctx context.Context) error {
	if m.cfg.PingOnStart {
		if err := m.predictor.Ping(ctx); err != nil {
			m.setStatus(TextAPIUnavailable, LevelError, nil)
			return fmt.Errorf("ping inference service: %w", err)
		}
		m.logger.Info("server ping successful")
	}

	if err := m.cam.EnsurePermission(ctx); err != nil {
		if !errors.Is(err, camera.ErrDeviceUnavailable) {
			m.setStatus(TextPermissionDenied, LevelError, nil)
			return err
		}
		m.logger.Debug("default camera unavailable, checking device list", "error", err)
	}

	devices, err := m.cam.ListCameras(ctx)
	if err != nil {
		switch {
		case errors.Is(err, camera.ErrNoDeviceFound):
			m.setStatus(TextNoCamera, LevelError, nil)
		case errors.Is(err, camera.ErrPermissionDenied):
			m.setStatus(TextPermissionDenied, LevelError, nil)
		default:
			m.setStatus(TextCameraError, LevelError, nil)
		}
		return err
	}

	id := devices[0].ID
	for _, d := range devices {
		if d.ID == m.cfg.DeviceID {
			id = d.ID
			break
		}
	}

	if _, err := m.SwitchCamera(ctx, id); err != nil {
		m.setStatus(TextCameraError, LevelError, nil)
		return err
	}

	m.setStatus(TextWatching, LevelInfo, nil)
	return nil
}

// SwitchCamera replaces the live session. It waits for any in-flight tick.
func (m *Monitor) SwitchCamera(ctx context.Context, deviceID string) (*camera.Session, error) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	return m.cam.StartStream(ctx, deviceID)
}

// Run fires a tick every Interval until ctx is done. A tick that would
// overlap one still in flight is dropped. Run waits for the last tick
// before returning.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	defer m.wg.Wait()

	m.logger.Info("starting predict loop", "interval", m.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.trigger(ctx)
		}
	}
}

// trigger runs one tick in the background unless one is already running.
func (m *Monitor) trigger(ctx context.Context) bool {
	if !m.busy.CompareAndSwap(false, true) {
		m.dropped.Add(1)
		m.logger.Debug("tick dropped, previous still in flight")
		return false
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.busy.Store(false)
		m.Tick(ctx)
	}()
	return true
}

// Tick runs one capture, predict, control cycle. Failures update the
// status and leave the lockout state untouched.
func (m *Monitor) Tick(ctx context.Context) (lockout.Transition, error) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	m.ticks.Add(1)

	frame, err := m.cam.CaptureFrame(ctx)
	if err != nil {
		m.fail(ctx, TextCameraError, err)
		return lockout.None, err
	}
	if m.OnFrame != nil {
		m.OnFrame(frame)
	}

	pctx, cancel := context.WithTimeout(ctx, m.cfg.TickTimeout)
	p, err := m.predictor.Predict(pctx, frame)
	cancel()
	if err != nil {
		m.fail(ctx, classify(err), err)
		return lockout.None, err
	}

	level := LevelGood
	if p.Bad() {
		level = LevelBad
	}
	m.setStatus(p.Label, level, p)

	return m.ctrl.Observe(*p), nil
}

// Close tears down any active lockout and releases the camera.
func (m *Monitor) Close() error {
	m.ctrl.Disengage()

	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	return m.cam.Close()
}

func (m *Monitor) fail(ctx context.Context, text string, err error) {
	m.failed.Add(1)
	if ctx.Err() != nil {
		// Shutting down; keep the last status.
		return
	}
	m.logger.Warn("tick failed", "status", text, "error", err)
	m.setStatus(text, LevelError, nil)
}

// classify maps a predict error to a status text.
func classify(err error) string {
	var apiErr *predict.APIError
	switch {
	case errors.As(err, &apiErr):
		return TextServerError
	case errors.Is(err, predict.ErrMalformedResponse):
		return TextBadResponse
	case errors.Is(err, predict.ErrEmptyImage):
		return TextCameraError
	default:
		return TextConnectionError
	}
}

func (m *Monitor) setStatus(text string, level Level, p *predict.Prediction) {
	s := Status{Text: text, Level: level, Prediction: p, At: time.Now()}

	m.statusMu.Lock()
	m.status = s
	sinks := m.sinks
	m.statusMu.Unlock()

	for _, sink := range sinks {
		sink.SetStatus(s)
	}
}
