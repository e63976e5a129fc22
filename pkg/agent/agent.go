// Package agent wires the posture watch together: camera, inference
// client, lockout controller, local page, alarm player and event
// publisher, with a New / Init / Run / Shutdown lifecycle.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/teslashibe/go-posture/internal/config"
	"github.com/teslashibe/go-posture/pkg/audio"
	"github.com/teslashibe/go-posture/pkg/camera"
	"github.com/teslashibe/go-posture/pkg/events"
	"github.com/teslashibe/go-posture/pkg/lockout"
	"github.com/teslashibe/go-posture/pkg/monitor"
	"github.com/teslashibe/go-posture/pkg/predict"
	"github.com/teslashibe/go-posture/pkg/web"
)

// SoundTone selects the built-in alarm tone instead of a file.
const SoundTone = "tone"

// App is the posture agent orchestrator.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	source      camera.Source
	listener    net.Listener
	eventClient events.Client

	cam       *camera.Manager
	predictor *predict.Client
	ctrl      *lockout.Controller
	mon       *monitor.Monitor
	web       *web.Server
	player    *audio.Player
	events    *events.Emitter

	wg sync.WaitGroup
}

// Option configures an App.
type Option func(*App)

// WithSource sets the camera backend.
func WithSource(s camera.Source) Option {
	return func(a *App) { a.source = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithEventClient publishes lockout events through client instead of
// dialing the configured broker.
func WithEventClient(client events.Client) Option {
	return func(a *App) { a.eventClient = client }
}

// WithListener serves the page on ln instead of the configured address.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// New validates cfg and creates an App. Call Init before Run.
func New(cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	a := &App{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	if a.source == nil {
		a.source = camera.Unavailable()
	}
	return a, nil
}

// Init builds all components. Optional ones (alarm player, MQTT) log and
// carry on when they cannot start.
func (a *App) Init() error {
	var err error

	a.predictor, err = predict.NewClient(
		predict.WithBaseURL(a.cfg.APIBase),
		predict.WithTimeout(a.cfg.TickTimeout),
		predict.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("predict client: %w", err)
	}

	camCfg := camera.DefaultConfig()
	camCfg.Width, camCfg.Height = a.cfg.Camera.Width, a.cfg.Camera.Height
	camCfg.Quality = a.cfg.Camera.Quality
	a.cam, err = camera.NewManager(a.source, camCfg, a.logger)
	if err != nil {
		return fmt.Errorf("camera: %w", err)
	}

	if a.cfg.Web.Enabled {
		a.web = web.NewServer(a.logger)
		a.web.AlarmSound = a.pageSound()
	}

	if a.cfg.Alarm.Sound != "" {
		if err := a.initPlayer(); err != nil {
			a.logger.Warn("local alarm disabled", "error", err)
		}
	}

	a.ctrl = lockout.New(a.display(), a.alarm(),
		lockout.WithThreshold(a.cfg.LockAfter),
		lockout.WithLogger(a.logger),
	)

	evCfg := events.Config{
		Broker:   a.cfg.MQTT.Broker,
		ClientID: a.cfg.MQTT.ClientID,
		Username: a.cfg.MQTT.Username,
		Password: a.cfg.MQTT.Password,
		Topic:    a.cfg.MQTT.Topic,
		QoS:      1,
	}
	switch {
	case a.eventClient != nil:
		a.events = events.New(a.eventClient, evCfg, a.logger)
	case a.cfg.MQTT.Broker != "":
		a.events, err = events.Connect(evCfg, a.logger)
		if err != nil {
			a.logger.Warn("lockout events disabled", "error", err)
			a.events = nil
		}
	}

	a.mon, err = monitor.New(a.cam, a.predictor, a.ctrl, monitor.Config{
		Interval:    a.cfg.Interval,
		TickTimeout: a.cfg.TickTimeout,
		PingOnStart: a.cfg.PingOnStart,
		DeviceID:    a.cfg.Camera.Device,
		Logger:      a.logger,
	})
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	a.mon.AddSink(newStatusLogger(a.logger))

	a.wire()
	return nil
}

// wire connects component callbacks.
func (a *App) wire() {
	a.cam.OnSessionChange = func(s *camera.Session) {
		if a.web != nil {
			a.web.SetSession(s)
		}
		if a.events != nil {
			a.events.SetSession(s)
		}
	}

	if a.events != nil {
		a.ctrl.OnTransition(a.events.Observe)
	}

	if a.web == nil {
		return
	}
	a.ctrl.OnTransition(a.web.ObserveLockout)
	a.mon.AddSink(a.web)
	a.mon.OnFrame = a.web.SendPreview

	a.web.OnListCameras = a.cam.ListCameras
	a.web.OnSwitchCamera = a.mon.SwitchCamera
	a.web.OnStats = a.mon.Stats
	a.web.OnSetLockout = func(active bool) lockout.Transition {
		if active {
			return a.ctrl.Engage()
		}
		return a.ctrl.Disengage()
	}
}

func (a *App) display() lockout.Display {
	if a.web != nil {
		return a.web
	}
	return lockout.Nop()
}

func (a *App) alarm() lockout.Alarm {
	var alarms []lockout.Alarm
	if a.web != nil {
		alarms = append(alarms, a.web)
	}
	if a.player != nil {
		alarms = append(alarms, a.player)
	}
	if len(alarms) == 0 {
		return lockout.Nop()
	}
	return lockout.Alarms(alarms...)
}

func (a *App) initPlayer() error {
	command := strings.Fields(a.cfg.Alarm.Player)

	var err error
	if a.cfg.Alarm.Sound == SoundTone {
		a.player, err = audio.NewPlayerData(command, audio.AlarmTone.WAV(), a.logger)
	} else {
		a.player, err = audio.NewPlayer(command, a.cfg.Alarm.Sound, a.logger)
	}
	return err
}

// pageSound is the alarm the page loops: the configured file when it can
// be read, the built-in tone otherwise.
func (a *App) pageSound() []byte {
	if s := a.cfg.Alarm.Sound; s != "" && s != SoundTone {
		data, err := os.ReadFile(s)
		if err == nil {
			return data
		}
		a.logger.Warn("read alarm sound, using built-in tone", "path", s, "error", err)
	}
	return audio.AlarmTone.WAV()
}

// Run serves the page, starts the watch and blocks until ctx is done.
// Startup failures other than a missing camera are returned; a missing
// camera leaves the page up showing the status.
func (a *App) Run(ctx context.Context) error {
	if a.mon == nil {
		return errors.New("agent: Init not called")
	}

	// Background work stops when Run returns, not when the caller's
	// context is cancelled.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.web != nil {
		if a.listener == nil {
			ln, err := net.Listen("tcp", a.cfg.Web.Addr)
			if err != nil {
				return fmt.Errorf("web: %w", err)
			}
			a.listener = ln
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.web.Serve(a.listener); err != nil {
				a.logger.Error("web server stopped", "error", err)
			}
		}()
	}

	if a.events != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.events.Start(ctx)
		}()
	}

	if err := a.mon.Start(ctx); err != nil {
		if !errors.Is(err, camera.ErrNoDeviceFound) {
			return err
		}
		a.logger.Warn("no camera found, not watching")
		<-ctx.Done()
		return nil
	}

	return a.mon.Run(ctx)
}

// Monitor returns the running monitor.
func (a *App) Monitor() *monitor.Monitor {
	return a.mon
}

// Web returns the page server, or nil when disabled.
func (a *App) Web() *web.Server {
	return a.web
}

// Shutdown releases the lockout, the camera and all connections.
func (a *App) Shutdown() {
	if a.mon != nil {
		if err := a.mon.Close(); err != nil {
			a.logger.Warn("release camera", "error", err)
		}
	}
	if a.player != nil {
		a.player.Close()
	}
	if a.web != nil {
		a.web.Shutdown()
	}
	if a.listener != nil {
		// Serve may not have started yet; a closed listener makes it return.
		a.listener.Close()
	}
	if a.events != nil {
		a.events.Close()
	}
	if a.predictor != nil {
		a.predictor.Close()
	}
	a.wg.Wait()
	a.logger.Info("shutdown complete")
}

// statusLogger logs status changes, skipping repeats.
type statusLogger struct {
	logger *slog.Logger
	mu     sync.Mutex
	last   string
}

func newStatusLogger(l *slog.Logger) *statusLogger {
	return &statusLogger{logger: l.With("component", "status")}
}

func (s *statusLogger) SetStatus(st monitor.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.Text == s.last {
		return
	}
	s.last = st.Text
	if st.Level == monitor.LevelError {
		s.logger.Warn(st.Text)
		return
	}
	s.logger.Info(st.Text, "level", st.Level)
}
