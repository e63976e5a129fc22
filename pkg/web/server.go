// Package web serves the local posture page: live status, camera preview
// and selection, and the lockout overlay. The page is also the display and
// alarm the lockout controller drives, via commands over a websocket.
package web

import (
	"context"
	"embed"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-posture/pkg/camera"
	"github.com/teslashibe/go-posture/pkg/hub"
	"github.com/teslashibe/go-posture/pkg/lockout"
	"github.com/teslashibe/go-posture/pkg/monitor"
)

//go:embed static
var static embed.FS

// ErrNoClients is returned by capabilities that need an open page.
var ErrNoClients = errors.New("web: no page connected")

// PageState is everything a freshly connected page needs to render.
type PageState struct {
	Status     monitor.Status   `json:"status"`
	Lockout    lockout.Snapshot `json:"lockout"`
	Camera     string           `json:"camera,omitempty"`
	Overlay    bool             `json:"overlay"`
	Pulse      bool             `json:"pulse"`
	Fullscreen bool             `json:"fullscreen"`
	Alarm      bool             `json:"alarm"`
}

// Server is the local web page server.
type Server struct {
	app    *fiber.App
	logger *slog.Logger

	mu    sync.RWMutex
	state PageState

	statusHub *hub.Hub
	cameraHub *hub.Hub
	startOnce sync.Once

	// AlarmSound is served at /alarm.wav for the page's looping alarm.
	AlarmSound []byte

	// OnListCameras enumerates capture devices.
	OnListCameras func(ctx context.Context) ([]camera.Device, error)

	// OnSwitchCamera moves capture to another device.
	OnSwitchCamera func(ctx context.Context, id string) (*camera.Session, error)

	// OnSetLockout forces the lockout on or off from the page.
	OnSetLockout func(active bool) lockout.Transition

	// OnStats reports loop counters.
	OnStats func() monitor.Stats
}

// NewServer creates the page server. Call Serve to accept connections.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		logger:    logger,
		statusHub: hub.New("status", logger),
		cameraHub: hub.New("camera", logger, hub.WithPolicy(hub.DropOldest), hub.WithBuffer(4)),
		state: PageState{
			Status: monitor.Status{Text: monitor.TextStarting, Level: monitor.LevelInfo},
		},
	}

	app := fiber.New(fiber.Config{
		AppName:               "Posture",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/cameras", s.handleListCameras)
	api.Post("/camera", s.handleSwitchCamera)
	api.Get("/lockout", s.handleGetLockout)
	api.Post("/lockout", s.handleSetLockout)

	app.Get("/alarm.wav", s.handleAlarmSound)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	app.Use("/", filesystem.New(filesystem.Config{
		Root:       http.FS(static),
		PathPrefix: "static",
	}))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) startHubs() {
	s.startOnce.Do(func() {
		go s.statusHub.Run()
		go s.cameraHub.Run()
	})
}

// Serve serves on an existing listener. It blocks until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.startHubs()
	s.logger.Info("web page listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown stops the server and disconnects all pages.
func (s *Server) Shutdown() error {
	s.statusHub.Stop()
	s.cameraHub.Stop()
	return s.app.Shutdown()
}

// State returns a copy of the page state.
func (s *Server) State() PageState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Clients returns the number of pages connected to the status socket.
func (s *Server) Clients() int {
	return s.statusHub.ClientCount()
}

// SetStatus records a status update and pushes it to connected pages.
func (s *Server) SetStatus(st monitor.Status) {
	s.update(func(p *PageState) { p.Status = st }, message{Type: typeStatus, Status: &st})
}

// ObserveLockout records a lockout transition. Register it with
// lockout.Controller.OnTransition.
func (s *Server) ObserveLockout(ev lockout.Event) {
	snap := ev.Snapshot
	s.update(func(p *PageState) { p.Lockout = snap }, message{Type: typeLockout, Lockout: &snap})
}

// SetSession records the live camera. Register it with
// camera.Manager.OnSessionChange.
func (s *Server) SetSession(sess *camera.Session) {
	if sess == nil {
		return
	}
	id := sess.Device.ID
	s.update(func(p *PageState) { p.Camera = id }, message{Type: typeCamera, Camera: id})
}

// SendPreview forwards a captured JPEG to preview sockets.
func (s *Server) SendPreview(jpeg []byte) {
	if s.cameraHub.ClientCount() == 0 {
		return
	}
	s.cameraHub.BroadcastBinary(jpeg)
}

// push broadcasts msg to status sockets. Callers hold s.mu.
func (s *Server) push(msg message) {
	if err := s.statusHub.BroadcastJSON(msg); err != nil {
		s.logger.Warn("encode page message", "type", msg.Type, "error", err)
	}
}

func (s *Server) handleStatusWS(c *websocket.Conn) {
	// Registering under the state lock orders the snapshot against
	// concurrent updates.
	s.mu.RLock()
	state := s.state
	snapshot, err := hub.EncodeJSON(message{Type: typeState, State: &state})
	if err != nil {
		s.mu.RUnlock()
		s.logger.Warn("encode page state", "error", err)
		return
	}
	client := hub.NewClient(s.statusHub, c, snapshot)
	s.mu.RUnlock()
	if client == nil {
		return
	}
	client.Run()
}

func (s *Server) handleCameraWS(c *websocket.Conn) {
	client := hub.NewClient(s.cameraHub, c)
	if client == nil {
		return
	}
	client.Run()
}
