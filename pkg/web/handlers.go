package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/go-posture/pkg/camera"
	"github.com/teslashibe/go-posture/pkg/monitor"
)

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	PageState
	Stats   *monitor.Stats `json:"stats,omitempty"`
	Clients int            `json:"clients"`
}

// handleStatus returns the page state and loop counters
func (s *Server) handleStatus(c *fiber.Ctx) error {
	resp := StatusResponse{
		PageState: s.State(),
		Clients:   s.Clients(),
	}
	if s.OnStats != nil {
		stats := s.OnStats()
		resp.Stats = &stats
	}
	return c.JSON(resp)
}

// CamerasResponse is returned by GET /api/cameras.
type CamerasResponse struct {
	Cameras []camera.Device `json:"cameras"`
	Current string          `json:"current,omitempty"`
}

// handleListCameras enumerates capture devices
func (s *Server) handleListCameras(c *fiber.Ctx) error {
	if s.OnListCameras == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Camera listing not configured",
		})
	}

	devices, err := s.OnListCameras(c.UserContext())
	switch {
	case errors.Is(err, camera.ErrNoDeviceFound):
		devices = []camera.Device{}
	case errors.Is(err, camera.ErrPermissionDenied):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(CamerasResponse{Cameras: devices, Current: s.State().Camera})
}

// SwitchCameraRequest is the body of POST /api/camera.
type SwitchCameraRequest struct {
	ID string `json:"id"`
}

// handleSwitchCamera moves capture to the selected device
func (s *Server) handleSwitchCamera(c *fiber.Ctx) error {
	var req SwitchCameraRequest
	if err := c.BodyParser(&req); err != nil || req.ID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Camera id required",
		})
	}

	if s.OnSwitchCamera == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Camera switching not configured",
		})
	}

	sess, err := s.OnSwitchCamera(c.UserContext(), req.ID)
	if err != nil {
		s.logger.Warn("switch camera", "id", req.ID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"session":  sess.ID,
		"camera":   sess.Device.ID,
		"fallback": sess.Fallback,
	})
}

// handleGetLockout returns the last lockout snapshot
func (s *Server) handleGetLockout(c *fiber.Ctx) error {
	return c.JSON(s.State().Lockout)
}

// SetLockoutRequest is the body of POST /api/lockout.
type SetLockoutRequest struct {
	Active bool `json:"active"`
}

// handleSetLockout forces the lockout on or off
func (s *Server) handleSetLockout(c *fiber.Ctx) error {
	var req SetLockoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid body",
		})
	}

	if s.OnSetLockout == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Lockout control not configured",
		})
	}

	tr := s.OnSetLockout(req.Active)
	return c.JSON(fiber.Map{
		"transition": tr.String(),
		"lockout":    s.State().Lockout,
	})
}

// handleAlarmSound serves the page alarm
func (s *Server) handleAlarmSound(c *fiber.Ctx) error {
	if len(s.AlarmSound) == 0 {
		return fiber.ErrNotFound
	}
	c.Set(fiber.HeaderContentType, "audio/wav")
	return c.Send(s.AlarmSound)
}
