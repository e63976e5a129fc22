package web

import (
	"github.com/teslashibe/go-posture/pkg/lockout"
	"github.com/teslashibe/go-posture/pkg/monitor"
)

// Message types on /ws/status.
const (
	typeState   = "state"
	typeStatus  = "status"
	typeLockout = "lockout"
	typeCamera  = "camera"
	typeCommand = "command"
)

// Commands the page executes.
const (
	CommandFullscreen     = "fullscreen"
	CommandExitFullscreen = "exit-fullscreen"
	CommandShowOverlay    = "show-overlay"
	CommandHideOverlay    = "hide-overlay"
	CommandPulse          = "pulse"
	CommandPlayAlarm      = "play-alarm"
	CommandStopAlarm      = "stop-alarm"
)

type message struct {
	Type    string            `json:"type"`
	State   *PageState        `json:"state,omitempty"`
	Status  *monitor.Status   `json:"status,omitempty"`
	Lockout *lockout.Snapshot `json:"lockout,omitempty"`
	Camera  string            `json:"camera,omitempty"`
	Command string            `json:"command,omitempty"`
	On      *bool             `json:"on,omitempty"`
}
