package monitor

import (
	"time"

	"github.com/teslashibe/go-posture/pkg/predict"
)

// Level classifies a status line for display.
type Level string

const (
	LevelInfo  Level = "info"
	LevelGood  Level = "good"
	LevelBad   Level = "bad"
	LevelError Level = "error"
)

// Status texts shown to the user.
const (
	TextStarting         = "Starting"
	TextWatching         = "Watching posture"
	TextAPIUnavailable   = "API unavailable"
	TextPermissionDenied = "Camera access denied"
	TextNoCamera         = "No camera found"
	TextCameraError      = "Camera error"
	TextServerError      = "Server error"
	TextConnectionError  = "Connection error"
	TextBadResponse      = "Bad response"
)

// Status is the current user-visible status line.
type Status struct {
	Text       string              `json:"text"`
	Level      Level               `json:"level"`
	Prediction *predict.Prediction `json:"prediction,omitempty"`
	At         time.Time           `json:"at"`
}

// StatusSink receives status updates.
type StatusSink interface {
	SetStatus(s Status)
}

// StatusFunc adapts a function to StatusSink.
type StatusFunc func(s Status)

// SetStatus calls f(s).
func (f StatusFunc) SetStatus(s Status) { f(s) }

// Stats counts loop activity.
type Stats struct {
	Ticks   int64 `json:"ticks"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
}
