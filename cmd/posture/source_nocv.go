//go:build nocv

package main

import (
	"log/slog"

	"github.com/teslashibe/go-posture/pkg/camera"
)

func newSource(logger *slog.Logger) camera.Source {
	logger.Warn("built without OpenCV, no camera available")
	return camera.Unavailable()
}
