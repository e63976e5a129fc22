//go:build !nocv

package main

import (
	"log/slog"

	"github.com/teslashibe/go-posture/pkg/camera"
	"github.com/teslashibe/go-posture/pkg/camera/opencv"
)

func newSource(logger *slog.Logger) camera.Source {
	return opencv.NewSource(logger)
}
