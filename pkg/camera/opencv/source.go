// Package opencv implements camera.Source on top of OpenCV via gocv.
package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/teslashibe/go-posture/pkg/camera"
	"gocv.io/x/gocv"
)

// maxProbe is how many indices are probed on platforms without /dev/video*.
const maxProbe = 4

// OpenCVSource captures from local cameras through OpenCV.
type OpenCVSource struct {
	logger *slog.Logger
}

// NewSource returns the OpenCV capture source.
func NewSource(logger *slog.Logger) camera.Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenCVSource{logger: logger.With("component", "camera.opencv")}
}

// Enumerate lists /dev/video* nodes on Linux and probes indices elsewhere.
func (s *OpenCVSource) Enumerate(ctx context.Context) ([]camera.Device, error) {
	if runtime.GOOS == "linux" {
		return enumerateV4L()
	}

	var devices []camera.Device
	for i := 0; i < maxProbe; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vc, err := gocv.OpenVideoCapture(i)
		if err != nil {
			continue
		}
		if vc.IsOpened() {
			devices = append(devices, camera.Device{ID: strconv.Itoa(i)})
		}
		vc.Close()
	}
	return devices, nil
}

// enumerateV4L lists capture nodes, reading names from sysfs.
func enumerateV4L() ([]camera.Device, error) {
	paths, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var devices []camera.Device
	denied := 0
	for _, p := range paths {
		if err := checkAccess(p); err != nil {
			if errors.Is(err, camera.ErrPermissionDenied) {
				denied++
			}
			continue
		}
		name, _ := os.ReadFile(filepath.Join("/sys/class/video4linux", filepath.Base(p), "name"))
		devices = append(devices, camera.Device{ID: p, Label: strings.TrimSpace(string(name))})
	}

	if len(devices) == 0 && denied > 0 {
		return nil, camera.ErrPermissionDenied
	}
	return devices, nil
}

// checkAccess opens a device node to distinguish missing from forbidden.
func checkAccess(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("%w: %s", camera.ErrPermissionDenied, path)
		}
		return fmt.Errorf("%w: %v", camera.ErrDeviceUnavailable, err)
	}
	return f.Close()
}

// Open opens a device by path or index.
func (s *OpenCVSource) Open(ctx context.Context, deviceID string, cfg camera.Config) (camera.Stream, error) {
	if strings.HasPrefix(deviceID, "/dev/") {
		if err := checkAccess(deviceID); err != nil {
			return nil, err
		}
	}

	var target interface{} = deviceID
	if idx, err := strconv.Atoi(deviceID); err == nil {
		target = idx
	}
	return s.open(target, cfg)
}

// OpenDefault opens device index 0.
func (s *OpenCVSource) OpenDefault(ctx context.Context, cfg camera.Config) (camera.Stream, error) {
	return s.open(0, cfg)
}

func (s *OpenCVSource) open(target interface{}, cfg camera.Config) (camera.Stream, error) {
	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", camera.ErrDeviceUnavailable, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %v", camera.ErrDeviceUnavailable, target)
	}

	if cfg.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.Framerate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	}

	s.logger.Debug("capture opened", "device", target)
	return &openCVStream{vc: vc, frame: gocv.NewMat()}, nil
}

// openCVStream wraps a VideoCapture and a reusable frame buffer.
type openCVStream struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	frame  gocv.Mat
	closed bool
}

// Read grabs the next frame and converts it to an image.
func (st *openCVStream) Read() (image.Image, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return nil, camera.ErrNoSession
	}
	if ok := st.vc.Read(&st.frame); !ok || st.frame.Empty() {
		return nil, errors.New("camera: empty frame")
	}
	return st.frame.ToImage()
}

// Close releases the capture device.
func (st *openCVStream) Close() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return nil
	}
	st.closed = true
	st.frame.Close()
	return st.vc.Close()
}
