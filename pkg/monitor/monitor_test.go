package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-posture/internal/log"
	"github.com/teslashibe/go-posture/pkg/camera"
	"github.com/teslashibe/go-posture/pkg/lockout"
	"github.com/teslashibe/go-posture/pkg/predict"
)

type fixture struct {
	src      *camera.MockSource
	cam      *camera.Manager
	pred     *predict.Mock
	rec      *lockout.Recorder
	ctrl     *lockout.Controller
	clock    time.Time
	mon      *Monitor
	statuses []Status
	mu       sync.Mutex
}

func newFixture(t *testing.T, pred predict.Predictor, devices ...string) *fixture {
	t.Helper()
	f := &fixture{
		src:   camera.NewMockSource(devices...),
		rec:   lockout.NewRecorder(),
		clock: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	if pm, ok := pred.(*predict.Mock); ok {
		f.pred = pm
	}

	cam, err := camera.NewManager(f.src, camera.DefaultConfig(), log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	f.cam = cam
	f.ctrl = lockout.New(f.rec, f.rec,
		lockout.WithClock(func() time.Time {
			f.mu.Lock()
			defer f.mu.Unlock()
			return f.clock
		}),
		lockout.WithLogger(log.Discard()),
	)

	cfg := DefaultConfig()
	cfg.Logger = log.Discard()
	mon, err := New(cam, pred, f.ctrl, cfg)
	if err != nil {
		t.Fatal(err)
	}
	mon.AddSink(StatusFunc(func(s Status) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.statuses = append(f.statuses, s)
	}))
	f.mon = mon
	t.Cleanup(func() { mon.Close() })
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = f.clock.Add(d)
}

func TestStartSelectsFirstCamera(t *testing.T) {
	f := newFixture(t, predict.NewMock(), "cam-a", "cam-b")

	if err := f.mon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s := f.cam.Current(); s == nil || s.Device.ID != "cam-a" {
		t.Errorf("expected session on cam-a, got %+v", s)
	}
	if f.mon.Status().Text != TextWatching {
		t.Errorf("status = %q", f.mon.Status().Text)
	}
	if f.pred.CallCount("Ping") != 1 {
		t.Error("expected a ping before starting")
	}
}

func TestStartPrefersConfiguredCamera(t *testing.T) {
	f := newFixture(t, predict.NewMock(), "cam-a", "cam-b")
	f.mon.cfg.DeviceID = "cam-b"

	if err := f.mon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s := f.cam.Current(); s.Device.ID != "cam-b" {
		t.Errorf("expected cam-b, got %s", s.Device.ID)
	}
}

func TestStartFailures(t *testing.T) {
	t.Run("api unavailable", func(t *testing.T) {
		pred := predict.NewMock()
		pred.PingFunc = func(ctx context.Context) error { return predict.ErrTransport }
		f := newFixture(t, pred, "cam-a")

		if err := f.mon.Start(context.Background()); !errors.Is(err, predict.ErrTransport) {
			t.Errorf("expected transport error, got %v", err)
		}
		if f.mon.Status().Text != TextAPIUnavailable {
			t.Errorf("status = %q", f.mon.Status().Text)
		}
		if f.src.MaxOpen() != 0 {
			t.Error("camera should not be touched when the API is down")
		}
	})

	t.Run("permission denied", func(t *testing.T) {
		f := newFixture(t, predict.NewMock(), "cam-a")
		f.src.DefaultErr = camera.ErrPermissionDenied

		if err := f.mon.Start(context.Background()); !errors.Is(err, camera.ErrPermissionDenied) {
			t.Errorf("expected ErrPermissionDenied, got %v", err)
		}
		if f.mon.Status().Text != TextPermissionDenied {
			t.Errorf("status = %q", f.mon.Status().Text)
		}
	})

	t.Run("no camera", func(t *testing.T) {
		f := newFixture(t, predict.NewMock())

		if err := f.mon.Start(context.Background()); !errors.Is(err, camera.ErrNoDeviceFound) {
			t.Errorf("expected ErrNoDeviceFound, got %v", err)
		}
		if f.mon.Status().Text != TextNoCamera {
			t.Errorf("status = %q", f.mon.Status().Text)
		}
	})

	t.Run("no camera and no default device", func(t *testing.T) {
		f := newFixture(t, predict.NewMock())
		f.src.DefaultErr = fmt.Errorf("%w: 0", camera.ErrDeviceUnavailable)

		if err := f.mon.Start(context.Background()); !errors.Is(err, camera.ErrNoDeviceFound) {
			t.Errorf("expected ErrNoDeviceFound, got %v", err)
		}
		if f.mon.Status().Text != TextNoCamera {
			t.Errorf("status = %q, want %q", f.mon.Status().Text, TextNoCamera)
		}
	})

	t.Run("ping disabled", func(t *testing.T) {
		pred := predict.NewMock()
		pred.PingFunc = func(ctx context.Context) error { return predict.ErrTransport }
		f := newFixture(t, pred, "cam-a")
		f.mon.cfg.PingOnStart = false

		if err := f.mon.Start(context.Background()); err != nil {
			t.Errorf("Start: %v", err)
		}
	})
}

func TestTickSustainedBadLocks(t *testing.T) {
	pred := predict.NewMock()
	pred.PredictFunc = func(ctx context.Context, jpeg []byte) (*predict.Prediction, error) {
		return &predict.Prediction{Label: "Bad Posture", Class: predict.ClassBad}, nil
	}
	f := newFixture(t, pred, "cam-a")
	ctx := context.Background()
	if err := f.mon.Start(ctx); err != nil {
		t.Fatal(err)
	}

	for sec := 0; sec <= 11; sec++ {
		tr, err := f.mon.Tick(ctx)
		if err != nil {
			t.Fatalf("tick %d: %v", sec, err)
		}
		if sec < 11 && tr != lockout.None {
			t.Fatalf("locked early at t=%ds", sec)
		}
		if sec == 11 && tr != lockout.Engaged {
			t.Fatalf("expected lock at t=11s, got %v", tr)
		}
		f.advance(time.Second)
	}

	st := f.mon.Status()
	if st.Text != "Bad Posture" || st.Level != LevelBad {
		t.Errorf("status = %+v", st)
	}
	if f.rec.Count("show-overlay") != 1 {
		t.Error("overlay should be shown once")
	}
}

func TestTickServerErrorKeepsState(t *testing.T) {
	var fail sync.Mutex
	failing := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fail.Lock()
		defer fail.Unlock()
		if failing {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"label":"Bad Posture","class":0}`))
	}))
	defer server.Close()

	client, err := predict.NewClient(predict.WithBaseURL(server.URL), predict.WithLogger(log.Discard()))
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, client, "cam-a")
	ctx := context.Background()
	if err := f.mon.Start(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := f.mon.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	before := f.ctrl.Snapshot()

	fail.Lock()
	failing = true
	fail.Unlock()

	f.advance(time.Second)
	if _, err := f.mon.Tick(ctx); !errors.Is(err, predict.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if st := f.mon.Status(); st.Text != TextServerError || st.Level != LevelError {
		t.Errorf("status = %+v", st)
	}
	if after := f.ctrl.Snapshot(); after != before {
		t.Errorf("lockout state changed on failure: %+v -> %+v", before, after)
	}
	if f.mon.Stats().Failed != 1 {
		t.Errorf("failed = %d, want 1", f.mon.Stats().Failed)
	}

	fail.Lock()
	failing = false
	fail.Unlock()
	if _, err := f.mon.Tick(ctx); err != nil {
		t.Errorf("next tick should proceed: %v", err)
	}
}

func TestTickErrorTexts(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&predict.APIError{StatusCode: 502}, TextServerError},
		{predict.ErrMalformedResponse, TextBadResponse},
		{predict.ErrEmptyImage, TextCameraError},
		{errors.Join(predict.ErrTransport, errors.New("dial tcp: refused")), TextConnectionError},
	}

	for _, tt := range tests {
		pred := predict.NewMock().Script(predict.Fail(tt.err))
		f := newFixture(t, pred, "cam-a")
		ctx := context.Background()
		f.mon.Start(ctx)

		f.mon.Tick(ctx)
		if got := f.mon.Status().Text; got != tt.want {
			t.Errorf("%v: status = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestTickCameraError(t *testing.T) {
	f := newFixture(t, predict.NewMock(), "cam-a")
	ctx := context.Background()
	f.mon.Start(ctx)
	f.src.ReadErr = errors.New("unplugged")

	if _, err := f.mon.Tick(ctx); err == nil {
		t.Fatal("expected error")
	}
	if f.mon.Status().Text != TextCameraError {
		t.Errorf("status = %q", f.mon.Status().Text)
	}
	if f.pred.CallCount("Predict") != 0 {
		t.Error("nothing should be sent without a frame")
	}
}

func TestTriggerDropsOverlappingTicks(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	pred := predict.NewMock()
	pred.PredictFunc = func(ctx context.Context, jpeg []byte) (*predict.Prediction, error) {
		entered <- struct{}{}
		<-release
		return &predict.Prediction{Label: "Good Posture", Class: predict.ClassGood}, nil
	}
	f := newFixture(t, pred, "cam-a")
	ctx := context.Background()
	f.mon.Start(ctx)

	if !f.mon.trigger(ctx) {
		t.Fatal("first trigger should run")
	}
	<-entered

	if f.mon.trigger(ctx) {
		t.Error("second trigger should be dropped while the first is in flight")
	}
	close(release)
	f.mon.wg.Wait()

	stats := f.mon.Stats()
	if stats.Ticks != 1 || stats.Dropped != 1 {
		t.Errorf("stats = %+v, want 1 tick and 1 drop", stats)
	}
	if !f.mon.trigger(ctx) {
		t.Error("trigger should run again once idle")
	}
	f.mon.wg.Wait()
}

func TestRunUntilCancelled(t *testing.T) {
	f := newFixture(t, predict.NewMock(), "cam-a")
	f.mon.cfg.Interval = 10 * time.Millisecond

	var frames sync.WaitGroup
	frames.Add(3)
	var seen int
	var seenMu sync.Mutex
	f.mon.OnFrame = func(jpeg []byte) {
		seenMu.Lock()
		defer seenMu.Unlock()
		seen++
		if seen <= 3 {
			frames.Done()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := f.mon.Start(ctx); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- f.mon.Run(ctx) }()

	frames.Wait()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if f.mon.Status().Text != "Good Posture" {
		t.Errorf("status = %q", f.mon.Status().Text)
	}
}

func TestSwitchCameraDuringWatch(t *testing.T) {
	f := newFixture(t, predict.NewMock(), "cam-a", "cam-b")
	ctx := context.Background()
	f.mon.Start(ctx)

	s, err := f.mon.SwitchCamera(ctx, "cam-b")
	if err != nil {
		t.Fatal(err)
	}
	if s.Device.ID != "cam-b" {
		t.Errorf("device = %s", s.Device.ID)
	}
	if f.src.MaxOpen() != 1 {
		t.Errorf("two devices open at once (max %d)", f.src.MaxOpen())
	}
	if _, err := f.mon.Tick(ctx); err != nil {
		t.Errorf("tick after switch: %v", err)
	}
}

func TestCloseReleasesLockoutAndCamera(t *testing.T) {
	pred := predict.NewMock()
	pred.PredictFunc = func(ctx context.Context, jpeg []byte) (*predict.Prediction, error) {
		return &predict.Prediction{Label: "Bad Posture", Class: predict.ClassBad}, nil
	}
	f := newFixture(t, pred, "cam-a")
	ctx := context.Background()
	f.mon.Start(ctx)

	f.mon.Tick(ctx)
	f.advance(11 * time.Second)
	f.mon.Tick(ctx)
	if !f.ctrl.Snapshot().Active {
		t.Fatal("expected lockout")
	}

	if err := f.mon.Close(); err != nil {
		t.Fatal(err)
	}
	if f.ctrl.Snapshot().Active {
		t.Error("Close should clear the lockout")
	}
	if f.rec.Count("hide-overlay") != 1 {
		t.Error("Close should hide the overlay")
	}
	if f.src.OpenCount() != 0 {
		t.Error("Close should release the camera")
	}
}

func TestAddSinkReceivesCurrentStatus(t *testing.T) {
	f := newFixture(t, predict.NewMock(), "cam-a")

	var got []Status
	f.mon.AddSink(StatusFunc(func(s Status) { got = append(got, s) }))
	if len(got) != 1 || got[0].Text != TextStarting {
		t.Errorf("expected the current status on registration, got %+v", got)
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(nil, predict.NewMock(), lockout.New(nil, nil), DefaultConfig()); err == nil {
		t.Error("expected error for nil camera")
	}
}
