package lockout

import "sync"

// Recorder implements Display and Alarm for testing. It records calls in
// order and can be told to fail specific operations.
type Recorder struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{fail: map[string]error{}}
}

// Fail makes op return err. Op names match the recorded call names.
func (r *Recorder) Fail(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[op] = err
}

// Calls returns the recorded call names in order.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// Count returns how many times op was called.
func (r *Recorder) Count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == op {
			n++
		}
	}
	return n
}

// Reset clears recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *Recorder) record(op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op)
	return r.fail[op]
}

func (r *Recorder) RequestFullscreen() error { return r.record("fullscreen") }
func (r *Recorder) ExitFullscreen() error    { return r.record("exit-fullscreen") }
func (r *Recorder) ShowOverlay() error       { return r.record("show-overlay") }
func (r *Recorder) HideOverlay() error       { return r.record("hide-overlay") }
func (r *Recorder) PlayLoop() error          { return r.record("play") }
func (r *Recorder) Stop() error              { return r.record("stop") }

func (r *Recorder) SetPulse(on bool) error {
	if on {
		return r.record("pulse-on")
	}
	return r.record("pulse-off")
}

var (
	_ Display = (*Recorder)(nil)
	_ Alarm   = (*Recorder)(nil)
)
