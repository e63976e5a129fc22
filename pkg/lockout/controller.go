package lockout

import (
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-posture/pkg/predict"
)

// Option configures a Controller.
type Option func(*Controller)

// WithThreshold sets how long bad readings must last before locking.
func WithThreshold(d time.Duration) Option {
	return func(c *Controller) { c.threshold = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// Controller is the lockout state machine. It is safe for concurrent use.
type Controller struct {
	threshold time.Duration
	now       func() time.Time
	logger    *slog.Logger

	display Display
	alarm   Alarm

	mu         sync.Mutex
	badSince   time.Time
	active     bool
	lockedAt   time.Time
	presenting bool
	fullscreen bool
	observers  []func(Event)
}

// New creates a controller. A nil display or alarm is replaced by Nop.
func New(display Display, alarm Alarm, opts ...Option) *Controller {
	c := &Controller{
		threshold: DefaultThreshold,
		now:       time.Now,
		logger:    slog.Default(),
		display:   display,
		alarm:     alarm,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.display == nil {
		c.display = Nop()
	}
	if c.alarm == nil {
		c.alarm = Nop()
	}
	c.logger = c.logger.With("component", "lockout")
	return c
}

// Threshold returns the configured lock threshold.
func (c *Controller) Threshold() time.Duration {
	return c.threshold
}

// OnTransition registers an observer called after each state change.
// Observers run outside the controller lock.
func (c *Controller) OnTransition(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Observe feeds one prediction into the state machine.
func (c *Controller) Observe(p predict.Prediction) Transition {
	now := c.now()

	c.mu.Lock()
	tr := None
	if p.Bad() {
		switch {
		case c.badSince.IsZero():
			c.badSince = now
			c.logger.Debug("bad run started", "at", now)
		case !c.active && now.Sub(c.badSince) > c.threshold:
			c.active = true
			c.lockedAt = now
			c.engageLocked()
			tr = Engaged
		}
	} else {
		c.badSince = time.Time{}
		if c.active {
			c.active = false
			c.lockedAt = time.Time{}
			c.disengageLocked()
			tr = Disengaged
		}
	}

	snap := c.snapshotLocked()
	observers := c.observers
	c.mu.Unlock()

	if tr != None {
		c.notify(tr, snap, now, observers)
	}
	return tr
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Engage forces the lockout on. It is a no-op when already locked. A
// forced lockout with no bad run in progress starts one at now, so a
// locked snapshot always has BadSince set.
func (c *Controller) Engage() Transition {
	now := c.now()

	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return None
	}
	if c.badSince.IsZero() {
		c.badSince = now
	}
	c.active = true
	c.lockedAt = now
	c.engageLocked()
	snap := c.snapshotLocked()
	observers := c.observers
	c.mu.Unlock()

	c.notify(Engaged, snap, now, observers)
	return Engaged
}

// Disengage clears the bad run and tears down any active lockout. It is
// a no-op when already clear. Used on shutdown so the screen and speaker
// are released.
func (c *Controller) Disengage() Transition {
	now := c.now()

	c.mu.Lock()
	wasActive := c.active
	c.badSince = time.Time{}
	c.active = false
	c.lockedAt = time.Time{}
	c.disengageLocked()
	snap := c.snapshotLocked()
	observers := c.observers
	c.mu.Unlock()

	if !wasActive {
		return None
	}
	c.notify(Disengaged, snap, now, observers)
	return Disengaged
}

func (c *Controller) notify(tr Transition, snap Snapshot, at time.Time, observers []func(Event)) {
	c.logger.Info("lockout "+tr.String(), "bad_since", snap.BadSince)
	ev := Event{Transition: tr, Snapshot: snap, At: at}
	for _, fn := range observers {
		fn(ev)
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Active:   c.active,
		BadSince: c.badSince,
		LockedAt: c.lockedAt,
	}
	if c.active {
		s.State = Locked
	}
	return s
}

// engageLocked raises the lockout. Each step is independent; the overlay
// is shown even when fullscreen or audio fail.
func (c *Controller) engageLocked() {
	if c.presenting {
		return
	}
	c.presenting = true

	if err := c.display.RequestFullscreen(); err != nil {
		c.warn("request fullscreen", err)
	} else {
		c.fullscreen = true
	}
	if err := c.alarm.PlayLoop(); err != nil {
		c.warn("play alarm", err)
	}
	if err := c.display.SetPulse(true); err != nil {
		c.warn("pulse on", err)
	}
	if err := c.display.ShowOverlay(); err != nil {
		c.warn("show overlay", err)
	}
}

// disengageLocked lowers the lockout. Fullscreen is only exited if the
// request to enter it succeeded.
func (c *Controller) disengageLocked() {
	if !c.presenting {
		return
	}
	c.presenting = false

	if err := c.display.HideOverlay(); err != nil {
		c.warn("hide overlay", err)
	}
	if err := c.alarm.Stop(); err != nil {
		c.warn("stop alarm", err)
	}
	if err := c.display.SetPulse(false); err != nil {
		c.warn("pulse off", err)
	}
	if c.fullscreen {
		c.fullscreen = false
		if err := c.display.ExitFullscreen(); err != nil {
			c.warn("exit fullscreen", err)
		}
	}
}

func (c *Controller) warn(op string, err error) {
	c.logger.Warn("presentation failed", "error", &PresentationError{Op: op, Err: err})
}
