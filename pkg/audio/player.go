// Package audio plays the local lockout alarm through an external player
// process and generates the default alarm tone.
package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNoPlayer is returned when no audio player binary can be found.
var ErrNoPlayer = errors.New("audio: no player found")

// restartDelay spaces out loop iterations so a player that exits at once
// does not spin.
const restartDelay = 100 * time.Millisecond

// candidates lists player commands in preference order per OS. The sound
// file path is appended as the last argument.
var candidates = map[string][][]string{
	"linux":  {{"paplay"}, {"aplay", "-q"}, {"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"}},
	"darwin": {{"afplay"}, {"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"}},
}

// DetectPlayer returns the first available player command for this OS.
func DetectPlayer() ([]string, error) {
	for _, cmd := range candidates[runtime.GOOS] {
		if _, err := exec.LookPath(cmd[0]); err == nil {
			return cmd, nil
		}
	}
	return nil, ErrNoPlayer
}

// Player loops a sound file through an external player until stopped.
// It implements lockout.Alarm.
type Player struct {
	command []string
	sound   string
	logger  *slog.Logger

	// tmp is set when the sound was written from memory.
	tmp string

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	plays   atomic.Int64
	failed  atomic.Int64
	lastErr atomic.Pointer[error]
}

// NewPlayer creates a player for the sound file at path. An empty command
// is resolved with DetectPlayer.
func NewPlayer(command []string, path string, logger *slog.Logger) (*Player, error) {
	if len(command) == 0 {
		var err error
		if command, err = DetectPlayer(); err != nil {
			return nil, err
		}
	}
	if _, err := exec.LookPath(command[0]); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoPlayer, command[0])
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio: sound file: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Player{
		command: command,
		sound:   path,
		logger:  logger.With("component", "audio"),
	}, nil
}

// NewPlayerData writes data to a temporary file and plays it. Close
// removes the file.
func NewPlayerData(command []string, data []byte, logger *slog.Logger) (*Player, error) {
	f, err := os.CreateTemp("", "posture-alarm-*.wav")
	if err != nil {
		return nil, fmt.Errorf("audio: temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("audio: write sound: %w", err)
	}
	f.Close()

	p, err := NewPlayer(command, f.Name(), logger)
	if err != nil {
		os.Remove(f.Name())
		return nil, err
	}
	p.tmp = f.Name()
	return p, nil
}

// Sound returns the path of the sound being played.
func (p *Player) Sound() string {
	return p.sound
}

// PlayLoop starts looping the sound. A second call while looping is a
// no-op.
func (p *Player) PlayLoop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	p.logger.Debug("alarm started", "player", p.command[0], "sound", filepath.Base(p.sound))
	go p.loop(ctx, p.done)
	return nil
}

func (p *Player) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	args := append(append([]string{}, p.command[1:]...), p.sound)
	for {
		cmd := exec.CommandContext(ctx, p.command[0], args...)
		p.plays.Add(1)
		if err := cmd.Run(); err != nil && ctx.Err() == nil {
			p.failed.Add(1)
			p.lastErr.Store(&err)
			p.logger.Warn("alarm playback failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(restartDelay):
		}
	}
}

// Stop ends the loop and kills the running player. The next PlayLoop
// starts from the beginning of the sound.
func (p *Player) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	p.logger.Debug("alarm stopped", "plays", p.plays.Load())
	return nil
}

// IsPlaying returns whether the loop is running.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Plays returns how many times the player process has been started.
func (p *Player) Plays() int64 {
	return p.plays.Load()
}

// Failures returns how many player runs exited with an error.
func (p *Player) Failures() int64 {
	return p.failed.Load()
}

// LastError returns the most recent playback failure, if any.
func (p *Player) LastError() error {
	if err := p.lastErr.Load(); err != nil {
		return *err
	}
	return nil
}

// Close stops playback and removes any temporary sound file.
func (p *Player) Close() error {
	p.Stop()
	if p.tmp != "" {
		return os.Remove(p.tmp)
	}
	return nil
}
