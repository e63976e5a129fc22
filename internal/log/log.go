// Package log sets up the process-wide slog logger.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

var (
	mu     sync.Mutex
	global *slog.Logger
)

// Options selects the handler for New and Init.
type Options struct {
	Level  string    // debug, info, warn or error
	Format string    // text, json, or auto (text on a terminal, json otherwise)
	Output io.Writer // defaults to stderr
}

// ParseLevel maps a level name to a slog level.
// Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger from opts.
func New(opts Options) *slog.Logger {
	w := opts.Output
	if w == nil {
		w = os.Stderr
	}
	h := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	if useJSON(opts.Format, w) {
		return slog.New(slog.NewJSONHandler(w, h))
	}
	return slog.New(slog.NewTextHandler(w, h))
}

func useJSON(format string, w io.Writer) bool {
	switch strings.ToLower(format) {
	case "json":
		return true
	case "auto":
		f, ok := w.(*os.File)
		return !ok || !term.IsTerminal(int(f.Fd()))
	default:
		return false
	}
}

// Init replaces the global logger and makes it slog's default.
func Init(opts Options) *slog.Logger {
	l := New(opts)
	mu.Lock()
	global = l
	mu.Unlock()
	slog.SetDefault(l)
	return l
}

// L returns the global logger, creating an info-level text logger on first
// use.
func L() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		global = New(Options{})
	}
	return global
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Error logs through the global logger.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}
