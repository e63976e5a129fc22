package predict

import (
	"log/slog"
	"net/http"
	"time"
)

// Config holds client configuration.
type Config struct {
	// BaseURL is the service root, e.g. "http://localhost:5000".
	BaseURL string

	// Timeout bounds each request when no HTTPClient is supplied.
	Timeout time.Duration

	// HTTPClient overrides the default client.
	HTTPClient *http.Client

	// Logger receives request diagnostics.
	Logger *slog.Logger
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithBaseURL sets the service base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Config) { c.HTTPClient = h }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns defaults for a local service.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "http://localhost:5000",
		Timeout: 5 * time.Second,
		Logger:  slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
