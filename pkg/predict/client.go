package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/teslashibe/go-posture/internal/httpc"
)

const (
	predictPath = "/predict"
	pingPath    = "/ping"

	// maxBody caps how much of a response is read.
	maxBody = 1 << 20
)

// Client is the HTTP inference client. It makes exactly one request per
// call; retrying is left to the next tick.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a new inference client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("predict: base URL required")
	}

	h := cfg.HTTPClient
	if h == nil {
		h = httpc.NewClient(cfg.Timeout)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: baseURL,
		http:    h,
		logger:  logger.With("component", "predict.client"),
	}, nil
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Predict posts one JPEG frame as multipart field "image" and parses the
// JSON response.
func (c *Client) Predict(ctx context.Context, jpeg []byte) (*Prediction, error) {
	if len(jpeg) == 0 {
		return nil, ErrEmptyImage
	}
	start := time.Now()

	body, contentType, err := encodeImageForm(jpeg)
	if err != nil {
		return nil, fmt.Errorf("predict: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictPath, body)
	if err != nil {
		return nil, fmt.Errorf("predict: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, wrapTransport("post "+predictPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.parseError(resp, predictPath)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, wrapTransport("read "+predictPath, err)
	}

	p, err := decodePrediction(raw)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("prediction",
		"label", p.Label,
		"class", int(p.Class),
		"confidence", p.Confidence,
		"bytes", len(jpeg),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return p, nil
}

// Ping checks GET /ping for a 2xx status.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pingPath, nil)
	if err != nil {
		return fmt.Errorf("predict: create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return wrapTransport("get "+pingPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.parseError(resp, pingPath)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// parseError reads the body of a failed response into an APIError.
func (c *Client) parseError(resp *http.Response, path string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	message := strings.TrimSpace(string(body))
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		message = errResp.Error
	}

	c.logger.Warn("request failed", "path", path, "status", resp.StatusCode)
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Path:       path,
	}
}

// encodeImageForm builds the multipart body with a single "image" part.
func encodeImageForm(jpeg []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(jpeg); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// API response type. Pointers distinguish missing fields from zero values.
type predictResponse struct {
	Label      *string  `json:"label"`
	Class      *int     `json:"class"`
	Confidence *float64 `json:"confidence"`
}

func decodePrediction(raw []byte) (*Prediction, error) {
	var r predictResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, malformed("decode body: %v", err)
	}
	if r.Label == nil {
		return nil, malformed("missing label")
	}
	if r.Class == nil {
		return nil, malformed("missing class")
	}

	class := Class(*r.Class)
	if !class.Valid() {
		return nil, malformed("unknown class %d", *r.Class)
	}

	p := &Prediction{Label: *r.Label, Class: class}
	if r.Confidence != nil {
		p.Confidence = *r.Confidence
	}
	return p, nil
}

// Verify Client implements Predictor at compile time.
var _ Predictor = (*Client)(nil)
