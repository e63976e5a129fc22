// Package httpc builds the HTTP clients used to reach the inference service.
// Every client has a hard timeout and tags requests with a User-Agent.
package httpc

import (
	"net"
	"net/http"
	"time"
)

// UserAgent is sent on every request that does not set its own.
const UserAgent = "go-posture/1"

const (
	connectTimeout = 3 * time.Second
	idleTimeout    = 90 * time.Second
)

// NewClient returns a client whose requests give up after timeout.
// At most one idle connection is kept per host.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &agentTransport{base: newTransport()},
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          4,
		MaxIdleConnsPerHost:   1,
		IdleConnTimeout:       idleTimeout,
		TLSHandshakeTimeout:   connectTimeout,
	}
}

type agentTransport struct {
	base http.RoundTripper
}

func (t *agentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", UserAgent)
	return t.base.RoundTrip(r)
}
