// Package httpc builds the HTTP clients used by the model and speech
// providers.
package httpc

import (
	"net"
	"net/http"
	"time"
)

// HeaderTimeout bounds the wait for response headers. A provider that has
// not started answering by then is treated as down so the turn can fail
// over instead of leaving the caller in silence.
const HeaderTimeout = 20 * time.Second

// NewClient returns a client whose whole exchange, body included, is bounded
// by timeout. Zero means unbounded, which the SDK provider uses because it
// applies its own per-request deadline.
func NewClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConnsPerHost:   8,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: HeaderTimeout,
		},
	}
}
