package common

import (
	_ "embed"
	"net/http"
	"strings"
	"time"
)

//go:embed VERSION
var version string

// Version returns the embedded release version.
func Version() string {
	return strings.TrimSpace(version)
}

// UserAgent is sent on every outbound request to device clouds.
func UserAgent() string {
	return "PlugMeter/" + Version()
}

type userAgentTransport struct {
	transport http.RoundTripper
	userAgent string
}

// RoundTrip implements http.RoundTripper.
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// the caller may reuse the request, so never mutate its headers
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.transport.RoundTrip(req)
}

// HTTPClient returns an http client with the PlugMeter user-agent and the
// given overall timeout.
func HTTPClient(timeout time.Duration) *http.Client {
	return WrapClient(&http.Client{Timeout: timeout})
}

// WrapClient installs the user-agent transport on an existing client, keeping
// its timeout. Used for clients handed out by httptest servers.
func WrapClient(c *http.Client) *http.Client {
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Transport: &userAgentTransport{
			transport: base,
			userAgent: UserAgent(),
		},
		Timeout: c.Timeout,
	}
}
