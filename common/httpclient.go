package common

import (
	"net/http"
	"net/http/cookiejar"
	"time"
)

// HttpClient is the transport the API client sends through.
// This allows mocking or custom transport layers in testing.
type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
	CloseIdleConnections()
}

// DefaultTimeout bounds a single round trip when the caller does not set one.
const DefaultTimeout = 10 * time.Second

// userAgentRoundTripper is a custom RoundTripper that adds a User-Agent header.
type userAgentRoundTripper struct {
	Wrapped   http.RoundTripper
	UserAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone request to avoid mutating the original
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", rt.UserAgent)
	return rt.Wrapped.RoundTrip(clone)
}

// Implementation of HttpClient that wraps a standard *http.Client.
type httpClient struct {
	client *http.Client
}

// NewHttpClient returns an HttpClient with a custom User-Agent and a cookie jar.
// The jar keeps the backend's session cookie, which the refresh endpoint relies on.
// A zero timeout falls back to DefaultTimeout.
func NewHttpClient(userAgent string, base *http.Client, timeout time.Duration) HttpClient {
	if base.Transport == nil {
		base.Transport = http.DefaultTransport
	}
	base.Transport = &userAgentRoundTripper{
		Wrapped:   base.Transport,
		UserAgent: userAgent,
	}
	if base.Jar == nil {
		// cookiejar.New only fails on a bad PublicSuffixList, and we pass none
		jar, _ := cookiejar.New(nil)
		base.Jar = jar
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base.Timeout = timeout

	return &httpClient{
		client: base,
	}
}

func (h *httpClient) Do(req *http.Request) (*http.Response, error) {
	return h.client.Do(req)
}

func (h *httpClient) CloseIdleConnections() {
	h.client.CloseIdleConnections()
}
