package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// RequestIDHeader correlates a logical call with its replay in backend logs.
const RequestIDHeader = "X-Request-ID"

// PendingRequest describes one outbound call. The body is already encoded so the
// request can be sent again byte-for-byte after a refresh.
type PendingRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte

	// Token is the bearer credential attached when the request is sent.
	// Nil means the request goes out unauthenticated.
	Token *oauth2.Token
}

// Response is a completed round trip, whatever its status.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the response body into out.
func (r *Response) DecodeJSON(out interface{}) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (r *Response) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func bearer(token string) *oauth2.Token {
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
}
