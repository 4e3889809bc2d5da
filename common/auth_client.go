package common

import (
	"context"

	"golang.org/x/oauth2"
)

// AuthClient defines the ability to obtain a fresh bearer credential.
// The backend refreshes from the ambient session cookie, so no refresh token
// is passed in.
type AuthClient interface {
	// RefreshToken asks the backend for a new access token.
	// Returns a new *oauth2.Token on success, or an error if refresh fails.
	RefreshToken(ctx context.Context) (*oauth2.Token, error)
}
