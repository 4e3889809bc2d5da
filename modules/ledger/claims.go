package ledger

import (
	"errors"
	"fmt"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var errNoToken = errors.New("no stored token")

// UserIDFromToken returns the userId claim of token without verifying its signature.
//
// The result is for building request paths and display only. The client cannot
// verify the token, so the backend must still authorize every call on its own.
func UserIDFromToken(token string) (string, error) {
	parsed, _, err := jwtlib.NewParser().ParseUnverified(token, jwtlib.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return "", errors.New("error extracting claims")
	}

	switch id := claims["userId"].(type) {
	case string:
		if id != "" {
			return id, nil
		}
	case float64:
		return fmt.Sprintf("%.0f", id), nil
	}
	return "", errors.New("token has no userId claim")
}
