package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/guarzo/ledgerapi/common"
)

// Transport performs one round trip. Any HTTP status is a *Response; only
// transport-level failures are errors.
type Transport func(ctx context.Context, req *PendingRequest) (*Response, error)

var errMissingToken = errors.New("refresh response carried no token")

// HTTPTransport sends requests to baseURL through httpClient.
func HTTPTransport(baseURL string, httpClient common.HttpClient) Transport {
	return func(ctx context.Context, pr *PendingRequest) (*Response, error) {
		urlStr, err := buildURL(baseURL, pr.Path)
		if err != nil {
			return nil, err
		}

		var body io.Reader
		if len(pr.Body) > 0 {
			body = bytes.NewReader(pr.Body)
		}
		req, err := http.NewRequestWithContext(ctx, pr.Method, urlStr, body)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		for k, vals := range pr.Header {
			for _, v := range vals {
				req.Header.Add(k, v)
			}
		}
		if req.Header.Get("Accept") == "" {
			req.Header.Set("Accept", "application/json")
		}
		if pr.Token != nil && pr.Token.AccessToken != "" {
			pr.Token.SetAuthHeader(req)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, &common.NetworkError{Op: pr.Method + " " + pr.Path, Err: err}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &common.NetworkError{Op: "read " + pr.Path, Err: err}
		}
		return &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       data,
		}, nil
	}
}

// WithBearer attaches the stored credential, if any, before calling next.
// A store that cannot be read is treated like an empty one.
func WithBearer(next Transport, store common.SessionStore, logger zerolog.Logger) Transport {
	return func(ctx context.Context, pr *PendingRequest) (*Response, error) {
		token, found, err := store.Get(ctx)
		switch {
		case err != nil:
			logger.Warn().Err(err).Str("path", pr.Path).Msg("session store unreadable, sending unauthenticated")
		case found:
			pr.Token = bearer(token)
		}
		return next(ctx, pr)
	}
}

// RefreshConfig configures WithRefresh.
type RefreshConfig struct {
	Auth  common.AuthClient
	Store common.SessionStore
	// TTL applied when the refreshed token is stored.
	TTL time.Duration
	// OnSessionExpired is called once per request whose 401 could not be recovered.
	OnSessionExpired func()
	Logger           zerolog.Logger
}

// WithRefresh recovers from a 401 by refreshing the credential and resending the
// same request once. The replay's outcome is final, even another 401.
// If the refresh fails the request is not resent: OnSessionExpired fires and an
// *common.UnauthenticatedError is returned.
func WithRefresh(next Transport, cfg RefreshConfig) Transport {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = common.DefaultTokenTTL
	}

	return func(ctx context.Context, pr *PendingRequest) (*Response, error) {
		resp, err := next(ctx, pr)
		if err != nil || resp.StatusCode != http.StatusUnauthorized {
			return resp, err
		}

		logger := cfg.Logger.With().
			Str("request_id", pr.Header.Get(RequestIDHeader)).
			Str("method", pr.Method).
			Str("path", pr.Path).
			Logger()
		logger.Info().Msg("unauthorized, attempting token refresh")

		original := &common.HTTPError{StatusCode: resp.StatusCode, Body: resp.Body}
		newToken, refreshErr := cfg.Auth.RefreshToken(ctx)
		if refreshErr == nil && (newToken == nil || newToken.AccessToken == "") {
			refreshErr = errMissingToken
		}

		if refreshErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				common.RefreshesTotal.WithLabelValues("cancelled").Inc()
				return nil, &common.NetworkError{Op: "refresh token", Err: ctxErr}
			}
			common.RefreshesTotal.WithLabelValues("failed").Inc()
			common.SessionExpirationsTotal.Inc()
			logger.Warn().Err(refreshErr).Msg("failed to refresh token, session expired")
			if cfg.OnSessionExpired != nil {
				cfg.OnSessionExpired()
			}
			return nil, &common.UnauthenticatedError{Original: original, Cause: refreshErr}
		}
		common.RefreshesTotal.WithLabelValues("success").Inc()

		if err := cfg.Store.Set(ctx, newToken.AccessToken, ttl); err != nil {
			// the replay still carries the new token
			logger.Warn().Err(err).Msg("failed to store refreshed token")
		}

		pr.Token = newToken
		common.ReplaysTotal.Inc()
		logger.Debug().Msg("replaying request with refreshed token")
		return next(ctx, pr)
	}
}

// buildURL joins baseURL and a backend route.
func buildURL(baseURL, path string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	full := *base
	full.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	full.RawPath = ""
	full.RawQuery = ref.RawQuery
	return full.String(), nil
}
