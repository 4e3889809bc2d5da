package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/guarzo/ledgerapi/common"
)

// ApiClient performs calls against the ledger backend, keeping the caller
// authenticated without per-call retry logic.
//
// Every call attaches the stored bearer token. A 401 triggers one refresh and
// one replay of the same request; if the refresh fails the session-expired
// hook runs and the call fails with common.ErrUnauthenticated.
// Non-2xx responses fail with *common.HTTPError (common.ErrRejected) and transport
// failures with *common.NetworkError (common.ErrNetworkFailure).
type ApiClient interface {
	Request(ctx context.Context, method, path string, body Body, header http.Header) (*Response, error)
	Get(ctx context.Context, path string) (*Response, error)
	Post(ctx context.Context, path string, body Body) (*Response, error)
	Put(ctx context.Context, path string, body Body) (*Response, error)
	Delete(ctx context.Context, path string) (*Response, error)
	Store() common.SessionStore
	// SessionExpired runs the session-expired hook for a session the caller found
	// to be gone without making a request, such as no stored token at all.
	SessionExpired()
}

// Config holds the client's settings. Only BaseURL is required.
type Config struct {
	BaseURL     string
	RefreshPath string
	TokenTTL    time.Duration
	// OnSessionExpired is where the embedding application sends the user back to login.
	OnSessionExpired func()
	Logger           *zerolog.Logger
}

type apiClient struct {
	transport Transport
	store     common.SessionStore
	onExpired func()
	logger    zerolog.Logger
}

// NewApiClient wires the transport chain: bearer attachment, then 401 recovery,
// then the HTTP round trip. A nil authClient refreshes through cfg.RefreshPath.
func NewApiClient(cfg Config, httpClient common.HttpClient, store common.SessionStore, authClient common.AuthClient) ApiClient {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	if store == nil {
		store = common.NewMemoryStore(common.AccessTokenKey)
	}

	base := HTTPTransport(cfg.BaseURL, httpClient)
	if authClient == nil {
		authClient = NewEndpointRefresher(WithBearer(base, store, logger), cfg.RefreshPath, cfg.TokenTTL)
	}

	transport := WithBearer(WithRefresh(base, RefreshConfig{
		Auth:             authClient,
		Store:            store,
		TTL:              cfg.TokenTTL,
		OnSessionExpired: cfg.OnSessionExpired,
		Logger:           logger,
	}), store, logger)

	return &apiClient{
		transport: transport,
		store:     store,
		onExpired: cfg.OnSessionExpired,
		logger:    logger,
	}
}

// Request sends one logical call. header may be nil.
func (c *apiClient) Request(ctx context.Context, method, path string, body Body, header http.Header) (*Response, error) {
	pr := &PendingRequest{
		Method: method,
		Path:   path,
		Header: header.Clone(),
	}
	if pr.Header == nil {
		pr.Header = http.Header{}
	}
	if pr.Header.Get(RequestIDHeader) == "" {
		pr.Header.Set(RequestIDHeader, uuid.NewString())
	}

	if body != nil {
		data, contentType, err := body.Encode()
		if err != nil {
			return nil, err
		}
		pr.Body = data
		// the encoder knows the multipart boundary, so it wins over a caller's header
		pr.Header.Set("Content-Type", contentType)
	}

	resp, err := c.transport(ctx, pr)
	if err != nil {
		c.record(method, err)
		c.logger.Error().Err(err).
			Str("request_id", pr.Header.Get(RequestIDHeader)).
			Str("method", method).
			Str("path", path).
			Msg("request failed")
		return nil, err
	}

	if !resp.ok() {
		httpErr := &common.HTTPError{StatusCode: resp.StatusCode, Body: resp.Body}
		c.record(method, httpErr)
		c.logger.Error().
			Str("request_id", pr.Header.Get(RequestIDHeader)).
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Msg("request rejected")
		return nil, httpErr
	}

	c.record(method, nil)
	return resp, nil
}

func (c *apiClient) Get(ctx context.Context, path string) (*Response, error) {
	return c.Request(ctx, http.MethodGet, path, nil, nil)
}

func (c *apiClient) Post(ctx context.Context, path string, body Body) (*Response, error) {
	return c.Request(ctx, http.MethodPost, path, body, nil)
}

func (c *apiClient) Put(ctx context.Context, path string, body Body) (*Response, error) {
	return c.Request(ctx, http.MethodPut, path, body, nil)
}

func (c *apiClient) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Request(ctx, http.MethodDelete, path, nil, nil)
}

// Store exposes the session store so login flows can write the first token.
func (c *apiClient) Store() common.SessionStore {
	return c.store
}

func (c *apiClient) SessionExpired() {
	common.SessionExpirationsTotal.Inc()
	if c.onExpired != nil {
		c.onExpired()
	}
}

func (c *apiClient) record(method string, err error) {
	outcome := common.OutcomeSuccess
	switch {
	case err == nil:
	case errors.Is(err, common.ErrUnauthenticated):
		outcome = common.OutcomeUnauthenticated
	case errors.Is(err, common.ErrNetworkFailure):
		outcome = common.OutcomeNetwork
	default:
		outcome = common.OutcomeRejected
	}
	common.RequestsTotal.WithLabelValues(method, outcome).Inc()
}
