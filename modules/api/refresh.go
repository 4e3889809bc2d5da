package api

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/guarzo/ledgerapi/common"
	"github.com/guarzo/ledgerapi/common/model"
)

// DefaultRefreshPath is the backend route that trades the session cookie for a new token.
const DefaultRefreshPath = "/user/refresh-token"

var _ common.AuthClient = (*endpointRefresher)(nil)

// endpointRefresher calls the refresh route through a transport that never
// refreshes itself, so a failing refresh cannot recurse.
type endpointRefresher struct {
	transport Transport
	path      string
	ttl       time.Duration
}

// NewEndpointRefresher returns an AuthClient that POSTs to path with no body.
// The new token's expiry is set ttl from now.
func NewEndpointRefresher(transport Transport, path string, ttl time.Duration) common.AuthClient {
	if path == "" {
		path = DefaultRefreshPath
	}
	if ttl <= 0 {
		ttl = common.DefaultTokenTTL
	}
	return &endpointRefresher{
		transport: transport,
		path:      path,
		ttl:       ttl,
	}
}

func (r *endpointRefresher) RefreshToken(ctx context.Context) (*oauth2.Token, error) {
	resp, err := r.transport(ctx, &PendingRequest{
		Method: http.MethodPost,
		Path:   r.path,
		Header: http.Header{},
	})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, &common.HTTPError{StatusCode: resp.StatusCode, Body: resp.Body}
	}

	var tr model.TokenResponse
	if err := resp.DecodeJSON(&tr); err != nil {
		return nil, err
	}
	if tr.Token == "" {
		return nil, errMissingToken
	}

	token := bearer(tr.Token)
	token.Expiry = time.Now().Add(r.ttl)
	return token, nil
}
