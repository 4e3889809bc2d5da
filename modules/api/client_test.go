package api_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/guarzo/ledgerapi/common"
	"github.com/guarzo/ledgerapi/modules/api"
)

// backend records what reached it and answers from per-test handlers.
type backend struct {
	mu           sync.Mutex
	auth         []string
	requestIDs   []string
	productCalls atomic.Int32
	refreshCalls atomic.Int32

	product func(call int32, r *http.Request, w http.ResponseWriter)
	refresh func(w http.ResponseWriter)
}

func newBackend(t *testing.T, b *backend) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/user/refresh-token" {
			b.refreshCalls.Add(1)
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			b.refresh(w)
			return
		}
		b.mu.Lock()
		b.auth = append(b.auth, r.Header.Get("Authorization"))
		b.requestIDs = append(b.requestIDs, r.Header.Get(api.RequestIDHeader))
		b.mu.Unlock()
		b.product(b.productCalls.Add(1), r, w)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func refreshWith(token string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		fmt.Fprintf(w, `{"token":%q}`, token)
	}
}

func okProducts(_ int32, _ *http.Request, w http.ResponseWriter) {
	fmt.Fprint(w, `[{"id":"p1"}]`)
}

type expiryCounter struct {
	calls atomic.Int32
}

func (e *expiryCounter) hook() {
	e.calls.Add(1)
}

func newClient(t *testing.T, url string, token string, auth common.AuthClient, expired *expiryCounter) (api.ApiClient, common.SessionStore) {
	t.Helper()
	store := common.NewMemoryStore("")
	if token != "" {
		require.NoError(t, store.Set(context.Background(), token, time.Hour))
	}
	cfg := api.Config{BaseURL: url}
	if expired != nil {
		cfg.OnSessionExpired = expired.hook
	}
	hc := common.NewHttpClient("ledgerapi-test", &http.Client{}, 5*time.Second)
	return api.NewApiClient(cfg, hc, store, auth), store
}

func TestRequest_AttachesStoredToken(t *testing.T) {
	b := &backend{product: okProducts, refresh: refreshWith("unused")}
	ts := newBackend(t, b)
	client, _ := newClient(t, ts.URL, "abc", nil, nil)

	resp, err := client.Get(context.Background(), "/product/123")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Bearer abc"}, b.auth)
	assert.Equal(t, int32(0), b.refreshCalls.Load())
}

func TestRequest_NoTokenIsNotAnError(t *testing.T) {
	b := &backend{product: okProducts, refresh: refreshWith("unused")}
	ts := newBackend(t, b)
	client, _ := newClient(t, ts.URL, "", nil, nil)

	_, err := client.Get(context.Background(), "/user/register")
	require.NoError(t, err)
	assert.Equal(t, []string{""}, b.auth)
}

func TestRequest_RefreshAndReplay(t *testing.T) {
	b := &backend{
		product: func(call int32, r *http.Request, w http.ResponseWriter) {
			if r.Header.Get("Authorization") != "Bearer xyz" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			fmt.Fprint(w, `[{"id":"p1","name":"Widget"}]`)
		},
		refresh: refreshWith("xyz"),
	}
	ts := newBackend(t, b)
	expired := &expiryCounter{}
	client, store := newClient(t, ts.URL, "abc", nil, expired)

	resp, err := client.Get(context.Background(), "/product/123")
	require.NoError(t, err)

	var products []map[string]string
	require.NoError(t, resp.DecodeJSON(&products))
	require.Len(t, products, 1)
	assert.Equal(t, "Widget", products[0]["name"])

	assert.Equal(t, []string{"Bearer abc", "Bearer xyz"}, b.auth)
	assert.Equal(t, int32(1), b.refreshCalls.Load())
	assert.Equal(t, int32(0), expired.calls.Load())

	// the replay is the same logical call
	require.Len(t, b.requestIDs, 2)
	assert.NotEmpty(t, b.requestIDs[0])
	assert.Equal(t, b.requestIDs[0], b.requestIDs[1])

	token, found, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "xyz", token)
}

func TestRequest_ReplayIsFinalEvenOn401(t *testing.T) {
	b := &backend{
		product: func(_ int32, _ *http.Request, w http.ResponseWriter) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"still no"}`)
		},
		refresh: refreshWith("T2"),
	}
	ts := newBackend(t, b)
	expired := &expiryCounter{}
	client, store := newClient(t, ts.URL, "T1", nil, expired)

	_, err := client.Get(context.Background(), "/user/me")
	require.Error(t, err)

	assert.True(t, errors.Is(err, common.ErrRejected))
	assert.Equal(t, http.StatusUnauthorized, common.StatusCode(err))
	assert.Equal(t, int32(1), b.refreshCalls.Load())
	assert.Equal(t, int32(2), b.productCalls.Load())
	assert.Equal(t, []string{"Bearer T1", "Bearer T2"}, b.auth)
	assert.Equal(t, int32(0), expired.calls.Load())

	token, _, _ := store.Get(context.Background())
	assert.Equal(t, "T2", token)
}

func TestRequest_RefreshFailure(t *testing.T) {
	unauthorized := func(_ int32, _ *http.Request, w http.ResponseWriter) {
		w.WriteHeader(http.StatusUnauthorized)
	}

	tests := []struct {
		name    string
		refresh func(w http.ResponseWriter)
	}{
		{
			name: "non-2xx",
			refresh: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusForbidden)
			},
		},
		{
			name: "missing token field",
			refresh: func(w http.ResponseWriter) {
				fmt.Fprint(w, `{"message":"ok"}`)
			},
		},
		{
			name: "empty token",
			refresh: func(w http.ResponseWriter) {
				fmt.Fprint(w, `{"token":""}`)
			},
		},
		{
			name: "malformed body",
			refresh: func(w http.ResponseWriter) {
				fmt.Fprint(w, `not json`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &backend{product: unauthorized, refresh: tt.refresh}
			ts := newBackend(t, b)
			expired := &expiryCounter{}
			client, store := newClient(t, ts.URL, "abc", nil, expired)

			_, err := client.Delete(context.Background(), "/product/9")
			require.Error(t, err)

			assert.True(t, errors.Is(err, common.ErrUnauthenticated))
			assert.False(t, errors.Is(err, common.ErrRejected))
			assert.Equal(t, int32(1), b.productCalls.Load(), "original request must not be resent")
			assert.Equal(t, int32(1), b.refreshCalls.Load())
			assert.Equal(t, int32(1), expired.calls.Load())

			var unauth *common.UnauthenticatedError
			require.True(t, errors.As(err, &unauth))
			assert.Equal(t, http.StatusUnauthorized, common.StatusCode(unauth.Original))

			token, _, _ := store.Get(context.Background())
			assert.Equal(t, "abc", token)
		})
	}
}

type stubAuth struct {
	calls int
	fn    func(ctx context.Context) (*oauth2.Token, error)
}

func (s *stubAuth) RefreshToken(ctx context.Context) (*oauth2.Token, error) {
	s.calls++
	return s.fn(ctx)
}

func TestRequest_RefreshNetworkFailure(t *testing.T) {
	b := &backend{
		product: func(_ int32, _ *http.Request, w http.ResponseWriter) {
			w.WriteHeader(http.StatusUnauthorized)
		},
	}
	ts := newBackend(t, b)
	auth := &stubAuth{fn: func(context.Context) (*oauth2.Token, error) {
		return nil, &common.NetworkError{Op: "POST /user/refresh-token", Err: errors.New("connection reset")}
	}}
	expired := &expiryCounter{}
	client, _ := newClient(t, ts.URL, "abc", auth, expired)

	_, err := client.Get(context.Background(), "/user/validate-jwt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUnauthenticated))
	assert.Equal(t, 1, auth.calls)
	assert.Equal(t, int32(1), b.productCalls.Load())
	assert.Equal(t, int32(1), expired.calls.Load())
}

func TestRequest_NilTokenFromAuthClient(t *testing.T) {
	b := &backend{
		product: func(_ int32, _ *http.Request, w http.ResponseWriter) {
			w.WriteHeader(http.StatusUnauthorized)
		},
	}
	ts := newBackend(t, b)
	auth := &stubAuth{fn: func(context.Context) (*oauth2.Token, error) { return nil, nil }}
	expired := &expiryCounter{}
	client, _ := newClient(t, ts.URL, "abc", auth, expired)

	_, err := client.Get(context.Background(), "/user/me")
	assert.True(t, errors.Is(err, common.ErrUnauthenticated))
	assert.Equal(t, int32(1), expired.calls.Load())
}

func TestRequest_OtherFailuresPropagate(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			b := &backend{
				product: func(_ int32, _ *http.Request, w http.ResponseWriter) {
					w.WriteHeader(status)
					fmt.Fprint(w, `{"error":"nope"}`)
				},
				refresh: refreshWith("unused"),
			}
			ts := newBackend(t, b)
			expired := &expiryCounter{}
			client, _ := newClient(t, ts.URL, "abc", nil, expired)

			_, err := client.Post(context.Background(), "/product", api.JSON(map[string]string{"name": "x"}))
			require.Error(t, err)

			var httpErr *common.HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, status, httpErr.StatusCode)
			assert.JSONEq(t, `{"error":"nope"}`, string(httpErr.Body))
			assert.Equal(t, int32(0), b.refreshCalls.Load())
			assert.Equal(t, int32(1), b.productCalls.Load())
			assert.Equal(t, int32(0), expired.calls.Load())
		})
	}
}

func TestRequest_NetworkFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	expired := &expiryCounter{}
	client, _ := newClient(t, url, "abc", nil, expired)

	_, err := client.Get(context.Background(), "/user/me")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNetworkFailure))
	assert.Equal(t, int32(0), expired.calls.Load())
}

func TestRequest_NoHiddenCaching(t *testing.T) {
	b := &backend{product: okProducts, refresh: refreshWith("unused")}
	ts := newBackend(t, b)
	client, _ := newClient(t, ts.URL, "abc", nil, nil)

	for i := 0; i < 2; i++ {
		_, err := client.Get(context.Background(), "/product/123")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), b.productCalls.Load())
	assert.Equal(t, []string{"Bearer abc", "Bearer abc"}, b.auth)
	assert.NotEqual(t, b.requestIDs[0], b.requestIDs[1])
}

func TestRequest_MultipartReplayIsIdentical(t *testing.T) {
	image := []byte{0x89, 'P', 'N', 'G', 0x00, 0x01}
	type seen struct {
		name  string
		image []byte
	}
	var (
		mu     sync.Mutex
		bodies []seen
	)

	b := &backend{
		product: func(call int32, r *http.Request, w http.ResponseWriter) {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f, _, err := r.FormFile("image")
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			data, _ := io.ReadAll(f)
			mu.Lock()
			bodies = append(bodies, seen{name: r.FormValue("name"), image: data})
			mu.Unlock()

			if call == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			fmt.Fprint(w, `{"id":"p1"}`)
		},
		refresh: refreshWith("fresh"),
	}
	ts := newBackend(t, b)
	client, _ := newClient(t, ts.URL, "stale", nil, nil)

	body := api.Multipart(
		map[string]string{"name": "Widget", "price": "9.5"},
		api.File{Field: "image", Filename: "w.png", ContentType: "image/png", Content: bytes.NewReader(image)},
	)
	_, err := client.Put(context.Background(), "/product/p1", body)
	require.NoError(t, err)

	require.Len(t, bodies, 2)
	for _, s := range bodies {
		assert.Equal(t, "Widget", s.name)
		assert.Equal(t, image, s.image)
	}
	assert.Equal(t, []string{"Bearer stale", "Bearer fresh"}, b.auth)
}

func TestRequest_CancelledDuringRefresh(t *testing.T) {
	b := &backend{
		product: func(_ int32, _ *http.Request, w http.ResponseWriter) {
			w.WriteHeader(http.StatusUnauthorized)
		},
	}
	ts := newBackend(t, b)

	ctx, cancel := context.WithCancel(context.Background())
	auth := &stubAuth{fn: func(ctx context.Context) (*oauth2.Token, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	expired := &expiryCounter{}
	client, _ := newClient(t, ts.URL, "abc", auth, expired)

	_, err := client.Get(ctx, "/product/1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNetworkFailure))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int32(0), expired.calls.Load())
	assert.Equal(t, int32(1), b.productCalls.Load())
}

func TestRequest_CancelledDuringReplay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	b := &backend{
		product: func(call int32, r *http.Request, w http.ResponseWriter) {
			if call == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			cancel()
			select {
			case <-r.Context().Done():
			case <-release:
			}
		},
		refresh: refreshWith("xyz"),
	}
	ts := newBackend(t, b)
	defer close(release)
	client, _ := newClient(t, ts.URL, "abc", nil, nil)

	_, err := client.Get(ctx, "/product/1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNetworkFailure))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRequest_ConcurrentUnauthorizedCallsRefreshIndependently(t *testing.T) {
	b := &backend{
		product: func(_ int32, r *http.Request, w http.ResponseWriter) {
			if r.Header.Get("Authorization") != "Bearer new" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			fmt.Fprint(w, `[]`)
		},
		refresh: refreshWith("new"),
	}
	ts := newBackend(t, b)
	client, _ := newClient(t, ts.URL, "old", nil, nil)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Get(context.Background(), fmt.Sprintf("/product/%d", i))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	// every call refreshes at most once; redundant refreshes are allowed
	assert.GreaterOrEqual(t, b.refreshCalls.Load(), int32(1))
	assert.LessOrEqual(t, b.refreshCalls.Load(), int32(4))
}

func TestRequest_BaseURLWithPrefix(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{}`)
	}))
	defer ts.Close()

	client, _ := newClient(t, ts.URL+"/api/", "", nil, nil)
	_, err := client.Get(context.Background(), "/user/me")
	require.NoError(t, err)
	assert.Equal(t, "/api/user/me", gotPath)
}

func TestSessionExpired_RunsHook(t *testing.T) {
	expired := &expiryCounter{}
	client, _ := newClient(t, "http://127.0.0.1:1", "", nil, expired)

	client.SessionExpired()
	assert.Equal(t, int32(1), expired.calls.Load())

	// no hook configured is fine
	bare, _ := newClient(t, "http://127.0.0.1:1", "", nil, nil)
	assert.NotPanics(t, bare.SessionExpired)
}
