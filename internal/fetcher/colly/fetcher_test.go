package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/favicon-resolver/internal/icon"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/x-icon")
		_, _ = w.Write(pngBytes)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/page", http.StatusFound)
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><head></head><body>hi</body></html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetcherGet(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	f := New(Config{UserAgent: "icon-test", Timeout: 2 * time.Second}, zap.NewNop())
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		resp := f.Get(ctx, srv.URL+"/favicon.ico")
		require.True(t, resp.OK)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/x-icon", resp.MimeType)
		assert.Equal(t, pngBytes, resp.Body)
		assert.Equal(t, len(pngBytes), resp.Length)
	})

	t.Run("FollowsRedirects", func(t *testing.T) {
		resp := f.Get(ctx, srv.URL+"/moved")
		require.True(t, resp.OK)
		assert.Equal(t, srv.URL+"/moved", resp.URL)
		assert.Equal(t, srv.URL+"/page", resp.FinalURL)
		assert.Contains(t, string(resp.Body), "<body>hi</body>")
	})

	t.Run("NotFound", func(t *testing.T) {
		resp := f.Get(ctx, srv.URL+"/missing.png")
		assert.False(t, resp.OK)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("DataURI", func(t *testing.T) {
		resp := f.Get(ctx, "data:image/png;base64,iVBORw0KGgo=")
		require.True(t, resp.OK)
		assert.Equal(t, "image/png", resp.MimeType)
		assert.Equal(t, pngBytes, resp.Body)
	})

	t.Run("MalformedDataURI", func(t *testing.T) {
		resp := f.Get(ctx, "data:image/png;base64,***")
		assert.False(t, resp.OK)
	})
}

func TestFetcherUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL + "/favicon.ico"
	srv.Close()

	f := New(Config{Timeout: time.Second}, nil)
	resp := f.Get(context.Background(), target)
	assert.False(t, resp.OK)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, target, resp.URL)
}

func TestFetcherCanceledContext(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(Config{}, nil)
	resp := f.Get(ctx, srv.URL+"/favicon.ico")
	assert.False(t, resp.OK)
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent"}, nil)
	assert.Equal(t, defaultTimeout, f.cfg.Timeout)
	assert.Equal(t, defaultMaxBodyBytes, f.cfg.MaxBodyBytes)
	assert.Equal(t, "coverage-agent", f.baseCollector.UserAgent)
	assert.True(t, f.baseCollector.AllowURLRevisit)
	assert.True(t, f.baseCollector.IgnoreRobotsTxt)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil)
	hooks := &stubHooks{}
	var fetchErr error
	resp := &icon.Response{}
	f.configureCollectorHooks(hooks, "https://example.com/favicon.ico", resp, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	assert.Equal(t, "*/*", collyReq.Headers.Get("Accept"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("icon"),
		Headers:    &http.Header{"Content-Type": {"image/png"}},
		Request: &colly.Request{
			URL: mustParseURL(t, "https://www.example.com/favicon.ico"),
		},
	})
	assert.True(t, resp.OK)
	assert.Equal(t, "https://example.com/favicon.ico", resp.URL)
	assert.Equal(t, "https://www.example.com/favicon.ico", resp.FinalURL)
	assert.Equal(t, "image/png", resp.MimeType)
	assert.Equal(t, 4, resp.Length)

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusInternalServerError,
		Headers:    &http.Header{},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/favicon.ico")},
	})
	assert.False(t, resp.OK)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
