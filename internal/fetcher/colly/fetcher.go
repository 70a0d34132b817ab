// Package collyfetcher implements icon.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/favicon-resolver/internal/icon"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxBodyBytes = 10 << 20
)

// Config controls collector behavior.
type Config struct {
	UserAgent          string
	Timeout            time.Duration
	MaxBodyBytes       int
	InsecureSkipVerify bool
}

// Fetcher implements icon.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. The base collector owns the shared HTTP backend;
// every Get works on a clone so per-request callbacks never collide.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(cfg.MaxBodyBytes),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.WithTransport(newHTTPTransport(cfg.InsecureSkipVerify))
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}
}

// Get performs a GET against rawURL, following redirects. Data URIs are
// decoded locally. Failures are reported as icon.Unreachable.
func (f *Fetcher) Get(ctx context.Context, rawURL string) icon.Response {
	if icon.IsDataURI(rawURL) {
		resp, err := icon.DecodeDataURI(rawURL)
		if err != nil {
			f.logger.Debug("decode data uri failed", zap.Error(err))
			return icon.Unreachable(rawURL)
		}
		return resp
	}

	var (
		result   icon.Response
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, rawURL, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		f.logger.Debug("fetch failed", zap.String("url", rawURL), zap.Error(err))
		return icon.Unreachable(rawURL)
	}
	if result.StatusCode == 0 {
		return icon.Unreachable(rawURL)
	}
	return result
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	rawURL string,
	result *icon.Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "*/*")
	})

	hooks.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		finalURL := rawURL
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}
		length := len(r.Body)
		if cl, err := strconv.Atoi(headers.Get("Content-Length")); err == nil && cl > 0 && length == 0 {
			length = cl
		}
		*result = icon.Response{
			OK:         r.StatusCode >= 200 && r.StatusCode < 300,
			StatusCode: r.StatusCode,
			URL:        rawURL,
			FinalURL:   finalURL,
			Headers:    headers,
			MimeType:   headers.Get("Content-Type"),
			Length:     length,
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport(insecure bool) *http.Transport {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
	if insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in via http.insecure_skip_verify.
	}
	return t
}
