// Package headless renders pages in a headless browser so icon links
// injected by JavaScript can be discovered.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/favicon-resolver/internal/icon"
)

const (
	defaultNavTimeout  = 20 * time.Second
	defaultSettleDelay = 500 * time.Millisecond
	renderedMimeType   = "text/html; charset=utf-8"
)

// Config controls the behavior of the headless renderer.
type Config struct {
	// MaxParallel caps concurrent browser tabs; zero means unlimited.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleDelay gives late scripts time to add icon links after the
	// document head is ready.
	SettleDelay time.Duration
}

// Renderer implements icon.PageRenderer using chromedp and headless Chrome.
type Renderer struct {
	cfg         Config
	tabs        *semaphore.Weighted
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a renderer backed by chromedp. Chrome is started
// lazily on the first Render.
func NewChromedp(cfg Config) (*Renderer, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}

	r := &Renderer{cfg: cfg}
	if cfg.MaxParallel > 0 {
		r.tabs = semaphore.NewWeighted(int64(cfg.MaxParallel))
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	r.allocator, r.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	return r, nil
}

// Close shuts the browser down.
func (r *Renderer) Close() {
	r.allocCancel()
}

// Render loads url in a fresh tab and returns its DOM as an HTML response
// whose FinalURL is where the main document ended up.
func (r *Renderer) Render(ctx context.Context, url string) (icon.Response, error) {
	if r.tabs != nil {
		if err := r.tabs.Acquire(ctx, 1); err != nil {
			return icon.Response{}, fmt.Errorf("wait for browser tab: %w", err)
		}
		defer r.tabs.Release(1)
	}

	tabCtx, closeTab := chromedp.NewContext(r.allocator)
	defer closeTab()
	defer context.AfterFunc(ctx, closeTab)()

	tabCtx, cancel := context.WithTimeout(tabCtx, r.cfg.NavigationTimeout)
	defer cancel()

	doc := &documentTracker{}
	chromedp.ListenTarget(tabCtx, doc.observe)

	var html, location string
	err := chromedp.Run(tabCtx,
		r.prepareTab(),
		chromedp.Navigate(url),
		chromedp.WaitReady("head", chromedp.ByQuery),
		chromedp.Sleep(r.cfg.SettleDelay),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return icon.Response{}, fmt.Errorf("render %s: %w", url, err)
	}
	return doc.response(url, location, html), nil
}

// prepareTab applies the configured user agent before navigation.
func (r *Renderer) prepareTab() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if r.cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}

// documentTracker remembers the last main-document response of a tab. Each
// redirect hop produces a new document response, so the last one wins.
type documentTracker struct {
	mu     sync.Mutex
	status int
	url    string
}

func (d *documentTracker) observe(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	d.mu.Lock()
	d.status = int(resp.Response.Status)
	d.url = resp.Response.URL
	d.mu.Unlock()
}

// response builds the rendered page. Without a captured document the page
// is assumed to have loaded at location.
func (d *documentTracker) response(requestURL, location, html string) icon.Response {
	d.mu.Lock()
	status, finalURL := d.status, d.url
	d.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	if finalURL == "" {
		finalURL = location
	}
	if finalURL == "" {
		finalURL = requestURL
	}

	headers := http.Header{}
	headers.Set("Content-Type", renderedMimeType)
	return icon.Response{
		OK:         status >= 200 && status < 300,
		StatusCode: status,
		URL:        requestURL,
		FinalURL:   finalURL,
		Headers:    headers,
		MimeType:   renderedMimeType,
		Length:     len(html),
		Body:       []byte(html),
	}
}
