package icon

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/favicon-resolver/internal/cache"
	"github.com/JakeFAU/favicon-resolver/internal/metrics"
)

// IconCache persists resolved icons keyed by requested URL.
type IconCache interface {
	Get(ctx context.Context, requestedURL string) (cache.Entry, bool, error)
	Put(ctx context.Context, requestedURL string, entry cache.Entry) error
	Delete(ctx context.Context, requestedURL string) error
}

const defaultResolveTimeout = time.Minute

// ResolverConfig toggles resolver behavior.
type ResolverConfig struct {
	// Caching enables cache reads and writes on the FetchIcon path.
	Caching bool
	// ResolveTimeout bounds a shared FetchIcon resolution, which outlives
	// the caller that started it.
	ResolveTimeout time.Duration
}

// Icon is the payload served by the single-icon endpoint.
type Icon struct {
	Headers   [][2]string
	MimeType  string
	Length    int
	Bytes     []byte
	SourceURL string
	FromCache bool
}

// Resolver ties discovery, validation, selection, and caching together.
type Resolver struct {
	discoverer *Discoverer
	validator  *Validator
	fetcher    Fetcher
	cache      IconCache
	cfg        ResolverConfig
	group      singleflight.Group
	logger     *zap.Logger

	// joined runs once a FetchIcon caller is attached to a resolution.
	joined func()
}

// NewResolver builds a Resolver. iconCache may be nil when caching is off.
func NewResolver(
	discoverer *Discoverer,
	validator *Validator,
	fetcher Fetcher,
	iconCache IconCache,
	cfg ResolverConfig,
	logger *zap.Logger,
) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if iconCache == nil {
		cfg.Caching = false
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = defaultResolveTimeout
	}
	return &Resolver{
		discoverer: discoverer,
		validator:  validator,
		fetcher:    fetcher,
		cache:      iconCache,
		cfg:        cfg,
		logger:     logger,
	}
}

// FindIcons returns every validated icon for requestedURL in discovery order.
func (r *Resolver) FindIcons(ctx context.Context, requestedURL string) ([]ValidatedIcon, error) {
	icons, _, err := r.findIcons(ctx, requestedURL)
	return icons, err
}

// findIcons also returns the post-redirect page URL, even on failure.
func (r *Resolver) findIcons(ctx context.Context, requestedURL string) ([]ValidatedIcon, string, error) {
	if err := ValidateRequestedURL(requestedURL); err != nil {
		return nil, requestedURL, err
	}
	found := r.discoverer.Discover(ctx, requestedURL)
	icons := r.validator.ValidateIcons(ctx, found.Candidates)
	if len(icons) == 0 {
		return nil, found.FinalURL, fmt.Errorf("%w for %s", ErrNoIconFound, requestedURL)
	}
	return icons, found.FinalURL, nil
}

// BestIcon returns the highest-priority validated icon for requestedURL.
func (r *Resolver) BestIcon(ctx context.Context, requestedURL string) (ValidatedIcon, error) {
	icons, err := r.FindIcons(ctx, requestedURL)
	if err != nil {
		return ValidatedIcon{}, err
	}
	best, ok := PickBestIcon(icons)
	if !ok {
		return ValidatedIcon{}, fmt.Errorf("%w for %s", ErrNoIconFound, requestedURL)
	}
	return best, nil
}

// FetchIcon returns the bytes of the best icon for requestedURL. With caching
// enabled a cached entry short-circuits discovery, and a freshly fetched icon
// is written back. When the page itself yields nothing, its second-level
// domain is tried. Concurrent calls for the same URL share one resolution,
// which runs detached from any single caller: a caller giving up returns its
// own context error without failing the others.
func (r *Resolver) FetchIcon(ctx context.Context, requestedURL string) (Icon, error) {
	if err := ValidateRequestedURL(requestedURL); err != nil {
		return Icon{}, err
	}
	if ic, ok := r.cached(ctx, requestedURL); ok {
		return ic, nil
	}

	ch := r.group.DoChan(requestedURL, func() (any, error) {
		resolveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ResolveTimeout)
		defer cancel()
		return r.resolveIcon(resolveCtx, requestedURL)
	})
	if r.joined != nil {
		r.joined()
	}

	select {
	case <-ctx.Done():
		return Icon{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Icon{}, res.Err
		}
		if res.Shared {
			r.logger.Debug("shared in-flight resolution", zap.String("url", requestedURL))
		}
		return res.Val.(Icon), nil
	}
}

// Purge drops the cached entry for requestedURL.
func (r *Resolver) Purge(ctx context.Context, requestedURL string) error {
	if r.cache == nil {
		return nil
	}
	if err := r.cache.Delete(ctx, requestedURL); err != nil {
		return fmt.Errorf("purge %s: %w", requestedURL, err)
	}
	return nil
}

func (r *Resolver) cached(ctx context.Context, requestedURL string) (Icon, bool) {
	if !r.cfg.Caching {
		return Icon{}, false
	}
	entry, ok, err := r.cache.Get(ctx, requestedURL)
	if err != nil {
		r.logger.Warn("cache read failed, treating as miss", zap.String("url", requestedURL), zap.Error(err))
		return Icon{}, false
	}
	if !ok {
		r.logger.Debug("cache miss", zap.String("url", requestedURL))
		return Icon{}, false
	}
	r.logger.Debug("cache hit", zap.String("url", requestedURL), zap.String("source_url", entry.SourceURL))
	return Icon{
		Headers:   entry.Headers,
		MimeType:  entry.MimeType,
		Length:    entry.Length,
		Bytes:     entry.Bytes,
		SourceURL: entry.SourceURL,
		FromCache: true,
	}, true
}

func (r *Resolver) resolveIcon(ctx context.Context, requestedURL string) (Icon, error) {
	icons, finalURL, err := r.findIcons(ctx, requestedURL)
	if err != nil {
		sld, ok := SecondLevelDomainURL(finalURL)
		if !ok {
			return Icon{}, err
		}
		r.logger.Debug("checking second-level domain for icons",
			zap.String("url", requestedURL),
			zap.String("final_url", finalURL),
			zap.String("domain", sld),
		)
		icons, err = r.FindIcons(ctx, sld)
		if err != nil {
			return Icon{}, fmt.Errorf("%w for %s", ErrNoIconFound, requestedURL)
		}
	}
	best, ok := PickBestIcon(icons)
	if !ok {
		return Icon{}, fmt.Errorf("%w for %s", ErrNoIconFound, requestedURL)
	}

	ic, err := r.download(ctx, best.URL)
	if err != nil {
		return Icon{}, err
	}
	r.store(ctx, requestedURL, ic)
	return ic, nil
}

func (r *Resolver) download(ctx context.Context, iconURL string) (Icon, error) {
	if IsDataURI(iconURL) {
		resp, err := DecodeDataURI(iconURL)
		if err != nil {
			return Icon{}, fmt.Errorf("%w: %v", ErrIconUnavailable, err)
		}
		return Icon{
			Headers:   [][2]string{},
			MimeType:  resp.MimeType,
			Length:    resp.Length,
			Bytes:     resp.Body,
			SourceURL: DataURISource,
		}, nil
	}

	resp := r.fetcher.Get(ctx, iconURL)
	if !resp.OK || !IsImageResponse(resp) {
		return Icon{}, fmt.Errorf("%w at %s", ErrIconUnavailable, iconURL)
	}
	mimeType := resp.MimeType
	if mimeType == "" {
		mimeType = resp.Headers.Get("Content-Type")
	}
	length := len(resp.Body)
	if length == 0 {
		if cl, err := strconv.Atoi(resp.Headers.Get("Content-Length")); err == nil {
			length = cl
		}
	}
	return Icon{
		Headers:   flattenHeaders(resp.Headers),
		MimeType:  mimeType,
		Length:    length,
		Bytes:     resp.Body,
		SourceURL: iconURL,
	}, nil
}

func (r *Resolver) store(ctx context.Context, requestedURL string, ic Icon) {
	if !r.cfg.Caching {
		return
	}
	err := r.cache.Put(ctx, requestedURL, cache.Entry{
		Headers:   ic.Headers,
		MimeType:  ic.MimeType,
		Length:    ic.Length,
		Bytes:     ic.Bytes,
		SourceURL: ic.SourceURL,
	})
	if err != nil {
		metrics.ObserveCacheWriteFailure()
		r.logger.Error("cache write failed", zap.String("url", requestedURL), zap.Error(err))
	}
}

// flattenHeaders lists h as lower-cased name/value pairs sorted by name.
func flattenHeaders(h http.Header) [][2]string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][2]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, [2]string{strings.ToLower(k), strings.Join(h[k], ", ")})
	}
	return out
}
