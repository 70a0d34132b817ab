package icon

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/favicon-resolver/internal/metrics"
)

// ValidatorConfig bounds the probe fan-out.
type ValidatorConfig struct {
	// ProbeTimeout caps each probe; a probe exceeding it counts as unreachable.
	ProbeTimeout time.Duration
	// MaxConcurrency limits in-flight probes; zero means one goroutine per URL.
	MaxConcurrency int
}

// Validator probes candidates and keeps the reachable images.
type Validator struct {
	fetcher Fetcher
	cfg     ValidatorConfig
	logger  *zap.Logger
}

// NewValidator builds a Validator.
func NewValidator(fetcher Fetcher, cfg ValidatorConfig, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{fetcher: fetcher, cfg: cfg, logger: logger}
}

// ValidateIcons probes every candidate concurrently and returns the ones whose
// probe succeeded with an image Content-Type, in candidate order. It waits for
// every probe to settle. Candidates sharing a URL share a single probe.
func (v *Validator) ValidateIcons(ctx context.Context, candidates []Candidate) []ValidatedIcon {
	index := make(map[string]int, len(candidates))
	urls := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := index[c.URL]; ok {
			continue
		}
		index[c.URL] = len(urls)
		urls = append(urls, c.URL)
	}

	responses := make([]Response, len(urls))
	var g errgroup.Group
	if v.cfg.MaxConcurrency > 0 {
		g.SetLimit(v.cfg.MaxConcurrency)
	}
	for i, u := range urls {
		g.Go(func() error {
			responses[i] = v.probe(ctx, u)
			return nil
		})
	}
	_ = g.Wait() // probes never return an error

	valid := make([]ValidatedIcon, 0, len(candidates))
	for _, c := range candidates {
		resp := responses[index[c.URL]]
		if !resp.OK || !IsImageResponse(resp) {
			continue
		}
		valid = append(valid, ValidatedIcon{
			URL:      c.URL,
			Type:     c.Type,
			MimeType: resp.MimeType,
			Length:   resp.Length,
			Bytes:    resp.Body,
		})
	}
	v.logger.Debug("validated icon candidates",
		zap.Int("candidates", len(candidates)),
		zap.Int("probes", len(urls)),
		zap.Int("valid", len(valid)),
	)
	return valid
}

func (v *Validator) probe(ctx context.Context, url string) Response {
	if url == "" {
		metrics.ObserveProbe(metrics.ProbeUnreachable)
		return Unreachable(url)
	}
	if v.cfg.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.cfg.ProbeTimeout)
		defer cancel()
	}
	resp := v.fetcher.Get(ctx, url)
	switch {
	case !resp.OK:
		metrics.ObserveProbe(metrics.ProbeUnreachable)
	case !IsImageResponse(resp):
		metrics.ObserveProbe(metrics.ProbeNotImage)
	default:
		metrics.ObserveProbe(metrics.ProbeValid)
	}
	return resp
}
