package icon

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var shortcutIconRe = regexp.MustCompile(`(?i)shortcut icon`)

// Discoverer produces the candidate icon references for a requested page.
type Discoverer struct {
	fetcher   Fetcher
	extractor Extractor
	renderer  PageRenderer
	policy    RenderPolicy
	rules     []Rule
	logger    *zap.Logger
}

// NewDiscoverer builds a Discoverer. renderer may be nil, in which case pages
// are only inspected as served.
func NewDiscoverer(fetcher Fetcher, extractor Extractor, renderer PageRenderer, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{
		fetcher:   fetcher,
		extractor: extractor,
		renderer:  renderer,
		rules:     MetadataRules,
		logger:    logger,
	}
}

// SetRenderPolicy gates the headless fallback. With no policy every page
// lacking metadata candidates is rendered.
func (d *Discoverer) SetRenderPolicy(p RenderPolicy) {
	d.policy = p
}

// Discovery is the outcome of inspecting one page.
type Discovery struct {
	Candidates []Candidate
	// FinalURL is the post-redirect page URL, or the requested URL when the
	// page was unreachable.
	FinalURL string
}

// FindAllIcons fetches requestedURL and returns the union of its metadata
// candidates, the root-icon candidates of requestedURL, and the root-icon
// candidates of the post-redirect URL when it differs. It never fails: an
// unreachable page still yields root-icon candidates.
func (d *Discoverer) FindAllIcons(ctx context.Context, requestedURL string) []Candidate {
	return d.Discover(ctx, requestedURL).Candidates
}

// Discover is FindAllIcons that also reports where the page ended up.
func (d *Discoverer) Discover(ctx context.Context, requestedURL string) Discovery {
	page := d.fetcher.Get(ctx, requestedURL)
	finalURL := requestedURL
	if page.OK && page.FinalURL != "" {
		finalURL = page.FinalURL
	}

	var rootCandidates, metaCandidates, redirectCandidates []Candidate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rootCandidates = RootIconCandidates(requestedURL)
		return nil
	})
	g.Go(func() error {
		metaCandidates = d.metadataCandidates(gctx, requestedURL, page, finalURL)
		return nil
	})
	if finalURL != requestedURL {
		g.Go(func() error {
			redirectCandidates = RootIconCandidates(finalURL)
			return nil
		})
	}
	_ = g.Wait() // tasks never return an error

	all := make([]Candidate, 0, len(metaCandidates)+len(rootCandidates)+len(redirectCandidates))
	all = append(all, metaCandidates...)
	all = append(all, rootCandidates...)
	all = append(all, redirectCandidates...)
	out := uniqueCandidates(all)

	d.logger.Debug("discovered icon candidates",
		zap.String("url", requestedURL),
		zap.String("final_url", finalURL),
		zap.Int("metadata", len(metaCandidates)),
		zap.Int("total", len(out)),
	)
	return Discovery{Candidates: out, FinalURL: finalURL}
}

// RootIconCandidates returns the conventional /favicon.ico candidate for u
// and, when derivable and different, the one for its second-level domain.
// An unparseable u yields a single rootIcon placeholder with an empty URL.
func RootIconCandidates(u string) []Candidate {
	root := RootIconURL(u)
	out := []Candidate{{URL: root, Type: TypeRootIcon}}
	if sld, ok := SecondLevelDomainURL(u); ok {
		if sldRoot := RootIconURL(sld); sldRoot != "" && sldRoot != root {
			out = append(out, Candidate{URL: sldRoot, Type: TypeSecondLevelRootIcon})
		}
	}
	return out
}

func (d *Discoverer) metadataCandidates(ctx context.Context, requestedURL string, page Response, baseURL string) []Candidate {
	var out []Candidate
	if isHTMLPage(page) {
		out = d.extractCandidates(string(page.Body), baseURL)
	}
	if len(out) > 0 || d.renderer == nil {
		return out
	}
	if d.policy != nil && !d.policy.ShouldRender(page) {
		return out
	}

	rendered, err := d.renderer.Render(ctx, requestedURL)
	if err != nil {
		d.logger.Debug("render page failed", zap.String("url", requestedURL), zap.Error(err))
		return out
	}
	base := rendered.FinalURL
	if base == "" {
		base = baseURL
	}
	return d.extractCandidates(string(rendered.Body), base)
}

func (d *Discoverer) extractCandidates(html, baseURL string) []Candidate {
	if d.extractor == nil || strings.TrimSpace(html) == "" {
		return nil
	}
	html = shortcutIconRe.ReplaceAllString(html, "shortcut icon")
	matches, err := d.extractor.Extract(html, d.rules)
	if err != nil {
		d.logger.Debug("extract metadata failed", zap.String("url", baseURL), zap.Error(err))
		return nil
	}
	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		if strings.TrimSpace(m.Value) == "" {
			continue
		}
		out = append(out, Candidate{URL: ResolveRelativeURL(baseURL, m.Value), Type: m.Type})
	}
	return out
}

func isHTMLPage(page Response) bool {
	if !page.OK || len(page.Body) == 0 {
		return false
	}
	ct := page.MimeType
	if ct == "" && page.Headers != nil {
		ct = page.Headers.Get("Content-Type")
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(ct)), "text/html")
}

func uniqueCandidates(in []Candidate) []Candidate {
	seen := make(map[Candidate]struct{}, len(in))
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
