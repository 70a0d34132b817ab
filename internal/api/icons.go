package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/favicon-resolver/internal/icon"
	"github.com/JakeFAU/favicon-resolver/internal/metrics"
)

// User-facing failure reasons.
const (
	msgMissingURL  = "Please supply a URI encoded url as a URL query parameter"
	msgNoIcon      = "No icon URL found"
	msgUnavailable = "Unable to retrieve icon"
)

// Resolution outcomes recorded per endpoint.
const (
	outcomeOK          = "ok"
	outcomeCacheHit    = "cache_hit"
	outcomeInvalidURL  = "invalid_url"
	outcomeNoIcon      = "no_icon"
	outcomeUnavailable = "unavailable"
)

// listIcons handles GET /?url=.
func (s *Server) listIcons(w http.ResponseWriter, r *http.Request) {
	const endpoint = "list"
	requested, ok := s.requestedURL(w, r, endpoint)
	if !ok {
		return
	}
	icons, err := s.resolver.FindIcons(r.Context(), requested)
	if err != nil {
		s.fail(w, r, endpoint, requested, err)
		return
	}
	metrics.ObserveResolution(endpoint, outcomeOK)
	writeJSON(s.logger, w, http.StatusOK, icons)
}

// bestIcon handles GET /best?url=.
func (s *Server) bestIcon(w http.ResponseWriter, r *http.Request) {
	const endpoint = "best"
	requested, ok := s.requestedURL(w, r, endpoint)
	if !ok {
		return
	}
	best, err := s.resolver.BestIcon(r.Context(), requested)
	if err != nil {
		s.fail(w, r, endpoint, requested, err)
		return
	}
	metrics.ObserveResolution(endpoint, outcomeOK)
	writeJSON(s.logger, w, http.StatusOK, best)
}

// serveIcon handles GET /icon?url= and writes the icon bytes.
func (s *Server) serveIcon(w http.ResponseWriter, r *http.Request) {
	const endpoint = "icon"
	requested, ok := s.requestedURL(w, r, endpoint)
	if !ok {
		return
	}
	ic, err := s.resolver.FetchIcon(r.Context(), requested)
	if err != nil {
		s.fail(w, r, endpoint, requested, err)
		return
	}
	outcome := outcomeOK
	if ic.FromCache {
		outcome = outcomeCacheHit
	}
	metrics.ObserveResolution(endpoint, outcome)

	h := w.Header()
	h.Set("Content-Disposition", "inline")
	h.Set("Content-Type", ic.MimeType)
	h.Set("Content-Length", strconv.Itoa(len(ic.Bytes)))
	h.Set("Cache-Control", "max-age="+strconv.Itoa(int(s.opts.CacheMaxAge.Seconds())))
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("x-icon-from-cache", strconv.FormatBool(ic.FromCache))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(ic.Bytes); err != nil {
		s.logger.Debug("write icon failed", zap.String("url", requested), zap.Error(err))
	}
}

func (s *Server) requestedURL(w http.ResponseWriter, r *http.Request, endpoint string) (string, bool) {
	requested := strings.TrimSpace(r.URL.Query().Get("url"))
	if requested == "" {
		metrics.ObserveResolution(endpoint, outcomeInvalidURL)
		writeText(w, http.StatusNotFound, msgMissingURL)
		return "", false
	}
	return requested, true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, endpoint, requested string, err error) {
	outcome, msg := outcomeNoIcon, msgNoIcon
	switch {
	case errors.Is(err, icon.ErrInvalidURL):
		outcome, msg = outcomeInvalidURL, msgMissingURL
	case errors.Is(err, icon.ErrIconUnavailable):
		outcome, msg = outcomeUnavailable, msgUnavailable
	}
	metrics.ObserveResolution(endpoint, outcome)
	s.logger.Info("icon resolution failed",
		zap.String("request_id", RequestID(r.Context())),
		zap.String("endpoint", endpoint),
		zap.String("url", requested),
		zap.Error(err),
	)
	writeText(w, http.StatusNotFound, msg)
}
