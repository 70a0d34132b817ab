package icon

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
)

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]Response
	calls     map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{responses: map[string]Response{}, calls: map[string]int{}}
}

func (f *fakeFetcher) html(url, body string) *fakeFetcher {
	return f.set(url, http.StatusOK, "text/html; charset=utf-8", []byte(body))
}

func (f *fakeFetcher) image(url, mimeType string, body []byte) *fakeFetcher {
	return f.set(url, http.StatusOK, mimeType, body)
}

func (f *fakeFetcher) set(url string, status int, mimeType string, body []byte) *fakeFetcher {
	headers := http.Header{}
	headers.Set("Content-Type", mimeType)
	headers.Set("Content-Length", strconv.Itoa(len(body)))
	f.responses[url] = Response{
		OK:         status >= 200 && status < 300,
		StatusCode: status,
		URL:        url,
		FinalURL:   url,
		Headers:    headers,
		MimeType:   mimeType,
		Length:     len(body),
		Body:       body,
	}
	return f
}

func (f *fakeFetcher) redirect(from, to string) *fakeFetcher {
	resp := f.responses[to]
	resp.URL = from
	resp.FinalURL = to
	f.responses[from] = resp
	return f
}

func (f *fakeFetcher) Get(_ context.Context, url string) Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if resp, ok := f.responses[url]; ok {
		return resp
	}
	return Unreachable(url)
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type stubExtractor struct {
	matches []Match
	err     error
	seen    []string
}

func (s *stubExtractor) Extract(html string, _ []Rule) ([]Match, error) {
	s.seen = append(s.seen, html)
	return s.matches, s.err
}

type stubRenderer struct {
	resp  Response
	err   error
	calls int
}

func (s *stubRenderer) Render(_ context.Context, url string) (Response, error) {
	s.calls++
	if s.err != nil {
		return Response{}, s.err
	}
	resp := s.resp
	if resp.URL == "" {
		resp.URL = url
	}
	return resp, nil
}

type renderPolicyFunc func(Response) bool

func (f renderPolicyFunc) ShouldRender(page Response) bool { return f(page) }

var errStub = errors.New("stub failure")
