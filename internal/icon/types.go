// Package icon defines the icon discovery pipeline: candidate discovery,
// validation, best-icon selection, and the resolver that ties them together.
package icon

import (
	"context"
	"errors"
	"net/http"
)

// Type names the source a candidate icon reference was discovered from.
type Type string

// Candidate icon types. Values double as the JSON iconType field.
const (
	TypeShortcutIcon              Type = "shortcutIcon"
	TypeIcon                      Type = "icon"
	TypeAppleTouchIcon            Type = "appleTouchIcon"
	TypeAppleTouchIconPrecomposed Type = "appleTouchIconPrecomposed"
	TypeMSApplicationTileImage    Type = "msapplicationTileImage"
	TypeTwitter                   Type = "twitter"
	TypeOpenGraph                 Type = "opengraph"
	TypeIconImage                 Type = "iconImage"
	TypeRootIcon                  Type = "rootIcon"
	TypeSecondLevelRootIcon       Type = "secondLevelRootIcon"
)

// Errors surfaced by the resolver. The HTTP layer maps each to a 404.
var (
	ErrInvalidURL      = errors.New("invalid requested url")
	ErrNoIconFound     = errors.New("no icon url found")
	ErrIconUnavailable = errors.New("unable to retrieve icon")
)

// Candidate is an unvalidated icon reference proposed by discovery.
type Candidate struct {
	URL  string `json:"url"`
	Type Type   `json:"iconType"`
}

// ValidatedIcon is a candidate confirmed reachable and image-typed.
type ValidatedIcon struct {
	URL      string `json:"url"`
	Type     Type   `json:"iconType"`
	MimeType string `json:"mimeType"`
	Length   int    `json:"length"`
	Bytes    []byte `json:"bytes"`
}

// Response is the normalized result of a Fetcher GET. A failed fetch is
// reported as OK=false with StatusCode 404 rather than as an error.
type Response struct {
	OK         bool
	StatusCode int
	URL        string
	FinalURL   string
	Headers    http.Header
	MimeType   string
	Length     int
	Body       []byte
}

// Unreachable builds the failed-response sentinel for url.
func Unreachable(url string) Response {
	return Response{
		OK:         false,
		StatusCode: http.StatusNotFound,
		URL:        url,
		FinalURL:   url,
		Headers:    http.Header{},
	}
}

// Fetcher performs a GET (following redirects) or decodes a data URI.
// Implementations never return transport errors; they return Unreachable.
type Fetcher interface {
	Get(ctx context.Context, url string) Response
}

// PageRenderer returns the JavaScript-rendered HTML of a page.
type PageRenderer interface {
	Render(ctx context.Context, url string) (Response, error)
}

// RenderPolicy decides whether a fetched page is worth rendering headlessly.
type RenderPolicy interface {
	ShouldRender(page Response) bool
}

// Rule maps a CSS selector and attribute to the icon type its values produce.
type Rule struct {
	Type      Type
	Selector  string
	Attribute string
}

// Match is one attribute value produced by a Rule.
type Match struct {
	Type  Type
	Value string
}

// Extractor evaluates selector rules against an HTML document.
type Extractor interface {
	Extract(html string, rules []Rule) ([]Match, error)
}

// MetadataRules is the selector table used for HTML metadata discovery.
var MetadataRules = []Rule{
	{Type: TypeShortcutIcon, Selector: `link[rel="shortcut icon"]`, Attribute: "href"},
	{Type: TypeIcon, Selector: `link[rel="icon"]`, Attribute: "href"},
	{Type: TypeAppleTouchIcon, Selector: `link[rel="apple-touch-icon"]`, Attribute: "href"},
	{Type: TypeAppleTouchIconPrecomposed, Selector: `link[rel="apple-touch-icon-precomposed"]`, Attribute: "href"},
	{Type: TypeMSApplicationTileImage, Selector: `meta[name="msapplication-TileImage"]`, Attribute: "content"},
	{Type: TypeTwitter, Selector: `meta[name="twitter:image"]`, Attribute: "content"},
	{Type: TypeOpenGraph, Selector: `meta[property="og:image"]`, Attribute: "content"},
	{Type: TypeIconImage, Selector: `img[src*="Icon"]`, Attribute: "src"},
}
