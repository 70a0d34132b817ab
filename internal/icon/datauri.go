package icon

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// DataURISource is recorded as the source URL of icons decoded from data URIs.
const DataURISource = "dataUri"

var dataURIRe = regexp.MustCompile(`(?is)^data:(image/(?:png|jpeg));base64,(.*)$`)

// IsDataURI reports whether raw is a base64 PNG or JPEG data URI.
func IsDataURI(raw string) bool {
	return dataURIRe.MatchString(strings.TrimSpace(raw))
}

// DecodeDataURI turns a base64 PNG/JPEG data URI into a successful Response
// without any network I/O.
func DecodeDataURI(raw string) (Response, error) {
	m := dataURIRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return Response{}, fmt.Errorf("not an image data uri")
	}
	mimeType := strings.ToLower(m[1])
	payload := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, m[2])
	body, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some pages omit padding.
		body, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return Response{}, fmt.Errorf("decode data uri payload: %w", err)
		}
	}
	headers := http.Header{}
	headers.Set("Content-Type", mimeType)
	headers.Set("Content-Length", strconv.Itoa(len(body)))
	return Response{
		OK:         true,
		StatusCode: http.StatusOK,
		URL:        raw,
		FinalURL:   raw,
		Headers:    headers,
		MimeType:   mimeType,
		Length:     len(body),
		Body:       body,
	}, nil
}
