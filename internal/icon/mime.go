package icon

import "regexp"

var imageMimeRe = regexp.MustCompile(`(?i)^\s*image/`)

// IsImageMimeType reports whether a Content-Type value names an image.
func IsImageMimeType(mimeType string) bool {
	return imageMimeRe.MatchString(mimeType)
}

// IsImageResponse reports whether resp carries an image Content-Type,
// preferring the normalized MimeType over the raw header.
func IsImageResponse(resp Response) bool {
	if resp.MimeType != "" {
		return IsImageMimeType(resp.MimeType)
	}
	if resp.Headers == nil {
		return false
	}
	return IsImageMimeType(resp.Headers.Get("Content-Type"))
}
