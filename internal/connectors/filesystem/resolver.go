package filesystem

import (
	"net/url"
	"strings"
)

// ResolvePath converts a file:// URI to a local path. Bare paths pass
// through unchanged; percent-escapes in URIs are decoded.
func ResolvePath(uri string) string {
	if !strings.HasPrefix(uri, "file://") {
		return uri
	}
	path := strings.TrimPrefix(uri, "file://")
	if unescaped, err := url.PathUnescape(path); err == nil {
		return unescaped
	}
	return path
}
