package uri

import (
	"net/url"
	"strings"
)

// Escape percent-encodes every segment of a sanitized path, so it can be put back into
// a request target or a Location field. Slashes are kept as separators.
func Escape(path string) string {
	var b strings.Builder
	b.Grow(len(path))

	for i, segment := range strings.Split(path, "/") {
		if i > 0 {
			b.WriteByte('/')
		}

		b.WriteString(url.PathEscape(segment))
	}

	return b.String()
}
