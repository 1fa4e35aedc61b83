// Package uri turns raw request targets into paths, which are safe to be joined
// with a document root.
package uri

import (
	"strings"

	"github.com/indigo-web/httpd/http/status"
	"github.com/indigo-web/httpd/internal/hexconv"
)

// Sanitize decodes and normalizes the path part of the request target and cuts off
// the query. The returned path always begins with a slash and never contains dot
// segments, so it can't climb above the directory it's resolved against: a ".."
// without a parent segment is silently discarded. Percent-encoded slashes act as
// regular separators. Control characters, raw or encoded, are rejected, and so are
// encoded '%', '?' and '#', which would otherwise change their meaning if the result
// was sanitized again. This keeps Sanitize idempotent.
//
// The query is returned as-is, without decoding. A fragment, if any, is dropped.
func Sanitize(raw string) (path, query string, err error) {
	var (
		segments = make([]string, 0, 8)
		segment  = make([]byte, 0, len(raw))
		trailing bool
	)

	flush := func() {
		switch s := string(segment); s {
		case "":
		case ".":
			trailing = true
		case "..":
			if len(segments) > 0 {
				segments = segments[:len(segments)-1]
			}

			trailing = true
		default:
			segments = append(segments, s)
			trailing = false
		}

		segment = segment[:0]
	}

	separator := func() {
		flush()
		trailing = true
	}

loop:
	for i := 0; i < len(raw); i++ {
		switch char := raw[i]; char {
		case '/':
			separator()
		case '?':
			query = raw[i+1:]
			if hash := strings.IndexByte(query, '#'); hash != -1 {
				query = query[:hash]
			}

			break loop
		case '#':
			break loop
		case '%':
			if i+2 >= len(raw) {
				return "", "", status.ErrURIDecoding
			}

			decoded, ok := hexconv.Decode(raw[i+1], raw[i+2])
			if !ok || isControl(decoded) || isDelimiter(decoded) {
				return "", "", status.ErrURIDecoding
			}

			i += 2
			if decoded == '/' {
				separator()
				continue
			}

			segment = append(segment, decoded)
		default:
			if isControl(char) {
				return "", "", status.ErrURIDecoding
			}

			segment = append(segment, char)
		}
	}

	if len(segment) > 0 {
		flush()
	}

	return join(segments, trailing), query, nil
}

func join(segments []string, trailing bool) string {
	if len(segments) == 0 {
		return "/"
	}

	var b strings.Builder
	for _, segment := range segments {
		b.WriteByte('/')
		b.WriteString(segment)
	}

	if trailing {
		b.WriteByte('/')
	}

	return b.String()
}

func isControl(c byte) bool {
	return c < 0x20 || c == 0x7f
}

func isDelimiter(c byte) bool {
	return c == '%' || c == '?' || c == '#'
}
