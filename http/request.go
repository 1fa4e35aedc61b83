package http

import (
	"github.com/indigo-web/httpd/http/method"
	"github.com/indigo-web/httpd/http/proto"
	"github.com/indigo-web/httpd/kv"
)

type Headers = *kv.Storage

// Request represents an HTTP request. It's reused across requests of the same connection,
// therefore must not be retained after the response is finished.
type Request struct {
	// Method is an enum representing the request method.
	Method method.Method
	// RawMethod is the method token as sent by the client, useful when Method is Unknown.
	RawMethod string
	// URI is the request-target exactly as received.
	URI string
	// Path is the percent-decoded path with dot-segments removed. It always starts with
	// a slash and never escapes the root.
	Path string
	// Query is the raw query string, without the leading question mark.
	Query string
	// Protocol is either HTTP/1.0 or HTTP/1.1.
	Protocol proto.Protocol
	// Headers holds non-normalized header pairs, even though lookup is case-insensitive.
	// Repeated fields override previous ones.
	Headers Headers
	// ContentLength is the declared body length. Zero if none was declared.
	ContentLength int64
	// Body is filled completely before the request is dispatched.
	Body []byte
	// Remote is the peer address in host:port form.
	Remote string
}

func NewRequest(headers Headers, remote string) *Request {
	return &Request{
		Headers: headers,
		Remote:  remote,
	}
}

// Reset clears the per-request fields. The body memory is retained.
func (r *Request) Reset() {
	r.Method = method.Unknown
	r.RawMethod = ""
	r.URI = ""
	r.Path = ""
	r.Query = ""
	r.Protocol = proto.Unknown
	r.Headers.Clear()
	r.ContentLength = 0
	r.Body = r.Body[:0]
}
