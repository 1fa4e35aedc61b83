package http

import (
	"github.com/indigo-web/httpd/http/status"
	"github.com/indigo-web/httpd/kv"
)

// ResponseWriter is the connection's response side available to a Responder.
type ResponseWriter interface {
	// SendHeaders queues the status line and the headers. Date, Server, Content-Length
	// and Connection are always managed by the connection. Zero size completes the
	// request immediately. Empty text stands for the standard reason phrase.
	SendHeaders(size int64, code status.Code, text string, extra *kv.Storage)
	// AddWriteBuf queues the data to be sent.
	AddWriteBuf(data []byte)
	// FlushWriteBuf writes as much of the queued data as the socket accepts. It reports
	// whether everything was written.
	FlushWriteBuf() bool
	// EndRequest completes the response.
	EndRequest()
}

// Responder may take over a request after its path was resolved to an existing regular
// file, but before the file is opened. The file path is absolute, within the document
// root. Returning true means the responder owns the response and must finish it
// with EndRequest.
type Responder interface {
	Respond(req *Request, file string, w ResponseWriter) bool
}

// ResponderFunc is an adapter allowing ordinary functions to be used as a Responder.
type ResponderFunc func(req *Request, file string, w ResponseWriter) bool

func (f ResponderFunc) Respond(req *Request, file string, w ResponseWriter) bool {
	return f(req, file, w)
}
