package http1

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/indigo-web/httpd/http"
	"github.com/indigo-web/httpd/http/method"
	"github.com/indigo-web/httpd/http/proto"
	"github.com/indigo-web/httpd/http/status"
	"github.com/indigo-web/httpd/internal/strutil"
	"github.com/indigo-web/httpd/internal/uri"
	"github.com/indigo-web/utils/uf"
)

// Parser parses a complete request head. Detecting the head's boundaries is up to
// the caller.
type Parser struct {
	maxHeaders int
}

func NewParser(maxHeaders int) *Parser {
	return &Parser{maxHeaders: maxHeaders}
}

// Parse fills the request from the head, which is the request line followed by header
// fields, without the terminating empty line. Every stored string is a copy, so the head
// may be reused right after.
func (p *Parser) Parse(head []byte, request *http.Request) error {
	line, rest := nextLine(head)
	if err := p.requestLine(line, request); err != nil {
		return err
	}

	for headers := 0; len(rest) > 0; headers++ {
		if headers >= p.maxHeaders {
			return status.ErrTooManyHeaders
		}

		line, rest = nextLine(rest)
		if err := p.header(line, request); err != nil {
			return err
		}
	}

	return p.contentLength(request)
}

func (p *Parser) requestLine(line []byte, request *http.Request) error {
	rawMethod, rest, found := bytes.Cut(line, []byte{' '})
	if !found || len(rawMethod) == 0 {
		return status.ErrBadRequestLine
	}

	target, version, found := bytes.Cut(rest, []byte{' '})
	if !found || len(target) == 0 || len(version) == 0 {
		return status.ErrBadRequestLine
	}

	request.Protocol = proto.FromBytes(version)
	if request.Protocol == proto.Unknown {
		return status.ErrHTTPVersionNotSupported
	}

	request.Method = method.Parse(uf.B2S(rawMethod))
	request.RawMethod = string(rawMethod)
	request.URI = string(target)

	path, query, err := uri.Sanitize(request.URI)
	if err != nil {
		return err
	}

	request.Path, request.Query = path, query

	return nil
}

func (p *Parser) header(line []byte, request *http.Request) error {
	colon := bytes.IndexByte(line, ':')
	if colon <= 0 || line[0] == ' ' || line[0] == '\t' {
		// folded lines are obsolete and therefore rejected
		return status.ErrBadHeader
	}

	name := strutil.RStripWS(uf.B2S(line[:colon]))
	if len(name) == 0 {
		return status.ErrBadHeader
	}

	value := strutil.StripWS(uf.B2S(line[colon+1:]))
	request.Headers.Set(strings.Clone(name), strings.Clone(value))

	return nil
}

func (p *Parser) contentLength(request *http.Request) error {
	if request.Headers.Has("Transfer-Encoding") {
		return status.ErrUnsupportedEncoding
	}

	value, found := request.Headers.Get("Content-Length")
	if !found {
		return nil
	}

	if len(value) == 0 || value[0] < '0' || value[0] > '9' {
		return status.ErrBadContentLength
	}

	length, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return status.ErrBadContentLength
	}

	request.ContentLength = length

	return nil
}

// nextLine cuts the data by the first LF, stripping the CR preceding it, if any.
func nextLine(data []byte) (line, rest []byte) {
	line, rest, _ = bytes.Cut(data, []byte{'\n'})
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}

	return line, rest
}
