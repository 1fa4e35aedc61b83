package http1

import (
	"strconv"
	"strings"

	"github.com/indigo-web/httpd/http/proto"
	"github.com/indigo-web/httpd/http/status"
	"github.com/indigo-web/httpd/internal/timer"
	"github.com/indigo-web/httpd/kv"
)

// Serializer renders response heads. Date and Server fields are injected into every
// response, overriding the Date passed in headers.
type Serializer struct {
	server string
	date   *timer.Date
}

func NewSerializer(server string, date *timer.Date) *Serializer {
	return &Serializer{
		server: server,
		date:   date,
	}
}

// AppendHead appends the status line, header fields and the terminating empty line.
// Empty text is replaced by the standard reason phrase.
func (s *Serializer) AppendHead(
	buff []byte, protocol proto.Protocol, code status.Code, text string, headers *kv.Storage,
) []byte {
	if protocol == proto.Unknown {
		protocol = proto.HTTP11
	}

	if len(text) == 0 {
		text = status.Text(code)
	}

	buff = append(buff, protocol.String()...)
	buff = append(buff, ' ')
	buff = strconv.AppendUint(buff, uint64(code), 10)
	buff = append(buff, ' ')
	buff = append(buff, text...)
	buff = crlf(buff)

	buff = appendKnownHeader(buff, "Date: ", s.date.Value())
	if !headers.Has("Server") && len(s.server) > 0 {
		buff = appendKnownHeader(buff, "Server: ", []byte(s.server))
	}

	for key, value := range headers.Pairs() {
		if strings.EqualFold(key, "Date") {
			continue
		}

		buff = append(buff, key...)
		buff = append(buff, ':', ' ')
		buff = append(buff, value...)
		buff = crlf(buff)
	}

	return crlf(buff)
}

// ErrorPage renders a minimal HTML document describing the status.
func ErrorPage(code status.Code) []byte {
	title := status.StringCode(code) + " " + status.Text(code)
	page := make([]byte, 0, 80+2*len(title))
	page = append(page, "<html><head><title>"...)
	page = append(page, title...)
	page = append(page, "</title></head><body><h1>"...)
	page = append(page, title...)
	page = append(page, "</h1></body></html>"...)

	return page
}

func appendKnownHeader(buff []byte, key string, value []byte) []byte {
	buff = append(buff, key...)
	buff = append(buff, value...)

	return crlf(buff)
}

func crlf(buff []byte) []byte {
	return append(buff, '\r', '\n')
}
