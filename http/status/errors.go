package status

import "github.com/pkg/errors"

// HTTPError is a protocol-level failure which has a response to be sent to the
// client before the connection is closed.
type HTTPError struct {
	Message string
	Code    Code
}

func NewError(code Code, message string) error {
	return HTTPError{
		Code:    code,
		Message: message,
	}
}

func (h HTTPError) Error() string {
	return h.Message
}

// CodeOf extracts the status code carried by err. Errors which aren't HTTPError
// are reported as InternalServerError.
func CodeOf(err error) Code {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}

	return InternalServerError
}

var (
	ErrBadRequestLine          = NewError(BadRequest, "malformed request line")
	ErrBadHeader               = NewError(BadRequest, "malformed header field")
	ErrBadContentLength        = NewError(BadRequest, "malformed Content-Length")
	ErrURIDecoding             = NewError(BadRequest, "invalid urlencoded sequence")
	ErrHeaderFieldsTooLarge    = NewError(BadRequest, "too large headers section")
	ErrTooManyHeaders          = NewError(RequestHeaderFieldsTooLarge, "too many headers")
	ErrBodyTooLarge            = NewError(RequestEntityTooLarge, "request body is too large")
	ErrUnexpectedBody          = NewError(InternalServerError, "request body is not allowed for the method")
	ErrUnsupportedEncoding     = NewError(InternalServerError, "transfer encodings are not supported")
	ErrHTTPVersionNotSupported = NewError(HTTPVersionNotSupported, "HTTP version not supported")
)
