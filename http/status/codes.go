package status

import "strconv"

type (
	Code   uint16
	Status = string
)

// Status codes the server is able to produce. The reason phrases are the ones
// registered with IANA.
const (
	OK                          Code = 200 // RFC 9110, 15.3.1
	NoContent                   Code = 204 // RFC 9110, 15.3.5
	MovedPermanently            Code = 301 // RFC 9110, 15.4.2
	NotModified                 Code = 304 // RFC 9110, 15.4.5
	BadRequest                  Code = 400 // RFC 9110, 15.5.1
	Forbidden                   Code = 403 // RFC 9110, 15.5.4
	NotFound                    Code = 404 // RFC 9110, 15.5.5
	MethodNotAllowed            Code = 405 // RFC 9110, 15.5.6
	RequestTimeout              Code = 408 // RFC 9110, 15.5.9
	LengthRequired              Code = 411 // RFC 9110, 15.5.12
	RequestEntityTooLarge       Code = 413 // RFC 9110, 15.5.14
	RequestURITooLong           Code = 414 // RFC 9110, 15.5.15
	RequestHeaderFieldsTooLarge Code = 431 // RFC 6585, 5
	InternalServerError         Code = 500 // RFC 9110, 15.6.1
	NotImplemented              Code = 501 // RFC 9110, 15.6.2
	ServiceUnavailable          Code = 503 // RFC 9110, 15.6.4
	HTTPVersionNotSupported     Code = 505 // RFC 9110, 15.6.6
)

// KnownCodes lists every code Text has a reason phrase for.
var KnownCodes = []Code{
	OK, NoContent, MovedPermanently, NotModified, BadRequest, Forbidden, NotFound,
	MethodNotAllowed, RequestTimeout, LengthRequired, RequestEntityTooLarge,
	RequestURITooLong, RequestHeaderFieldsTooLarge, InternalServerError,
	NotImplemented, ServiceUnavailable, HTTPVersionNotSupported,
}

// Text returns a reason phrase for the HTTP status code. Unknown codes get
// a generic phrase, so a status line is always well-formed.
func Text(code Code) Status {
	switch code {
	case OK:
		return "OK"
	case NoContent:
		return "No Content"
	case MovedPermanently:
		return "Moved Permanently"
	case NotModified:
		return "Not Modified"
	case BadRequest:
		return "Bad Request"
	case Forbidden:
		return "Forbidden"
	case NotFound:
		return "Not Found"
	case MethodNotAllowed:
		return "Method Not Allowed"
	case RequestTimeout:
		return "Request Timeout"
	case LengthRequired:
		return "Length Required"
	case RequestEntityTooLarge:
		return "Request Entity Too Large"
	case RequestURITooLong:
		return "Request URI Too Long"
	case RequestHeaderFieldsTooLarge:
		return "Request Header Fields Too Large"
	case InternalServerError:
		return "Internal Server Error"
	case NotImplemented:
		return "Not Implemented"
	case ServiceUnavailable:
		return "Service Unavailable"
	case HTTPVersionNotSupported:
		return "HTTP Version Not Supported"
	default:
		return "Unknown Status Code"
	}
}

// StringCode returns the decimal representation of the code.
func StringCode(code Code) string {
	return strconv.FormatUint(uint64(code), 10)
}

// IsError reports whether the code belongs to 4xx or 5xx classes.
func IsError(code Code) bool {
	return code >= 400
}
