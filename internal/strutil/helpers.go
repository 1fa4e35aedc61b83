package strutil

import "strings"

func LStripWS(str string) string {
	for i := 0; i < len(str); i++ {
		switch str[i] {
		case ' ', '\t':
		default:
			return str[i:]
		}
	}

	return ""
}

func RStripWS(str string) string {
	for i := len(str); i > 0; i-- {
		switch str[i-1] {
		case ' ', '\t':
		default:
			return str[:i]
		}
	}

	return ""
}

func StripWS(str string) string {
	return RStripWS(LStripWS(str))
}

// HasToken reports whether a comma-separated list contains the token, compared
// case-insensitively, e.g. HasToken("keep-alive, Upgrade", "upgrade") is true.
func HasToken(list, token string) bool {
	for len(list) > 0 {
		var elem string
		elem, list, _ = strings.Cut(list, ",")
		if strings.EqualFold(StripWS(elem), token) {
			return true
		}
	}

	return false
}
