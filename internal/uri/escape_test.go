package uri

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEscape(t *testing.T) {
	tcs := []struct {
		Name, Path, Want string
	}{
		{"root", "/", "/"},
		{"plain", "/a/b/", "/a/b/"},
		{"space", "/hello world/", "/hello%20world/"},
		{"reserved", "/a;b,c/", "/a%3Bb%2Cc/"},
		{"utf8", "/привет", "/%D0%BF%D1%80%D0%B8%D0%B2%D0%B5%D1%82"},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			require.Equal(t, tc.Want, Escape(tc.Path))
		})
	}
}

func TestEscapeRoundTrip(t *testing.T) {
	for _, raw := range []string{"/a b/c", "/a%3Bb/", "/%D0%BF/x y", "/sub/"} {
		path, _, err := Sanitize(raw)
		require.NoError(t, err)
		again, _, err := Sanitize(Escape(path))
		require.NoError(t, err)
		require.Equal(t, path, again, raw)
	}
}
