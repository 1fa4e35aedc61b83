package mime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	table := NewTable(map[string]string{
		"foo":  "application/x-foo",
		".PNG": "image/x-png",
	})

	tcs := []struct {
		Path, Want string
	}{
		{"/index.html", "text/html; charset=utf-8"},
		{"/INDEX.HTML", "text/html; charset=utf-8"},
		{"/img/cat.jpg", JPEG},
		{"/a.foo", "application/x-foo"},
		{"/a.png", "image/x-png"},
		{"/dir.d/noext", OctetStream},
		{"/", OctetStream},
		{"/archive.tar.gz", GZIP},
	}

	for _, tc := range tcs {
		require.Equal(t, tc.Want, table.ByPath(tc.Path), tc.Path)
	}
}
