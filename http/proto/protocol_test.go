package proto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromBytes(t *testing.T) {
	tcs := []struct {
		Raw  string
		Want Protocol
	}{
		{"HTTP/1.0", HTTP10},
		{"HTTP/1.1", HTTP11},
		{"HTTP/2.0", Unknown},
		{"HTTP/0.9", Unknown},
		{"HTTP/1.1 ", Unknown},
		{"http/1.1", Unknown},
		{"HTTP/1-1", Unknown},
		{"", Unknown},
	}

	for _, tc := range tcs {
		require.Equal(t, tc.Want, FromBytes([]byte(tc.Raw)), tc.Raw)
	}
}

func TestKeepAliveByDefault(t *testing.T) {
	require.True(t, HTTP11.KeepAliveByDefault())
	require.False(t, HTTP10.KeepAliveByDefault())
	require.Equal(t, "HTTP/1.0", HTTP10.String())
}
