package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParse(t *testing.T) {
	t.Run("overrides defaults", func(t *testing.T) {
		cfg, err := Parse([]byte(`{
			"Files": {"Root": "/srv/www", "Backend": "sendfile"},
			"NET": {"IdleTimeout": "1m30s", "TotalTimeout": 600},
			"StatCache": {"TTL": {"Positive": "2s"}}
		}`))
		require.NoError(t, err)
		require.Equal(t, "/srv/www", cfg.Files.Root)
		require.Equal(t, "sendfile", cfg.Files.Backend)
		require.Equal(t, 90*time.Second, cfg.NET.IdleTimeout.Std())
		require.Equal(t, 10*time.Minute, cfg.NET.TotalTimeout.Std())
		require.Equal(t, 2*time.Second, cfg.StatCache.TTL.Positive.Std())
		// untouched fields keep defaults
		require.Equal(t, time.Second, cfg.StatCache.TTL.Negative.Std())
		require.Equal(t, "index.html", cfg.Files.IndexFile)
	})

	t.Run("bad backend", func(t *testing.T) {
		_, err := Parse([]byte(`{"Files": {"Backend": "carrier-pigeon"}}`))
		require.Error(t, err)
	})

	t.Run("soft above hard", func(t *testing.T) {
		_, err := Parse([]byte(`{"Limits": {"Soft": 10, "Hard": 5}}`))
		require.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := Parse([]byte(`{"NET": {"IdleTimeout": "soon"}}`))
		require.Error(t, err)
	})
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "httpd.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Server": {"Name": "test"}}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "test", cfg.Server.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
