package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zipfetch/archive"
	"zipfetch/fetchers"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, archive.DefaultConcurrency, cfg.Builder.Concurrency)
	assert.Equal(t, "partial", cfg.Builder.OnFailure)
	assert.Equal(t, "suffix", cfg.Builder.OnCollision)
	assert.Equal(t, "download", cfg.Builder.DefaultName)
	assert.Equal(t, fetchers.DefaultMaxBytes, cfg.Fetch.MaxBytes)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zipfetch.yaml")

	cfg := DefaultConfig()
	cfg.Builder.OnFailure = "atomic"
	cfg.Builder.Concurrency = 2
	cfg.Fetch.Timeout = "5s"
	cfg.Server.PSK = "secret"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	opts, err := loaded.BuilderOptions()
	require.NoError(t, err)
	assert.Equal(t, archive.FailAtomic, opts.OnFailure)
	assert.Equal(t, archive.CollisionSuffix, opts.OnCollision)
	assert.Equal(t, 2, opts.Concurrency)

	d, err := loaded.FetchTimeout()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)
}

func TestLoadPartialFileKeepsOtherDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zipfetch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("builder:\n  on_collision: overwrite\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "overwrite", cfg.Builder.OnCollision)
	assert.Equal(t, "partial", cfg.Builder.OnFailure)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"failure":   "builder:\n  on_failure: maybe\n",
		"collision": "builder:\n  on_collision: merge\n",
		"timeout":   "fetch:\n  timeout: soon\n",
		"cache":     "fetch:\n  cache_entries: -1\n",
		"yaml":      "builder: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "zipfetch.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestNewFetcherRoutes(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("remote"))
	}))
	defer origin.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("local"), 0o600))

	cfg := DefaultConfig()
	f, err := cfg.NewFetcher(false)
	require.NoError(t, err)

	b, err := f.Fetch(context.Background(), origin.URL)
	require.NoError(t, err)
	assert.Equal(t, "remote", string(b))

	_, err = f.Fetch(context.Background(), filepath.Join(dir, "a.txt"))
	assert.ErrorIs(t, err, fetchers.ErrUnsupportedScheme)

	cfg.Fetch.LocalRoot = dir
	cfg.Fetch.CacheEntries = 4
	f, err = cfg.NewFetcher(false)
	require.NoError(t, err)
	_, ok := f.(*fetchers.Cached)
	assert.True(t, ok)

	b, err = f.Fetch(context.Background(), "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "local", string(b))
}
