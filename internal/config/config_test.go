package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDataServerAppliesDefaultsAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"subscribe-port": 9000, "update-port": 9001}`), 0o644))

	cfg, err := LoadDataServer(path)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.SubscribePort)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadDataServerRejectsMissingRequiredField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"subscribe-port": 9000}`), 0o644))

	_, err := LoadDataServer(path)
	require.Error(t, err)
}

func TestLoadDataServerRejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"subscribe-port": 1, "update-port": 2, "bogus": true}`), 0o644))

	_, err := LoadDataServer(path)
	require.Error(t, err)
}

func TestLoadDataStoreAppliesDBDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server-addr": "localhost:9000", "series-dir": "/tmp/series"}`), 0o644))

	cfg, err := LoadDataStore(path)
	require.NoError(t, err)
	require.Equal(t, "sqlite3", cfg.DB.Driver)
}

func TestLoadDotEnvIgnoresMissingFile(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "does-not-exist.env")))
}
