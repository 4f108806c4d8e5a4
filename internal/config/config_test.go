package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFleet(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 3001, cfg.Port)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Len(t, cfg.Streams, 8)
	assert.Len(t, cfg.Polls, 5)

	venues := map[string]int{}
	for _, s := range cfg.Streams {
		venues[s.Venue]++
		assert.NotEmpty(t, s.Symbols, s.Exchange)
	}
	assert.Equal(t, 4, venues["spot"])
	assert.Equal(t, 4, venues["perp"])
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Port, cfg.Port)
	assert.Len(t, cfg.Streams, 8)
}

func TestLoadFileOverridesFleet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perpsignal.yaml")
	raw := `
port: 4000
data_dir: /tmp/ps
streams:
  - exchange: binance
    venue: perp
    symbols: [BTCUSDT]
polls:
  - source: binance
    interval_seconds: 30
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, "/tmp/ps", cfg.DataDir)
	require.Len(t, cfg.Streams, 1)
	assert.Equal(t, []string{"BTCUSDT"}, cfg.Streams[0].Symbols)
	require.Len(t, cfg.Polls, 1)
	assert.Equal(t, 30, cfg.Polls[0].IntervalSeconds)
}

func TestLoadEnvOverlay(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("DATA_DIR", "/var/lib/perpsignal")
	t.Setenv("SOSOVALUE_API_KEY", "k-123")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/var/lib/perpsignal", cfg.DataDir)
	assert.Equal(t, "k-123", cfg.SoSoValueAPIKey)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("PORT", "70000")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [oops"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
