package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
  "verification_timeout": 30,
  "collector_stop_timeout": 10,
  "verification_interval": 60,
  "base_api": "https://beacon.clcert.cl",
  "output_folder": "/tmp/out",
  "metrics_port": 9345,
  "log_level": "info",
  "log_name": "",
  "sources": {
    "radio": {"enabled": true, "url": "radio.example.org", "port": 8000, "prefix": "0f"},
    "microblog": {"enabled": true, "consumer_key": "k", "consumer_secret": "s", "tweet_interval": 60, "second_start": 0},
    "seism": {"enabled": false, "source_url": "https://seism.example.org/", "fetch_interval": 300},
    "ethereum": {"enabled": true, "threshold": 2, "block_id_module": 10,
      "tokens": {"infura": "a", "etherscan": "b", "rivet": "c"}}
  }
}`

func writeTempConfig(t *testing.T, content string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 30*time.Second, cfg.VerificationTimeout())
	require.Equal(t, 10*time.Second, cfg.CollectorStopTimeout())
	require.Equal(t, 60*time.Second, cfg.VerificationInterval())
	require.Equal(t, "https://beacon.clcert.cl", cfg.BaseAPI)
	require.Equal(t, 9345, cfg.MetricsPort)

	require.NotNil(t, cfg.Sources.Radio)
	require.True(t, cfg.Sources.Radio.Enabled)
	require.Equal(t, "radio.example.org", cfg.Sources.Radio.URL)

	require.NotNil(t, cfg.Sources.Seism)
	require.False(t, cfg.Sources.Seism.Enabled)

	eth := cfg.Sources.Ethereum.EthereumSourceConfig()
	require.Equal(t, 2, eth.Threshold)
	require.EqualValues(t, 10, eth.BlockIDModule)
	require.Equal(t, "a", eth.InfuraToken)

	seismCfg := cfg.Sources.Seism.SeismSourceConfig()
	require.Equal(t, 300*time.Second, seismCfg.FetchInterval)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	require.Error(t, err)
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := writeTempConfig(t, "{not json")
	_, err := Load(path)
	require.Error(t, err)
}
