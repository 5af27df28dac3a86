package main

import (
	"testing"

	"github.com/clcert/beacon-verifier/verifier/config"
	"github.com/clcert/beacon-verifier/verifier/metrics"
	"github.com/stretchr/testify/require"
)

func TestBuildSources_OnlyEnabled(t *testing.T) {
	cfg := &config.Config{}
	cfg.Sources.Radio = &config.RadioConfig{Enabled: true, URL: "radio.example.org", Port: 8000, Prefix: "0f"}
	cfg.Sources.Microblog = &config.MicroblogConfig{Enabled: false}
	cfg.Sources.Seism = &config.SeismConfig{Enabled: true, SourceURL: "https://seism.example.org/"}

	sources, err := buildSources(cfg, metrics.NewSink())
	require.NoError(t, err)
	require.Len(t, sources, 2)

	names := map[string]bool{}
	for _, s := range sources {
		names[s.Name()] = true
	}
	require.True(t, names["radio"])
	require.True(t, names["seismology"])
	require.False(t, names["twitter"])
}

func TestBuildSources_EthereumErrorPropagates(t *testing.T) {
	cfg := &config.Config{}
	cfg.Sources.Ethereum = &config.EthereumConfig{Enabled: true, Threshold: 3}
	cfg.Sources.Ethereum.Tokens.Infura = "only-one-token"

	_, err := buildSources(cfg, metrics.NewSink())
	require.Error(t, err)
}

func TestBuildSources_NoneEnabled(t *testing.T) {
	sources, err := buildSources(&config.Config{}, metrics.NewSink())
	require.NoError(t, err)
	require.Empty(t, sources)
}
