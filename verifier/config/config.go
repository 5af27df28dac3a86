// Package config loads the verifier's JSON configuration file into the
// structs each package needs, following the teacher's single
// structured-config-at-startup convention.
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/clcert/beacon-verifier/verifier/manager"
	"github.com/clcert/beacon-verifier/verifier/source/ethereum"
	"github.com/clcert/beacon-verifier/verifier/source/radio"
	"github.com/clcert/beacon-verifier/verifier/source/seism"
	"github.com/clcert/beacon-verifier/verifier/source/twitter"
	"github.com/pkg/errors"
)

// ErrNoSourcesEnabled is returned when every sources.<name>.enabled is
// false or absent.
var ErrNoSourcesEnabled = errors.New("config: no sources enabled")

// Config is the top-level shape of the JSON config file (spec.md §6).
type Config struct {
	VerificationTimeoutSeconds  int    `json:"verification_timeout"`
	CollectorStopTimeoutSeconds int    `json:"collector_stop_timeout"`
	VerificationIntervalSeconds int    `json:"verification_interval"`
	BaseAPI                     string `json:"base_api"`
	OutputFolder                string `json:"output_folder"`
	MetricsPort                 int    `json:"metrics_port"`
	LogLevel                    string `json:"log_level"`
	LogName                     string `json:"log_name"`
	Sources                     struct {
		Radio     *RadioConfig     `json:"radio"`
		Microblog *MicroblogConfig `json:"microblog"`
		Seism     *SeismConfig     `json:"seism"`
		Ethereum  *EthereumConfig  `json:"ethereum"`
	} `json:"sources"`
}

// RadioConfig mirrors radio.Config plus the enabled switch.
type RadioConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Port    int    `json:"port"`
	Prefix  string `json:"prefix"`
}

// MicroblogConfig mirrors twitter.Config plus the enabled switch.
type MicroblogConfig struct {
	Enabled        bool   `json:"enabled"`
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
	TweetInterval  int    `json:"tweet_interval"`
	SecondStart    int    `json:"second_start"`
}

// SeismConfig mirrors seism.Config plus the enabled switch.
type SeismConfig struct {
	Enabled              bool   `json:"enabled"`
	SourceURL            string `json:"source_url"`
	FetchIntervalSeconds int    `json:"fetch_interval"`
}

// EthereumConfig mirrors ethereum.Config plus the enabled switch and the
// nested tokens object.
type EthereumConfig struct {
	Enabled       bool `json:"enabled"`
	Threshold     int  `json:"threshold"`
	BlockIDModule int  `json:"block_id_module"`
	Tokens        struct {
		Infura    string `json:"infura"`
		EtherScan string `json:"etherscan"`
		Rivet     string `json:"rivet"`
	} `json:"tokens"`
}

// Load reads and parses the JSON config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config file %s", path)
	}
	return &cfg, nil
}

// VerificationTimeout is VerificationTimeoutSeconds as a time.Duration.
func (c *Config) VerificationTimeout() time.Duration {
	return time.Duration(c.VerificationTimeoutSeconds) * time.Second
}

// CollectorStopTimeout is CollectorStopTimeoutSeconds as a time.Duration.
func (c *Config) CollectorStopTimeout() time.Duration {
	return time.Duration(c.CollectorStopTimeoutSeconds) * time.Second
}

// VerificationInterval is VerificationIntervalSeconds as a time.Duration.
func (c *Config) VerificationInterval() time.Duration {
	return time.Duration(c.VerificationIntervalSeconds) * time.Second
}

// ManagerConfig projects the manager-relevant fields into manager.Config.
func (c *Config) ManagerConfig() manager.Config {
	return manager.Config{
		VerificationTimeout:  c.VerificationTimeout(),
		CollectorStopTimeout: c.CollectorStopTimeout(),
		VerificationInterval: c.VerificationInterval(),
		OutputFolder:         c.OutputFolder,
	}
}

// RadioSourceConfig converts the JSON shape into radio.Config.
func (c *RadioConfig) RadioSourceConfig() radio.Config {
	return radio.Config{URL: c.URL, Port: c.Port, Prefix: c.Prefix}
}

// TwitterSourceConfig converts the JSON shape into twitter.Config.
func (c *MicroblogConfig) TwitterSourceConfig() twitter.Config {
	return twitter.Config{
		ConsumerKey:    c.ConsumerKey,
		ConsumerSecret: c.ConsumerSecret,
		TweetInterval:  c.TweetInterval,
		SecondStart:    c.SecondStart,
	}
}

// SeismSourceConfig converts the JSON shape into seism.Config.
func (c *SeismConfig) SeismSourceConfig() seism.Config {
	return seism.Config{
		SourceURL:     c.SourceURL,
		FetchInterval: time.Duration(c.FetchIntervalSeconds) * time.Second,
	}
}

// EthereumSourceConfig converts the JSON shape into ethereum.Config.
func (c *EthereumConfig) EthereumSourceConfig() ethereum.Config {
	return ethereum.Config{
		Threshold:      c.Threshold,
		BlockIDModule:  uint64(c.BlockIDModule),
		InfuraToken:    c.Tokens.Infura,
		EtherScanToken: c.Tokens.EtherScan,
		RivetToken:     c.Tokens.Rivet,
	}
}
