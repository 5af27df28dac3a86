// Command verifier runs the beacon source verifier: it starts each
// configured source's collector, periodically fetches the beacon's latest
// pulse, verifies it against every collector's buffer, and persists a
// JSON report per pulse.
package main

import (
	"os"
	"os/signal"
	"syscall"

	baseclient "github.com/clcert/beacon-verifier/api/client"
	"github.com/clcert/beacon-verifier/api/client/beacon"
	"github.com/clcert/beacon-verifier/cmd/verifier/flags"
	"github.com/clcert/beacon-verifier/cmd/verifier/logsetup"
	"github.com/clcert/beacon-verifier/runtime"
	"github.com/clcert/beacon-verifier/verifier/config"
	"github.com/clcert/beacon-verifier/verifier/manager"
	"github.com/clcert/beacon-verifier/verifier/metrics"
	"github.com/clcert/beacon-verifier/verifier/source"
	"github.com/clcert/beacon-verifier/verifier/source/ethereum"
	"github.com/clcert/beacon-verifier/verifier/source/radio"
	"github.com/clcert/beacon-verifier/verifier/source/seism"
	"github.com/clcert/beacon-verifier/verifier/source/twitter"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var log = logrus.WithField("prefix", "main")

const defaultMetricsPort = 9345

func main() {
	app := cli.NewApp()
	app.Name = "verifier"
	app.Usage = "independent verifier for the CLCERT randomness beacon"
	app.Flags = flags.Flags
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("verifier exited with an error")
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String(flags.ConfigFileFlag.Name))
	if err != nil {
		return err
	}

	level := c.String(flags.VerbosityFlag.Name)
	if level == "" {
		level = cfg.LogLevel
	}
	if err := logsetup.Configure(level, cfg.LogName); err != nil {
		return err
	}

	sink := metrics.NewSink()

	sources, err := buildSources(cfg, sink)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return config.ErrNoSourcesEnabled
	}

	base, err := baseclient.NewClient(cfg.BaseAPI)
	if err != nil {
		return err
	}
	beaconClient := beacon.NewClient(base)

	m := manager.New(cfg.ManagerConfig(), beaconClient, sink, sources)

	metricsPort := c.Int(flags.MetricsPortFlag.Name)
	if metricsPort == 0 {
		metricsPort = cfg.MetricsPort
	}
	if metricsPort == 0 {
		metricsPort = defaultMetricsPort
	}

	registry := runtime.NewServiceRegistry()
	if err := registry.RegisterService(metrics.NewServer(sink, metricsPort)); err != nil {
		return err
	}
	if err := registry.RegisterService(m); err != nil {
		return err
	}

	log.WithField("metrics_port", metricsPort).Info("starting verifier")
	registry.StartAll()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutdown signal received, stopping services")
	registry.StopAll()
	return nil
}

// buildSources constructs the enabled sources from cfg, in a stable order
// so metrics and logs read deterministically across runs.
func buildSources(cfg *config.Config, sink *metrics.Sink) ([]source.Source, error) {
	var sources []source.Source

	if rc := cfg.Sources.Radio; rc != nil && rc.Enabled {
		sources = append(sources, radio.New(rc.RadioSourceConfig()))
	}
	if mc := cfg.Sources.Microblog; mc != nil && mc.Enabled {
		sources = append(sources, twitter.New(mc.TwitterSourceConfig(), sink))
	}
	if sc := cfg.Sources.Seism; sc != nil && sc.Enabled {
		sources = append(sources, seism.New(sc.SeismSourceConfig()))
	}
	if ec := cfg.Sources.Ethereum; ec != nil && ec.Enabled {
		s, err := ethereum.New(ec.EthereumSourceConfig())
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, nil
}
