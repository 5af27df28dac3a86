// Package flags declares the cmd/verifier CLI surface.
package flags

import "github.com/urfave/cli/v2"

var (
	// ConfigFileFlag points at the JSON config file (spec.md §6).
	ConfigFileFlag = &cli.StringFlag{
		Name:     "config",
		Usage:    "path to the verifier's JSON config file",
		Value:    "config.json",
		EnvVars:  []string{"VERIFIER_CONFIG"},
		Required: false,
	}
	// MetricsPortFlag overrides the config file's metrics_port.
	MetricsPortFlag = &cli.IntFlag{
		Name:  "metrics-port",
		Usage: "overrides the config file's metrics_port",
		Value: 0,
	}
	// VerbosityFlag sets the logrus level by name (panic, fatal, error,
	// warn, info, debug, trace), overriding the config file's log_level.
	VerbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "overrides the config file's log_level",
		Value: "",
	}
)

// Flags is the full set registered on the cmd/verifier app.
var Flags = []cli.Flag{
	ConfigFileFlag,
	MetricsPortFlag,
	VerbosityFlag,
}
