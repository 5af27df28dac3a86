// Package logsetup configures the global logrus logger from the config
// file's log_level/log_name and an optional --verbosity override.
package logsetup

import (
	"os"

	"github.com/pkg/errors"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
	"github.com/sirupsen/logrus"
	"github.com/wercker/journalhook"
)

// Configure sets the logrus level and output sink. levelName is parsed via
// logrus.ParseLevel; logName selects the destination:
//
//	""         stderr, prefixed text formatter
//	"journal"  the systemd journal
//	otherwise  a file path, appended to
func Configure(levelName, logName string) error {
	level := logrus.InfoLevel
	if levelName != "" {
		parsed, err := logrus.ParseLevel(levelName)
		if err != nil {
			return errors.Wrapf(err, "parsing log level %q", levelName)
		}
		level = parsed
	}
	logrus.SetLevel(level)

	switch logName {
	case "":
		logrus.SetFormatter(&prefixed.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
		})
		logrus.SetOutput(os.Stderr)
	case "journal":
		journalhook.Enable()
	default:
		f, err := os.OpenFile(logName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return errors.Wrapf(err, "opening log file %s", logName)
		}
		logrus.SetFormatter(&logrus.JSONFormatter{})
		logrus.SetOutput(f)
	}
	return nil
}
