// Package logging configures the process wide logrus logger.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Init configures the standard logger from the configured level and
// format. Unknown levels fall back to info, and any format other than
// "json" means human oriented text. Packages log through
// logrus.WithField and pick the settings up automatically.
func Init(level, format string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
	if format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logrus.SetOutput(os.Stderr)
}
