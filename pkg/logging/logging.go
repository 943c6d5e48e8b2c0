// Package logging sets up the caster's structured logger and the two
// concerns layered on top of it: a sanitizer that keeps credentials
// out of log lines, and a per-key throttle that keeps a noisy
// connection from flooding the log.
//
// Grounded on pkg/caster/caster.go's getHandler, which builds one
// logrus.FieldLogger per request via logger.WithFields(...) rather
// than logging free-form strings; New here builds the root
// *logrus.Logger that pattern attaches fields to.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logrus.Logger at the given level (any string
// logrus.ParseLevel accepts; an invalid level falls back to Info
// rather than failing startup over a log-config typo), writing JSON
// lines to stdout.
func New(level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)
	return l
}
