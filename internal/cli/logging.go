package cli

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// newLogger builds the process logger from settings. Logs go to w so that
// command output on stdout stays parseable.
func newLogger(s LogSettings, w io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(w)
	if err := applyLogSettings(log, s); err != nil {
		return nil, err
	}
	return log, nil
}

// applyLogSettings updates level and format in place. serve calls it again
// when the config file changes.
func applyLogSettings(log *logrus.Logger, s LogSettings) error {
	level, err := logrus.ParseLevel(s.Level)
	if err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	log.SetLevel(level)
	switch s.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
