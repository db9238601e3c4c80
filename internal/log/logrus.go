package log

import (
	"github.com/sirupsen/logrus"

	"firestige.xyz/hepagent/internal/config"
)

const (
	defaultPattern    = "%time [%level] %field %msg\n"
	defaultTimeLayout = "2006-01-02 15:04:05.000"
)

// NewLogrusEntry returns a logrus entry writing to the same destinations as
// the global slog logger, for libraries that expect a logrus-shaped logger.
func NewLogrusEntry(cfg config.LogConfig, component string) *logrus.Entry {
	l := logrus.New()
	l.SetFormatter(&formatter{
		pattern: defaultPattern,
		time:    defaultTimeLayout,
	})
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	l.SetOutput(Output())

	return l.WithField("component", component)
}
