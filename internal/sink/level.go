package sink

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// ParseLevel converts a case-insensitive severity name to a logrus level.
// Unrecognized names fall back to Info rather than failing.
func ParseLevel(name string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "critical", "fatal":
		return logrus.FatalLevel
	case "error":
		return logrus.ErrorLevel
	case "warning", "warn":
		return logrus.WarnLevel
	case "debug":
		return logrus.DebugLevel
	case "trace":
		return logrus.TraceLevel
	default:
		return logrus.InfoLevel
	}
}

// levelName returns the upper-case name printed in the message template.
func levelName(level logrus.Level) string {
	switch level {
	case logrus.PanicLevel, logrus.FatalLevel:
		return "CRITICAL"
	case logrus.ErrorLevel:
		return "ERROR"
	case logrus.WarnLevel:
		return "WARNING"
	case logrus.InfoLevel:
		return "INFO"
	case logrus.DebugLevel:
		return "DEBUG"
	default:
		return "TRACE"
	}
}
