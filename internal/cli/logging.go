package cli

import (
	"os"
	"strings"

	"github.com/GabrielNunesIT/go-libs/logger"
)

// SetupLogging creates the diagnostic logger at the given level. It writes
// to stderr so it never mixes with a stdout stream sink.
func SetupLogging(level string) logger.ILogger {
	log := logger.NewConsoleLogger(os.Stderr)

	switch strings.ToLower(level) {
	case "trace":
		log.SetLevel(logger.LevelTrace)
	case "debug":
		log.SetLevel(logger.LevelDebug)
	case "warn", "warning":
		log.SetLevel(logger.LevelWarning)
	case "error":
		log.SetLevel(logger.LevelError)
	default:
		log.SetLevel(logger.LevelInfo)
	}

	logger.SetDefaultLogger(log)
	logger.SetCtxFallbackLogger(log)

	return log
}
