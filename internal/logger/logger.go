package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

var (
	log = zerolog.Nop()

	DebugEnabled = false

	logFile *os.File
)

// InitLogging sets up logging based on configuration.
func InitLogging(debugMode bool, logPath string) error {
	DebugEnabled = debugMode

	if DebugEnabled && logPath != "" {
		logDir := filepath.Dir(logPath)
		err := os.MkdirAll(logDir, 0o755)
		if err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}

		logFile = f
		SetOutput(f)
	}

	return nil
}

// SetOutput routes debug logging to w. Mostly useful in tests.
func SetOutput(w io.Writer) {
	DebugEnabled = true
	log = zerolog.New(w).
		With().
		Timestamp().
		CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + 1).
		Logger()
}

// Close closes the log file if open.
func Close() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}

	log = zerolog.Nop()
}

// With returns a child logger carrying the given fields.
func With(fields map[string]interface{}) zerolog.Logger {
	return log.With().Fields(fields).Logger()
}

func Infof(format string, v ...interface{}) {
	if DebugEnabled {
		log.Info().Msgf(format, v...)
	}
}

// Errorf logs an error message to the file if debug mode is enabled.
func Errorf(format string, v ...interface{}) {
	if DebugEnabled {
		log.Error().Msgf(format, v...)
	}
}

func Debugf(format string, v ...interface{}) {
	if DebugEnabled {
		log.Debug().Msgf(format, v...)
	}
}

func Warnf(format string, v ...interface{}) {
	if DebugEnabled {
		log.Warn().Msgf(format, v...)
	}
}
