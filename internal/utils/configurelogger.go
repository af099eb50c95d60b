package utils

import (
	"errors"
	"io"
	"log/slog"
	"os"
)

// Configure the slog logger with a specific log level and potential output file.
//
// Valid log levels are "none", "error", "warn", "info", "debug". Any other value returns an error.
// logFile may either specify a file path (an error is returned if the path cannot be opened) or be empty,
// in which case the logger writes to fallback. A nil fallback discards the logs, which the
// terminal interface needs so that log lines do not tear up the screen.
//
// Returns the os.File pointer that slog writes to, so it may be gracefully shut:
// ```
// logFilePointer, err := utils.ConfigureDefaultLogger(...)
//
//	if logFilePointer != nil{
//		defer logFilePointer.Close()
//	}
//
// ```
func ConfigureDefaultLogger(logLevel string, logFile string, fallback io.Writer, loggerOptions slog.HandlerOptions) (*os.File, error) {

	switch logLevel {
	case "none":
		// No logging is required, disable the logger and return
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return nil, nil
	case "error":
		loggerOptions.Level = slog.LevelError
	case "warn":
		loggerOptions.Level = slog.LevelWarn
	case "info":
		loggerOptions.Level = slog.LevelInfo
	case "debug":
		loggerOptions.Level = slog.LevelDebug
	default:
		return nil, errors.New("unexpected log level")
	}

	// --------------------------------------------------------------------------------

	var logFilePointer *os.File
	var slogHandler slog.Handler
	if logFile == "" {
		if fallback == nil {
			fallback = io.Discard
		}
		slogHandler = slog.NewTextHandler(fallback, &loggerOptions)
	} else {
		var err error
		logFilePointer, err = os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return nil, err
		}
		slogHandler = slog.NewJSONHandler(logFilePointer, &loggerOptions)
	}

	// --------------------------------------------------------------------------------

	slog.SetDefault(slog.New(slogHandler))
	return logFilePointer, nil
}
