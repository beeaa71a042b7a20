package logger

import (
	"fmt"
	"log/slog"
)

// Must panics if logger creation fails.
// Useful in main where a missing logger is unrecoverable
func Must(logger *Logger, err error) *Logger {
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	return logger
}

// Err is a shorthand for the "error" attribute used across the codebase
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}
