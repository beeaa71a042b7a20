package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

const defaultTimeFormat = time.TimeOnly

type Config struct {
	Env   string
	Level string // overrides the env default when set

	AddSource        bool
	SourcePathLength int

	// TimeFormat is only applied to dev (text) output
	TimeFormat string

	// Output defaults to os.Stdout
	Output io.Writer
}

// Logger is a wrapper around slog.Logger with additional methods
type Logger struct {
	*slog.Logger
}

// New builds a logger for the given environment and makes it the slog default
func New(config Config) (*Logger, error) {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}

	handler, err := createHandler(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create log handler: %w", err)
	}

	l := slog.New(handler)
	slog.SetDefault(l)

	return &Logger{Logger: l}, nil
}

// ForRoom returns a child logger that tags every record with the room id
func (l *Logger) ForRoom(roomID string) *slog.Logger {
	return l.With("room_id", roomID)
}

// Discard returns a logger that drops everything, handy in tests
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
