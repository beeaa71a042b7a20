package logger

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// envLevels is the level each environment logs at unless Config.Level is set
var envLevels = map[string]slog.Level{
	"dev":  slog.LevelDebug,
	"prod": slog.LevelInfo,
	"test": slog.LevelError,
}

func createHandler(config Config) (slog.Handler, error) {
	env := strings.ToLower(config.Env)
	level, ok := envLevels[env]
	if !ok {
		return nil, fmt.Errorf("unknown environment: %s (use 'dev', 'prod', or 'test')", config.Env)
	}
	if config.Level != "" {
		l, err := ParseLevel(config.Level)
		if err != nil {
			return nil, err
		}
		level = l
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.AddSource,
	}

	if env == "prod" {
		// JSON keeps RFC 3339 timestamps
		opts.ReplaceAttr = replaceAttr("", config.SourcePathLength)
		return slog.NewJSONHandler(config.Output, opts), nil
	}

	opts.ReplaceAttr = replaceAttr(config.TimeFormat, config.SourcePathLength)
	return slog.NewTextHandler(config.Output, opts), nil
}

// ParseLevel accepts debug, info, warn and error in any case
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level: %q (use debug, info, warn or error)", s)
}

// replaceAttr formats top-level timestamps and renders the source as a
// short "dir/file.go:line" string
func replaceAttr(timeFormat string, pathSegments int) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}

		switch a.Key {
		case slog.TimeKey:
			if t, ok := a.Value.Any().(time.Time); ok && timeFormat != "" {
				a.Value = slog.StringValue(t.Format(timeFormat))
			}
		case slog.SourceKey:
			if src, ok := a.Value.Any().(*slog.Source); ok && src != nil && pathSegments > 0 {
				a.Value = slog.StringValue(fmt.Sprintf("%s:%d", shortenPath(src.File, pathSegments), src.Line))
			}
		}
		return a
	}
}

// shortenPath keeps the last n segments of a path
func shortenPath(path string, n int) string {
	if n <= 0 {
		return path
	}

	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= n {
		return path
	}
	return strings.Join(parts[len(parts)-n:], "/")
}
