package room

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxNameLength       = 20
	MaxMessageLength    = 2000
	DefaultMessageLimit = 50
	MaxMessageLimit     = 100
)

// validateVideoURL runs the same checks, in the same order, as room creation in the UI
func validateVideoURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrVideoURLRequired
	}
	if !IsYouTubeURL(raw) {
		return "", ErrInvalidVideoURL
	}
	if _, ok := ExtractVideoID(raw); !ok {
		return "", ErrNoVideoID
	}
	return raw, nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameRequired
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrNameTooLong
	}
	if strings.EqualFold(name, SystemSender) {
		return "", ErrReservedName
	}
	return name, nil
}

func validateMessage(sender, body string) (string, string, error) {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return "", "", ErrSenderRequired
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return "", "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > MaxMessageLength {
		return "", "", ErrMessageTooLong
	}
	return sender, body, nil
}

func validatePosition(pos float64) error {
	if math.IsNaN(pos) || math.IsInf(pos, 0) || pos < 0 {
		return ErrInvalidPosition
	}
	return nil
}

// ClampLimit applies the default and upper bound for message listing
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		return MaxMessageLimit
	}
	return limit
}

// now is the storage timestamp: UTC, truncated to what Postgres keeps
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
