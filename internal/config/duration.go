package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DurationError reports a config field holding a bad duration string.
type DurationError struct {
	Path string
	Raw  string
	Err  error
}

func (e *DurationError) Error() string {
	return fmt.Sprintf("%s: %q is not a valid duration: %v", e.Path, e.Raw, e.Err)
}

func (e *DurationError) Unwrap() error { return e.Err }

var errNegativeDuration = errors.New("must not be negative")

// ParseDurationField parses a "1.5s"-style field. Blank means zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, &DurationError{Path: path, Raw: raw, Err: err}
	case d < 0:
		return 0, &DurationError{Path: path, Raw: raw, Err: errNegativeDuration}
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def standing in for a
// blank or zero value.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

// durationFields lists every duration-valued key in the file, in file order.
func durationFields(cfg *Config) []struct{ path, raw string } {
	return []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"broadcast.batch_pause", cfg.Broadcast.BatchPause},
		{"broadcast.status_ttl", cfg.Broadcast.StatusTTL},
		{"notifier.retry_base", cfg.Notifier.RetryBase},
		{"notifier.spacing", cfg.Notifier.Spacing},
	}
}
