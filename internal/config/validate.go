package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate rejects configs the bot cannot start with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, fmt.Errorf("telegram.token is empty (set it or %s)", EnvToken))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "file", "sqlite", "bolt", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	if cfg.Broadcast.BatchSize < 0 {
		errs = append(errs, errors.New("broadcast.batch_size must be >= 0"))
	}
	if cfg.Broadcast.ProgressEvery < 0 {
		errs = append(errs, errors.New("broadcast.progress_every must be >= 0"))
	}
	for _, f := range durationFields(cfg) {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
