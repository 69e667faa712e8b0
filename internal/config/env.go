package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvToken    = "BOT_TOKEN"
	EnvAdminIDs = "ADMIN_IDS"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Missing files are ignored; already-set variables win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides the token and admin list from the environment.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if tok := strings.TrimSpace(getenv(EnvToken)); tok != "" {
		cfg.Telegram.Token = tok
	}
	raw := strings.TrimSpace(getenv(EnvAdminIDs))
	if raw == "" {
		return nil
	}
	ids, err := ParseIDList(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", EnvAdminIDs, err)
	}
	cfg.Telegram.AdminIDs = ids
	return nil
}

// ParseIDList parses "1, 2,3" into ids, skipping empty items.
func ParseIDList(raw string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		out = append(out, id)
	}
	return out, nil
}
