package storage

import (
	"context"
	"fmt"
	"strings"

	logx "pricebot/pkg/logx"
)

// Backend persists and restores the serialized snapshot.
type Backend interface {
	Name() string
	// Load returns the last saved snapshot, or nil when nothing was saved yet.
	Load(ctx context.Context) ([]byte, error)
	// Save replaces the stored snapshot.
	Save(ctx context.Context, snapshot []byte) error
	Close() error
}

// OpenBackend initializes the configured backend.
func OpenBackend(cfg Config, log logx.Logger) (Backend, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file", "json":
		return openFile(cfg)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "bolt", "bbolt":
		return openBolt(cfg)
	case "memory", "none":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}
