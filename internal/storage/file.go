package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const defaultFilePath = "data.json"

// fileBackend keeps the snapshot in a single JSON file. Saves go through a
// temp file in the same directory and a rename, so a crash leaves either the
// old or the new snapshot on disk.
type fileBackend struct {
	path string
}

func openFile(cfg Config) (*fileBackend, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = defaultFilePath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileBackend{path: path}, nil
}

func (b *fileBackend) Name() string { return "file" }

func (b *fileBackend) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func (b *fileBackend) Save(ctx context.Context, snapshot []byte) error {
	dir := filepath.Dir(b.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(snapshot); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, b.path)
}

func (b *fileBackend) Close() error { return nil }
