package storage

import (
	"context"
	"sync"
)

// MemoryBackend keeps the snapshot in process memory. Used by tests and
// dry runs.
type MemoryBackend struct {
	mu    sync.Mutex
	data  []byte
	saves int
	err   error
}

func NewMemoryBackend() *MemoryBackend { return &MemoryBackend{} }

// NewMemoryBackendFrom starts with a pre-existing snapshot.
func NewMemoryBackendFrom(snapshot []byte) *MemoryBackend {
	return &MemoryBackend{data: append([]byte(nil), snapshot...)}
}

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) Load(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return nil, nil
	}
	return append([]byte(nil), b.data...), nil
}

func (b *MemoryBackend) Save(ctx context.Context, snapshot []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.data = append([]byte(nil), snapshot...)
	b.saves++
	return nil
}

func (b *MemoryBackend) Close() error { return nil }

// Saves reports how many snapshots were written.
func (b *MemoryBackend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

// FailSaves makes subsequent saves return err (nil restores).
func (b *MemoryBackend) FailSaves(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}
