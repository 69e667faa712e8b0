package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

const defaultBoltPath = "data.bolt"

var (
	boltBucket = []byte("pricebot")
	boltKey    = []byte("snapshot")
)

// boltBackend stores the snapshot under one key of a bbolt bucket.
type boltBackend struct {
	db *bolt.DB
}

func openBolt(cfg Config) (*boltBackend, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = defaultBoltPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltBackend{db: db}, nil
}

func (b *boltBackend) Name() string { return "bolt" }

func (b *boltBackend) Load(ctx context.Context) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(boltBucket)
		if bkt == nil {
			return errors.New("bolt: bucket missing")
		}
		if v := bkt.Get(boltKey); v != nil {
			// v is only valid inside the transaction
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

func (b *boltBackend) Save(ctx context.Context, snapshot []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put(boltKey, snapshot)
	})
}

func (b *boltBackend) Close() error { return b.db.Close() }
