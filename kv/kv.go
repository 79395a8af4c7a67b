// Package kv provides the synchronous key-value stores behind the storage
// adapters. Values are opaque bytes.
package kv

import (
	"fmt"

	"github.com/delaneyj/statesync/config"
	"github.com/delaneyj/statesync/staterr"
)

var (
	ErrKeyNotFound = staterr.New(staterr.Usage, "kv.Get", "key not found")
	ErrEmptyKey    = staterr.New(staterr.Usage, "kv", "key must not be empty")
)

// Store is a synchronous key-value store. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns ErrKeyNotFound when key is absent.
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	// Delete reports whether key was present.
	Delete(key string) (bool, error)
	// Keys returns all keys in lexical order.
	Keys() ([]string, error)
	Clear() error
}

// Open builds the store described by cfg.
func Open(cfg config.Store) (Store, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return NewMemory(), nil
	case config.BackendFile:
		return NewFile(cfg.Path)
	case config.BackendS3:
		client := NewS3Client(cfg.S3)
		return NewS3(client, cfg.S3.Bucket, cfg.S3.Prefix, cfg.Timeout), nil
	}
	return nil, fmt.Errorf("kv: unknown backend %q", cfg.Backend)
}
