// Package kv defines the key-value contract the engine persists through,
// plus the ephemeral in-memory store used as the session-scoped fallback.
package kv

import (
	"context"
	"errors"
)

// ErrQuotaExceeded reports that a Set would push the store past its storage
// budget. Callers are expected to free space and retry or fall back.
var ErrQuotaExceeded = errors.New("kv: quota exceeded")

// Store is a flat byte-valued key-value store. Implementations must be safe
// for concurrent use and must not retain or expose internal buffers.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// StoreCloser is a Store backed by a resource that must be released.
type StoreCloser interface {
	Store
	Close() error
}
