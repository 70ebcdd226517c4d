// Package kv provides flat key-value storage backends for the progress record.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/verte-zerg/lexivault/internal/model"
)

// ErrQuotaExceeded is returned when a write would exceed the storage quota.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Store is a flat key-value store. Each Set replaces the whole value in one write.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}

// Sizer is implemented by stores that can report their total stored bytes.
type Sizer interface {
	Size(ctx context.Context) (int64, error)
}

// Lister is implemented by stores that can enumerate their keys.
type Lister interface {
	Keys(ctx context.Context) ([]string, error)
}

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Open builds the store selected by cfg, wrapped with its quota when one is set.
func Open(ctx context.Context, cfg model.Config) (Store, error) {
	var (
		st  Store
		err error
	)
	switch strings.ToLower(cfg.Backend) {
	case BackendSQLite, "":
		st, err = OpenSQLite(cfg.DBPath)
	case BackendMemory:
		st = NewMemory()
	case BackendRedis:
		st, err = OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPrefix)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if cfg.QuotaBytes > 0 {
		st = WithQuota(st, cfg.QuotaBytes)
	}
	return st, nil
}
