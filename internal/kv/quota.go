package kv

import (
	"context"
	"fmt"
)

type quotaStore struct {
	Store
	max int64
}

// WithQuota limits the bytes held by st. When st implements Sizer the limit covers
// every key; otherwise it applies to each value on its own.
func WithQuota(st Store, maxBytes int64) Store {
	return &quotaStore{Store: st, max: maxBytes}
}

func (q *quotaStore) Set(ctx context.Context, key, value string) error {
	next := int64(len(key) + len(value))
	if sizer, ok := q.Store.(Sizer); ok {
		total, err := sizer.Size(ctx)
		if err != nil {
			return fmt.Errorf("failed to measure store: %w", err)
		}
		prev, exists, err := q.Store.Get(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			total -= int64(len(key) + len(prev))
		}
		next += total
	}
	if next > q.max {
		return fmt.Errorf("%w: %d bytes over a %d byte quota", ErrQuotaExceeded, next, q.max)
	}
	return q.Store.Set(ctx, key, value)
}

func (q *quotaStore) Keys(ctx context.Context) ([]string, error) {
	l, ok := q.Store.(Lister)
	if !ok {
		return nil, fmt.Errorf("store does not support listing keys")
	}
	return l.Keys(ctx)
}
