// Package vault boots the progress record from storage and guards every write to it.
//
// A Vault owns its kv.Store: nothing else in the application is handed the store, so
// Save, ForceSave and Reset are the only paths that write the progress record.
package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/lexivault/internal/hydrate"
	"github.com/verte-zerg/lexivault/internal/kv"
	"github.com/verte-zerg/lexivault/internal/logger"
	"github.com/verte-zerg/lexivault/internal/model"
	"github.com/verte-zerg/lexivault/internal/schema"
)

// ErrAlreadyBooted is returned by Boot on a vault that has already booted.
var ErrAlreadyBooted = errors.New("vault already booted")

// errRead marks readDoc failures raised by the store, as opposed to an unparsable
// document.
var errRead = errors.New("failed to read")

// Status is the boot state of a vault.
type Status int

// Boot states. StatusReady is terminal.
const (
	StatusUninitialized Status = iota
	StatusBooting
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "UNINITIALIZED"
	case StatusBooting:
		return "BOOTING"
	case StatusReady:
		return "READY"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Vault is the persistence layer for one progress record.
type Vault struct {
	store       kv.Store
	log         *logger.Logger
	recoverable schema.RecoveryPolicy
	now         func() time.Time

	mu     sync.Mutex
	status Status
}

// Option configures a Vault.
type Option func(*Vault)

// WithLogger sets the logger used for diagnostics.
func WithLogger(log *logger.Logger) Option {
	return func(v *Vault) {
		if log != nil {
			v.log = log
		}
	}
}

// WithRecoveryPolicy replaces the rule deciding whether a legacy record is migrated.
func WithRecoveryPolicy(p schema.RecoveryPolicy) Option {
	return func(v *Vault) {
		if p != nil {
			v.recoverable = p
		}
	}
}

// WithClock sets the time source for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) {
		if now != nil {
			v.now = now
		}
	}
}

// New returns an unbooted vault that takes ownership of st.
func New(st kv.Store, opts ...Option) *Vault {
	v := &Vault{
		store:       st,
		log:         logger.Nop(),
		recoverable: schema.HasUsage,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.log = v.log.With("vault", uuid.NewString())
	return v
}

// Open builds the configured store and returns an unbooted vault over it.
func Open(ctx context.Context, cfg model.Config, opts ...Option) (*Vault, error) {
	st, err := kv.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return New(st, opts...), nil
}

// Close closes the underlying store.
func (v *Vault) Close() error {
	return v.store.Close()
}

// Status returns the current boot state.
func (v *Vault) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

// Raw returns the stored current-schema document as written.
func (v *Vault) Raw(ctx context.Context) (string, bool, error) {
	return v.store.Get(ctx, schema.CurrentKey)
}

// Keys lists the keys present in storage when the store supports it.
func (v *Vault) Keys(ctx context.Context) ([]string, error) {
	l, ok := v.store.(kv.Lister)
	if !ok {
		return nil, fmt.Errorf("storage backend cannot list keys")
	}
	return l.Keys(ctx)
}

// readDoc loads and decodes the object stored at key. A missing key yields nil.
// Store failures wrap errRead.
func (v *Vault) readDoc(ctx context.Context, key string) (map[string]any, error) {
	raw, ok, err := v.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", errRead, key, err)
	}
	if !ok {
		return nil, nil
	}
	decoded, err := hydrate.Decode([]byte(raw))
	if err != nil {
		return nil, err
	}
	doc, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document at %s is not an object", key)
	}
	return doc, nil
}
