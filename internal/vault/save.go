package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/verte-zerg/lexivault/internal/hydrate"
	"github.com/verte-zerg/lexivault/internal/model"
	"github.com/verte-zerg/lexivault/internal/schema"
)

// Sentinel errors matching each failure Reason.
var (
	ErrNotReady      = errors.New("vault not ready")
	ErrStaleMemory   = errors.New("stored revision is newer than the caller's")
	ErrRegression    = errors.New("save would lower stored xp")
	ErrQuotaExceeded = errors.New("storage write failed")
)

// Reason classifies a rejected save.
type Reason int

// Save rejection reasons.
const (
	ReasonNone Reason = iota
	ReasonSystemNotReady
	ReasonStaleMemoryCollision
	ReasonProgressRegressionBlocked
	ReasonStorageQuotaExceeded
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonSystemNotReady:
		return "SYSTEM_NOT_READY"
	case ReasonStaleMemoryCollision:
		return "STALE_MEMORY_COLLISION"
	case ReasonProgressRegressionBlocked:
		return "PROGRESS_REGRESSION_BLOCKED"
	case ReasonStorageQuotaExceeded:
		return "STORAGE_QUOTA_EXCEEDED"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Outcome is the result of a save.
type Outcome struct {
	Success bool
	Reason  Reason
	// Revision is the newly committed revision on success, and the stored revision
	// when the save was rejected as stale or as a regression.
	Revision int64
	// Cause holds the underlying storage or encoding error for
	// ReasonStorageQuotaExceeded.
	Cause error
}

// Err returns nil for a successful save and a sentinel error otherwise.
func (o Outcome) Err() error {
	var err error
	switch o.Reason {
	case ReasonNone:
		if o.Success {
			return nil
		}
		return errors.New("save failed")
	case ReasonSystemNotReady:
		err = ErrNotReady
	case ReasonStaleMemoryCollision:
		err = ErrStaleMemory
	case ReasonProgressRegressionBlocked:
		err = ErrRegression
	case ReasonStorageQuotaExceeded:
		err = ErrQuotaExceeded
	default:
		return fmt.Errorf("save failed: %s", o.Reason)
	}
	if o.Cause != nil {
		return fmt.Errorf("%w: %w", err, o.Cause)
	}
	return err
}

// diskHeader is the part of the stored record the save checks look at.
type diskHeader struct {
	Revision int64 `json:"revision"`
	XP       int   `json:"xp"`
}

// Save commits candidate when storage holds no revision newer than lastSeenRevision
// and no higher xp than candidate.
func (v *Vault) Save(ctx context.Context, candidate model.Record, lastSeenRevision int64) Outcome {
	return v.commit(ctx, candidate, lastSeenRevision, false)
}

// ForceSave commits candidate without the staleness and regression checks.
func (v *Vault) ForceSave(ctx context.Context, candidate model.Record) Outcome {
	return v.commit(ctx, candidate, 0, true)
}

// Reset replaces the stored record with the defaults.
func (v *Vault) Reset(ctx context.Context) Outcome {
	return v.ForceSave(ctx, schema.DefaultRecord())
}

func (v *Vault) commit(ctx context.Context, candidate model.Record, lastSeen int64, force bool) (out Outcome) {
	v.mu.Lock()
	defer v.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			v.log.Error("save panicked", "panic", r)
			out = Outcome{Reason: ReasonStorageQuotaExceeded, Cause: fmt.Errorf("panic during save: %v", r)}
		}
	}()
	if v.status != StatusReady {
		v.log.Warn("save before boot", "status", v.status.String())
		return Outcome{Reason: ReasonSystemNotReady}
	}

	var diskRevision int64
	doc, err := v.readDoc(ctx, schema.CurrentKey)
	switch {
	case errors.Is(err, errRead):
		// Without the stored revision and xp neither guard can be evaluated.
		v.log.Error("save aborted", "key", schema.CurrentKey, "error", err)
		return Outcome{Reason: ReasonStorageQuotaExceeded, Cause: err}
	case err != nil:
		v.log.Warn("stored record unparsable; overwriting", "key", schema.CurrentKey, "error", err)
	case doc != nil:
		disk := hydrate.Value(diskHeader{}, doc)
		diskRevision = disk.Revision
		if !force && disk.Revision > lastSeen {
			v.log.Warn("save rejected", "reason", ReasonStaleMemoryCollision.String(),
				"stored_revision", disk.Revision, "last_seen", lastSeen)
			return Outcome{Reason: ReasonStaleMemoryCollision, Revision: disk.Revision}
		}
		if !force && disk.XP > candidate.XP {
			v.log.Warn("save rejected", "reason", ReasonProgressRegressionBlocked.String(),
				"stored_xp", disk.XP, "candidate_xp", candidate.XP)
			return Outcome{Reason: ReasonProgressRegressionBlocked, Revision: disk.Revision}
		}
	}

	final := candidate.Clone()
	final.SchemaVersion = schema.CurrentVersion
	final.Revision = diskRevision + 1
	final.UpdatedAt = v.now().UnixMilli()

	data, err := json.Marshal(final)
	if err != nil {
		v.log.Error("failed to encode record", "error", err)
		return Outcome{Reason: ReasonStorageQuotaExceeded, Cause: err}
	}
	if err := v.store.Set(ctx, schema.CurrentKey, string(data)); err != nil {
		v.log.Error("failed to write record", "key", schema.CurrentKey, "bytes", len(data), "error", err)
		return Outcome{Reason: ReasonStorageQuotaExceeded, Cause: err}
	}
	v.log.Debug("record committed", "revision", final.Revision, "xp", final.XP, "forced", force)
	return Outcome{Success: true, Revision: final.Revision}
}
