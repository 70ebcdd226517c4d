package vault

import (
	"context"
	"fmt"

	"github.com/verte-zerg/lexivault/internal/hydrate"
	"github.com/verte-zerg/lexivault/internal/model"
	"github.com/verte-zerg/lexivault/internal/schema"
)

// Source tells where a booted record came from.
type Source int

// Boot sources.
const (
	SourceFresh Source = iota
	SourceCurrent
	SourceLegacy
	SourceCorrupt
)

func (s Source) String() string {
	switch s {
	case SourceFresh:
		return "fresh"
	case SourceCurrent:
		return "current"
	case SourceLegacy:
		return "legacy"
	case SourceCorrupt:
		return "corrupt"
	default:
		return fmt.Sprintf("Source(%d)", int(s))
	}
}

// BootResult is the record produced by Boot.
type BootResult struct {
	Record model.Record
	// Revision is the revision to pass to the first Save.
	Revision  int64
	Source    Source
	SourceKey string
	Logs      []string
}

func (r *BootResult) note(format string, args ...any) {
	r.Logs = append(r.Logs, fmt.Sprintf(format, args...))
}

// Boot reconciles storage into the starting record and marks the vault ready.
// Unreadable or malformed keys are skipped; Boot always ends with a usable record.
func (v *Vault) Boot(ctx context.Context) (BootResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.status != StatusUninitialized {
		return BootResult{}, ErrAlreadyBooted
	}
	v.status = StatusBooting

	res := v.reconcile(ctx)
	res.Record.SchemaVersion = schema.CurrentVersion
	res.Revision = res.Record.Revision

	v.status = StatusReady
	for _, line := range res.Logs {
		v.log.Info(line, "source", res.Source.String(), "key", res.SourceKey)
	}
	v.log.Debug("boot complete", "revision", res.Revision, "xp", res.Record.XP)
	return res, nil
}

func (v *Vault) reconcile(ctx context.Context) BootResult {
	var (
		res     BootResult
		floor   int64
		corrupt bool
	)

	doc, err := v.readDoc(ctx, schema.CurrentKey)
	switch {
	case err != nil:
		corrupt = true
		res.note("current record at %s unusable: %v", schema.CurrentKey, err)
	case doc == nil:
		res.note("no record at %s", schema.CurrentKey)
	default:
		version, ok := schema.DeclaredVersion(doc)
		if ok && version == schema.CurrentVersion {
			res.Record = hydrate.Value(schema.DefaultRecord(), doc)
			res.Source = SourceCurrent
			res.SourceKey = schema.CurrentKey
			res.note("hydrated from %s at revision %d", schema.CurrentKey, res.Record.Revision)
			return res
		}
		// The next save must not be rejected as stale against this document.
		floor = hydrate.Value(diskHeader{}, doc).Revision
		res.note("record at %s has schema version %d, want %d", schema.CurrentKey, version, schema.CurrentVersion)
	}

	for _, key := range schema.LegacyKeys() {
		doc, err := v.readDoc(ctx, key)
		if err != nil {
			res.note("legacy key %s unusable: %v", key, err)
			continue
		}
		if doc == nil {
			continue
		}
		upgraded := schema.Upgrade(schema.VersionOf(doc, key), doc)
		rec := hydrate.Value(schema.DefaultRecord(), upgraded)
		if !v.recoverable(rec) {
			res.note("skipped legacy key %s: no recorded progress", key)
			continue
		}
		rec.Revision++
		if rec.Revision < floor {
			rec.Revision = floor
		}
		res.Record = rec
		res.Source = SourceLegacy
		res.SourceKey = key
		res.note("migrated from legacy key %s (xp %d, %d mastered words)", key, rec.XP, len(rec.WordMastery))
		return res
	}

	res.Record = schema.DefaultRecord()
	res.Record.Revision = floor
	if corrupt {
		res.Source = SourceCorrupt
		res.note("corruption fallback: starting from defaults")
	} else {
		res.Source = SourceFresh
		res.note("fresh boot: starting from defaults")
	}
	return res
}
