package vault

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/lexivault/internal/hydrate"
	"github.com/verte-zerg/lexivault/internal/kv"
	"github.com/verte-zerg/lexivault/internal/model"
	"github.com/verte-zerg/lexivault/internal/schema"
)

func seed(t *testing.T, st kv.Store, key string, doc any) {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, st.Set(context.Background(), key, string(data)))
}

func readDisk(t *testing.T, st kv.Store) model.Record {
	t.Helper()
	raw, ok, err := st.Get(context.Background(), schema.CurrentKey)
	require.NoError(t, err)
	require.True(t, ok, "expected a stored record")
	rec, err := hydrate.Record([]byte(raw))
	require.NoError(t, err)
	return rec
}

func booted(t *testing.T, st kv.Store, opts ...Option) (*Vault, BootResult) {
	t.Helper()
	v := New(st, opts...)
	res, err := v.Boot(context.Background())
	require.NoError(t, err)
	return v, res
}

func currentDoc(revision int64, xp int) model.Record {
	rec := schema.DefaultRecord()
	rec.Revision = revision
	rec.XP = xp
	return rec
}

func TestBootFreshStorage(t *testing.T) {
	v, res := booted(t, kv.NewMemory())
	require.Equal(t, StatusReady, v.Status())
	require.Equal(t, SourceFresh, res.Source)
	require.Equal(t, 10, res.Record.DailyMasteryGoal)
	require.Equal(t, int64(0), res.Revision)
	require.Equal(t, 0, res.Record.XP)
	require.Equal(t, schema.CurrentVersion, res.Record.SchemaVersion)
	require.NotEmpty(t, res.Logs)
}

func TestBootHydratesCurrentRecord(t *testing.T) {
	st := kv.NewMemory()
	seed(t, st, schema.CurrentKey, map[string]any{
		"schemaVersion":    schema.CurrentVersion,
		"revision":         7,
		"xp":               120,
		"dailyMasteryGoal": 0,
		"streak":           "broken",
	})
	_, res := booted(t, st)
	require.Equal(t, SourceCurrent, res.Source)
	require.Equal(t, int64(7), res.Revision)
	require.Equal(t, 120, res.Record.XP)
	require.Equal(t, 0, res.Record.DailyMasteryGoal)
	require.Equal(t, 0, res.Record.Streak)
	require.Equal(t, 50, res.Record.WeeklyMasteryGoal)
}

func TestBootMigratesLegacyRecord(t *testing.T) {
	st := kv.NewMemory()
	seed(t, st, schema.LegacyKeys()[0], map[string]any{
		"xp":          300,
		"wordMastery": map[string]any{"w1": 3},
	})
	_, res := booted(t, st)

	require.Equal(t, SourceLegacy, res.Source)
	require.Equal(t, schema.LegacyKeys()[0], res.SourceKey)
	require.Equal(t, 300, res.Record.XP)
	require.Equal(t, 3, res.Record.WordMastery["w1"])
	require.Equal(t, int64(1), res.Revision)

	want := schema.DefaultRecord()
	want.XP = 300
	want.WordMastery = map[string]int{"w1": 3}
	want.Revision = 1
	require.Equal(t, want, res.Record)
}

func TestBootMigrationBumpsLegacyRevision(t *testing.T) {
	st := kv.NewMemory()
	seed(t, st, schema.Key(3), map[string]any{"revision": 41, "xp": 10})
	v, res := booted(t, st)
	require.Equal(t, int64(42), res.Revision)

	out := v.Save(context.Background(), res.Record, res.Revision)
	require.True(t, out.Success)
	require.Equal(t, int64(1), out.Revision)
}

func TestBootSkipsUnusedLegacyRecord(t *testing.T) {
	st := kv.NewMemory()
	seed(t, st, schema.LegacyKeys()[0], map[string]any{"xp": 0, "wordMastery": map[string]any{}, "credits": 50})
	_, res := booted(t, st)
	require.Equal(t, SourceFresh, res.Source)
	require.Equal(t, schema.DefaultRecord(), res.Record)
}

func TestBootPrefersMostRecentRecoverableLegacyKey(t *testing.T) {
	st := kv.NewMemory()
	seed(t, st, schema.Key(4), map[string]any{"xp": 0})
	seed(t, st, schema.Key(3), map[string]any{"xp": 80})
	seed(t, st, schema.Key(2), map[string]any{"xp": 900})
	_, res := booted(t, st)
	require.Equal(t, schema.Key(3), res.SourceKey)
	require.Equal(t, 80, res.Record.XP)
}

func TestBootUpgradesRenamedLegacyFields(t *testing.T) {
	st := kv.NewMemory()
	seed(t, st, schema.Key(1), map[string]any{
		"experience": 55,
		"mastery":    map[string]any{"apple": 2},
		"coins":      9,
	})
	_, res := booted(t, st)
	require.Equal(t, SourceLegacy, res.Source)
	require.Equal(t, 55, res.Record.XP)
	require.Equal(t, map[string]int{"apple": 2}, res.Record.WordMastery)
	require.Equal(t, 9, res.Record.Credits)
}

func TestBootCustomRecoveryPolicy(t *testing.T) {
	st := kv.NewMemory()
	seed(t, st, schema.Key(4), map[string]any{"credits": 25})
	policy := func(rec model.Record) bool { return rec.Credits > 0 }
	_, res := booted(t, st, WithRecoveryPolicy(policy))
	require.Equal(t, SourceLegacy, res.Source)
	require.Equal(t, 25, res.Record.Credits)
}

func TestBootFallsBackOnCorruption(t *testing.T) {
	st := kv.NewMemory()
	require.NoError(t, st.Set(context.Background(), schema.CurrentKey, `{"xp": 12`))
	require.NoError(t, st.Set(context.Background(), schema.Key(4), `not json`))
	v, res := booted(t, st)
	require.Equal(t, SourceCorrupt, res.Source)
	require.Equal(t, StatusReady, v.Status())
	require.Equal(t, schema.DefaultRecord(), res.Record)

	out := v.Save(context.Background(), res.Record, res.Revision)
	require.True(t, out.Success)
	require.Equal(t, int64(1), out.Revision)
}

func TestBootWrongVersionKeepsStoredRevisionReachable(t *testing.T) {
	st := kv.NewMemory()
	seed(t, st, schema.CurrentKey, map[string]any{"schemaVersion": 99, "revision": 30, "xp": 0})
	seed(t, st, schema.Key(4), map[string]any{"revision": 2, "xp": 40})
	v, res := booted(t, st)
	require.Equal(t, SourceLegacy, res.Source)
	require.Equal(t, int64(30), res.Revision)

	out := v.Save(context.Background(), res.Record, res.Revision)
	require.True(t, out.Success, out.Reason.String())
	require.Equal(t, int64(31), out.Revision)
}

func TestBootTwiceIsIdempotent(t *testing.T) {
	st := kv.NewMemory()
	seed(t, st, schema.CurrentKey, currentDoc(3, 70))
	_, first := booted(t, st)
	_, second := booted(t, st)
	require.Equal(t, first.Record, second.Record)
	require.Equal(t, first.Revision, second.Revision)
}

func TestBootOnlyOnce(t *testing.T) {
	v, _ := booted(t, kv.NewMemory())
	_, err := v.Boot(context.Background())
	require.ErrorIs(t, err, ErrAlreadyBooted)
	require.Equal(t, StatusReady, v.Status())
}

func TestSaveBeforeBoot(t *testing.T) {
	st := kv.NewMemory()
	v := New(st)
	require.Equal(t, StatusUninitialized, v.Status())

	out := v.Save(context.Background(), schema.DefaultRecord(), 0)
	require.False(t, out.Success)
	require.Equal(t, ReasonSystemNotReady, out.Reason)
	require.ErrorIs(t, out.Err(), ErrNotReady)

	_, ok, err := st.Get(context.Background(), schema.CurrentKey)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSaveRejectsStaleRevision(t *testing.T) {
	st := kv.NewMemory()
	seed(t, st, schema.CurrentKey, currentDoc(100, 5000))
	v, _ := booted(t, st)

	candidate := schema.DefaultRecord()
	candidate.XP = 100
	out := v.Save(context.Background(), candidate, 5)
	require.False(t, out.Success)
	require.Equal(t, ReasonStaleMemoryCollision, out.Reason)
	require.Equal(t, "STALE_MEMORY_COLLISION", out.Reason.String())
	require.Equal(t, int64(100), out.Revision)
	require.Equal(t, int64(100), readDisk(t, st).Revision)
	require.Equal(t, 5000, readDisk(t, st).XP)
}

func TestSaveRejectsRegression(t *testing.T) {
	st := kv.NewMemory()
	seed(t, st, schema.CurrentKey, currentDoc(4, 500))
	v, res := booted(t, st)

	candidate := res.Record.Clone()
	candidate.XP = 499
	out := v.Save(context.Background(), candidate, res.Revision)
	require.False(t, out.Success)
	require.Equal(t, ReasonProgressRegressionBlocked, out.Reason)
	require.ErrorIs(t, out.Err(), ErrRegression)

	disk := readDisk(t, st)
	require.Equal(t, int64(4), disk.Revision)
	require.Equal(t, 500, disk.XP)
}

func TestSaveOnlyGuardsXP(t *testing.T) {
	st := kv.NewMemory()
	stored := currentDoc(2, 10)
	stored.Streak = 30
	stored.WordMastery = map[string]int{"w": 3}
	seed(t, st, schema.CurrentKey, stored)
	v, res := booted(t, st)

	candidate := res.Record.Clone()
	candidate.Streak = 0
	candidate.WordMastery = map[string]int{"w": 0}
	out := v.Save(context.Background(), candidate, res.Revision)
	require.True(t, out.Success)
	require.Equal(t, 0, readDisk(t, st).Streak)
}

func TestForceSaveBypassesGuards(t *testing.T) {
	st := kv.NewMemory()
	stored := currentDoc(100, 0)
	seed(t, st, schema.CurrentKey, stored)
	v, _ := booted(t, st)

	candidate := schema.DefaultRecord()
	candidate.DailyMasteryGoal = 88
	out := v.ForceSave(context.Background(), candidate)
	require.True(t, out.Success)
	require.Equal(t, int64(101), out.Revision)

	disk := readDisk(t, st)
	require.Equal(t, 88, disk.DailyMasteryGoal)
	require.Equal(t, int64(101), disk.Revision)

	seed(t, st, schema.CurrentKey, currentDoc(200, 9000))
	out = v.ForceSave(context.Background(), schema.DefaultRecord())
	require.True(t, out.Success)
	require.Equal(t, 0, readDisk(t, st).XP)
}

func TestSaveRevisionIncreasesByOne(t *testing.T) {
	st := kv.NewMemory()
	v, res := booted(t, st)
	rec, seen := res.Record, res.Revision
	for i := 1; i <= 5; i++ {
		rec.XP += 10
		out := v.Save(context.Background(), rec, seen)
		require.True(t, out.Success)
		require.Equal(t, seen+1, out.Revision)
		require.Equal(t, out.Revision, readDisk(t, st).Revision)
		seen = out.Revision
	}

	out := v.Save(context.Background(), rec, seen-1)
	require.Equal(t, ReasonStaleMemoryCollision, out.Reason)
	require.Equal(t, seen, readDisk(t, st).Revision)
}

func TestSaveStampsRecord(t *testing.T) {
	st := kv.NewMemory()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	v, res := booted(t, st, WithClock(func() time.Time { return now }))

	candidate := res.Record.Clone()
	candidate.SchemaVersion = 1
	candidate.Revision = 77
	out := v.Save(context.Background(), candidate, res.Revision)
	require.True(t, out.Success)

	disk := readDisk(t, st)
	require.Equal(t, schema.CurrentVersion, disk.SchemaVersion)
	require.Equal(t, int64(1), disk.Revision)
	require.Equal(t, now.UnixMilli(), disk.UpdatedAt)
	require.True(t, disk.UpdatedTime().Equal(now))
}

func TestSaveOverwritesCorruptDisk(t *testing.T) {
	st := kv.NewMemory()
	v, res := booted(t, st)
	require.NoError(t, st.Set(context.Background(), schema.CurrentKey, `[broken`))

	out := v.Save(context.Background(), res.Record, res.Revision)
	require.True(t, out.Success)
	require.Equal(t, int64(1), readDisk(t, st).Revision)
}

func TestSaveReportsQuota(t *testing.T) {
	st := kv.WithQuota(kv.NewMemory(), 64)
	v, res := booted(t, st)

	out := v.Save(context.Background(), res.Record, res.Revision)
	require.False(t, out.Success)
	require.Equal(t, ReasonStorageQuotaExceeded, out.Reason)
	require.ErrorIs(t, out.Cause, kv.ErrQuotaExceeded)
	require.ErrorIs(t, out.Err(), ErrQuotaExceeded)
}

type failingStore struct {
	*kv.Memory
}

func (f failingStore) Set(context.Context, string, string) error {
	return errors.New("disk full")
}

func TestSaveReportsWriteFailure(t *testing.T) {
	v, res := booted(t, failingStore{Memory: kv.NewMemory()})
	out := v.Save(context.Background(), res.Record, res.Revision)
	require.Equal(t, ReasonStorageQuotaExceeded, out.Reason)
	require.EqualError(t, out.Cause, "disk full")
}

// flakyReadStore fails every Get once broken is set.
type flakyReadStore struct {
	*kv.Memory
	broken bool
}

func (f *flakyReadStore) Get(ctx context.Context, key string) (string, bool, error) {
	if f.broken {
		return "", false, errors.New("database is locked")
	}
	return f.Memory.Get(ctx, key)
}

func TestSaveAbortsWhenStoredRecordCannotBeRead(t *testing.T) {
	st := &flakyReadStore{Memory: kv.NewMemory()}
	seed(t, st, schema.CurrentKey, currentDoc(100, 5000))
	v, res := booted(t, st)
	require.Equal(t, int64(100), res.Revision)

	st.broken = true
	candidate := res.Record.Clone()
	candidate.XP = 100
	out := v.Save(context.Background(), candidate, 5)
	require.False(t, out.Success)
	require.Equal(t, ReasonStorageQuotaExceeded, out.Reason)
	require.EqualError(t, out.Cause, "failed to read "+schema.CurrentKey+": database is locked")

	out = v.ForceSave(context.Background(), candidate)
	require.Equal(t, ReasonStorageQuotaExceeded, out.Reason)

	st.broken = false
	disk := readDisk(t, st)
	require.Equal(t, int64(100), disk.Revision)
	require.Equal(t, 5000, disk.XP)
}

type panickingStore struct {
	*kv.Memory
}

func (p panickingStore) Set(context.Context, string, string) error {
	panic("driver exploded")
}

func TestSaveRecoversFromPanics(t *testing.T) {
	v, res := booted(t, panickingStore{Memory: kv.NewMemory()})
	out := v.Save(context.Background(), res.Record, res.Revision)
	require.Equal(t, ReasonStorageQuotaExceeded, out.Reason)

	out = v.Save(context.Background(), res.Record, res.Revision)
	require.Equal(t, ReasonStorageQuotaExceeded, out.Reason)
}

func TestReset(t *testing.T) {
	st := kv.NewMemory()
	seed(t, st, schema.CurrentKey, currentDoc(9, 1234))
	v, _ := booted(t, st)

	out := v.Reset(context.Background())
	require.True(t, out.Success)
	disk := readDisk(t, st)
	require.Equal(t, int64(10), disk.Revision)
	require.Equal(t, 0, disk.XP)
}

func TestTwoProcessesShareSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexivault.db")
	open := func() kv.Store {
		st, err := kv.OpenSQLite(path)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = st.Close()
		})
		return st
	}

	tabA, resA := booted(t, open())
	tabB, resB := booted(t, open())

	recA := resA.Record.Clone()
	recA.XP = 40
	outA := tabA.Save(context.Background(), recA, resA.Revision)
	require.True(t, outA.Success)

	recB := resB.Record.Clone()
	recB.XP = 60
	outB := tabB.Save(context.Background(), recB, resB.Revision)
	require.Equal(t, ReasonStaleMemoryCollision, outB.Reason)
	require.Equal(t, outA.Revision, outB.Revision)

	outB = tabB.Save(context.Background(), recB, outB.Revision)
	require.True(t, outB.Success)
	require.Equal(t, int64(2), outB.Revision)

	reader, res := booted(t, open())
	require.Equal(t, StatusReady, reader.Status())
	require.Equal(t, 60, res.Record.XP)
	require.Equal(t, int64(2), res.Revision)
}

func TestStatusStrings(t *testing.T) {
	require.Equal(t, "UNINITIALIZED", StatusUninitialized.String())
	require.Equal(t, "BOOTING", StatusBooting.String())
	require.Equal(t, "READY", StatusReady.String())
	require.Equal(t, "PROGRESS_REGRESSION_BLOCKED", ReasonProgressRegressionBlocked.String())
	require.Equal(t, "SYSTEM_NOT_READY", ReasonSystemNotReady.String())
	require.Equal(t, "STORAGE_QUOTA_EXCEEDED", ReasonStorageQuotaExceeded.String())
}
