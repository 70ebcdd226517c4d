// Package selftest checks the vault's persistence guarantees against scratch storage.
package selftest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/verte-zerg/lexivault/internal/hydrate"
	"github.com/verte-zerg/lexivault/internal/kv"
	"github.com/verte-zerg/lexivault/internal/logger"
	"github.com/verte-zerg/lexivault/internal/schema"
	"github.com/verte-zerg/lexivault/internal/vault"
)

// Result is the outcome of one check.
type Result struct {
	Name string
	Err  error
}

// Passed reports whether the check succeeded.
func (r Result) Passed() bool {
	return r.Err == nil
}

// Report collects the results of a run.
type Report struct {
	Results []Result
}

// OK reports whether every check passed.
func (r Report) OK() bool {
	for _, res := range r.Results {
		if !res.Passed() {
			return false
		}
	}
	return true
}

type check struct {
	name string
	run  func(ctx context.Context, st kv.Store, log *logger.Logger) error
}

var checks = []check{
	{"fresh install yields defaults", checkFreshInstall},
	{"newer stored revision blocks stale save", checkStaleSave},
	{"forced save round-trips a scalar", checkForcedRoundTrip},
	{"lower xp is blocked", checkRegression},
	{"save before boot is refused", checkNotReady},
}

// Run executes every check, each against its own cleared in-memory store.
func Run(ctx context.Context, log *logger.Logger) Report {
	if log == nil {
		log = logger.Nop()
	}
	var report Report
	for _, c := range checks {
		st := kv.NewMemory()
		err := st.Clear(ctx)
		if err == nil {
			err = c.run(ctx, st, log.With("check", c.name))
		}
		report.Results = append(report.Results, Result{Name: c.name, Err: err})
	}
	return report
}

func boot(ctx context.Context, st kv.Store, log *logger.Logger) (*vault.Vault, vault.BootResult, error) {
	v := vault.New(st, vault.WithLogger(log))
	res, err := v.Boot(ctx)
	return v, res, err
}

func seedCurrent(ctx context.Context, st kv.Store, revision int64, xp int) error {
	rec := schema.DefaultRecord()
	rec.Revision = revision
	rec.XP = xp
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return st.Set(ctx, schema.CurrentKey, string(data))
}

func readCurrent(ctx context.Context, st kv.Store) (string, error) {
	raw, ok, err := st.Get(ctx, schema.CurrentKey)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("no record stored at %s", schema.CurrentKey)
	}
	return raw, nil
}

func checkFreshInstall(ctx context.Context, st kv.Store, log *logger.Logger) error {
	_, res, err := boot(ctx, st, log)
	if err != nil {
		return err
	}
	rec := res.Record
	if rec.DailyMasteryGoal != 10 || rec.XP != 0 || res.Revision != 0 {
		return fmt.Errorf("unexpected fresh record: goal=%d xp=%d revision=%d", rec.DailyMasteryGoal, rec.XP, res.Revision)
	}
	return nil
}

func checkStaleSave(ctx context.Context, st kv.Store, log *logger.Logger) error {
	v, res, err := boot(ctx, st, log)
	if err != nil {
		return err
	}
	// Another process commits after this one booted.
	if err := seedCurrent(ctx, st, 100, 5000); err != nil {
		return err
	}
	candidate := res.Record.Clone()
	candidate.XP = 100
	out := v.Save(ctx, candidate, 5)
	if out.Reason != vault.ReasonStaleMemoryCollision {
		return fmt.Errorf("expected %s, got success=%t reason=%q", vault.ReasonStaleMemoryCollision, out.Success, out.Reason)
	}
	raw, err := readCurrent(ctx, st)
	if err != nil {
		return err
	}
	disk, err := hydrate.Record([]byte(raw))
	if err != nil {
		return err
	}
	if disk.Revision != 100 {
		return fmt.Errorf("stored revision changed to %d", disk.Revision)
	}
	return nil
}

func checkForcedRoundTrip(ctx context.Context, st kv.Store, log *logger.Logger) error {
	if err := seedCurrent(ctx, st, 100, 0); err != nil {
		return err
	}
	v, res, err := boot(ctx, st, log)
	if err != nil {
		return err
	}
	candidate := res.Record.Clone()
	candidate.DailyMasteryGoal = 88
	if out := v.ForceSave(ctx, candidate); !out.Success {
		return fmt.Errorf("forced save failed: %s", out.Reason)
	}

	_, reread, err := boot(ctx, st, log)
	if err != nil {
		return err
	}
	if reread.Record.DailyMasteryGoal != 88 || reread.Revision != 101 {
		return fmt.Errorf("round trip mismatch: goal=%d revision=%d", reread.Record.DailyMasteryGoal, reread.Revision)
	}
	return nil
}

func checkRegression(ctx context.Context, st kv.Store, log *logger.Logger) error {
	if err := seedCurrent(ctx, st, 3, 500); err != nil {
		return err
	}
	v, res, err := boot(ctx, st, log)
	if err != nil {
		return err
	}
	candidate := res.Record.Clone()
	candidate.XP = 10
	out := v.Save(ctx, candidate, res.Revision)
	if out.Reason != vault.ReasonProgressRegressionBlocked {
		return fmt.Errorf("expected %s, got success=%t reason=%q", vault.ReasonProgressRegressionBlocked, out.Success, out.Reason)
	}
	return nil
}

func checkNotReady(ctx context.Context, st kv.Store, log *logger.Logger) error {
	v := vault.New(st, vault.WithLogger(log))
	out := v.Save(ctx, schema.DefaultRecord(), 0)
	if out.Reason != vault.ReasonSystemNotReady {
		return fmt.Errorf("expected %s, got success=%t reason=%q", vault.ReasonSystemNotReady, out.Success, out.Reason)
	}
	if _, err := readCurrent(ctx, st); err == nil {
		return fmt.Errorf("save before boot wrote a record")
	}
	return nil
}
