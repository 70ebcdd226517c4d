// Package schema owns the canonical progress defaults and the legacy layouts.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/verte-zerg/lexivault/internal/model"
)

// CurrentVersion is the schema version written by every save.
const CurrentVersion = 5

const keyPrefix = "lexivault.progress.v"

// CurrentKey is the storage key holding the current-schema record.
var CurrentKey = Key(CurrentVersion)

// Key returns the storage key used by a schema version.
func Key(version int) string {
	return fmt.Sprintf("%s%d", keyPrefix, version)
}

// LegacyKeys returns the keys of earlier schema versions, most recent first.
func LegacyKeys() []string {
	keys := make([]string, 0, CurrentVersion-1)
	for v := CurrentVersion - 1; v >= 1; v-- {
		keys = append(keys, Key(v))
	}
	return keys
}

// DefaultRecord returns a fresh copy of the canonical defaults.
func DefaultRecord() model.Record {
	return model.Record{
		SchemaVersion: CurrentVersion,

		WordMastery:    map[string]int{},
		WordSRS:        map[string]json.RawMessage{},
		ActivityLedger: map[string]int{},
		GameHighScores: map[string]int{},

		DailyMasteryGoal:     10,
		WeeklyMasteryGoal:    50,
		MonthlyMasteryGoal:   200,
		QuarterlyMasteryGoal: 600,
		AnnualMasteryGoal:    2400,

		MilestonesClaimed: []string{},
		LastConfig: model.SessionFilter{
			Levels:    []string{"A1", "A2", "B1", "B2", "C1", "C2"},
			Freqs:     []string{"high", "medium", "low"},
			Masteries: []int{model.MasteryNew, model.MasteryLearning, model.MasteryFamiliar},
		},
		CustomWords: []model.Word{},
		Inventory:   model.Inventory{},
	}
}

// RecoveryPolicy reports whether a hydrated legacy record is worth migrating.
type RecoveryPolicy func(model.Record) bool

// HasUsage accepts records that show real usage: some xp or any mastery entry.
func HasUsage(rec model.Record) bool {
	return rec.XP > 0 || len(rec.WordMastery) > 0
}
