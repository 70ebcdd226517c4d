// Package model defines shared data structures.
package model

import (
	"encoding/json"
	"time"
)

// Config defines resolved storage and runtime settings.
type Config struct {
	Backend          string
	DBPath           string
	QuotaBytes       int64
	RedisAddr        string
	RedisPrefix      string
	AutosaveInterval time.Duration
	LogMode          string
}

// Record is the persisted progress document.
type Record struct {
	SchemaVersion int   `json:"schemaVersion"`
	Revision      int64 `json:"revision"`
	UpdatedAt     int64 `json:"updatedAt"`

	XP         int    `json:"xp"`
	Credits    int    `json:"credits"`
	Streak     int    `json:"streak"`
	LastActive string `json:"lastActive"`

	WordMastery    map[string]int             `json:"wordMastery"`
	WordSRS        map[string]json.RawMessage `json:"wordSRS"`
	ActivityLedger map[string]int             `json:"activityLedger"`
	GameHighScores map[string]int             `json:"gameHighScores"`

	DailyMasteryGoal     int `json:"dailyMasteryGoal"`
	WeeklyMasteryGoal    int `json:"weeklyMasteryGoal"`
	MonthlyMasteryGoal   int `json:"monthlyMasteryGoal"`
	QuarterlyMasteryGoal int `json:"quarterlyMasteryGoal"`
	AnnualMasteryGoal    int `json:"annualMasteryGoal"`

	MilestonesClaimed []string      `json:"milestonesClaimed"`
	LastConfig        SessionFilter `json:"lastConfig"`
	CustomWords       []Word        `json:"customWords"`
	Inventory         Inventory     `json:"inventory"`
}

// SessionFilter is the last-used study session selection.
type SessionFilter struct {
	Levels    []string `json:"levels"`
	Freqs     []string `json:"freqs"`
	Masteries []int    `json:"masteries"`
}

// Word is a user-imported vocabulary entry.
type Word struct {
	ID         string `json:"id"`
	Term       string `json:"term"`
	Definition string `json:"definition"`
	Example    string `json:"example"`
	Level      string `json:"level"`
	Freq       string `json:"freq"`
}

// Inventory holds consumable items.
type Inventory struct {
	StreakFreezes int `json:"streakFreezes"`
	XPBoosters    int `json:"xpBoosters"`
}

// Mastery levels stored in Record.WordMastery.
const (
	MasteryNew = iota
	MasteryLearning
	MasteryFamiliar
	MasteryMastered
)

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	out.WordMastery = cloneInts(r.WordMastery)
	out.ActivityLedger = cloneInts(r.ActivityLedger)
	out.GameHighScores = cloneInts(r.GameHighScores)
	if r.WordSRS != nil {
		out.WordSRS = make(map[string]json.RawMessage, len(r.WordSRS))
		for k, v := range r.WordSRS {
			out.WordSRS[k] = append(json.RawMessage(nil), v...)
		}
	}
	out.MilestonesClaimed = cloneSlice(r.MilestonesClaimed)
	out.CustomWords = cloneSlice(r.CustomWords)
	out.LastConfig = SessionFilter{
		Levels:    cloneSlice(r.LastConfig.Levels),
		Freqs:     cloneSlice(r.LastConfig.Freqs),
		Masteries: cloneSlice(r.LastConfig.Masteries),
	}
	return out
}

// UpdatedTime returns UpdatedAt as a time value.
func (r Record) UpdatedTime() time.Time {
	if r.UpdatedAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(r.UpdatedAt)
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func cloneInts(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
