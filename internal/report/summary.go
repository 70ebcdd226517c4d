// Package report renders a progress record for terminal output.
package report

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/verte-zerg/lexivault/internal/model"
)

// Summary renders the record's counters, goals and collection sizes as a table.
func Summary(rec model.Record) []string {
	updated := "never"
	if t := rec.UpdatedTime(); !t.IsZero() {
		updated = t.UTC().Format(time.RFC3339)
	}
	lastActive := rec.LastActive
	if lastActive == "" {
		lastActive = "-"
	}
	rows := [][]string{
		{"revision", strconv.FormatInt(rec.Revision, 10)},
		{"schema", strconv.Itoa(rec.SchemaVersion)},
		{"updated", updated},
		{"xp", strconv.Itoa(rec.XP)},
		{"credits", strconv.Itoa(rec.Credits)},
		{"streak", strconv.Itoa(rec.Streak)},
		{"last active", lastActive},
		{"goals d/w/m/q/y", fmt.Sprintf("%d/%d/%d/%d/%d", rec.DailyMasteryGoal, rec.WeeklyMasteryGoal,
			rec.MonthlyMasteryGoal, rec.QuarterlyMasteryGoal, rec.AnnualMasteryGoal)},
		{"words tracked", strconv.Itoa(len(rec.WordMastery))},
		{"words mastered", strconv.Itoa(MasteredCount(rec))},
		{"custom words", strconv.Itoa(len(rec.CustomWords))},
		{"milestones", strconv.Itoa(len(rec.MilestonesClaimed))},
		{"streak freezes", strconv.Itoa(rec.Inventory.StreakFreezes)},
		{"xp boosters", strconv.Itoa(rec.Inventory.XPBoosters)},
	}
	return formatTable([]string{"Field", "Value"}, rows, map[int]bool{1: true})
}

// HighScores renders per-game high scores, best first.
func HighScores(rec model.Record) []string {
	if len(rec.GameHighScores) == 0 {
		return nil
	}
	games := make([]string, 0, len(rec.GameHighScores))
	for g := range rec.GameHighScores {
		games = append(games, g)
	}
	sort.Slice(games, func(i, j int) bool {
		si, sj := rec.GameHighScores[games[i]], rec.GameHighScores[games[j]]
		if si == sj {
			return games[i] < games[j]
		}
		return si > sj
	})
	rows := make([][]string, 0, len(games))
	for _, g := range games {
		rows = append(rows, []string{g, strconv.Itoa(rec.GameHighScores[g])})
	}
	return formatTable([]string{"Game", "Best"}, rows, map[int]bool{1: true})
}

// MasteredCount counts words at the top mastery level.
func MasteredCount(rec model.Record) int {
	n := 0
	for _, level := range rec.WordMastery {
		if level >= model.MasteryMastered {
			n++
		}
	}
	return n
}
