package report

import (
	"strings"
	"testing"

	"github.com/verte-zerg/lexivault/internal/model"
)

func TestFormatTableAlignsColumns(t *testing.T) {
	headers := []string{"Field", "Value"}
	rows := [][]string{
		{"xp", "1200"},
		{"words tracked", "7"},
	}

	lines := formatTable(headers, rows, map[int]bool{1: true})
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "Field         Value" {
		t.Fatalf("unexpected header line: %q", lines[0])
	}
	if lines[1] != "xp             1200" {
		t.Fatalf("unexpected row line: %q", lines[1])
	}
	if lines[2] != "words tracked     7" {
		t.Fatalf("unexpected row line: %q", lines[2])
	}
}

func TestFormatTableWideRunes(t *testing.T) {
	lines := formatTable([]string{"Word", "Level"}, [][]string{{"日本", "3"}, {"go", "1"}}, nil)
	if lines[1] != "日本 3" {
		t.Fatalf("unexpected wide row: %q", lines[1])
	}
	if lines[2] != "go   1" {
		t.Fatalf("unexpected narrow row: %q", lines[2])
	}
}

func TestSummary(t *testing.T) {
	rec := model.Record{
		Revision:         4,
		SchemaVersion:    5,
		XP:               320,
		DailyMasteryGoal: 10,
		WordMastery:      map[string]int{"a": 3, "b": 1, "c": 3},
	}
	lines := Summary(rec)
	out := strings.Join(lines, "\n")
	for _, want := range []string{"revision", "320", "never", "10/0/0/0/0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
	found := false
	for _, line := range lines {
		if strings.HasPrefix(line, "words mastered") {
			found = true
			if !strings.HasSuffix(line, " 2") {
				t.Fatalf("unexpected mastered row: %q", line)
			}
		}
	}
	if !found {
		t.Fatalf("summary missing mastered row:\n%s", out)
	}
}

func TestHighScoresOrder(t *testing.T) {
	rec := model.Record{GameHighScores: map[string]int{"match": 40, "speed": 90, "anagram": 40}}
	lines := HighScores(rec)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[1], "speed") || !strings.HasPrefix(lines[2], "anagram") || !strings.HasPrefix(lines[3], "match") {
		t.Fatalf("unexpected order: %q", lines)
	}
	if HighScores(model.Record{}) != nil {
		t.Fatalf("expected no table without scores")
	}
}
