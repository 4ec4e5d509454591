package review

import (
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		s    Suggestion
		want Severity
	}{
		{
			name: "high confidence security promoted to error",
			s:    Suggestion{Category: CategorySecurity, Severity: SeverityWarning, Confidence: 0.9},
			want: SeverityError,
		},
		{
			name: "security below 0.9 is not promoted",
			s:    Suggestion{Category: CategorySecurity, Severity: SeverityWarning, Confidence: 0.89},
			want: SeverityWarning,
		},
		{
			name: "high confidence logic promoted to error",
			s:    Suggestion{Category: CategoryLogic, Severity: SeverityNote, Confidence: 0.95},
			want: SeverityError,
		},
		{
			name: "low confidence error demoted to warning",
			s:    Suggestion{Category: CategoryStyle, Severity: SeverityError, Confidence: 0.5},
			want: SeverityWarning,
		},
		{
			name: "confident error stays error",
			s:    Suggestion{Category: CategoryStyle, Severity: SeverityError, Confidence: 0.7},
			want: SeverityError,
		},
		{
			name: "invalid severity defaults to suggestion",
			s:    Suggestion{Category: CategoryStyle, Severity: "bogus", Confidence: 0.8},
			want: SeveritySuggestion,
		},
		{
			name: "plain note passes through",
			s:    Suggestion{Category: CategoryGeneral, Severity: SeverityNote, Confidence: 0.3},
			want: SeverityNote,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.s); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFilterByThreshold(t *testing.T) {
	suggestions := []Suggestion{
		{FilePath: "a.py", LineNumber: 1, Category: CategorySecurity, Severity: SeverityWarning, Confidence: 0.95},
		{FilePath: "a.py", LineNumber: 2, Category: CategoryStyle, Severity: SeverityWarning, Confidence: 0.9},
		{FilePath: "a.py", LineNumber: 3, Category: CategoryStyle, Severity: SeverityNote, Confidence: 0.5},
	}

	kept := FilterByThreshold(suggestions, SeverityWarning)
	if len(kept) != 2 {
		t.Fatalf("expected 2 suggestions at warning threshold, got %d", len(kept))
	}

	// Classified severity must be written back.
	if kept[0].Severity != SeverityError {
		t.Errorf("expected security finding reclassified to error, got %s", kept[0].Severity)
	}

	// Idempotence: applying twice equals applying once.
	again := FilterByThreshold(kept, SeverityWarning)
	if len(again) != len(kept) {
		t.Errorf("filter is not idempotent: %d != %d", len(again), len(kept))
	}

	// Monotone: lowering the threshold never drops a retained suggestion.
	wider := FilterByThreshold(suggestions, SeverityNote)
	if len(wider) < len(kept) {
		t.Errorf("lowering threshold dropped suggestions: %d < %d", len(wider), len(kept))
	}

	// Invalid threshold defaults to suggestion.
	fallback := FilterByThreshold(suggestions, "bogus")
	if len(fallback) != 2 {
		t.Errorf("invalid threshold should behave as suggestion, got %d kept", len(fallback))
	}
}

func TestSortBySeverity(t *testing.T) {
	suggestions := []Suggestion{
		{Message: "c", Category: CategoryStyle, Severity: SeverityNote, Confidence: 0.5},
		{Message: "a", Category: CategorySecurity, Severity: SeverityWarning, Confidence: 0.95},
		{Message: "b", Category: CategoryStyle, Severity: SeverityWarning, Confidence: 0.9},
	}

	sorted := SortBySeverity(suggestions)
	if sorted[0].Message != "a" {
		t.Errorf("expected promoted security finding first, got %q", sorted[0].Message)
	}
	if sorted[2].Message != "c" {
		t.Errorf("expected note last, got %q", sorted[2].Message)
	}

	// Input order is untouched.
	if suggestions[0].Message != "c" {
		t.Error("SortBySeverity mutated its input")
	}
}

func TestShouldBlockMerge(t *testing.T) {
	if ShouldBlockMerge(nil) {
		t.Error("empty input should not block merge")
	}

	blocking := []Suggestion{
		{Category: CategorySecurity, Severity: SeverityWarning, Confidence: 0.9},
	}
	if !ShouldBlockMerge(blocking) {
		t.Error("classified error should block merge")
	}
}

func TestMaxSeverity(t *testing.T) {
	if got := MaxSeverity(nil); got != SeverityNote {
		t.Errorf("empty input should yield note, got %s", got)
	}

	suggestions := []Suggestion{
		{Category: CategoryStyle, Severity: SeverityNote, Confidence: 0.5},
		{Category: CategoryStyle, Severity: SeverityWarning, Confidence: 0.9},
	}
	if got := MaxSeverity(suggestions); got != SeverityWarning {
		t.Errorf("expected warning, got %s", got)
	}
}

func TestStats(t *testing.T) {
	empty := Stats(nil)
	if empty.Total != 0 {
		t.Errorf("expected zero total, got %d", empty.Total)
	}
	if empty.Percentages != nil {
		t.Error("percentages must be absent for empty input")
	}

	suggestions := []Suggestion{
		{Category: CategoryStyle, Severity: SeverityWarning, Confidence: 0.9},
		{Category: CategoryStyle, Severity: SeverityWarning, Confidence: 0.9},
		{Category: CategoryStyle, Severity: SeverityNote, Confidence: 0.5},
	}
	stats := Stats(suggestions)
	if stats.Counts[SeverityWarning] != 2 {
		t.Errorf("expected 2 warnings, got %d", stats.Counts[SeverityWarning])
	}
	if got := stats.Percentages[SeverityWarning]; got != 66.7 {
		t.Errorf("expected 66.7%%, got %v", got)
	}
}

func TestNormalize(t *testing.T) {
	s := Suggestion{LineNumber: 0, Confidence: 1.5, Severity: "nope"}.Normalize()
	if s.LineNumber != 1 {
		t.Errorf("line number not lifted: %d", s.LineNumber)
	}
	if s.Confidence != 1 {
		t.Errorf("confidence not clamped: %v", s.Confidence)
	}
	if s.Severity != SeveritySuggestion {
		t.Errorf("severity not defaulted: %s", s.Severity)
	}
	if s.Category != CategoryGeneral {
		t.Errorf("category not defaulted: %s", s.Category)
	}
}
