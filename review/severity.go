package review

import (
	"math"
	"sort"
)

// Severity is the totally ordered finding severity. Lower priority value
// means more severe: error < warning < suggestion < note.
type Severity string

const (
	SeverityError      Severity = "error"
	SeverityWarning    Severity = "warning"
	SeveritySuggestion Severity = "suggestion"
	SeverityNote       Severity = "note"
)

// severityPriority orders severities; lower is more severe.
var severityPriority = map[Severity]int{
	SeverityError:      1,
	SeverityWarning:    2,
	SeveritySuggestion: 3,
	SeverityNote:       4,
}

// IsValid checks if a severity value is known.
func (s Severity) IsValid() bool {
	_, ok := severityPriority[s]
	return ok
}

// Priority returns the ordering value for a severity. Invalid severities
// rank as suggestion.
func (s Severity) Priority() int {
	if p, ok := severityPriority[s]; ok {
		return p
	}
	return severityPriority[SeveritySuggestion]
}

// ParseSeverity converts a string to a Severity, defaulting invalid input
// to suggestion.
func ParseSeverity(v string) Severity {
	s := Severity(v)
	if s.IsValid() {
		return s
	}
	return SeveritySuggestion
}

// Classify returns the adjusted severity for a suggestion. High-confidence
// security and logic findings are promoted to error; low-confidence errors
// are demoted to warning.
func Classify(s Suggestion) Severity {
	if (s.Category == CategorySecurity || s.Category == CategoryLogic) && s.Confidence >= 0.9 {
		return SeverityError
	}
	incoming := s.Severity
	if !incoming.IsValid() {
		incoming = SeveritySuggestion
	}
	if incoming == SeverityError && s.Confidence < 0.7 {
		return SeverityWarning
	}
	return incoming
}

// FilterByThreshold reclassifies every suggestion, writes the classified
// severity back, and keeps those at or above the threshold severity.
// An invalid threshold defaults to suggestion.
func FilterByThreshold(suggestions []Suggestion, threshold Severity) []Suggestion {
	if !threshold.IsValid() {
		threshold = SeveritySuggestion
	}
	limit := threshold.Priority()

	kept := make([]Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		classified := s.WithSeverity(Classify(s))
		if classified.Severity.Priority() <= limit {
			kept = append(kept, classified)
		}
	}
	return kept
}

// SortBySeverity stable-sorts by classified severity (most severe first),
// then confidence descending, then category ascending.
func SortBySeverity(suggestions []Suggestion) []Suggestion {
	sorted := make([]Suggestion, len(suggestions))
	copy(sorted, suggestions)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := Classify(sorted[i]).Priority(), Classify(sorted[j]).Priority()
		if pi != pj {
			return pi < pj
		}
		if sorted[i].Confidence != sorted[j].Confidence {
			return sorted[i].Confidence > sorted[j].Confidence
		}
		return sorted[i].Category < sorted[j].Category
	})
	return sorted
}

// ShouldBlockMerge reports whether any suggestion classifies as an error.
func ShouldBlockMerge(suggestions []Suggestion) bool {
	for _, s := range suggestions {
		if Classify(s) == SeverityError {
			return true
		}
	}
	return false
}

// MaxSeverity returns the most severe classified value, or note for an
// empty input.
func MaxSeverity(suggestions []Suggestion) Severity {
	max := SeverityNote
	for _, s := range suggestions {
		if c := Classify(s); c.Priority() < max.Priority() {
			max = c
		}
	}
	return max
}

// SeverityStats holds per-severity counts and percentages.
type SeverityStats struct {
	Counts      map[Severity]int     `json:"counts"`
	Percentages map[Severity]float64 `json:"percentages,omitempty"`
	Total       int                  `json:"total"`
}

// Stats counts classified severities. Percentages are rounded to one
// decimal place and omitted entirely when the input is empty.
func Stats(suggestions []Suggestion) SeverityStats {
	stats := SeverityStats{
		Counts: map[Severity]int{
			SeverityError:      0,
			SeverityWarning:    0,
			SeveritySuggestion: 0,
			SeverityNote:       0,
		},
		Total: len(suggestions),
	}
	for _, s := range suggestions {
		stats.Counts[Classify(s)]++
	}
	if stats.Total == 0 {
		return stats
	}
	stats.Percentages = make(map[Severity]float64, len(stats.Counts))
	for sev, count := range stats.Counts {
		pct := 100 * float64(count) / float64(stats.Total)
		stats.Percentages[sev] = math.Round(pct*10) / 10
	}
	return stats
}
