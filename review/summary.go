package review

import (
	"fmt"
	"strings"
)

// severityHeadings maps severities to their summary labels, in render order.
var severityHeadings = []struct {
	severity Severity
	label    string
}{
	{SeverityError, "Errors"},
	{SeverityWarning, "Warnings"},
	{SeveritySuggestion, "Suggestions"},
	{SeverityNote, "Notes"},
}

// RenderSummary builds the markdown review summary posted alongside the
// inline comments: per-severity counts plus a status line.
func RenderSummary(suggestions []Suggestion, passed bool) string {
	var b strings.Builder
	b.WriteString("## Automated Review Summary\n\n")

	if len(suggestions) == 0 {
		b.WriteString("No findings.\n\n")
	} else {
		stats := Stats(suggestions)
		for _, h := range severityHeadings {
			if count := stats.Counts[h.severity]; count > 0 {
				fmt.Fprintf(&b, "- **%s**: %d\n", h.label, count)
			}
		}
		fmt.Fprintf(&b, "\nTotal findings: %d\n\n", stats.Total)
	}

	if passed {
		b.WriteString("Status: ✅ passed\n")
	} else {
		b.WriteString("Status: ❌ needs attention\n")
	}
	return b.String()
}

// RenderBudgetNotice builds the scope-notice summary posted when a review
// is declined by the budget enforcer. No inline comments accompany it.
func RenderBudgetNotice(repo string, budgetType string) string {
	return fmt.Sprintf(
		"## Automated Review Skipped\n\nThe %s review budget for `%s` has been reached. "+
			"This pull request was not analyzed; it will be reviewed once the budget resets.\n",
		budgetType, repo)
}
