package analyzer

import (
	"context"
	"regexp"
	"strings"

	"github.com/revuhq/revu/review"
)

var (
	bareExceptRe     = regexp.MustCompile(`^\s*except\s*:`)
	mutableDefaultRe = regexp.MustCompile(`def\s+\w+\s*\([^)]*=\s*(\[\]|\{\}|\(\))`)
	looseEqualityRe  = regexp.MustCompile(`[^=!<>]==[^=]|[^!]!=[^=]`)
	varUsageRe       = regexp.MustCompile(`^\s*var\s+\w`)
	javaBraceRe      = regexp.MustCompile(`^\s*\{\s*$`)
	pyDefRe          = regexp.MustCompile(`^\s*(def|class)\s+\w`)
	docstringRe      = regexp.MustCompile(`^\s*("""|''')`)
)

// StyleAnalyzer runs mechanical per-line style checks.
type StyleAnalyzer struct{}

// NewStyleAnalyzer creates the style analyzer.
func NewStyleAnalyzer() *StyleAnalyzer {
	return &StyleAnalyzer{}
}

func (a *StyleAnalyzer) Name() string { return "style" }

func (a *StyleAnalyzer) Priority() int { return 5 }

func (a *StyleAnalyzer) ShouldAnalyze(chunk review.ChunkInfo) bool {
	return chunk.Language != "unknown"
}

func (a *StyleAnalyzer) Analyze(_ context.Context, chunk review.ChunkInfo, _ Context) ([]review.Suggestion, error) {
	var suggestions []review.Suggestion

	add := func(line codeLine, message string, confidence float64) {
		s := review.Suggestion{
			FilePath:   chunk.FilePath,
			LineNumber: line.Number,
			Message:    message,
			Severity:   review.SeveritySuggestion,
			Analyzer:   a.Name(),
			Confidence: confidence,
			Category:   review.CategoryStyle,
		}
		suggestions = append(suggestions, s.Normalize())
	}

	isJS := chunk.Language == "javascript" || chunk.Language == "typescript"
	isPython := chunk.Language == "python"

	lines := addedLines(chunk)
	for _, line := range lines {
		text := line.Text

		if len(text) > 120 {
			add(line, "Line exceeds 120 characters", 0.9)
		}
		if text != strings.TrimRight(text, " \t") && strings.TrimSpace(text) != "" {
			add(line, "Trailing whitespace", 1.0)
		}
		if indent := leadingWhitespace(text); strings.Contains(indent, "\t") && strings.Contains(indent, " ") {
			add(line, "Mixed tabs and spaces in indentation", 1.0)
		}

		if isPython {
			if bareExceptRe.MatchString(text) {
				add(line, "Bare except swallows all exceptions including KeyboardInterrupt; catch specific types", 0.9)
			}
			if mutableDefaultRe.MatchString(text) {
				add(line, "Mutable default argument is shared across calls; use None and assign inside", 0.85)
			}
		}

		if isJS {
			if looseEqualityRe.MatchString(text) && !strings.Contains(text, "===") && !strings.Contains(text, "!==") {
				add(line, "Loose equality coerces types; prefer === / !==", 0.8)
			}
			if varUsageRe.MatchString(text) {
				add(line, "var is function-scoped; prefer const or let", 0.8)
			}
		}

		if chunk.Language == "java" && javaBraceRe.MatchString(text) {
			add(line, "Opening brace on its own line; K&R style puts it on the declaration line", 0.6)
		}
	}

	if isPython {
		suggestions = append(suggestions, a.checkDocstring(chunk, lines)...)
	}

	return suggestions, nil
}

// checkDocstring flags a function or class definition at the top of a
// chunk whose following line is not a docstring.
func (a *StyleAnalyzer) checkDocstring(chunk review.ChunkInfo, lines []codeLine) []review.Suggestion {
	for i, line := range lines {
		if !pyDefRe.MatchString(line.Text) {
			continue
		}
		if i+1 < len(lines) && docstringRe.MatchString(lines[i+1].Text) {
			return nil
		}
		s := review.Suggestion{
			FilePath:   chunk.FilePath,
			LineNumber: line.Number,
			Message:    "Public function or class is missing a docstring",
			Severity:   review.SeverityNote,
			Analyzer:   a.Name(),
			Confidence: 0.7,
			Category:   review.CategoryStyle,
		}
		return []review.Suggestion{s.Normalize()}
	}
	return nil
}

func leadingWhitespace(s string) string {
	for i, ch := range s {
		if ch != ' ' && ch != '\t' {
			return s[:i]
		}
	}
	return s
}
