package analyzer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/revuhq/revu/review"
)

// maxMatchesPerPattern caps how many findings one pattern may report per
// chunk. Repeated hits are almost always the same underlying issue.
const maxMatchesPerPattern = 3

// logicPattern is a per-line logic check.
type logicPattern struct {
	name       string
	re         *regexp.Regexp
	message    string
	confidence float64
	languages  []string // empty = all languages
	skipIf     string   // substring that suppresses the match
}

var logicPatterns = []logicPattern{
	{
		name:       "infinite-loop",
		re:         regexp.MustCompile(`while\s*\(?\s*(true|True|1)\s*\)?\s*[:{]?\s*$`),
		message:    "Unconditional loop; verify there is a reachable break or return",
		confidence: 0.6,
	},
	{
		name:       "off-by-one",
		re:         regexp.MustCompile(`<=\s*(len\(|\w+\.length\b|\w+\.size\(\))`),
		message:    "Inclusive bound against a length; probable off-by-one",
		confidence: 0.6,
	},
	{
		name:       "null-check-order",
		re:         regexp.MustCompile(`if\s+.*\w+\.\w+.*\s+(and|&&)\s+.*(is not None|!=\s*null|!==\s*null|!=\s*nil)`),
		message:    "Null check appears after the dereference; reorder the condition",
		confidence: 0.7,
	},
	{
		name:       "except-pass",
		re:         regexp.MustCompile(`except[^:]*:\s*pass\s*$`),
		message:    "Silently swallowed exception; at minimum log it",
		confidence: 0.8,
		languages:  []string{"python"},
	},
	{
		name:       "mutable-default",
		re:         regexp.MustCompile(`def\s+\w+\s*\([^)]*=\s*(\[\]|\{\}|\(\))`),
		message:    "Mutable default argument persists across calls",
		confidence: 0.85,
		languages:  []string{"python"},
	},
	{
		name:       "resource-leak",
		re:         regexp.MustCompile(`=\s*open\s*\(`),
		message:    "File opened outside a with block; it may never be closed on error paths",
		confidence: 0.6,
		languages:  []string{"python"},
	},
	{
		name:       "promise-no-catch",
		re:         regexp.MustCompile(`\.then\s*\(`),
		message:    "Promise chain without a .catch; rejections will be unhandled",
		confidence: 0.6,
		languages:  []string{"javascript", "typescript"},
		skipIf:     ".catch",
	},
}

// LogicAnalyzer flags likely correctness bugs with line-level heuristics.
type LogicAnalyzer struct{}

// NewLogicAnalyzer creates the logic analyzer.
func NewLogicAnalyzer() *LogicAnalyzer {
	return &LogicAnalyzer{}
}

func (a *LogicAnalyzer) Name() string { return "logic" }

func (a *LogicAnalyzer) Priority() int { return 2 }

func (a *LogicAnalyzer) ShouldAnalyze(chunk review.ChunkInfo) bool {
	return chunk.Language != "unknown"
}

func (a *LogicAnalyzer) Analyze(_ context.Context, chunk review.ChunkInfo, _ Context) ([]review.Suggestion, error) {
	var suggestions []review.Suggestion
	matchCounts := make(map[string]int)

	add := func(name string, line codeLine, message string, confidence float64) {
		if matchCounts[name] >= maxMatchesPerPattern {
			return
		}
		matchCounts[name]++

		s := review.Suggestion{
			FilePath:   chunk.FilePath,
			LineNumber: line.Number,
			Message:    message,
			Severity:   review.SeverityWarning,
			Analyzer:   a.Name(),
			Confidence: confidence,
			Category:   review.CategoryLogic,
		}
		suggestions = append(suggestions, s.Normalize())
	}

	lines := addedLines(chunk)
	for _, line := range lines {
		for _, p := range logicPatterns {
			if !languageApplies(p.languages, chunk.Language) {
				continue
			}
			if p.skipIf != "" && strings.Contains(line.Text, p.skipIf) {
				continue
			}
			if p.re.MatchString(line.Text) {
				add(p.name, line, p.message, p.confidence)
			}
		}
	}

	for _, finding := range findUnreachableCode(lines) {
		add("unreachable", finding, "Code after an unconditional return is unreachable", 0.7)
	}
	for _, finding := range findIterationMutation(lines, chunk.Language) {
		add("mutate-during-iteration", finding.line,
			fmt.Sprintf("Mutating %q while iterating over it skips elements", finding.collection), 0.75)
	}
	if line, ok := findAsyncWithoutAwait(lines, chunk.Language); ok {
		add("async-no-await", line, "Async function contains no await; either await something or drop async", 0.6)
	}

	return suggestions, nil
}

func languageApplies(languages []string, lang string) bool {
	if len(languages) == 0 {
		return true
	}
	for _, l := range languages {
		if l == lang {
			return true
		}
	}
	return false
}

var returnRe = regexp.MustCompile(`^(\s*)return\b`)

// findUnreachableCode flags a statement directly following an
// unconditional return at the same indentation.
func findUnreachableCode(lines []codeLine) []codeLine {
	var out []codeLine
	for i := 0; i+1 < len(lines); i++ {
		m := returnRe.FindStringSubmatch(lines[i].Text)
		if m == nil {
			continue
		}
		// Consecutive line numbers only; a gap means another hunk.
		next := lines[i+1]
		if next.Number != lines[i].Number+1 {
			continue
		}
		trimmed := strings.TrimSpace(next.Text)
		if trimmed == "" || trimmed == "}" || isBlockContinuation(trimmed) {
			continue
		}
		if leadingWhitespace(next.Text) == m[1] {
			out = append(out, next)
		}
	}
	return out
}

func isBlockContinuation(trimmed string) bool {
	for _, kw := range []string{"else", "elif", "except", "finally", "case ", "default:", "}"} {
		if strings.HasPrefix(trimmed, kw) {
			return true
		}
	}
	return false
}

var pyForRe = regexp.MustCompile(`for\s+\w+\s+in\s+(\w+)\s*:`)

type mutationFinding struct {
	line       codeLine
	collection string
}

// findIterationMutation flags Python list mutation inside a loop that
// iterates the same collection.
func findIterationMutation(lines []codeLine, language string) []mutationFinding {
	if language != "python" {
		return nil
	}

	var out []mutationFinding
	collection := ""
	loopIndent := ""
	for _, line := range lines {
		if m := pyForRe.FindStringSubmatch(line.Text); m != nil {
			collection = m[1]
			loopIndent = leadingWhitespace(line.Text)
			continue
		}
		if collection == "" {
			continue
		}
		indent := leadingWhitespace(line.Text)
		if strings.TrimSpace(line.Text) != "" && len(indent) <= len(loopIndent) {
			collection = "" // loop body ended
			continue
		}
		if strings.Contains(line.Text, collection+".remove(") ||
			strings.Contains(line.Text, collection+".pop(") ||
			strings.Contains(line.Text, collection+".append(") {
			out = append(out, mutationFinding{line: line, collection: collection})
		}
	}
	return out
}

var asyncDefRe = regexp.MustCompile(`async\s+(def|function)\s+\w+`)

// findAsyncWithoutAwait flags an async function in a chunk that never
// awaits. Chunk-scoped, so it only fires when the whole body is visible.
func findAsyncWithoutAwait(lines []codeLine, language string) (codeLine, bool) {
	if language != "python" && language != "javascript" && language != "typescript" {
		return codeLine{}, false
	}

	var def codeLine
	found := false
	for _, line := range lines {
		if !found && asyncDefRe.MatchString(line.Text) {
			def = line
			found = true
			continue
		}
		if found && strings.Contains(line.Text, "await ") {
			return codeLine{}, false
		}
	}
	return def, found
}
