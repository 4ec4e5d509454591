// Package analyzer implements the pluggable chunk analyzers that produce
// review findings: security, logic, pattern, and style.
package analyzer

import (
	"context"
	"sort"
	"strings"

	"github.com/revuhq/revu/review"
)

// Context carries per-review inputs shared by all analyzers. Analyzers
// must not retain it across calls.
type Context struct {
	// AgentsMD is the repository's AGENTS.md content, when present.
	AgentsMD string

	// Config is the effective review configuration.
	Config review.ReviewConfig

	// ChunkIndex and TotalChunks locate this chunk in the review.
	ChunkIndex  int
	TotalChunks int
}

// Analyzer produces suggestions from a single diff chunk.
type Analyzer interface {
	// Name returns the analyzer tag (security, logic, pattern, style).
	Name() string

	// Priority orders analyzers; lower runs logically first.
	Priority() int

	// ShouldAnalyze reports whether the chunk is worth analyzing.
	ShouldAnalyze(chunk review.ChunkInfo) bool

	// Analyze inspects the chunk and returns findings.
	Analyze(ctx context.Context, chunk review.ChunkInfo, actx Context) ([]review.Suggestion, error)
}

// All returns every analyzer sorted by priority. A nil augmenter
// disables LLM augmentation.
func All(aug *Augmenter) []Analyzer {
	analyzers := []Analyzer{
		NewSecurityAnalyzer(aug),
		NewLogicAnalyzer(),
		NewPatternAnalyzer(),
		NewStyleAnalyzer(),
	}
	sort.Slice(analyzers, func(i, j int) bool {
		return analyzers[i].Priority() < analyzers[j].Priority()
	})
	return analyzers
}

// Enabled filters analyzers through the review config's enable map.
// Analyzers absent from the map are enabled.
func Enabled(analyzers []Analyzer, cfg review.ReviewConfig) []Analyzer {
	out := make([]Analyzer, 0, len(analyzers))
	for _, a := range analyzers {
		if cfg.AgentEnabled(a.Name()) {
			out = append(out, a)
		}
	}
	return out
}

// codeLine is one added line of the new file version with its 1-based
// line number.
type codeLine struct {
	Number int
	Text   string
}

// addedLines extracts the `+` lines from a chunk's unified-diff content,
// tracking the new-file line number across hunk headers. Only added
// lines are analyzed; findings on unchanged code would be noise on a PR.
func addedLines(chunk review.ChunkInfo) []codeLine {
	var out []codeLine

	lineNo := chunk.StartLine
	for _, raw := range strings.Split(chunk.Content, "\n") {
		switch {
		case strings.HasPrefix(raw, "@@"):
			if start, ok := parseNewStart(raw); ok {
				lineNo = start
			}
		case strings.HasPrefix(raw, "+"):
			out = append(out, codeLine{Number: lineNo, Text: raw[1:]})
			lineNo++
		case strings.HasPrefix(raw, "-"):
			// Removed line: no new-file line number consumed.
		case strings.HasPrefix(raw, "\\"):
			// "\ No newline at end of file"
		default:
			lineNo++
		}
	}
	return out
}

// parseNewStart extracts the new-file start line from a hunk header of
// the form "@@ -a,b +c,d @@".
func parseNewStart(header string) (int, bool) {
	plus := strings.Index(header, "+")
	if plus < 0 {
		return 0, false
	}
	rest := header[plus+1:]
	end := strings.IndexAny(rest, ", @")
	if end < 0 {
		end = len(rest)
	}
	n := 0
	for _, ch := range rest[:end] {
		if ch < '0' || ch > '9' {
			return 0, false
		}
		n = n*10 + int(ch-'0')
	}
	if n == 0 {
		return 0, false
	}
	return n, true
}
