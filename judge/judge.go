// Package judge validates, ranks, and conflict-resolves suggestions
// with a model in the loop. Every operation fails open: a model error
// never drops findings on its own.
package judge

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/revuhq/revu/llm"
	"github.com/revuhq/revu/review"
)

// rankWindow caps how many suggestions are presented to the model when
// ranking. Beyond this the prompt stops fitting useful context windows.
const rankWindow = 50

// Judge evaluates suggestions through the model router.
type Judge struct {
	router *llm.Router
	logger *slog.Logger
}

// New creates a judge over a model router.
func New(router *llm.Router, logger *slog.Logger) *Judge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Judge{router: router, logger: logger}
}

const validateSystem = `You are reviewing a proposed code-review comment.
Judge whether the finding is accurate, actionable, appropriately severe,
and valuable to the author. Respond with JSON: {"valid": bool, "reason": string}.`

// Validate asks the model whether a finding should be published. Any
// error accepts the suggestion.
func (j *Judge) Validate(ctx context.Context, s review.Suggestion) bool {
	prompt := fmt.Sprintf(
		"File: %s\nLine: %d\nSeverity: %s\nCategory: %s\nConfidence: %.2f\nAnalyzer: %s\n\nFinding: %s",
		s.FilePath, s.LineNumber, s.Severity, s.Category, s.Confidence, s.Analyzer, s.Message)

	var verdict struct {
		Valid  bool   `json:"valid"`
		Reason string `json:"reason"`
	}
	err := j.router.RouteJSON(ctx, llm.TierRequest{
		Tier:   llm.TierBalanced,
		System: validateSystem,
		Prompt: prompt,
	}, &verdict)
	if err != nil {
		j.logger.Warn("Validation call failed, accepting suggestion",
			"file", s.FilePath,
			"line", s.LineNumber,
			"error", err)
		return true
	}

	if !verdict.Valid {
		j.logger.Debug("Suggestion rejected by judge",
			"file", s.FilePath,
			"line", s.LineNumber,
			"reason", verdict.Reason)
	}
	return verdict.Valid
}

const rankSystem = `You are prioritizing code-review findings.
Pick the most valuable findings for the author, best first.
Respond with a JSON array of 1-based indices of the findings to keep.`

// Rank keeps the top k suggestions. Lists of k or fewer pass through
// unchanged. On any model error it falls back to a severity sort
// truncated to k.
func (j *Judge) Rank(ctx context.Context, suggestions []review.Suggestion, k int) []review.Suggestion {
	if len(suggestions) <= k {
		return suggestions
	}

	window := suggestions
	if len(window) > rankWindow {
		window = window[:rankWindow]
	}

	var sb strings.Builder
	for i, s := range window {
		fmt.Fprintf(&sb, "%d. [%s/%s] %s:%d %s\n", i+1, s.Severity, s.Category, s.FilePath, s.LineNumber, s.Message)
	}
	prompt := fmt.Sprintf("Keep the best %d of these findings:\n\n%s", k, sb.String())

	indices, err := j.askIndices(ctx, prompt, rankSystem)
	if err != nil {
		j.logger.Warn("Ranking call failed, falling back to severity sort", "error", err)
		sorted := review.SortBySeverity(suggestions)
		return sorted[:k]
	}

	picked := make([]review.Suggestion, 0, k)
	seen := make(map[int]bool)
	for _, idx := range indices {
		if idx < 1 || idx > len(window) || seen[idx] {
			continue
		}
		seen[idx] = true
		picked = append(picked, window[idx-1])
		if len(picked) == k {
			break
		}
	}

	// Top up from the unselected suggestions in original order.
	for i := 0; len(picked) < k && i < len(suggestions); i++ {
		if i < len(window) && seen[i+1] {
			continue
		}
		picked = append(picked, suggestions[i])
		if i < len(window) {
			seen[i+1] = true
		}
	}

	return picked
}

const conflictSystem = `Multiple code-review findings target the same line.
Decide which ones the author should actually see; drop redundant or
contradictory ones. Respond with a JSON array of 1-based indices to keep.`

// CheckConflicts resolves groups of suggestions on the same (file, line).
// Singleton groups are always kept. On any error the input is returned
// unchanged.
func (j *Judge) CheckConflicts(ctx context.Context, suggestions []review.Suggestion) []review.Suggestion {
	type key struct {
		file string
		line int
	}

	groups := make(map[key][]int)
	order := make([]key, 0)
	for i, s := range suggestions {
		k := key{s.FilePath, s.LineNumber}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}

	keep := make(map[int]bool, len(suggestions))
	for _, k := range order {
		idxs := groups[k]
		if len(idxs) < 2 {
			keep[idxs[0]] = true
			continue
		}

		var sb strings.Builder
		for n, idx := range idxs {
			s := suggestions[idx]
			fmt.Fprintf(&sb, "%d. [%s/%s] %s\n", n+1, s.Severity, s.Category, s.Message)
		}
		prompt := fmt.Sprintf("Findings on %s:%d:\n\n%s", k.file, k.line, sb.String())

		picked, err := j.askIndices(ctx, prompt, conflictSystem)
		if err != nil {
			j.logger.Warn("Conflict resolution failed, keeping all",
				"file", k.file,
				"line", k.line,
				"error", err)
			return suggestions
		}

		kept := false
		for _, n := range picked {
			if n >= 1 && n <= len(idxs) {
				keep[idxs[n-1]] = true
				kept = true
			}
		}
		if !kept {
			// A model that drops everything on a line is not trusted.
			for _, idx := range idxs {
				keep[idx] = true
			}
		}
	}

	out := make([]review.Suggestion, 0, len(suggestions))
	for i, s := range suggestions {
		if keep[i] {
			out = append(out, s)
		}
	}
	return out
}

// askIndices requests a list of 1-based indices, accepting either a bare
// JSON array or an {"indices": [...]} object. Entries that are not
// integers are skipped individually; a model that quotes one number
// should not lose its whole ranking.
func (j *Judge) askIndices(ctx context.Context, prompt, system string) ([]int, error) {
	content, err := j.router.Route(ctx, llm.TierRequest{
		Tier:   llm.TierBalanced,
		System: system,
		Prompt: prompt + "\n\nRespond with JSON only.",
	})
	if err != nil {
		return nil, err
	}

	var raw []any
	if err := llm.ParseLooseJSON(content, &raw); err != nil {
		var wrapped struct {
			Indices []any `json:"indices"`
		}
		if err := llm.ParseLooseJSON(content, &wrapped); err != nil || wrapped.Indices == nil {
			return nil, fmt.Errorf("unparseable index list: %w", llm.ErrJSONParse)
		}
		raw = wrapped.Indices
	}

	indices := make([]int, 0, len(raw))
	for _, v := range raw {
		n, ok := asIndex(v)
		if !ok {
			j.logger.Debug("Skipping non-integer entry in index list", "value", v)
			continue
		}
		indices = append(indices, n)
	}
	return indices, nil
}

// asIndex coerces a decoded JSON value into an integer. Models
// occasionally quote numbers.
func asIndex(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}
