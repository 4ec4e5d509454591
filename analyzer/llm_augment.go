package analyzer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/revuhq/revu/llm"
	"github.com/revuhq/revu/review"
)

const augmentSystemPrompt = `You are a code reviewer examining a unified diff chunk.
Report only concrete, actionable findings on the added lines.
Respond with a JSON array of objects with fields:
line_number (integer, in the new file), message (string),
severity (error|warning|suggestion|note), confidence (0.0-1.0),
category (security|logic|style|pattern|general),
replacement (optional string).`

// Augmenter adds model-generated findings to an analyzer's output.
// Strictly best-effort: every failure path returns no findings.
type Augmenter struct {
	router *llm.Router
	logger *slog.Logger
}

// NewAugmenter creates an augmenter over a model router.
func NewAugmenter(router *llm.Router, logger *slog.Logger) *Augmenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Augmenter{router: router, logger: logger}
}

// augmentFinding is the JSON shape the model is asked to produce.
type augmentFinding struct {
	LineNumber  int     `json:"line_number"`
	Message     string  `json:"message"`
	Severity    string  `json:"severity"`
	Confidence  float64 `json:"confidence"`
	Category    string  `json:"category"`
	Replacement string  `json:"replacement,omitempty"`
}

// Augment asks the model for additional findings on a chunk. Errors are
// logged and swallowed; augmentation must never fail the analyzer.
func (a *Augmenter) Augment(ctx context.Context, analyzerName string, chunk review.ChunkInfo, actx Context) []review.Suggestion {
	if a == nil || a.router == nil {
		return nil
	}

	complexity := llm.ComplexityMedium
	if len(chunk.Content) > 4000 {
		complexity = llm.ComplexityHigh
	}
	tier := llm.SelectTier(analyzerName, complexity, llm.PriorityMedium)

	prompt := fmt.Sprintf("File: %s (language: %s, chunk %d of %d)\n\nDiff:\n%s",
		chunk.FilePath, chunk.Language, actx.ChunkIndex+1, actx.TotalChunks, chunk.Content)

	var findings []augmentFinding
	err := a.router.RouteJSON(ctx, llm.TierRequest{
		Tier:   tier,
		System: augmentSystemPrompt,
		Prompt: prompt,
	}, &findings)
	if err != nil {
		a.logger.Debug("Model augmentation skipped",
			"analyzer", analyzerName,
			"file", chunk.FilePath,
			"error", err)
		return nil
	}

	suggestions := make([]review.Suggestion, 0, len(findings))
	for _, f := range findings {
		if f.Message == "" {
			continue
		}
		s := review.Suggestion{
			FilePath:    chunk.FilePath,
			LineNumber:  f.LineNumber,
			Message:     f.Message,
			Severity:    review.ParseSeverity(f.Severity),
			Replacement: f.Replacement,
			Analyzer:    analyzerName,
			Confidence:  f.Confidence,
			Category:    review.Category(f.Category),
		}
		suggestions = append(suggestions, s.Normalize())
	}
	return suggestions
}
