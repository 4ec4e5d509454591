package optimizer

import (
	"fmt"
	"sort"
)

// Config bounds what the optimizer admits into a review.
type Config struct {
	// MaxFilesToReview caps the number of selected files.
	MaxFilesToReview int

	// MaxTokensPerReview caps the cumulative estimated tokens of the
	// selection.
	MaxTokensPerReview int

	// MinPriorityForInclusion excludes files scored below it.
	MinPriorityForInclusion Priority

	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int
}

// DefaultConfig returns the optimizer defaults.
func DefaultConfig() Config {
	return Config{
		MaxFilesToReview:        50,
		MaxTokensPerReview:      50000,
		MinPriorityForInclusion: PriorityMedium,
		ChunkSize:               5000,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.MaxFilesToReview <= 0 {
		return fmt.Errorf("MaxFilesToReview must be positive, got %d", c.MaxFilesToReview)
	}
	if c.MaxTokensPerReview <= 0 {
		return fmt.Errorf("MaxTokensPerReview must be positive, got %d", c.MaxTokensPerReview)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("ChunkSize must be positive, got %d", c.ChunkSize)
	}
	return nil
}

// Summary reports what the selection admitted and why.
type Summary struct {
	TotalFiles     int            `json:"total_files"`
	SelectedFiles  int            `json:"selected_files"`
	SkippedFiles   int            `json:"skipped_files"`
	SelectedTokens int            `json:"selected_tokens"`
	ByPriority     map[string]int `json:"by_priority"`
	ByLanguage     map[string]int `json:"by_language"`
}

// Selection is the optimizer's admission decision for one review.
type Selection struct {
	Selected []FileInfo `json:"selected"`
	Skipped  []FileInfo `json:"skipped"`
	Summary  Summary    `json:"summary"`
}

// Select picks the files worth reviewing under the configured budgets.
// Candidates are visited in (priority desc, tokens asc) order; files below
// the minimum priority are skipped with an annotated reason, and selection
// stops once the file cap is reached or the next file would exceed the
// token budget.
func Select(files []FileInfo, cfg Config) Selection {
	if cfg.MaxFilesToReview == 0 {
		cfg = DefaultConfig()
	}

	ordered := make([]FileInfo, len(files))
	copy(ordered, files)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].EstimatedTokens < ordered[j].EstimatedTokens
	})

	sel := Selection{
		Summary: Summary{
			TotalFiles: len(files),
			ByPriority: make(map[string]int),
			ByLanguage: make(map[string]int),
		},
	}

	budgetExhausted := false
	tokens := 0
	for _, f := range ordered {
		if f.Priority < cfg.MinPriorityForInclusion {
			annotateSkip(&f, fmt.Sprintf("priority %s below threshold", f.Priority))
			sel.Skipped = append(sel.Skipped, f)
			continue
		}
		if budgetExhausted || len(sel.Selected) == cfg.MaxFilesToReview {
			annotateSkip(&f, "review budget exhausted")
			sel.Skipped = append(sel.Skipped, f)
			continue
		}
		if tokens+f.EstimatedTokens > cfg.MaxTokensPerReview {
			budgetExhausted = true
			annotateSkip(&f, "token budget exhausted")
			sel.Skipped = append(sel.Skipped, f)
			continue
		}

		tokens += f.EstimatedTokens
		sel.Selected = append(sel.Selected, f)
		sel.Summary.ByPriority[f.Priority.String()]++
		sel.Summary.ByLanguage[f.Language]++
	}

	sel.Summary.SelectedFiles = len(sel.Selected)
	sel.Summary.SkippedFiles = len(sel.Skipped)
	sel.Summary.SelectedTokens = tokens
	return sel
}
