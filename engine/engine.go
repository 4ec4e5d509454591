package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/revuhq/revu/analyzer"
	"github.com/revuhq/revu/diff"
	"github.com/revuhq/revu/optimizer"
	"github.com/revuhq/revu/review"
	"github.com/revuhq/revu/vcs"
)

// AdapterFactory resolves the VCS adapter for a provider.
type AdapterFactory func(review.Provider) (vcs.ProviderAdapter, error)

// SuggestionJudge is the model-backed evaluation surface used by the
// llm_judge stage.
type SuggestionJudge interface {
	Validate(ctx context.Context, s review.Suggestion) bool
	Rank(ctx context.Context, suggestions []review.Suggestion, k int) []review.Suggestion
	CheckConflicts(ctx context.Context, suggestions []review.Suggestion) []review.Suggestion
}

// Options configures an Engine.
type Options struct {
	// Adapters resolves provider adapters. Required.
	Adapters AdapterFactory

	// Analyzers is the full analyzer set; the review config picks which
	// run. Required.
	Analyzers []analyzer.Analyzer

	// Judge validates findings. Nil skips the llm_judge stage (all
	// findings accepted).
	Judge SuggestionJudge

	// Checkpoints persists per-stage snapshots. Nil uses an in-memory
	// store.
	Checkpoints CheckpointStore

	// Optimizer bounds file selection and chunk sizing.
	Optimizer optimizer.Config

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Engine executes the staged review workflow.
type Engine struct {
	adapters    AdapterFactory
	analyzers   []analyzer.Analyzer
	judge       SuggestionJudge
	checkpoints CheckpointStore
	optCfg      optimizer.Config
	logger      *slog.Logger
}

// New creates a workflow engine.
func New(opts Options) (*Engine, error) {
	if opts.Adapters == nil {
		return nil, fmt.Errorf("adapter factory is required")
	}
	if len(opts.Analyzers) == 0 {
		return nil, fmt.Errorf("at least one analyzer is required")
	}
	if opts.Checkpoints == nil {
		opts.Checkpoints = NewMemoryCheckpointStore()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Optimizer == (optimizer.Config{}) {
		opts.Optimizer = optimizer.DefaultConfig()
	}
	if err := opts.Optimizer.Validate(); err != nil {
		return nil, fmt.Errorf("optimizer config: %w", err)
	}

	return &Engine{
		adapters:    opts.Adapters,
		analyzers:   opts.Analyzers,
		judge:       opts.Judge,
		checkpoints: opts.Checkpoints,
		optCfg:      opts.Optimizer,
		logger:      opts.Logger,
	}, nil
}

// Run executes a review to completion, resuming from the thread's
// checkpoint when one exists. The returned state is always non-nil on a
// nil error, even for reviews that end with a recorded stage error. A
// failed comment post returns an error and leaves the checkpoint at the
// publish stage, so a redelivery retries the post instead of losing the
// review.
func (e *Engine) Run(ctx context.Context, threadID string, event review.PREvent, cfg review.ReviewConfig) (*ReviewState, error) {
	state, err := e.loadOrInit(ctx, threadID, event, cfg)
	if err != nil {
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		stage := state.Metadata.CurrentStage
		next, stepErr := e.step(ctx, stage, state)
		done := stage == StagePublish && stepErr == nil
		if !done {
			state.Metadata.CurrentStage = next
		}

		if err := e.checkpoints.Save(ctx, threadID, encodeState(state)); err != nil {
			// A lost checkpoint costs resumability, not correctness.
			e.logger.Warn("Checkpoint save failed",
				"thread_id", threadID,
				"stage", stage,
				"error", err)
		}

		if stepErr != nil {
			return nil, stepErr
		}
		if done {
			return state, nil
		}
	}
}

func (e *Engine) loadOrInit(ctx context.Context, threadID string, event review.PREvent, cfg review.ReviewConfig) (*ReviewState, error) {
	cp, found, err := e.checkpoints.Load(ctx, threadID)
	if err != nil {
		e.logger.Warn("Checkpoint load failed, starting fresh",
			"thread_id", threadID,
			"error", err)
	} else if found {
		state, derr := decodeState(cp)
		if derr == nil {
			e.logger.Info("Resuming review from checkpoint",
				"thread_id", threadID,
				"stage", state.Metadata.CurrentStage,
				"chunk_index", state.CurrentChunkIndex)
			return state, nil
		}
		e.logger.Warn("Checkpoint decode failed, starting fresh",
			"thread_id", threadID,
			"error", derr)
	}

	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}
	return newState(threadID, event, cfg), nil
}

// step runs one stage and returns the next. Only the publish stage can
// return an error, and only for a failed comment post.
func (e *Engine) step(ctx context.Context, stage Stage, state *ReviewState) (Stage, error) {
	e.logger.Debug("Running stage",
		"review_id", state.Metadata.ReviewID,
		"stage", stage)

	switch stage {
	case StageIngestPR:
		e.ingestPR(ctx, state)
		if state.ShouldStop {
			return StagePublish, nil
		}
		return StageChunkAnalyzer, nil

	case StageChunkAnalyzer:
		e.chunkAnalyzer(state)
		if state.ShouldStop {
			return StagePublish, nil
		}
		return StageParallelAgents, nil

	case StageParallelAgents:
		e.parallelAgents(ctx, state)
		if state.ShouldStop || state.CurrentChunkIndex >= len(state.Chunks) {
			return StageAggregateResults, nil
		}
		return StageParallelAgents, nil

	case StageAggregateResults:
		e.aggregateResults(state)
		if len(state.Suggestions) == 0 || state.ShouldStop {
			return StagePublish, nil
		}
		return StageSeverityFilter, nil

	case StageSeverityFilter:
		e.severityFilter(state)
		if len(state.Suggestions) == 0 {
			return StagePublish, nil
		}
		return StageLLMJudge, nil

	case StageLLMJudge:
		e.llmJudge(ctx, state)
		return StagePublish, nil

	default:
		return StagePublish, e.publish(ctx, state)
	}
}

// ingestPR fetches the diff and AGENTS.md and installs config defaults.
func (e *Engine) ingestPR(ctx context.Context, state *ReviewState) {
	defaults := review.DefaultReviewConfig()
	if state.Config.MaxSuggestions <= 0 {
		state.Config.MaxSuggestions = defaults.MaxSuggestions
	}
	if !state.Config.SeverityThreshold.IsValid() {
		state.Config.SeverityThreshold = defaults.SeverityThreshold
	}
	if state.Config.EnableAgents == nil {
		state.Config.EnableAgents = defaults.EnableAgents
	}

	adapter, err := e.adapters(state.Event.Provider)
	if err != nil {
		state.fail(fmt.Sprintf("resolve provider adapter: %v", err))
		return
	}

	prDiff, err := adapter.FetchDiff(ctx, state.Event.RepoOwner, state.Event.RepoName, state.Event.PRNumber)
	if err != nil {
		state.fail(fmt.Sprintf("fetch diff: %v", err))
		return
	}
	state.Diff = prDiff

	// AGENTS.md is optional; fetch failures just disable custom rules.
	agentsMD, err := adapter.FetchAgentsFile(ctx, state.Event.RepoOwner, state.Event.RepoName, state.Event.HeadSHA)
	if err != nil {
		e.logger.Debug("AGENTS.md fetch failed",
			"repo", state.Event.Repo(),
			"error", err)
	} else {
		state.AgentsMD = agentsMD
	}
}

// chunkAnalyzer parses the diff, selects files within budget, and emits
// analyzer chunks.
func (e *Engine) chunkAnalyzer(state *ReviewState) {
	files, err := diff.Parse(state.Diff)
	if err != nil {
		state.fail(fmt.Sprintf("parse diff: %v", err))
		return
	}
	if len(files) == 0 {
		state.fail("No PR diff to analyze")
		return
	}

	selection := optimizer.Select(optimizer.DescribeAll(files), e.optCfg)
	selected := make(map[string]bool, len(selection.Selected))
	for _, f := range selection.Selected {
		selected[f.Path] = true
	}

	kept := make([]diff.FileDiff, 0, len(selection.Selected))
	for _, f := range files {
		if selected[f.Path] {
			kept = append(kept, f)
		}
	}

	state.Chunks = e.buildChunks(kept)

	e.logger.Info("Chunked PR diff",
		"review_id", state.Metadata.ReviewID,
		"files_total", selection.Summary.TotalFiles,
		"files_selected", selection.Summary.SelectedFiles,
		"chunks", len(state.Chunks),
		"estimated_tokens", selection.Summary.SelectedTokens)
}

// buildChunks converts file diffs to chunks, splitting any that exceed
// the configured chunk size. Split parts take their line range from the
// new-side numbering of the hunk text; hunk headers and deleted lines do
// not occupy new-file lines.
func (e *Engine) buildChunks(files []diff.FileDiff) []review.ChunkInfo {
	chunks := diff.Chunks(files)

	out := make([]review.ChunkInfo, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Content) <= e.optCfg.ChunkSize {
			out = append(out, c)
			continue
		}
		lineAt := diff.NewFileLines(c.Content, c.StartLine)
		for _, part := range optimizer.ChunkContent(c.Content, e.optCfg.ChunkSize) {
			start := lineAt[part.StartLine-1]
			end := lineAt[part.EndLine-1]
			if end < start {
				end = start
			}
			out = append(out, review.ChunkInfo{
				FilePath:  c.FilePath,
				StartLine: start,
				EndLine:   end,
				Content:   part.Content,
				Language:  c.Language,
			})
		}
	}
	return out
}

// parallelAgents runs every enabled analyzer concurrently over the
// current chunk, then advances the cursor. Analyzer failures are logged
// and contribute no findings.
func (e *Engine) parallelAgents(ctx context.Context, state *ReviewState) {
	idx := state.CurrentChunkIndex
	if idx >= len(state.Chunks) {
		return
	}
	chunk := state.Chunks[idx]

	actx := analyzer.Context{
		AgentsMD:    state.AgentsMD,
		Config:      state.Config,
		ChunkIndex:  idx,
		TotalChunks: len(state.Chunks),
	}

	enabled := analyzer.Enabled(e.analyzers, state.Config)

	type agentResult struct {
		name        string
		suggestions []review.Suggestion
	}

	var wg sync.WaitGroup
	results := make([]agentResult, len(enabled))
	for i, a := range enabled {
		if !a.ShouldAnalyze(chunk) {
			continue
		}
		wg.Add(1)
		go func(slot int, a analyzer.Analyzer) {
			defer wg.Done()
			suggestions, err := a.Analyze(ctx, chunk, actx)
			if err != nil {
				e.logger.Warn("Analyzer failed",
					"analyzer", a.Name(),
					"file", chunk.FilePath,
					"chunk", idx,
					"error", err)
				suggestions = nil
			}
			results[slot] = agentResult{name: a.Name(), suggestions: suggestions}
		}(i, a)
	}
	wg.Wait()

	chunkResult := make(ChunkResult)
	for _, r := range results {
		if r.name == "" {
			continue
		}
		chunkResult[r.name] = len(r.suggestions)
		if len(r.suggestions) == 0 {
			continue
		}
		state.Suggestions = append(state.Suggestions, r.suggestions...)
		if state.AgentOutputs == nil {
			state.AgentOutputs = make(map[string][]review.Suggestion)
		}
		state.AgentOutputs[r.name] = append(state.AgentOutputs[r.name], r.suggestions...)
	}
	state.Metadata.ChunkResults[idx] = chunkResult
	state.CurrentChunkIndex = idx + 1
}

// aggregateResults collapses near-duplicate findings.
func (e *Engine) aggregateResults(state *ReviewState) {
	before := len(state.Suggestions)
	dedup := review.NewDeduplicator()
	state.Suggestions = review.DeduplicateByPriority(dedup.Deduplicate(state.Suggestions))

	if dropped := before - len(state.Suggestions); dropped > 0 {
		e.logger.Debug("Deduplicated findings",
			"review_id", state.Metadata.ReviewID,
			"dropped", dropped,
			"remaining", len(state.Suggestions))
	}
}

// severityFilter applies the threshold and truncates to the suggestion
// budget.
func (e *Engine) severityFilter(state *ReviewState) {
	state.Suggestions = review.FilterByThreshold(state.Suggestions, state.Config.SeverityThreshold)
	state.Suggestions = review.SortBySeverity(state.Suggestions)
	if len(state.Suggestions) > state.Config.MaxSuggestions {
		state.Suggestions = state.Suggestions[:state.Config.MaxSuggestions]
	}
}

// llmJudge validates each finding, resolves same-line conflicts, and
// re-ranks when the validated set exceeds the budget. A nil judge
// accepts everything.
func (e *Engine) llmJudge(ctx context.Context, state *ReviewState) {
	if e.judge == nil {
		state.Validated = state.Suggestions
		return
	}

	validated := make([]review.Suggestion, 0, len(state.Suggestions))
	rejected := make([]review.Suggestion, 0)
	for _, s := range state.Suggestions {
		if e.judge.Validate(ctx, s) {
			validated = append(validated, s)
		} else {
			rejected = append(rejected, s)
		}
	}

	validated = e.judge.CheckConflicts(ctx, validated)
	if len(validated) > state.Config.MaxSuggestions {
		validated = e.judge.Rank(ctx, validated, state.Config.MaxSuggestions)
	}

	state.Validated = validated
	state.Rejected = rejected
	state.Suggestions = validated
}

// publish projects suggestions to comments, posts them, and finalizes
// the state. A failed post is returned as an error without finalizing,
// leaving the checkpoint at the publish stage for redelivery.
func (e *Engine) publish(ctx context.Context, state *ReviewState) error {
	now := time.Now().UTC()

	if state.Error != "" {
		// A review stopped by an earlier stage finalizes without
		// touching the provider.
		state.Passed = false
		state.Metadata.ErrorCount++
		state.Metadata.CompletedAt = &now
		return nil
	}

	comments := make([]review.ReviewComment, 0, len(state.Suggestions))
	for _, s := range state.Suggestions {
		comments = append(comments, review.CommentFor(s))
	}
	state.Comments = comments

	if len(comments) > 0 {
		adapter, err := e.adapters(state.Event.Provider)
		if err != nil {
			// No adapter will appear on a redelivery; finalize.
			state.fail(fmt.Sprintf("resolve provider adapter: %v", err))
			state.Passed = false
			state.Metadata.ErrorCount++
			state.Metadata.CompletedAt = &now
			return nil
		}
		if err := adapter.PostReviewComments(ctx, state.Event.RepoOwner, state.Event.RepoName, state.Event.PRNumber, comments); err != nil {
			return fmt.Errorf("post review comments: %w", err)
		}
	}

	stats := review.Stats(state.Suggestions)
	state.Metadata.ErrorCount += stats.Counts[review.SeverityError]
	state.Passed = state.Metadata.ErrorCount == 0
	state.Summary = review.RenderSummary(state.Suggestions, state.Passed)
	state.Metadata.CompletedAt = &now

	e.logger.Info("Review published",
		"review_id", state.Metadata.ReviewID,
		"repo", state.Event.Repo(),
		"pr_number", state.Event.PRNumber,
		"comments", len(comments),
		"passed", state.Passed)
	return nil
}
