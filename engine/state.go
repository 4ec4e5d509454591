// Package engine runs the staged review workflow: ingest, chunk,
// analyzer fan-out, aggregation, filtering, judging, publish. Every
// stage transition is checkpointed so an interrupted review resumes
// where it stopped.
package engine

import (
	"time"

	"github.com/revuhq/revu/review"
)

// Stage identifies a workflow step.
type Stage string

const (
	StageIngestPR         Stage = "ingest_pr"
	StageChunkAnalyzer    Stage = "chunk_analyzer"
	StageParallelAgents   Stage = "parallel_agents"
	StageAggregateResults Stage = "aggregate_results"
	StageSeverityFilter   Stage = "severity_filter"
	StageLLMJudge         Stage = "llm_judge"
	StagePublish          Stage = "publish"
)

// ChunkResult summarizes one chunk's analyzer outcomes: findings per
// analyzer tag.
type ChunkResult map[string]int

// Metadata tracks a review's progress.
type Metadata struct {
	ReviewID     string              `json:"review_id"`
	StartedAt    time.Time           `json:"started_at"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
	CurrentStage Stage               `json:"current_stage"`
	ChunkResults map[int]ChunkResult `json:"chunk_results,omitempty"`
	ErrorCount   int                 `json:"error_count"`
}

// ReviewState is the workflow's complete state at any checkpoint. The
// engine owns the instance exclusively during a run.
type ReviewState struct {
	Event  review.PREvent      `json:"event"`
	Config review.ReviewConfig `json:"config"`

	Diff     string `json:"diff,omitempty"`
	AgentsMD string `json:"agents_md,omitempty"`

	Chunks            []review.ChunkInfo `json:"chunks,omitempty"`
	CurrentChunkIndex int                `json:"current_chunk_index"`

	Suggestions  []review.Suggestion            `json:"suggestions,omitempty"`
	AgentOutputs map[string][]review.Suggestion `json:"agent_outputs,omitempty"`

	Validated []review.Suggestion `json:"validated,omitempty"`
	Rejected  []review.Suggestion `json:"rejected,omitempty"`

	Comments []review.ReviewComment `json:"comments,omitempty"`
	Summary  string                 `json:"summary,omitempty"`
	Passed   bool                   `json:"passed"`

	Metadata Metadata `json:"metadata"`

	Error      string `json:"error,omitempty"`
	ShouldStop bool   `json:"should_stop"`
}

// newState initializes a fresh run.
func newState(reviewID string, event review.PREvent, cfg review.ReviewConfig) *ReviewState {
	return &ReviewState{
		Event:  event,
		Config: cfg,
		Metadata: Metadata{
			ReviewID:     reviewID,
			StartedAt:    time.Now().UTC(),
			CurrentStage: StageIngestPR,
			ChunkResults: make(map[int]ChunkResult),
		},
	}
}

// fail records a stage error and stops the workflow.
func (s *ReviewState) fail(msg string) {
	s.Error = msg
	s.ShouldStop = true
}
