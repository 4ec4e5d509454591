package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revuhq/revu/review"
)

func populatedState() *ReviewState {
	started := time.Date(2026, 8, 24, 10, 0, 0, 123456789, time.UTC)
	completed := started.Add(42 * time.Second)

	sugg := review.Suggestion{
		FilePath:   "app/db.py",
		LineNumber: 14,
		Message:    "String-built SQL query, use parameterized queries",
		Severity:   review.SeverityWarning,
		Analyzer:   "security",
		Confidence: 0.9,
		Category:   review.CategorySecurity,
	}

	return &ReviewState{
		Event: review.PREvent{
			Provider:     review.ProviderGitHub,
			RepoOwner:    "acme",
			RepoName:     "api",
			PRNumber:     42,
			Action:       review.ActionOpened,
			SourceBranch: "feature",
			TargetBranch: "main",
			HeadSHA:      "abc123",
			Title:        "Add endpoint",
			Author:       "dev",
		},
		Config:   review.DefaultReviewConfig(),
		Diff:     "diff --git a/app/db.py b/app/db.py\n",
		AgentsMD: "## Rule: no-print\n",
		Chunks: []review.ChunkInfo{
			{FilePath: "app/db.py", StartLine: 10, EndLine: 20, Content: "+x = 1", Language: "python"},
		},
		CurrentChunkIndex: 1,
		Suggestions:       []review.Suggestion{sugg},
		AgentOutputs: map[string][]review.Suggestion{
			"security": {sugg},
		},
		Validated: []review.Suggestion{sugg},
		Rejected: []review.Suggestion{
			{FilePath: "app/db.py", LineNumber: 2, Message: "noise", Severity: review.SeverityNote, Analyzer: "style", Confidence: 0.4, Category: review.CategoryStyle},
		},
		Comments: []review.ReviewComment{
			{FilePath: "app/db.py", LineNumber: 14, Message: "fix it", Severity: review.SeverityError},
		},
		Summary: "## Automated Review Summary\n",
		Passed:  false,
		Metadata: Metadata{
			ReviewID:     "github-acme-api-42-1756029600",
			StartedAt:    started,
			CompletedAt:  &completed,
			CurrentStage: StagePublish,
			ChunkResults: map[int]ChunkResult{0: {"security": 1, "style": 0}},
			ErrorCount:   1,
		},
		Error:      "",
		ShouldStop: false,
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	state := populatedState()

	cp := encodeState(state)
	assert.Equal(t, checkpointVersion, cp.V)
	assert.Equal(t, state.Metadata.ReviewID, cp.ID)

	// Pass through JSON bytes the way the KV store does.
	raw, err := json.Marshal(cp)
	require.NoError(t, err)
	var stored Checkpoint
	require.NoError(t, json.Unmarshal(raw, &stored))

	decoded, err := decodeState(&stored)
	require.NoError(t, err)
	assert.Equal(t, state, decoded)
}

func TestCheckpointRoundTrip_FreshState(t *testing.T) {
	event := populatedState().Event
	state := newState("review-1", event, review.DefaultReviewConfig())

	decoded, err := decodeState(encodeState(state))
	require.NoError(t, err)

	assert.Equal(t, StageIngestPR, decoded.Metadata.CurrentStage)
	assert.Equal(t, event, decoded.Event)
	assert.True(t, state.Metadata.StartedAt.Equal(decoded.Metadata.StartedAt))
	assert.Empty(t, decoded.Chunks)
	assert.Empty(t, decoded.Suggestions)
}

func TestDecodeState_ValueTags(t *testing.T) {
	cp := encodeState(populatedState())

	event, ok := cp.ChannelValues["event"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "pydantic", event["_type"])
	assert.Equal(t, "PREvent", event["_class"])

	started, ok := cp.Metadata["started_at"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, tagDatetime, started["_type"])
}

func TestDecodeState_UnknownTagTolerated(t *testing.T) {
	cp := encodeState(populatedState())

	// A value written by a newer release with a tag this build does not
	// know must still decode through its raw payload.
	cp.ChannelValues["suggestions"] = []any{
		map[string]any{
			"_type": "frozen_record",
			"_data": map[string]any{
				"file_path":   "main.go",
				"line_number": float64(7),
				"message":     "future finding",
				"severity":    "warning",
				"analyzer":    "security",
				"confidence":  0.8,
				"category":    "security",
			},
		},
	}

	decoded, err := decodeState(cp)
	require.NoError(t, err)
	require.Len(t, decoded.Suggestions, 1)
	assert.Equal(t, "main.go", decoded.Suggestions[0].FilePath)
	assert.Equal(t, 7, decoded.Suggestions[0].LineNumber)
	assert.Equal(t, review.SeverityWarning, decoded.Suggestions[0].Severity)
}

func TestMemoryCheckpointStore(t *testing.T) {
	ctx := t.Context()
	store := NewMemoryCheckpointStore()

	_, found, err := store.Load(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	cp := encodeState(populatedState())
	require.NoError(t, store.Save(ctx, "thread-1", cp))

	loaded, found, err := store.Load(ctx, "thread-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, cp.ID, loaded.ID)

	require.NoError(t, store.Delete(ctx, "thread-1"))
	_, found, err = store.Load(ctx, "thread-1")
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting again is not an error.
	require.NoError(t, store.Delete(ctx, "thread-1"))
}

func TestCheckpointKey(t *testing.T) {
	assert.Equal(t, "github-acme-api-42-1756029600", checkpointKey("github-acme-api-42-1756029600"))
	assert.Equal(t, "a_b_c", checkpointKey("a b*c"))
}
