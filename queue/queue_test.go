package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revuhq/revu/review"
)

func validEvent() review.PREvent {
	return review.PREvent{
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
	}
}

func TestParseJob(t *testing.T) {
	env := Envelope{
		PREvent:     validEvent(),
		Priority:    3,
		PublishedAt: "2026-08-24T10:00:00Z",
	}
	data, err := json.Marshal(env)
	require.NoError(t, err)

	job, err := ParseJob("msg-1", data, 2)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", job.ID)
	assert.Equal(t, 3, job.Priority)
	assert.Equal(t, 2, job.DeliveryAttempt)
	assert.Equal(t, "acme/api", job.Event.Repo())
	assert.False(t, job.ReceivedAt.IsZero())
}

func TestParseJob_InvalidJSON(t *testing.T) {
	_, err := ParseJob("msg-1", []byte("not json"), 1)
	assert.Error(t, err)
}

func TestParseJob_InvalidEvent(t *testing.T) {
	env := Envelope{Priority: 5}
	data, _ := json.Marshal(env)
	_, err := ParseJob("msg-1", data, 1)
	assert.Error(t, err, "empty pr_event must be rejected")
}

func TestClampPriority(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, PriorityDefault},
		{-3, PriorityDefault},
		{1, 1},
		{5, 5},
		{10, 10},
		{99, PriorityLowest},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clampPriority(tt.in), "clampPriority(%d)", tt.in)
	}
}

func TestBuildDLQPayload(t *testing.T) {
	env := Envelope{PREvent: validEvent(), Priority: 5}
	original, _ := json.Marshal(env)

	payload, err := BuildDLQPayload(original, DLQInfo{
		OriginalMessageID:    "msg-1",
		Error:                "callback exploded",
		OriginalSubscription: SubjectReviewRequest,
		FailedAt:             "2026-08-24T10:05:00Z",
	})
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &doc))

	// Original fields survive alongside the DLQ annotation.
	assert.Contains(t, doc, "pr_event")
	assert.Contains(t, doc, "priority")

	var info DLQInfo
	require.NoError(t, json.Unmarshal(doc["_dlq_info"], &info))
	assert.Equal(t, "msg-1", info.OriginalMessageID)
	assert.Equal(t, "callback exploded", info.Error)
	assert.Equal(t, SubjectReviewRequest, info.OriginalSubscription)
}

func TestBuildDLQPayload_UnparseableOriginal(t *testing.T) {
	payload, err := BuildDLQPayload([]byte("garbage bytes"), DLQInfo{
		OriginalMessageID: "msg-2",
		Error:             "parse failure",
	})
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &doc))
	assert.Contains(t, doc, "raw", "raw bytes preserved for forensics")
	assert.Contains(t, doc, "_dlq_info")
}
