package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postChat(t *testing.T, s *server, model string) chatResponse {
	t.Helper()

	body, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: "review this diff"}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleChatCompletions(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestChatCompletions_ServesFixture(t *testing.T) {
	s := newServer(map[string][]string{
		"judge": {`[{"file_path":"main.go","severity":"warning"}]`},
	})

	resp := postChat(t, s, "judge")
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "assistant", resp.Choices[0].Message.Role)
	assert.Contains(t, resp.Choices[0].Message.Content, "main.go")
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.Equal(t, "judge", resp.Model)
}

func TestChatCompletions_SequencedFixtures(t *testing.T) {
	s := newServer(map[string][]string{
		"judge": {`["first"]`, `["second"]`},
	})

	assert.Contains(t, postChat(t, s, "judge").Choices[0].Message.Content, "first")
	assert.Contains(t, postChat(t, s, "judge").Choices[0].Message.Content, "second")
	// Sequence exhausted: the last fixture repeats.
	assert.Contains(t, postChat(t, s, "judge").Choices[0].Message.Content, "second")
}

func TestChatCompletions_UnknownModelFindsNothing(t *testing.T) {
	s := newServer(nil)

	resp := postChat(t, s, "qwen2.5-coder:7b")
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, emptyFindings, resp.Choices[0].Message.Content)
}

func TestChatCompletions_RejectsBadRequests(t *testing.T) {
	s := newServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/chat/completions", nil)
	rec := httptest.NewRecorder()
	s.handleChatCompletions(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader([]byte("{not json")))
	rec = httptest.NewRecorder()
	s.handleChatCompletions(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStats_CountsPerModel(t *testing.T) {
	s := newServer(map[string][]string{"judge": {`[]`}})

	postChat(t, s, "judge")
	postChat(t, s, "judge")
	postChat(t, s, "security")

	rec := httptest.NewRecorder()
	s.handleStats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats struct {
		TotalCalls   int            `json:"total_calls"`
		CallsByModel map[string]int `json:"calls_by_model"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.TotalCalls)
	assert.Equal(t, 2, stats.CallsByModel["judge"])
	assert.Equal(t, 1, stats.CallsByModel["security"])
}

func TestLoadFixtures(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
	}

	write("judge.1.json", `["v1"]`)
	write("judge.2.json", `["v2"]`)
	write("judge.json", `["base"]`)
	write("qwen2.5-coder_7b.json", `[]`)
	write("notes.txt", "ignored")

	fixtures, err := loadFixtures(dir)
	require.NoError(t, err)

	require.Len(t, fixtures["judge"], 3)
	assert.Equal(t, `["v1"]`, fixtures["judge"][0])
	assert.Equal(t, `["v2"]`, fixtures["judge"][1])
	assert.Equal(t, `["base"]`, fixtures["judge"][2])

	// Underscore maps back to the colon in the model tag.
	require.Len(t, fixtures["qwen2.5-coder:7b"], 1)
}

func TestLoadFixtures_RejectsInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "judge.json"), []byte("{broken"), 0600))

	_, err := loadFixtures(dir)
	assert.Error(t, err)
}

func TestModelName(t *testing.T) {
	assert.Equal(t, "qwen2.5-coder:7b", modelName("qwen2.5-coder_7b"))
	assert.Equal(t, "judge", modelName("judge"))
}
