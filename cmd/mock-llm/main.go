// Package main implements a mock model server for exercising the review
// pipeline offline. It serves OpenAI-compatible /v1/chat/completions
// responses from JSON fixture files, routed by the "model" field of the
// request, so analyzer and judge behavior can be tested without a real
// model behind them.
//
// Usage:
//
//	mock-llm -fixtures ./fixtures -port 11434
//
// A fixture file is named after its model: "qwen2.5-coder:7b" reads
// "qwen2.5-coder_7b.json" (colons become underscores). Numbered files
// ("judge.1.json", "judge.2.json") are served in order before the base
// file, which repeats; that covers validate-then-rank judge sequences.
// Models with no fixture get an empty suggestion list, so a pipeline
// pointed here runs end to end and simply finds nothing.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// emptyFindings is what unfixtured models answer: a review that found
// nothing. Analyzers and the judge both parse it cleanly.
const emptyFindings = "[]"

type server struct {
	mu       sync.Mutex
	fixtures map[string][]string
	calls    map[string]int
	total    int
}

func newServer(fixtures map[string][]string) *server {
	return &server{
		fixtures: fixtures,
		calls:    make(map[string]int),
	}
}

// next returns the fixture for this model's next call and bumps the
// per-model counter.
func (s *server) next(model string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	idx := s.calls[model]
	s.calls[model] = idx + 1

	seq, ok := s.fixtures[model]
	if !ok || len(seq) == 0 {
		return emptyFindings
	}
	if idx >= len(seq) {
		idx = len(seq) - 1
	}
	return seq[idx]
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	content := s.next(req.Model)
	log.Printf("model=%s messages=%d response_bytes=%d", req.Model, len(req.Messages), len(content))

	resp := chatResponse{
		ID:      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{
			{
				Index:        0,
				Message:      chatMessage{Role: "assistant", Content: content},
				FinishReason: "stop",
			},
		},
		Usage: chatUsage{
			PromptTokens:     len(content) / 4, // rough estimate
			CompletionTokens: len(content) / 4,
			TotalTokens:      len(content) / 2,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *server) handleModels(w http.ResponseWriter, _ *http.Request) {
	type modelEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}

	s.mu.Lock()
	models := make([]modelEntry, 0, len(s.fixtures))
	for name := range s.fixtures {
		models = append(models, modelEntry{ID: name, Object: "model", OwnedBy: "mock-llm"})
	}
	s.mu.Unlock()

	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": models})
}

// handleStats returns call counts for test assertions.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	byModel := make(map[string]int, len(s.calls))
	for model, n := range s.calls {
		byModel[model] = n
	}
	total := s.total
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"total_calls":    total,
		"calls_by_model": byModel,
	})
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// numberedRe matches "judge.1.json" style sequenced fixtures.
var numberedRe = regexp.MustCompile(`^(.+)\.(\d+)\.json$`)

// modelName maps a fixture file base name back to the model it serves.
// Colons are not portable in file names, so "qwen2.5-coder:7b" is stored
// as "qwen2.5-coder_7b.json".
func modelName(base string) string {
	if i := strings.LastIndex(base, "_"); i >= 0 {
		return base[:i] + ":" + base[i+1:]
	}
	return base
}

// loadFixtures reads JSON files from dir into model response sequences:
// numbered files in order, then the base file as the repeating tail.
func loadFixtures(dir string) (map[string][]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	base := make(map[string]string)
	numbered := make(map[string]map[int]string)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		data, err := os.ReadFile(dir + "/" + name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("invalid JSON in %s", name)
		}

		if m := numberedRe.FindStringSubmatch(name); m != nil {
			model := modelName(m[1])
			idx, _ := strconv.Atoi(m[2])
			if numbered[model] == nil {
				numbered[model] = make(map[int]string)
			}
			numbered[model][idx] = string(data)
			continue
		}

		base[modelName(strings.TrimSuffix(name, ".json"))] = string(data)
	}

	fixtures := make(map[string][]string)
	for model, byIdx := range numbered {
		indices := make([]int, 0, len(byIdx))
		for idx := range byIdx {
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		for _, idx := range indices {
			fixtures[model] = append(fixtures[model], byIdx[idx])
		}
	}
	for model, content := range base {
		fixtures[model] = append(fixtures[model], content)
	}

	return fixtures, nil
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory of fixture response files")
	port := flag.Int("port", 11434, "port to listen on")
	flag.Parse()

	fixtures := make(map[string][]string)
	if *fixtureDir != "" {
		var err error
		fixtures, err = loadFixtures(*fixtureDir)
		if err != nil {
			log.Fatalf("Failed to load fixtures from %s: %v", *fixtureDir, err)
		}
	}
	log.Printf("Loaded %d model fixture(s)", len(fixtures))

	s := newServer(fixtures)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/v1/models", s.handleModels)
	mux.HandleFunc("/stats", s.handleStats)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Mock model server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
