package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/revuhq/revu/review"
)

// Checkpoint is the serialized snapshot written after every stage
// transition. Values in channel_values carry per-value type tags so
// entity types round-trip exactly; unknown tags decode to their raw
// payload instead of failing the load.
type Checkpoint struct {
	V               int                       `json:"v"`
	TS              string                    `json:"ts"`
	ID              string                    `json:"id"`
	ChannelValues   map[string]any            `json:"channel_values"`
	ChannelVersions map[string]int            `json:"channel_versions"`
	VersionsSeen    map[string]map[string]int `json:"versions_seen"`
	PendingSends    []any                     `json:"pending_sends"`
	Metadata        map[string]any            `json:"metadata"`
	UpdatedAt       string                    `json:"updated_at"`
}

// checkpointVersion is bumped when the channel layout changes.
const checkpointVersion = 1

// Type tags used in channel_values.
const (
	tagEntity   = "pydantic"
	tagDatetime = "datetime"
)

// tagValue wraps a typed entity for structural serialization.
func tagValue(class string, v any) map[string]any {
	data, err := toPlain(v)
	if err != nil {
		// Entities are plain JSON-serializable structs; this only
		// trips on a programming error.
		panic(fmt.Sprintf("tag %s: %v", class, err))
	}
	return map[string]any{
		"_type":  tagEntity,
		"_class": class,
		"_data":  data,
	}
}

// tagTime wraps a timestamp as an ISO-8601 string.
func tagTime(t time.Time) map[string]any {
	return map[string]any{
		"_type": tagDatetime,
		"_data": t.UTC().Format(time.RFC3339Nano),
	}
}

// toPlain converts a struct to its generic JSON representation.
func toPlain(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, err
	}
	return plain, nil
}

// untag resolves a tagged value. Record tags decode through JSON into
// target; datetime tags parse into *time.Time targets. Unknown tags
// decode their raw _data payload instead of failing.
func untag(v any, target any) error {
	m, isMap := v.(map[string]any)
	if !isMap {
		return decodePlain(v, target)
	}

	switch m["_type"] {
	case tagEntity:
		return decodePlain(m["_data"], target)
	case tagDatetime:
		s, _ := m["_data"].(string)
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("parse datetime %q: %w", s, err)
		}
		if tp, isTime := target.(*time.Time); isTime {
			*tp = t
			return nil
		}
		return fmt.Errorf("datetime tag into %T", target)
	default:
		if _, tagged := m["_type"]; tagged {
			// Unknown tag: hand back the raw payload.
			return decodePlain(m["_data"], target)
		}
		return decodePlain(v, target)
	}
}

func decodePlain(v any, target any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

// encodeState serializes a ReviewState into a checkpoint.
func encodeState(s *ReviewState) *Checkpoint {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	channels := map[string]any{
		"event":               tagValue("PREvent", s.Event),
		"config":              tagValue("ReviewConfig", s.Config),
		"diff":                s.Diff,
		"agents_md":           s.AgentsMD,
		"chunks":              tagSlice("ChunkInfo", s.Chunks),
		"current_chunk_index": s.CurrentChunkIndex,
		"suggestions":         tagSlice("Suggestion", s.Suggestions),
		"agent_outputs":       tagOutputs(s.AgentOutputs),
		"validated":           tagSlice("Suggestion", s.Validated),
		"rejected":            tagSlice("Suggestion", s.Rejected),
		"comments":            tagSlice("ReviewComment", s.Comments),
		"summary":             s.Summary,
		"passed":              s.Passed,
		"error":               s.Error,
		"should_stop":         s.ShouldStop,
	}

	meta := map[string]any{
		"review_id":     s.Metadata.ReviewID,
		"started_at":    tagTime(s.Metadata.StartedAt),
		"current_stage": string(s.Metadata.CurrentStage),
		"error_count":   s.Metadata.ErrorCount,
	}
	if s.Metadata.CompletedAt != nil {
		meta["completed_at"] = tagTime(*s.Metadata.CompletedAt)
	}
	if len(s.Metadata.ChunkResults) > 0 {
		plain, _ := toPlain(s.Metadata.ChunkResults)
		meta["chunk_results"] = plain
	}

	return &Checkpoint{
		V:               checkpointVersion,
		TS:              now,
		ID:              s.Metadata.ReviewID,
		ChannelValues:   channels,
		ChannelVersions: map[string]int{"state": 1},
		VersionsSeen:    map[string]map[string]int{},
		PendingSends:    []any{},
		Metadata:        meta,
		UpdatedAt:       now,
	}
}

func tagSlice[T any](class string, items []T) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, tagValue(class, item))
	}
	return out
}

func tagOutputs(outputs map[string][]review.Suggestion) map[string]any {
	out := make(map[string]any, len(outputs))
	for name, items := range outputs {
		out[name] = tagSlice("Suggestion", items)
	}
	return out
}

// decodeState reconstructs a ReviewState from a checkpoint.
func decodeState(cp *Checkpoint) (*ReviewState, error) {
	s := &ReviewState{}
	cv := cp.ChannelValues

	if err := untag(cv["event"], &s.Event); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if err := untag(cv["config"], &s.Config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	s.Diff, _ = cv["diff"].(string)
	s.AgentsMD, _ = cv["agents_md"].(string)
	s.Summary, _ = cv["summary"].(string)
	s.Error, _ = cv["error"].(string)
	s.Passed, _ = cv["passed"].(bool)
	s.ShouldStop, _ = cv["should_stop"].(bool)
	s.CurrentChunkIndex = intFrom(cv["current_chunk_index"])

	if err := untagSlice(cv["chunks"], &s.Chunks); err != nil {
		return nil, fmt.Errorf("decode chunks: %w", err)
	}
	if err := untagSlice(cv["suggestions"], &s.Suggestions); err != nil {
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}
	if err := untagSlice(cv["validated"], &s.Validated); err != nil {
		return nil, fmt.Errorf("decode validated: %w", err)
	}
	if err := untagSlice(cv["rejected"], &s.Rejected); err != nil {
		return nil, fmt.Errorf("decode rejected: %w", err)
	}
	if err := untagSlice(cv["comments"], &s.Comments); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}

	if rawOutputs, ok := cv["agent_outputs"].(map[string]any); ok {
		s.AgentOutputs = make(map[string][]review.Suggestion, len(rawOutputs))
		for name, raw := range rawOutputs {
			var items []review.Suggestion
			if err := untagSlice(raw, &items); err != nil {
				return nil, fmt.Errorf("decode agent output %s: %w", name, err)
			}
			s.AgentOutputs[name] = items
		}
	}

	meta := cp.Metadata
	s.Metadata.ReviewID, _ = meta["review_id"].(string)
	if stage, ok := meta["current_stage"].(string); ok {
		s.Metadata.CurrentStage = Stage(stage)
	}
	s.Metadata.ErrorCount = intFrom(meta["error_count"])
	if raw, ok := meta["started_at"]; ok {
		if err := untag(raw, &s.Metadata.StartedAt); err != nil {
			return nil, fmt.Errorf("decode started_at: %w", err)
		}
	}
	if raw, ok := meta["completed_at"]; ok {
		var t time.Time
		if err := untag(raw, &t); err != nil {
			return nil, fmt.Errorf("decode completed_at: %w", err)
		}
		s.Metadata.CompletedAt = &t
	}
	if raw, ok := meta["chunk_results"]; ok {
		if err := decodePlain(raw, &s.Metadata.ChunkResults); err != nil {
			return nil, fmt.Errorf("decode chunk_results: %w", err)
		}
	}
	if s.Metadata.ChunkResults == nil {
		s.Metadata.ChunkResults = make(map[int]ChunkResult)
	}

	return s, nil
}

func untagSlice[T any](v any, target *[]T) error {
	if v == nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return fmt.Errorf("expected list, got %T", v)
	}
	if len(items) == 0 {
		return nil
	}
	out := make([]T, 0, len(items))
	for i, item := range items {
		var decoded T
		if err := untag(item, &decoded); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, decoded)
	}
	*target = out
	return nil
}

func intFrom(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}
