package llm

import (
	"encoding/json"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "plain object",
			content: `{"valid": true}`,
			want:    `{"valid": true}`,
		},
		{
			name:    "markdown fence",
			content: "Here is the result:\n```json\n{\"valid\": true}\n```\nHope that helps.",
			want:    `{"valid": true}`,
		},
		{
			name:    "fence without language",
			content: "```\n{\"valid\": false}\n```",
			want:    `{"valid": false}`,
		},
		{
			name:    "surrounding prose",
			content: `The answer is {"count": 3} as requested.`,
			want:    `{"count": 3}`,
		},
		{
			name:    "trailing comma removed",
			content: `{"a": 1, "b": 2,}`,
			want:    `{"a": 1, "b": 2}`,
		},
		{
			name:    "line comment stripped",
			content: "{\n  \"a\": 1 // the count\n}",
			want:    "{\n  \"a\": 1\n}",
		},
		{
			name:    "url in string survives",
			content: `{"link": "https://example.com/path"}`,
			want:    `{"link": "https://example.com/path"}`,
		},
		{
			name:    "no json",
			content: "I could not produce output.",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSON(tt.content)
			if got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "plain array",
			content: `[1, 2, 3]`,
			want:    `[1, 2, 3]`,
		},
		{
			name:    "fenced array",
			content: "```json\n[0, 2]\n```",
			want:    `[0, 2]`,
		},
		{
			name:    "array with prose",
			content: `The top indices are [0, 3, 5] in ranked order.`,
			want:    `[0, 3, 5]`,
		},
		{
			name:    "no array",
			content: `{"not": "an array"}`,
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSONArray(tt.content)
			if got != tt.want {
				t.Errorf("ExtractJSONArray() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseLooseJSON(t *testing.T) {
	t.Run("direct object", func(t *testing.T) {
		var target map[string]any
		if err := ParseLooseJSON(`{"valid": true}`, &target); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if target["valid"] != true {
			t.Errorf("valid = %v, want true", target["valid"])
		}
	})

	t.Run("prefers array when target is slice", func(t *testing.T) {
		var target []int
		content := "Ranked: [2, 0, 1]"
		if err := ParseLooseJSON(content, &target); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(target) != 3 || target[0] != 2 {
			t.Errorf("target = %v, want [2 0 1]", target)
		}
	})

	t.Run("fenced with comments and trailing comma", func(t *testing.T) {
		content := "```json\n{\n  \"indices\": [1, 2,], // picked\n}\n```"
		var target struct {
			Indices []int `json:"indices"`
		}
		if err := ParseLooseJSON(content, &target); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(target.Indices) != 2 {
			t.Errorf("indices = %v, want two entries", target.Indices)
		}
	})

	t.Run("unparseable", func(t *testing.T) {
		var target map[string]any
		err := ParseLooseJSON("nothing structured here", &target)
		if err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestParseLooseJSONRoundTrip(t *testing.T) {
	// Suggestions as an analyzer would emit them, wrapped in model prose.
	type suggestion struct {
		FilePath   string  `json:"file_path"`
		LineNumber int     `json:"line_number"`
		Message    string  `json:"message"`
		Confidence float64 `json:"confidence"`
	}

	original := []suggestion{
		{FilePath: "a.py", LineNumber: 10, Message: "use of eval", Confidence: 0.9},
	}
	raw, err := json.Marshal(original)
	if err != nil {
		t.Fatal(err)
	}

	content := "Here are my findings:\n```json\n" + string(raw) + "\n```"
	var decoded []suggestion
	if err := ParseLooseJSON(content, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Message != "use of eval" {
		t.Errorf("decoded = %+v", decoded)
	}
}
