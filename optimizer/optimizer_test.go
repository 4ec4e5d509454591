package optimizer

import (
	"strings"
	"testing"

	"github.com/revuhq/revu/diff"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		f    diff.FileDiff
		want Priority
	}{
		{"dockerfile", diff.FileDiff{Path: "Dockerfile"}, PriorityCritical},
		{"env file", diff.FileDiff{Path: ".env.production"}, PriorityCritical},
		{"auth module", diff.FileDiff{Path: "src/auth_handler.py"}, PriorityCritical},
		{"config", diff.FileDiff{Path: "webpack.config.js"}, PriorityCritical},
		{"core module", diff.FileDiff{Path: "src/core/engine.py"}, PriorityHigh},
		{"services dir", diff.FileDiff{Path: "app/services/billing.go"}, PriorityHigh},
		{"app entrypoint", diff.FileDiff{Path: "app.py"}, PriorityHigh},
		{"test file", diff.FileDiff{Path: "pkg/store/store_test.go"}, PriorityMedium},
		{"spec file", diff.FileDiff{Path: "src/api.spec.ts"}, PriorityLow},
		{"readme", diff.FileDiff{Path: "README.md"}, PriorityLow},
		{"lockfile", diff.FileDiff{Path: "package-lock.json"}, PrioritySkip},
		{"minified", diff.FileDiff{Path: "assets/vendor.min.js"}, PrioritySkip},
		{"dist output", diff.FileDiff{Path: "dist/bundle.js"}, PrioritySkip},
		{"large deletion", diff.FileDiff{Path: "src/legacy.go", Deletions: 150}, PriorityHigh},
		{"new file", diff.FileDiff{Path: "src/new_module.py", ChangeType: diff.ChangeAdded, Additions: 80}, PriorityHigh},
		{"plain change", diff.FileDiff{Path: "src/utils.py", Additions: 10, Deletions: 5}, PriorityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Score(tt.f)
			if got != tt.want {
				t.Errorf("Score(%q) = %s, want %s", tt.f.Path, got, tt.want)
			}
		})
	}
}

func TestCriticalWinsTies(t *testing.T) {
	// A test for an auth module matches both LOW (test) and CRITICAL
	// (auth); the later rule wins.
	got, _ := Score(diff.FileDiff{Path: "tests/test_auth_flow.py"})
	if got != PriorityCritical {
		t.Errorf("expected critical to win the tie, got %s", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name               string
		adds, dels         int
		language           string
		want               int
	}{
		{"python", 50, 20, "python", 70*20 + 500},
		{"javascript discount", 10, 0, "javascript", 160 + 500},
		{"java premium", 10, 0, "java", 240 + 500},
		{"unknown language", 10, 0, "zig", 200 + 500},
		{"empty change floors at overhead", 0, 0, "go", 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateTokens(tt.adds, tt.dels, tt.language)
			if got != tt.want {
				t.Errorf("EstimateTokens() = %d, want %d", got, tt.want)
			}
			if got < promptOverheadTokens {
				t.Errorf("estimate %d below the fixed overhead", got)
			}
		})
	}
}

func TestSelectLargePR(t *testing.T) {
	files := []diff.FileDiff{
		{Path: "Dockerfile", Additions: 5, Deletions: 1},
		{Path: "src/core/engine.py", Additions: 50, Deletions: 20},
		{Path: "src/utils.py", Additions: 10, Deletions: 5},
		{Path: "README.md", Additions: 3},
		{Path: "package-lock.json", Additions: 500, Deletions: 200},
		{Path: "src/new_module.py", ChangeType: diff.ChangeAdded, Additions: 80},
	}

	sel := Select(DescribeAll(files), DefaultConfig())

	selected := make(map[string]bool)
	tokens := 0
	for _, f := range sel.Selected {
		selected[f.Path] = true
		tokens += f.EstimatedTokens
	}

	if !selected["Dockerfile"] || !selected["src/core/engine.py"] {
		t.Errorf("expected Dockerfile and engine.py selected, got %v", selected)
	}
	if selected["package-lock.json"] || selected["README.md"] {
		t.Error("lockfile and docs must be skipped")
	}
	if sel.Summary.SelectedTokens != tokens {
		t.Errorf("summary tokens %d != sum of selected %d", sel.Summary.SelectedTokens, tokens)
	}
	if sel.Summary.TotalFiles != len(files) {
		t.Errorf("total files = %d, want %d", sel.Summary.TotalFiles, len(files))
	}

	for _, f := range sel.Skipped {
		if !strings.HasPrefix(f.Reason, "skipped:") {
			t.Errorf("skipped file %s missing annotated reason: %q", f.Path, f.Reason)
		}
	}
}

func TestSelectRespectsBudgets(t *testing.T) {
	files := []FileInfo{
		{Path: "a.go", Language: "go", Priority: PriorityHigh, EstimatedTokens: 600},
		{Path: "b.go", Language: "go", Priority: PriorityHigh, EstimatedTokens: 700},
		{Path: "c.go", Language: "go", Priority: PriorityHigh, EstimatedTokens: 800},
	}

	cfg := DefaultConfig()
	cfg.MaxFilesToReview = 2
	sel := Select(files, cfg)
	if len(sel.Selected) != 2 {
		t.Errorf("file cap ignored: %d selected", len(sel.Selected))
	}

	cfg = DefaultConfig()
	cfg.MaxTokensPerReview = 1300
	sel = Select(files, cfg)
	if sel.Summary.SelectedTokens > cfg.MaxTokensPerReview {
		t.Errorf("token budget exceeded: %d", sel.Summary.SelectedTokens)
	}
}

func TestChunkContent(t *testing.T) {
	small := ChunkContent("one\ntwo\nthree", 5000)
	if len(small) != 1 {
		t.Fatalf("expected single chunk, got %d", len(small))
	}
	if !small[0].IsFullFile {
		t.Error("single chunk must be marked full file")
	}
	if small[0].StartLine != 1 || small[0].EndLine != 3 {
		t.Errorf("chunk lines = %d..%d, want 1..3", small[0].StartLine, small[0].EndLine)
	}

	long := strings.Repeat(strings.Repeat("x", 99)+"\n", 100)
	chunks := ChunkContent(strings.TrimSuffix(long, "\n"), 1000)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c.Content) > 1000 {
			t.Errorf("chunk %d length %d exceeds limit", i, len(c.Content))
		}
		if c.IsFullFile {
			t.Errorf("chunk %d of a split file marked full", i)
		}
		if i > 0 && c.StartLine != chunks[i-1].EndLine+1 {
			t.Errorf("chunk %d starts at %d, previous ended at %d", i, c.StartLine, chunks[i-1].EndLine)
		}
	}

	if got := ChunkContent("", 1000); got != nil {
		t.Errorf("empty content should yield no chunks, got %d", len(got))
	}
}
