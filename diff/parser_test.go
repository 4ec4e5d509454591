package diff

import (
	"strings"
	"testing"
)

const sampleDiff = `diff --git a/src/app.py b/src/app.py
index 83db48f..bf269f4 100644
--- a/src/app.py
+++ b/src/app.py
@@ -10,4 +10,5 @@ def handler():
 context line
-removed = 1
+added = 2
+eval(user_input)
 trailing context
diff --git a/README.md b/README.md
new file mode 100644
index 0000000..e69de29
--- /dev/null
+++ b/README.md
@@ -0,0 +1,2 @@
+# Title
+Docs line
`

func TestParse(t *testing.T) {
	files, err := Parse(sampleDiff)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}

	app := files[0]
	if app.Path != "src/app.py" {
		t.Errorf("path = %q, want src/app.py", app.Path)
	}
	if app.ChangeType != ChangeModified {
		t.Errorf("change type = %s, want modified", app.ChangeType)
	}
	if app.Additions != 2 || app.Deletions != 1 {
		t.Errorf("counts = +%d/-%d, want +2/-1", app.Additions, app.Deletions)
	}
	if app.StartLine != 10 {
		t.Errorf("start line = %d, want 10", app.StartLine)
	}
	if !strings.Contains(app.Content, "+eval(user_input)") {
		t.Error("hunk content missing added line")
	}

	readme := files[1]
	if readme.ChangeType != ChangeAdded {
		t.Errorf("change type = %s, want added", readme.ChangeType)
	}
	if readme.StartLine != 1 {
		t.Errorf("start line = %d, want 1", readme.StartLine)
	}
}

func TestParseRename(t *testing.T) {
	raw := `diff --git a/old/name.go b/new/name.go
similarity index 100%
rename from old/name.go
rename to new/name.go
`
	files, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	if files[0].ChangeType != ChangeRenamed {
		t.Errorf("change type = %s, want renamed", files[0].ChangeType)
	}
	if files[0].Path != "new/name.go" || files[0].OldPath != "old/name.go" {
		t.Errorf("paths = %q -> %q", files[0].OldPath, files[0].Path)
	}
}

func TestParseEmpty(t *testing.T) {
	files, err := Parse("")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected no files for empty diff, got %d", len(files))
	}
}

func TestParseMalformedHunk(t *testing.T) {
	raw := "diff --git a/x.go b/x.go\n@@ garbage @@\n"
	if _, err := Parse(raw); err == nil {
		t.Error("expected error for malformed hunk header")
	}
}

func TestChunks(t *testing.T) {
	files, err := Parse(sampleDiff)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	chunks := Chunks(files)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}

	app := chunks[0]
	if app.Language != "python" {
		t.Errorf("language = %q, want python", app.Language)
	}
	if app.StartLine != 10 {
		t.Errorf("start line = %d, want 10", app.StartLine)
	}
	if app.EndLine < app.StartLine {
		t.Errorf("end line %d below start line %d", app.EndLine, app.StartLine)
	}

	// Pure renames produce no chunk.
	renamed := []FileDiff{{Path: "new.go", OldPath: "old.go", ChangeType: ChangeRenamed}}
	if got := Chunks(renamed); len(got) != 0 {
		t.Errorf("rename without hunks should yield no chunks, got %d", len(got))
	}
}

func TestNewFileLines(t *testing.T) {
	content := strings.Join([]string{
		"@@ -10,4 +10,5 @@ def handler():",
		" context line",
		"-removed = 1",
		"+added = 2",
		"+eval(user_input)",
		" trailing context",
		"@@ -30,2 +31,3 @@",
		" keep",
		"+new tail",
	}, "\n")

	want := []int{10, 10, 11, 11, 12, 13, 31, 31, 32}
	got := NewFileLines(content, 1)
	if len(got) != len(want) {
		t.Fatalf("mapped %d lines, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d mapped to %d, want %d", i, got[i], want[i])
		}
	}
}

func TestNewFileLinesMidHunk(t *testing.T) {
	// Text with no header of its own picks up from the seed.
	content := " context\n+added\n-gone\n cont"
	want := []int{20, 21, 22, 22}
	got := NewFileLines(content, 20)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d mapped to %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"src/app.py", "python"},
		{"web/index.ts", "typescript"},
		{"main.go", "go"},
		{"lib/native.cpp", "cpp"},
		{"Service.cs", "csharp"},
		{"mystery.zzz", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := DetectLanguage(tt.path, ""); got != tt.want {
				t.Errorf("DetectLanguage(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
