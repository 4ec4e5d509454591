// Package diff parses unified diffs into per-file change records and the
// analyzer chunks consumed by the review pipeline.
package diff

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/revuhq/revu/review"
)

// ChangeType describes what happened to a file in a diff.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
	ChangeRenamed  ChangeType = "renamed"
)

// FileDiff is one file's portion of a unified diff.
type FileDiff struct {
	// Path is the new-side path, taken from the b/ operand of the
	// "diff --git" line.
	Path string

	// OldPath is the a/ operand; differs from Path on renames.
	OldPath string

	ChangeType ChangeType
	Additions  int
	Deletions  int

	// StartLine is the new-side starting line of the first hunk (1-based).
	StartLine int

	// Content is the raw hunk text including +/- prefixes and @@ headers.
	Content string

	// Lines counts accumulated hunk body lines.
	Lines int
}

// Parse splits a unified diff into per-file records. An empty diff yields
// an empty slice, not an error; callers decide whether that is terminal.
func Parse(raw string) ([]FileDiff, error) {
	var files []FileDiff
	var current *FileDiff
	var content strings.Builder

	flush := func() {
		if current == nil {
			return
		}
		current.Content = content.String()
		files = append(files, *current)
		current = nil
		content.Reset()
	}

	for _, line := range strings.Split(raw, "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			flush()
			oldPath, newPath, err := parseGitHeader(line)
			if err != nil {
				return nil, err
			}
			current = &FileDiff{
				Path:       newPath,
				OldPath:    oldPath,
				ChangeType: ChangeModified,
			}

		case current == nil:
			// Preamble before the first file header is ignored.

		case strings.HasPrefix(line, "new file mode"):
			current.ChangeType = ChangeAdded

		case strings.HasPrefix(line, "deleted file mode"):
			current.ChangeType = ChangeDeleted

		case strings.HasPrefix(line, "rename from"):
			current.ChangeType = ChangeRenamed

		case strings.HasPrefix(line, "rename to"),
			strings.HasPrefix(line, "index "),
			strings.HasPrefix(line, "similarity index"),
			strings.HasPrefix(line, "--- "),
			strings.HasPrefix(line, "+++ "):
			// Metadata lines carry no hunk content.

		case strings.HasPrefix(line, "@@"):
			start, err := parseHunkHeader(line)
			if err != nil {
				return nil, err
			}
			if current.StartLine == 0 {
				current.StartLine = start
			}
			content.WriteString(line)
			content.WriteString("\n")

		case strings.HasPrefix(line, "+"):
			current.Additions++
			current.Lines++
			content.WriteString(line)
			content.WriteString("\n")

		case strings.HasPrefix(line, "-"):
			current.Deletions++
			current.Lines++
			content.WriteString(line)
			content.WriteString("\n")

		case strings.HasPrefix(line, " ") || line == "":
			current.Lines++
			content.WriteString(line)
			content.WriteString("\n")

		case strings.HasPrefix(line, "\\"):
			// "\ No newline at end of file"
		}
	}
	flush()

	return files, nil
}

// Chunks converts parsed file diffs into analyzer chunks, one per file.
// Files with no hunk content (pure renames, binary changes) are skipped.
func Chunks(files []FileDiff) []review.ChunkInfo {
	chunks := make([]review.ChunkInfo, 0, len(files))
	for _, f := range files {
		if strings.TrimSpace(f.Content) == "" {
			continue
		}
		start := f.StartLine
		if start < 1 {
			start = 1
		}
		end := start + f.Lines - 1
		if end < start {
			end = start
		}
		chunks = append(chunks, review.ChunkInfo{
			FilePath:  f.Path,
			StartLine: start,
			EndLine:   end,
			Content:   f.Content,
			Language:  DetectLanguage(f.Path, f.Content),
		})
	}
	return chunks
}

// NewFileLines maps each line of hunk text to a new-file line number.
// Hunk headers reset the counter to their new-side start, deleted lines
// hold it, and added or context lines each take the next number.
// firstStart seeds the counter for text that begins mid-hunk.
func NewFileLines(content string, firstStart int) []int {
	if firstStart < 1 {
		firstStart = 1
	}
	lines := strings.Split(content, "\n")
	mapped := make([]int, len(lines))
	next := firstStart
	for i, line := range lines {
		if strings.HasPrefix(line, "@@") {
			if start, err := parseHunkHeader(line); err == nil {
				next = start
			}
			mapped[i] = next
			continue
		}
		mapped[i] = next
		if !strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "\\") {
			next++
		}
	}
	return mapped
}

// parseGitHeader extracts the a/ and b/ operands from a "diff --git" line.
func parseGitHeader(line string) (oldPath, newPath string, err error) {
	rest := strings.TrimPrefix(line, "diff --git ")
	parts := strings.Fields(rest)
	if len(parts) < 2 {
		return "", "", fmt.Errorf("malformed diff header: %q", line)
	}
	oldPath = strings.TrimPrefix(parts[0], "a/")
	newPath = strings.TrimPrefix(parts[len(parts)-1], "b/")
	return oldPath, newPath, nil
}

// parseHunkHeader extracts the new-side starting line from a hunk header
// of the form "@@ -old_start,old_len +new_start,new_len @@".
func parseHunkHeader(line string) (int, error) {
	fields := strings.Fields(line)
	for _, f := range fields {
		if !strings.HasPrefix(f, "+") {
			continue
		}
		numPart := strings.TrimPrefix(f, "+")
		if idx := strings.Index(numPart, ","); idx >= 0 {
			numPart = numPart[:idx]
		}
		start, err := strconv.Atoi(numPart)
		if err != nil {
			return 0, fmt.Errorf("malformed hunk header: %q", line)
		}
		return start, nil
	}
	return 0, fmt.Errorf("hunk header missing new-side operand: %q", line)
}
