package optimizer

import "strings"

// Chunk is a size-bounded slice of one file's content.
type Chunk struct {
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	Content    string `json:"content"`
	IsFullFile bool   `json:"is_full_file"`
}

// ChunkContent splits file content at line boundaries into chunks whose
// cumulative character length stays within chunkSize. A file that fits in
// one chunk is marked as full.
func ChunkContent(content string, chunkSize int) []Chunk {
	if chunkSize <= 0 {
		chunkSize = DefaultConfig().ChunkSize
	}
	if content == "" {
		return nil
	}

	lines := strings.Split(content, "\n")

	var chunks []Chunk
	var buf strings.Builder
	startLine := 1

	flush := func(endLine int) {
		if buf.Len() == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			StartLine: startLine,
			EndLine:   endLine,
			Content:   buf.String(),
		})
		buf.Reset()
		startLine = endLine + 1
	}

	for i, line := range lines {
		lineLen := len(line) + 1 // newline
		if buf.Len() > 0 && buf.Len()+lineLen > chunkSize {
			flush(i)
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(line)
	}
	flush(len(lines))

	if len(chunks) == 1 {
		chunks[0].IsFullFile = true
	}
	return chunks
}
