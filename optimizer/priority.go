// Package optimizer decides which files of a large pull request are worth
// reviewing: it scores files by priority, estimates their token cost, and
// selects a subset under the review's token and file budgets.
package optimizer

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/revuhq/revu/diff"
)

// Priority ranks a file's review value. Higher is more important.
type Priority int

const (
	PrioritySkip     Priority = 1
	PriorityLow      Priority = 2
	PriorityMedium   Priority = 3
	PriorityHigh     Priority = 4
	PriorityCritical Priority = 5
)

// String returns the priority's display name.
func (p Priority) String() string {
	switch p {
	case PrioritySkip:
		return "skip"
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	}
	return "unknown"
}

// FileInfo is the optimizer's selection record for one changed file.
type FileInfo struct {
	Path            string          `json:"path"`
	Language        string          `json:"language"`
	Additions       int             `json:"additions"`
	Deletions       int             `json:"deletions"`
	ChangeType      diff.ChangeType `json:"change_type"`
	Priority        Priority        `json:"priority"`
	Reason          string          `json:"reason"`
	EstimatedTokens int             `json:"estimated_tokens"`
}

// priorityRule matches files by glob patterns, directory segments, or
// name substrings.
type priorityRule struct {
	priority   Priority
	reason     string
	globs      []string
	dirs       []string
	substrings []string
}

// priorityRules are evaluated in order SKIP, LOW, HIGH, CRITICAL; the last
// matching rule wins, so CRITICAL overrides everything on ties.
var priorityRules = []priorityRule{
	{
		priority: PrioritySkip,
		reason:   "generated or vendored artifact",
		globs: []string{
			"**/*.min.js", "**/*.min.css", "**/*.map", "**/*.pyc",
			"**/package-lock.json", "**/yarn.lock", "**/pnpm-lock.yaml",
			"**/gemfile.lock", "**/poetry.lock", "**/cargo.lock",
		},
		dirs: []string{"dist", "build", "node_modules", "__pycache__", ".venv"},
	},
	{
		priority: PriorityLow,
		reason:   "test or documentation file",
		globs: []string{
			"**/*.test.*", "**/*.spec.*", "**/test_*", "**/*.md",
			"**/readme*", "**/changelog*", "**/*.rst",
		},
		dirs: []string{"tests", "__tests__"},
	},
	{
		priority: PriorityHigh,
		reason:   "core business module",
		globs:    []string{"**/main.py", "**/app.py"},
		dirs: []string{
			"models", "services", "controllers", "handlers",
			"core", "api", "routes",
		},
	},
	{
		priority: PriorityCritical,
		reason:   "configuration or security-sensitive file",
		globs: []string{
			"**/*.config.js", "**/*.config.ts", "**/*.config.json",
			"**/*.config.yaml", "**/*.config.yml",
			"**/dockerfile", "**/dockerfile.*", "**/docker-compose*.yml",
			"**/docker-compose*.yaml", "**/.env", "**/.env.*",
		},
		substrings: []string{"secret", "auth", "security", "password", "encrypt"},
	},
}

// Score assigns a priority and reason to a changed file.
func Score(f diff.FileDiff) (Priority, string) {
	matched := Priority(0)
	reason := ""

	for _, rule := range priorityRules {
		if rule.matches(f.Path) {
			matched = rule.priority
			reason = rule.reason
		}
	}
	if matched != 0 {
		return matched, reason
	}

	switch {
	case f.Deletions > 100:
		return PriorityHigh, "large deletion"
	case f.ChangeType == diff.ChangeAdded:
		return PriorityHigh, "new file"
	default:
		return PriorityMedium, "modified file"
	}
}

func (r priorityRule) matches(filePath string) bool {
	normalized := strings.ToLower(filePath)

	for _, glob := range r.globs {
		if ok, _ := doublestar.Match(glob, normalized); ok {
			return true
		}
		// Bare filenames also match at the repository root.
		if ok, _ := doublestar.Match(strings.TrimPrefix(glob, "**/"), normalized); ok {
			return true
		}
	}

	for _, dir := range r.dirs {
		for _, segment := range strings.Split(path.Dir(normalized), "/") {
			if segment == dir {
				return true
			}
		}
	}

	base := path.Base(normalized)
	for _, sub := range r.substrings {
		if strings.Contains(base, sub) {
			return true
		}
	}
	return false
}

// Describe builds the FileInfo record for one file diff.
func Describe(f diff.FileDiff) FileInfo {
	priority, reason := Score(f)
	language := diff.DetectLanguage(f.Path, f.Content)
	return FileInfo{
		Path:            f.Path,
		Language:        language,
		Additions:       f.Additions,
		Deletions:       f.Deletions,
		ChangeType:      f.ChangeType,
		Priority:        priority,
		Reason:          reason,
		EstimatedTokens: EstimateTokens(f.Additions, f.Deletions, language),
	}
}

// DescribeAll scores every file in a parsed diff.
func DescribeAll(files []diff.FileDiff) []FileInfo {
	infos := make([]FileInfo, len(files))
	for i, f := range files {
		infos[i] = Describe(f)
	}
	return infos
}

// annotateSkip rewrites a file's reason when selection passes it over.
func annotateSkip(f *FileInfo, why string) {
	f.Reason = fmt.Sprintf("skipped: %s", why)
}
