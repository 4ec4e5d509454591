// Package review defines the canonical data model for code review findings:
// pull request events, diff chunks, suggestions, and the severity and
// category taxonomies shared by every stage of the pipeline.
package review

import "fmt"

// Provider identifies the originating VCS platform.
type Provider string

const (
	ProviderGitHub    Provider = "github"
	ProviderGitLab    Provider = "gitlab"
	ProviderBitbucket Provider = "bitbucket"
)

// IsValid checks if a provider tag is known.
func (p Provider) IsValid() bool {
	switch p {
	case ProviderGitHub, ProviderGitLab, ProviderBitbucket:
		return true
	}
	return false
}

// Action is the normalized PR lifecycle action.
type Action string

const (
	ActionOpened      Action = "opened"
	ActionSynchronize Action = "synchronize"
	ActionReopened    Action = "reopened"
	ActionClosed      Action = "closed"
	ActionMerged      Action = "merged"
	ActionEdited      Action = "edited"
)

// ReviewableActions are the actions that trigger a review.
var ReviewableActions = map[Action]bool{
	ActionOpened:      true,
	ActionSynchronize: true,
	ActionReopened:    true,
}

// PREvent is the provider-neutral pull request event. It is created by
// webhook ingress and immutable afterwards.
type PREvent struct {
	Provider     Provider        `json:"provider"`
	RepoOwner    string          `json:"repo_owner"`
	RepoName     string          `json:"repo_name"`
	PRNumber     int             `json:"pr_number"`
	Action       Action          `json:"action"`
	SourceBranch string          `json:"source_branch"`
	TargetBranch string          `json:"target_branch"`
	HeadSHA      string          `json:"head_sha"`
	Title        string          `json:"title"`
	Body         string          `json:"body,omitempty"`
	Author       string          `json:"author"`
	URL          string          `json:"url,omitempty"`
	RawPayload   map[string]any  `json:"raw_payload,omitempty"`
}

// Validate checks the event's required fields.
func (e *PREvent) Validate() error {
	if !e.Provider.IsValid() {
		return fmt.Errorf("unknown provider: %s", e.Provider)
	}
	if e.RepoOwner == "" || e.RepoName == "" {
		return fmt.Errorf("repo owner and name are required")
	}
	if e.PRNumber <= 0 {
		return fmt.Errorf("pr_number must be positive, got %d", e.PRNumber)
	}
	return nil
}

// Repo returns the "owner/name" slug used for routing and budget lookups.
func (e *PREvent) Repo() string {
	return e.RepoOwner + "/" + e.RepoName
}

// ReviewID builds the stable identifier for one end-to-end review.
// It doubles as the checkpoint key, so a re-delivered event resumes the
// same review while a new head SHA starts a fresh one.
func (e *PREvent) ReviewID() string {
	return fmt.Sprintf("%s-%s-%s-%d-%s",
		e.Provider, e.RepoOwner, e.RepoName, e.PRNumber, e.HeadSHA)
}

// ChunkInfo is a contiguous hunk of one file's diff, the unit of analyzer
// input. Read-only downstream of the chunk-analyzer stage.
type ChunkInfo struct {
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Content   string `json:"content"`
	Language  string `json:"language"`
}

// Category classifies what kind of problem a suggestion reports.
type Category string

const (
	CategorySecurity Category = "security"
	CategoryLogic    Category = "logic"
	CategoryStyle    Category = "style"
	CategoryPattern  Category = "pattern"
	CategoryGeneral  Category = "general"
)

// Suggestion is a single review finding produced by an analyzer.
type Suggestion struct {
	FilePath   string   `json:"file_path"`
	LineNumber int      `json:"line_number"`
	Message    string   `json:"message"`
	Severity   Severity `json:"severity"`
	// Replacement is optional replacement text for the flagged line.
	Replacement string   `json:"replacement,omitempty"`
	Analyzer    string   `json:"analyzer"`
	Confidence  float64  `json:"confidence"`
	Category    Category `json:"category"`
}

// WithSeverity returns a copy of the suggestion with severity replaced.
func (s Suggestion) WithSeverity(sev Severity) Suggestion {
	s.Severity = sev
	return s
}

// Normalize clamps confidence into [0,1], lifts line numbers to at least 1,
// and defaults severity and category. Every analyzer output passes through
// here before entering the pipeline.
func (s Suggestion) Normalize() Suggestion {
	if s.Confidence < 0 {
		s.Confidence = 0
	}
	if s.Confidence > 1 {
		s.Confidence = 1
	}
	if s.LineNumber < 1 {
		s.LineNumber = 1
	}
	if !s.Severity.IsValid() {
		s.Severity = SeveritySuggestion
	}
	if s.Category == "" {
		s.Category = CategoryGeneral
	}
	return s
}

// ReviewComment is the externally publishable projection of a suggestion.
type ReviewComment struct {
	FilePath   string   `json:"file_path"`
	LineNumber int      `json:"line_number"`
	Message    string   `json:"message"`
	Severity   Severity `json:"severity"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// CommentFor projects a suggestion onto the provider comment model.
func CommentFor(s Suggestion) ReviewComment {
	return ReviewComment{
		FilePath:   s.FilePath,
		LineNumber: s.LineNumber,
		Message:    s.Message,
		Severity:   s.Severity,
		Suggestion: s.Replacement,
	}
}

// ReviewConfig is the effective configuration for one review.
type ReviewConfig struct {
	MaxSuggestions    int             `json:"max_suggestions"`
	SeverityThreshold Severity        `json:"severity_threshold"`
	EnableAgents      map[string]bool `json:"enable_agents"`
	CustomRules       string          `json:"custom_rules,omitempty"`
}

// DefaultReviewConfig returns the defaults installed by the ingest stage
// for any fields the caller left unset.
func DefaultReviewConfig() ReviewConfig {
	return ReviewConfig{
		MaxSuggestions:    20,
		SeverityThreshold: SeveritySuggestion,
		EnableAgents: map[string]bool{
			"security": true,
			"style":    true,
			"logic":    true,
			"pattern":  true,
		},
	}
}

// AgentEnabled reports whether the named analyzer participates in a review.
// Analyzers absent from the map default to enabled.
func (c ReviewConfig) AgentEnabled(name string) bool {
	if c.EnableAgents == nil {
		return true
	}
	enabled, ok := c.EnableAgents[name]
	if !ok {
		return true
	}
	return enabled
}
