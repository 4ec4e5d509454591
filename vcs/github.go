package vcs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/revuhq/revu/review"
)

// GitHubAdapter talks to the GitHub REST API v3.
type GitHubAdapter struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewGitHubAdapter creates an adapter. Empty baseURL uses api.github.com;
// set it for GitHub Enterprise.
func NewGitHubAdapter(baseURL, token string) *GitHubAdapter {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &GitHubAdapter{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: newHTTPClient(),
	}
}

func (g *GitHubAdapter) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	return req, nil
}

// FetchDiff returns the PR diff using GitHub's diff media type.
func (g *GitHubAdapter) FetchDiff(ctx context.Context, owner, repo string, prNumber int) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, prNumber)
	req, err := g.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github.v3.diff")

	body, err := doRequest(g.httpClient, req)
	if err != nil {
		return "", fmt.Errorf("fetch diff for %s/%s#%d: %w", owner, repo, prNumber, err)
	}
	return string(body), nil
}

// FetchAgentsFile returns AGENTS.md content at ref, or empty string when
// the repository has none.
func (g *GitHubAdapter) FetchAgentsFile(ctx context.Context, owner, repo, ref string) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, agentsFileName)
	if ref != "" {
		path += "?ref=" + ref
	}

	req, err := g.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	body, err := doRequest(g.httpClient, req)
	if errors.Is(err, errNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", agentsFileName, err)
	}

	var file struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := json.Unmarshal(body, &file); err != nil {
		return "", fmt.Errorf("parse contents response: %w", err)
	}
	if file.Encoding != "base64" {
		return file.Content, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", agentsFileName, err)
	}
	return string(decoded), nil
}

// githubReviewComment is one comment in a review submission.
type githubReviewComment struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Side string `json:"side"`
	Body string `json:"body"`
}

// PostReviewComments submits all comments as one PR review.
func (g *GitHubAdapter) PostReviewComments(ctx context.Context, owner, repo string, prNumber int, comments []review.ReviewComment) error {
	if len(comments) == 0 {
		return nil
	}

	apiComments := make([]githubReviewComment, 0, len(comments))
	for _, c := range comments {
		apiComments = append(apiComments, githubReviewComment{
			Path: c.FilePath,
			Line: c.LineNumber,
			Side: "RIGHT",
			Body: formatCommentBody(c),
		})
	}

	payload, err := json.Marshal(map[string]any{
		"event":    "COMMENT",
		"comments": apiComments,
	})
	if err != nil {
		return fmt.Errorf("marshal review: %w", err)
	}

	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews", owner, repo, prNumber)
	req, err := g.newRequest(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	if _, err := doRequest(g.httpClient, req); err != nil {
		return fmt.Errorf("post review to %s/%s#%d: %w", owner, repo, prNumber, err)
	}
	return nil
}

// formatCommentBody renders a comment with its severity marker and an
// optional suggestion block.
func formatCommentBody(c review.ReviewComment) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**[%s]** %s", strings.ToUpper(string(c.Severity)), c.Message)
	if c.Suggestion != "" {
		fmt.Fprintf(&sb, "\n\n```suggestion\n%s\n```", c.Suggestion)
	}
	return sb.String()
}
