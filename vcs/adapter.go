// Package vcs provides REST adapters for the supported source-control
// providers: fetching PR diffs, reading repository files, and publishing
// review comments.
package vcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/revuhq/revu/review"
)

// maxBodySize caps provider response bodies. Diffs larger than this are
// pathological and get truncated upstream by the optimizer anyway.
const maxBodySize = 50 * 1024 * 1024

// agentsFileName is the repository convention file holding review rules.
const agentsFileName = "AGENTS.md"

// ProviderAdapter is the surface the review pipeline needs from a
// source-control provider.
type ProviderAdapter interface {
	// FetchDiff returns the PR's unified diff.
	FetchDiff(ctx context.Context, owner, repo string, prNumber int) (string, error)

	// FetchAgentsFile returns the repo's AGENTS.md at ref, or empty
	// string when the file does not exist.
	FetchAgentsFile(ctx context.Context, owner, repo, ref string) (string, error)

	// PostReviewComments publishes review comments on a PR.
	PostReviewComments(ctx context.Context, owner, repo string, prNumber int, comments []review.ReviewComment) error
}

// Credentials holds per-provider API access configuration.
type Credentials struct {
	GitHubToken string `json:"github_token,omitempty" yaml:"github_token,omitempty"`
	GitHubURL   string `json:"github_url,omitempty" yaml:"github_url,omitempty"`

	GitLabToken string `json:"gitlab_token,omitempty" yaml:"gitlab_token,omitempty"`
	GitLabURL   string `json:"gitlab_url,omitempty" yaml:"gitlab_url,omitempty"`

	BitbucketUser     string `json:"bitbucket_user,omitempty" yaml:"bitbucket_user,omitempty"`
	BitbucketPassword string `json:"bitbucket_app_password,omitempty" yaml:"bitbucket_app_password,omitempty"`
	BitbucketURL      string `json:"bitbucket_url,omitempty" yaml:"bitbucket_url,omitempty"`
}

// ForProvider returns the adapter for a provider tag.
func ForProvider(p review.Provider, creds Credentials) (ProviderAdapter, error) {
	switch p {
	case review.ProviderGitHub:
		return NewGitHubAdapter(creds.GitHubURL, creds.GitHubToken), nil
	case review.ProviderGitLab:
		return NewGitLabAdapter(creds.GitLabURL, creds.GitLabToken), nil
	case review.ProviderBitbucket:
		return NewBitbucketAdapter(creds.BitbucketURL, creds.BitbucketUser, creds.BitbucketPassword), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", p)
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// doRequest executes a request and returns the body, treating non-2xx
// statuses as errors.
func doRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("provider API error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

var errNotFound = fmt.Errorf("not found")

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
