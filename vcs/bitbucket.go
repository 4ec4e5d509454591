package vcs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/revuhq/revu/review"
)

// BitbucketAdapter talks to the Bitbucket Cloud REST API 2.0.
type BitbucketAdapter struct {
	baseURL    string
	user       string
	password   string
	httpClient *http.Client
}

// NewBitbucketAdapter creates an adapter authenticated with an app
// password. Empty baseURL uses api.bitbucket.org.
func NewBitbucketAdapter(baseURL, user, password string) *BitbucketAdapter {
	if baseURL == "" {
		baseURL = "https://api.bitbucket.org/2.0"
	}
	return &BitbucketAdapter{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		user:       user,
		password:   password,
		httpClient: newHTTPClient(),
	}
}

func (b *BitbucketAdapter) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if b.user != "" {
		req.SetBasicAuth(b.user, b.password)
	}
	return req, nil
}

// FetchDiff returns the PR's raw unified diff.
func (b *BitbucketAdapter) FetchDiff(ctx context.Context, owner, repo string, prNumber int) (string, error) {
	path := fmt.Sprintf("/repositories/%s/%s/pullrequests/%d/diff", owner, repo, prNumber)
	req, err := b.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}

	body, err := doRequest(b.httpClient, req)
	if err != nil {
		return "", fmt.Errorf("fetch diff for %s/%s#%d: %w", owner, repo, prNumber, err)
	}
	return string(body), nil
}

// FetchAgentsFile returns AGENTS.md at ref, or empty string when absent.
func (b *BitbucketAdapter) FetchAgentsFile(ctx context.Context, owner, repo, ref string) (string, error) {
	if ref == "" {
		ref = "HEAD"
	}
	path := fmt.Sprintf("/repositories/%s/%s/src/%s/%s", owner, repo, ref, agentsFileName)

	req, err := b.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}

	body, err := doRequest(b.httpClient, req)
	if errors.Is(err, errNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", agentsFileName, err)
	}
	return string(body), nil
}

// PostReviewComments creates one inline comment per suggestion.
func (b *BitbucketAdapter) PostReviewComments(ctx context.Context, owner, repo string, prNumber int, comments []review.ReviewComment) error {
	for _, c := range comments {
		payload, err := json.Marshal(map[string]any{
			"content": map[string]string{"raw": formatCommentBody(c)},
			"inline": map[string]any{
				"path": c.FilePath,
				"to":   c.LineNumber,
			},
		})
		if err != nil {
			return fmt.Errorf("marshal comment: %w", err)
		}

		path := fmt.Sprintf("/repositories/%s/%s/pullrequests/%d/comments", owner, repo, prNumber)
		req, err := b.newRequest(ctx, http.MethodPost, path, payload)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		if _, err := doRequest(b.httpClient, req); err != nil {
			return fmt.Errorf("post comment to %s/%s#%d: %w", owner, repo, prNumber, err)
		}
	}
	return nil
}
