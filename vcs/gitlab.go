package vcs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/revuhq/revu/review"
)

// GitLabAdapter talks to the GitLab REST API v4. PR numbers map to merge
// request IIDs.
type GitLabAdapter struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewGitLabAdapter creates an adapter. Empty baseURL uses gitlab.com.
func NewGitLabAdapter(baseURL, token string) *GitLabAdapter {
	if baseURL == "" {
		baseURL = "https://gitlab.com"
	}
	return &GitLabAdapter{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: newHTTPClient(),
	}
}

func (g *GitLabAdapter) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+"/api/v4"+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if g.token != "" {
		req.Header.Set("PRIVATE-TOKEN", g.token)
	}
	return req, nil
}

// projectID is the URL-encoded "owner/repo" path GitLab uses as project
// identifier.
func projectID(owner, repo string) string {
	return url.PathEscape(owner + "/" + repo)
}

// FetchDiff assembles a unified diff from the merge request's change
// list. GitLab returns per-file diff bodies without the "diff --git"
// header line, so it is reconstructed here for the chunker.
func (g *GitLabAdapter) FetchDiff(ctx context.Context, owner, repo string, prNumber int) (string, error) {
	path := fmt.Sprintf("/projects/%s/merge_requests/%d/changes", projectID(owner, repo), prNumber)
	req, err := g.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}

	body, err := doRequest(g.httpClient, req)
	if err != nil {
		return "", fmt.Errorf("fetch changes for %s/%s!%d: %w", owner, repo, prNumber, err)
	}

	var changes struct {
		Changes []struct {
			OldPath     string `json:"old_path"`
			NewPath     string `json:"new_path"`
			Diff        string `json:"diff"`
			NewFile     bool   `json:"new_file"`
			DeletedFile bool   `json:"deleted_file"`
			RenamedFile bool   `json:"renamed_file"`
		} `json:"changes"`
	}
	if err := json.Unmarshal(body, &changes); err != nil {
		return "", fmt.Errorf("parse changes response: %w", err)
	}

	var sb strings.Builder
	for _, c := range changes.Changes {
		fmt.Fprintf(&sb, "diff --git a/%s b/%s\n", c.OldPath, c.NewPath)
		switch {
		case c.NewFile:
			sb.WriteString("new file mode 100644\n")
		case c.DeletedFile:
			sb.WriteString("deleted file mode 100644\n")
		case c.RenamedFile:
			fmt.Fprintf(&sb, "rename from %s\nrename to %s\n", c.OldPath, c.NewPath)
		}
		sb.WriteString(c.Diff)
		if !strings.HasSuffix(c.Diff, "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

// FetchAgentsFile returns AGENTS.md at ref, or empty string when absent.
func (g *GitLabAdapter) FetchAgentsFile(ctx context.Context, owner, repo, ref string) (string, error) {
	if ref == "" {
		ref = "HEAD"
	}
	path := fmt.Sprintf("/projects/%s/repository/files/%s/raw?ref=%s",
		projectID(owner, repo), url.PathEscape(agentsFileName), url.QueryEscape(ref))

	req, err := g.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}

	body, err := doRequest(g.httpClient, req)
	if errors.Is(err, errNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", agentsFileName, err)
	}
	return string(body), nil
}

// PostReviewComments creates one merge request note per comment. Notes
// carry the file and line reference in the body; positional discussions
// need diff SHAs the pipeline does not track.
func (g *GitLabAdapter) PostReviewComments(ctx context.Context, owner, repo string, prNumber int, comments []review.ReviewComment) error {
	for _, c := range comments {
		note := fmt.Sprintf("`%s:%d` %s", c.FilePath, c.LineNumber, formatCommentBody(c))

		payload, err := json.Marshal(map[string]string{"body": note})
		if err != nil {
			return fmt.Errorf("marshal note: %w", err)
		}

		path := fmt.Sprintf("/projects/%s/merge_requests/%d/notes", projectID(owner, repo), prNumber)
		req, err := g.newRequest(ctx, http.MethodPost, path, payload)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		if _, err := doRequest(g.httpClient, req); err != nil {
			return fmt.Errorf("post note to %s/%s!%d: %w", owner, repo, prNumber, err)
		}
	}
	return nil
}
