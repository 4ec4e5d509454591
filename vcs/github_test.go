package vcs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revuhq/revu/review"
)

func TestGitHubFetchDiff(t *testing.T) {
	const diff = "diff --git a/f.py b/f.py\n@@ -1,1 +1,1 @@\n+x = 1\n"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/api/pulls/42", r.URL.Path)
		assert.Equal(t, "application/vnd.github.v3.diff", r.Header.Get("Accept"))
		assert.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))
		w.Write([]byte(diff))
	}))
	defer server.Close()

	g := NewGitHubAdapter(server.URL, "tkn")
	got, err := g.FetchDiff(context.Background(), "acme", "api", 42)
	require.NoError(t, err)
	assert.Equal(t, diff, got)
}

func TestGitHubFetchAgentsFile(t *testing.T) {
	content := "## Rule: no-fixme\nPattern: `FIXME`\nMessage: resolve it\n"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/api/contents/AGENTS.md", r.URL.Path)
		assert.Equal(t, "abc123", r.URL.Query().Get("ref"))
		json.NewEncoder(w).Encode(map[string]string{
			"content":  base64.StdEncoding.EncodeToString([]byte(content)),
			"encoding": "base64",
		})
	}))
	defer server.Close()

	g := NewGitHubAdapter(server.URL, "")
	got, err := g.FetchAgentsFile(context.Background(), "acme", "api", "abc123")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestGitHubFetchAgentsFile_Missing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	g := NewGitHubAdapter(server.URL, "")
	got, err := g.FetchAgentsFile(context.Background(), "acme", "api", "")
	require.NoError(t, err, "missing AGENTS.md is not an error")
	assert.Equal(t, "", got)
}

func TestGitHubPostReviewComments(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/acme/api/pulls/42/reviews", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	g := NewGitHubAdapter(server.URL, "tkn")
	err := g.PostReviewComments(context.Background(), "acme", "api", 42, []review.ReviewComment{
		{FilePath: "src/app.py", LineNumber: 11, Message: "eval is dangerous", Severity: review.SeverityError, Suggestion: "result = ast.literal_eval(user_input)"},
	})
	require.NoError(t, err)

	assert.Equal(t, "COMMENT", gotBody["event"])
	comments := gotBody["comments"].([]any)
	require.Len(t, comments, 1)
	c := comments[0].(map[string]any)
	assert.Equal(t, "src/app.py", c["path"])
	assert.Equal(t, float64(11), c["line"])
	assert.Equal(t, "RIGHT", c["side"])
	assert.Contains(t, c["body"], "**[ERROR]**")
	assert.Contains(t, c["body"], "```suggestion")
}

func TestGitHubPostReviewComments_Empty(t *testing.T) {
	g := NewGitHubAdapter("http://unreachable.invalid", "")
	assert.NoError(t, g.PostReviewComments(context.Background(), "a", "b", 1, nil),
		"no comments means no API call")
}

func TestGitLabFetchDiff_ReconstructsHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/projects/acme%2Fapi/merge_requests/7/changes", r.URL.EscapedPath())
		assert.Equal(t, "gl-token", r.Header.Get("PRIVATE-TOKEN"))
		json.NewEncoder(w).Encode(map[string]any{
			"changes": []map[string]any{
				{
					"old_path": "src/app.py",
					"new_path": "src/app.py",
					"diff":     "@@ -1,1 +1,1 @@\n+x = 1\n",
				},
				{
					"old_path": "new.py",
					"new_path": "new.py",
					"new_file": true,
					"diff":     "@@ -0,0 +1,1 @@\n+y = 2\n",
				},
			},
		})
	}))
	defer server.Close()

	g := NewGitLabAdapter(server.URL, "gl-token")
	got, err := g.FetchDiff(context.Background(), "acme", "api", 7)
	require.NoError(t, err)

	assert.Contains(t, got, "diff --git a/src/app.py b/src/app.py")
	assert.Contains(t, got, "diff --git a/new.py b/new.py")
	assert.Contains(t, got, "new file mode 100644")
	assert.Contains(t, got, "+x = 1")
}

func TestForProvider(t *testing.T) {
	creds := Credentials{}

	a, err := ForProvider(review.ProviderGitHub, creds)
	require.NoError(t, err)
	assert.IsType(t, &GitHubAdapter{}, a)

	a, err = ForProvider(review.ProviderGitLab, creds)
	require.NoError(t, err)
	assert.IsType(t, &GitLabAdapter{}, a)

	a, err = ForProvider(review.ProviderBitbucket, creds)
	require.NoError(t, err)
	assert.IsType(t, &BitbucketAdapter{}, a)

	_, err = ForProvider(review.Provider("svn"), creds)
	assert.Error(t, err)
}
