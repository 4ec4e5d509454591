package feedbackingress

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revuhq/revu/feedback"
	"github.com/revuhq/revu/review"
)

func testIngress(sink feedback.Sink) *Component {
	return &Component{
		name:   "feedback-ingress",
		config: DefaultConfig(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		sink:   sink,
	}
}

func postFeedback(t *testing.T, c *Component, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	c.RegisterHTTPHandlers("/feedback/", mux)

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

const githubReviewSubmitted = `{
	"action": "submitted",
	"review": {"state": "changes_requested", "user": {"login": "reviewer"}},
	"pull_request": {"number": 12},
	"repository": {"name": "api", "owner": {"login": "acme"}}
}`

func TestFeedback_GitHubReviewState(t *testing.T) {
	sink := feedback.NewMemorySink()
	c := testIngress(sink)

	rec := postFeedback(t, c, "/feedback/github", githubReviewSubmitted, map[string]string{
		"X-GitHub-Event": "pull_request_review",
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, feedback.TypeNegative, records[0].Type)
	assert.Equal(t, "acme", records[0].RepoOwner)
	assert.Equal(t, 12, records[0].PRNumber)
	assert.Equal(t, "reviewer", records[0].User)
	assert.True(t, records[0].IsActionable)
}

func TestFeedback_GitHubCommentCarriesLocation(t *testing.T) {
	sink := feedback.NewMemorySink()
	c := testIngress(sink)

	payload := `{
		"action": "created",
		"comment": {"path": "src/app.py", "line": 44, "user": {"login": "dev"}},
		"pull_request": {"number": 3},
		"repository": {"name": "api", "owner": {"login": "acme"}}
	}`
	rec := postFeedback(t, c, "/feedback/github", payload, map[string]string{
		"X-GitHub-Event": "pull_request_review_comment",
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "src/app.py", records[0].FilePath)
	assert.Equal(t, 44, records[0].LineNumber)
	assert.Equal(t, feedback.EventComment, records[0].EventType)
}

func TestFeedback_GitLabEmoji(t *testing.T) {
	sink := feedback.NewMemorySink()
	c := testIngress(sink)

	payload := `{
		"object_kind": "emoji",
		"user": {"username": "dev"},
		"project": {"path_with_namespace": "acme/api"},
		"merge_request": {"iid": 5},
		"object_attributes": {"name": "thumbsdown"}
	}`
	rec := postFeedback(t, c, "/feedback/gitlab", payload, nil)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, feedback.TypeNegative, records[0].Type)
	assert.Equal(t, "-1", records[0].PrimaryEmoji)
}

func TestFeedback_BitbucketApproval(t *testing.T) {
	sink := feedback.NewMemorySink()
	c := testIngress(sink)

	payload := `{
		"actor": {"nickname": "dev"},
		"pullrequest": {"id": 9},
		"repository": {"full_name": "acme/api"}
	}`
	rec := postFeedback(t, c, "/feedback/bitbucket", payload, map[string]string{
		"X-Event-Key": "pullrequest:approved",
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, feedback.TypePositive, records[0].Type)
}

func TestFeedback_UnknownEventIgnored(t *testing.T) {
	sink := feedback.NewMemorySink()
	c := testIngress(sink)

	rec := postFeedback(t, c, "/feedback/github", `{}`, map[string]string{
		"X-GitHub-Event": "push",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ignored")
	assert.Empty(t, sink.Records())
}

func TestFeedback_BadSignatureUnauthorized(t *testing.T) {
	sink := feedback.NewMemorySink()
	c := testIngress(sink)
	c.config.Secrets.GitHub = "secret"

	rec := postFeedback(t, c, "/feedback/github", githubReviewSubmitted, map[string]string{
		"X-GitHub-Event":      "pull_request_review",
		"X-Hub-Signature-256": "sha256=" + strings.Repeat("0", 64),
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, sink.Records())
}

func TestFeedback_SinkFailureInternalError(t *testing.T) {
	sink := feedback.NewMemorySink()
	sink.FailWith = assert.AnError
	c := testIngress(sink)

	rec := postFeedback(t, c, "/feedback/github", githubReviewSubmitted, map[string]string{
		"X-GitHub-Event": "pull_request_review",
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNormalize_MalformedPayload(t *testing.T) {
	_, err := Normalize(review.ProviderGitHub, "pull_request_review", []byte("{broken"))
	require.Error(t, err)
	assert.False(t, IsIgnored(err))
}
