package webhookingress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revuhq/revu/review"
)

const githubOpened = `{
	"action": "opened",
	"number": 42,
	"pull_request": {
		"title": "Add endpoint",
		"body": "Adds the thing",
		"merged": false,
		"html_url": "https://github.com/acme/api/pull/42",
		"user": {"login": "dev"},
		"head": {"ref": "feature", "sha": "abc123"},
		"base": {"ref": "main"}
	},
	"repository": {"name": "api", "owner": {"login": "acme"}}
}`

func TestNormalizeGitHub(t *testing.T) {
	event, err := Normalize(review.ProviderGitHub, "pull_request", []byte(githubOpened))
	require.NoError(t, err)

	assert.Equal(t, review.ProviderGitHub, event.Provider)
	assert.Equal(t, "acme", event.RepoOwner)
	assert.Equal(t, "api", event.RepoName)
	assert.Equal(t, 42, event.PRNumber)
	assert.Equal(t, review.ActionOpened, event.Action)
	assert.Equal(t, "feature", event.SourceBranch)
	assert.Equal(t, "main", event.TargetBranch)
	assert.Equal(t, "abc123", event.HeadSHA)
	assert.Equal(t, "dev", event.Author)
	assert.NotNil(t, event.RawPayload)
}

func TestNormalizeGitHub_ClosedMergedBecomesMerged(t *testing.T) {
	payload := `{
		"action": "closed",
		"number": 7,
		"pull_request": {
			"merged": true,
			"user": {"login": "dev"},
			"head": {"ref": "f", "sha": "s"},
			"base": {"ref": "main"}
		},
		"repository": {"name": "api", "owner": {"login": "acme"}}
	}`
	event, err := Normalize(review.ProviderGitHub, "pull_request", []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, review.ActionMerged, event.Action)
}

func TestNormalizeGitHub_NonPREventIgnored(t *testing.T) {
	_, err := Normalize(review.ProviderGitHub, "push", []byte(`{}`))
	require.Error(t, err)
	assert.True(t, IsIgnored(err))
}

func TestNormalizeGitHub_MalformedIsNotIgnored(t *testing.T) {
	_, err := Normalize(review.ProviderGitHub, "pull_request", []byte("{broken"))
	require.Error(t, err)
	assert.False(t, IsIgnored(err), "parse failures are errors, not ignores")
}

func TestNormalizeGitLab(t *testing.T) {
	payload := `{
		"object_kind": "merge_request",
		"user": {"username": "dev"},
		"project": {"path_with_namespace": "acme/api"},
		"object_attributes": {
			"iid": 9,
			"action": "open",
			"source_branch": "feature",
			"target_branch": "main",
			"title": "MR title",
			"url": "https://gitlab.com/acme/api/-/merge_requests/9",
			"last_commit": {"id": "deadbeef"}
		}
	}`
	event, err := Normalize(review.ProviderGitLab, "Merge Request Hook", []byte(payload))
	require.NoError(t, err)

	assert.Equal(t, review.ProviderGitLab, event.Provider)
	assert.Equal(t, "acme/api", event.Repo())
	assert.Equal(t, 9, event.PRNumber)
	assert.Equal(t, review.ActionOpened, event.Action)
	assert.Equal(t, "deadbeef", event.HeadSHA)
}

func TestNormalizeGitLab_ActionMapping(t *testing.T) {
	tests := []struct {
		gitlab string
		want   review.Action
	}{
		{"open", review.ActionOpened},
		{"update", review.ActionSynchronize},
		{"reopen", review.ActionReopened},
		{"close", review.ActionClosed},
		{"merge", review.ActionMerged},
	}
	for _, tt := range tests {
		t.Run(tt.gitlab, func(t *testing.T) {
			payload := `{
				"object_kind": "merge_request",
				"user": {"username": "dev"},
				"project": {"path_with_namespace": "acme/api"},
				"object_attributes": {"iid": 1, "action": "` + tt.gitlab + `"}
			}`
			event, err := Normalize(review.ProviderGitLab, "", []byte(payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, event.Action)
		})
	}
}

func TestNormalizeGitLab_ApprovedIgnored(t *testing.T) {
	payload := `{
		"object_kind": "merge_request",
		"object_attributes": {"iid": 1, "action": "approved"}
	}`
	_, err := Normalize(review.ProviderGitLab, "", []byte(payload))
	require.Error(t, err)
	assert.True(t, IsIgnored(err))
}

func TestNormalizeBitbucket(t *testing.T) {
	payload := `{
		"pullrequest": {
			"id": 3,
			"title": "PR title",
			"author": {"nickname": "dev"},
			"source": {"branch": {"name": "feature"}, "commit": {"hash": "cafe01"}},
			"destination": {"branch": {"name": "main"}},
			"links": {"html": {"href": "https://bitbucket.org/acme/api/pull-requests/3"}}
		},
		"repository": {"full_name": "acme/api"}
	}`
	event, err := Normalize(review.ProviderBitbucket, "pullrequest:created", []byte(payload))
	require.NoError(t, err)

	assert.Equal(t, review.ProviderBitbucket, event.Provider)
	assert.Equal(t, "acme/api", event.Repo())
	assert.Equal(t, review.ActionOpened, event.Action)
	assert.Equal(t, "cafe01", event.HeadSHA)
	assert.Equal(t, "dev", event.Author)
}

func TestNormalizeBitbucket_UnknownEventKeyIgnored(t *testing.T) {
	_, err := Normalize(review.ProviderBitbucket, "repo:push", []byte(`{}`))
	require.Error(t, err)
	assert.True(t, IsIgnored(err))
}

func TestNormalize_UnknownProvider(t *testing.T) {
	_, err := Normalize(review.Provider("svn"), "", []byte(`{}`))
	require.Error(t, err)
	assert.False(t, IsIgnored(err))
}

func TestSplitRepo(t *testing.T) {
	owner, name, err := splitRepo("acme/api")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "api", name)

	// Nested GitLab groups keep everything after the first slash.
	owner, name, err = splitRepo("acme/team/api")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "team/api", name)

	_, _, err = splitRepo("no-slash")
	assert.Error(t, err)
}
