package webhookingress

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/revuhq/revu/review"
)

// ignoredError marks payloads that are valid but not reviewable: wrong
// event type, or a PR action the pipeline does not act on.
type ignoredError struct {
	reason string
}

func (e *ignoredError) Error() string { return e.reason }

func ignored(format string, args ...any) error {
	return &ignoredError{reason: fmt.Sprintf(format, args...)}
}

// IsIgnored reports whether a normalization error means "not reviewable"
// rather than "malformed".
func IsIgnored(err error) bool {
	var ie *ignoredError
	return errors.As(err, &ie)
}

// Normalize parses a provider webhook payload into the canonical PR
// event. eventType is the provider's event header (X-GitHub-Event,
// X-Gitlab-Event, X-Event-Key); it is empty for providers that encode
// the kind in the payload.
func Normalize(provider review.Provider, eventType string, body []byte) (review.PREvent, error) {
	switch provider {
	case review.ProviderGitHub:
		return normalizeGitHub(eventType, body)
	case review.ProviderGitLab:
		return normalizeGitLab(body)
	case review.ProviderBitbucket:
		return normalizeBitbucket(eventType, body)
	default:
		return review.PREvent{}, fmt.Errorf("unknown provider: %s", provider)
	}
}

type githubPayload struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Title  string `json:"title"`
		Body   string `json:"body"`
		Merged bool   `json:"merged"`
		URL    string `json:"html_url"`
		User   struct {
			Login string `json:"login"`
		} `json:"user"`
		Head struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		} `json:"head"`
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
	} `json:"pull_request"`
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
}

func normalizeGitHub(eventType string, body []byte) (review.PREvent, error) {
	if eventType != "pull_request" {
		return review.PREvent{}, ignored("github event %q is not a pull request", eventType)
	}

	var p githubPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return review.PREvent{}, fmt.Errorf("parse github payload: %w", err)
	}

	action := review.Action(p.Action)
	if p.Action == "closed" && p.PullRequest.Merged {
		action = review.ActionMerged
	}
	switch action {
	case review.ActionOpened, review.ActionSynchronize, review.ActionReopened,
		review.ActionClosed, review.ActionMerged, review.ActionEdited:
	default:
		return review.PREvent{}, ignored("github action %q not handled", p.Action)
	}

	event := review.PREvent{
		Provider:     review.ProviderGitHub,
		RepoOwner:    p.Repository.Owner.Login,
		RepoName:     p.Repository.Name,
		PRNumber:     p.Number,
		Action:       action,
		SourceBranch: p.PullRequest.Head.Ref,
		TargetBranch: p.PullRequest.Base.Ref,
		HeadSHA:      p.PullRequest.Head.SHA,
		Title:        p.PullRequest.Title,
		Body:         p.PullRequest.Body,
		Author:       p.PullRequest.User.Login,
		URL:          p.PullRequest.URL,
		RawPayload:   rawMap(body),
	}
	if err := event.Validate(); err != nil {
		return review.PREvent{}, fmt.Errorf("github payload: %w", err)
	}
	return event, nil
}

type gitlabPayload struct {
	ObjectKind string `json:"object_kind"`
	User       struct {
		Username string `json:"username"`
	} `json:"user"`
	Project struct {
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"project"`
	ObjectAttributes struct {
		IID          int    `json:"iid"`
		Action       string `json:"action"`
		SourceBranch string `json:"source_branch"`
		TargetBranch string `json:"target_branch"`
		Title        string `json:"title"`
		Description  string `json:"description"`
		URL          string `json:"url"`
		LastCommit   struct {
			ID string `json:"id"`
		} `json:"last_commit"`
	} `json:"object_attributes"`
}

// gitlabActions maps GitLab MR actions onto the canonical set.
var gitlabActions = map[string]review.Action{
	"open":   review.ActionOpened,
	"update": review.ActionSynchronize,
	"reopen": review.ActionReopened,
	"close":  review.ActionClosed,
	"merge":  review.ActionMerged,
}

func normalizeGitLab(body []byte) (review.PREvent, error) {
	var p gitlabPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return review.PREvent{}, fmt.Errorf("parse gitlab payload: %w", err)
	}

	if p.ObjectKind != "merge_request" {
		return review.PREvent{}, ignored("gitlab event %q is not a merge request", p.ObjectKind)
	}

	action, ok := gitlabActions[p.ObjectAttributes.Action]
	if !ok {
		return review.PREvent{}, ignored("gitlab action %q not handled", p.ObjectAttributes.Action)
	}

	owner, name, err := splitRepo(p.Project.PathWithNamespace)
	if err != nil {
		return review.PREvent{}, fmt.Errorf("gitlab payload: %w", err)
	}

	event := review.PREvent{
		Provider:     review.ProviderGitLab,
		RepoOwner:    owner,
		RepoName:     name,
		PRNumber:     p.ObjectAttributes.IID,
		Action:       action,
		SourceBranch: p.ObjectAttributes.SourceBranch,
		TargetBranch: p.ObjectAttributes.TargetBranch,
		HeadSHA:      p.ObjectAttributes.LastCommit.ID,
		Title:        p.ObjectAttributes.Title,
		Body:         p.ObjectAttributes.Description,
		Author:       p.User.Username,
		URL:          p.ObjectAttributes.URL,
		RawPayload:   rawMap(body),
	}
	if err := event.Validate(); err != nil {
		return review.PREvent{}, fmt.Errorf("gitlab payload: %w", err)
	}
	return event, nil
}

type bitbucketPayload struct {
	PullRequest struct {
		ID          int    `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Author      struct {
			Nickname    string `json:"nickname"`
			DisplayName string `json:"display_name"`
		} `json:"author"`
		Source struct {
			Branch struct {
				Name string `json:"name"`
			} `json:"branch"`
			Commit struct {
				Hash string `json:"hash"`
			} `json:"commit"`
		} `json:"source"`
		Destination struct {
			Branch struct {
				Name string `json:"name"`
			} `json:"branch"`
		} `json:"destination"`
		Links struct {
			HTML struct {
				Href string `json:"href"`
			} `json:"html"`
		} `json:"links"`
	} `json:"pullrequest"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// bitbucketActions maps the X-Event-Key header onto the canonical set.
var bitbucketActions = map[string]review.Action{
	"pullrequest:created":   review.ActionOpened,
	"pullrequest:updated":   review.ActionSynchronize,
	"pullrequest:fulfilled": review.ActionMerged,
	"pullrequest:rejected":  review.ActionClosed,
}

func normalizeBitbucket(eventKey string, body []byte) (review.PREvent, error) {
	action, ok := bitbucketActions[eventKey]
	if !ok {
		return review.PREvent{}, ignored("bitbucket event %q not handled", eventKey)
	}

	var p bitbucketPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return review.PREvent{}, fmt.Errorf("parse bitbucket payload: %w", err)
	}

	owner, name, err := splitRepo(p.Repository.FullName)
	if err != nil {
		return review.PREvent{}, fmt.Errorf("bitbucket payload: %w", err)
	}

	author := p.PullRequest.Author.Nickname
	if author == "" {
		author = p.PullRequest.Author.DisplayName
	}

	event := review.PREvent{
		Provider:     review.ProviderBitbucket,
		RepoOwner:    owner,
		RepoName:     name,
		PRNumber:     p.PullRequest.ID,
		Action:       action,
		SourceBranch: p.PullRequest.Source.Branch.Name,
		TargetBranch: p.PullRequest.Destination.Branch.Name,
		HeadSHA:      p.PullRequest.Source.Commit.Hash,
		Title:        p.PullRequest.Title,
		Body:         p.PullRequest.Description,
		Author:       author,
		URL:          p.PullRequest.Links.HTML.Href,
		RawPayload:   rawMap(body),
	}
	if err := event.Validate(); err != nil {
		return review.PREvent{}, fmt.Errorf("bitbucket payload: %w", err)
	}
	return event, nil
}

func splitRepo(full string) (owner, name string, err error) {
	parts := strings.SplitN(full, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed repository path %q", full)
	}
	return parts[0], parts[1], nil
}

// rawMap keeps the original payload on the event for downstream
// consumers. Unparseable bodies never reach here.
func rawMap(body []byte) map[string]any {
	var m map[string]any
	_ = json.Unmarshal(body, &m)
	return m
}
