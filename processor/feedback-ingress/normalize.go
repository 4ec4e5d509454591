package feedbackingress

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/revuhq/revu/feedback"
	"github.com/revuhq/revu/review"
)

// ignoredError marks payloads that carry no usable feedback signal.
type ignoredError struct {
	reason string
}

func (e *ignoredError) Error() string { return e.reason }

func ignored(format string, args ...any) error {
	return &ignoredError{reason: fmt.Sprintf(format, args...)}
}

// IsIgnored reports whether a normalization error means "no feedback
// signal" rather than "malformed".
func IsIgnored(err error) bool {
	var ie *ignoredError
	return errors.As(err, &ie)
}

func splitRepo(full string) (owner, name string, err error) {
	parts := strings.SplitN(full, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed repository path %q", full)
	}
	return parts[0], parts[1], nil
}

// Normalize parses a provider feedback webhook into a classified record.
func Normalize(provider review.Provider, eventType string, body []byte) (feedback.Record, error) {
	switch provider {
	case review.ProviderGitHub:
		return normalizeGitHub(eventType, body)
	case review.ProviderGitLab:
		return normalizeGitLab(body)
	case review.ProviderBitbucket:
		return normalizeBitbucket(eventType, body)
	default:
		return feedback.Record{}, fmt.Errorf("unknown provider: %s", provider)
	}
}

type githubFeedback struct {
	Action string `json:"action"`
	Review struct {
		State string `json:"state"`
		User  struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"review"`
	Comment struct {
		Path string `json:"path"`
		Line int    `json:"line"`
		User struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"comment"`
	Reaction struct {
		Content string `json:"content"`
		User    struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"reaction"`
	PullRequest struct {
		Number int `json:"number"`
	} `json:"pull_request"`
	Issue struct {
		Number int `json:"number"`
	} `json:"issue"`
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
}

func normalizeGitHub(eventType string, body []byte) (feedback.Record, error) {
	var p githubFeedback
	if err := json.Unmarshal(body, &p); err != nil {
		return feedback.Record{}, fmt.Errorf("parse github payload: %w", err)
	}

	prNumber := p.PullRequest.Number
	if prNumber == 0 {
		prNumber = p.Issue.Number
	}
	owner, name := p.Repository.Owner.Login, p.Repository.Name

	switch eventType {
	case "pull_request_review":
		rec := feedback.NewRecord(review.ProviderGitHub, feedback.EventReviewState,
			owner, name, prNumber, p.Review.User.Login)
		return rec.Classify(p.Review.State), nil

	case "pull_request_review_comment", "issue_comment":
		rec := feedback.NewRecord(review.ProviderGitHub, feedback.EventComment,
			owner, name, prNumber, p.Comment.User.Login)
		rec.FilePath = p.Comment.Path
		rec.LineNumber = p.Comment.Line
		return rec.Classify(""), nil

	case "reaction":
		rec := feedback.NewRecord(review.ProviderGitHub, feedback.EventReaction,
			owner, name, prNumber, p.Reaction.User.Login)
		rec.Emojis = []string{p.Reaction.Content}
		return rec.Classify(""), nil

	default:
		return feedback.Record{}, ignored("github event %q carries no feedback", eventType)
	}
}

type gitlabFeedback struct {
	ObjectKind string `json:"object_kind"`
	User       struct {
		Username string `json:"username"`
	} `json:"user"`
	Project struct {
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"project"`
	MergeRequest struct {
		IID int `json:"iid"`
	} `json:"merge_request"`
	ObjectAttributes struct {
		// Note hooks.
		Note     string `json:"note"`
		Position struct {
			NewPath string `json:"new_path"`
			NewLine int    `json:"new_line"`
		} `json:"position"`
		// Emoji (award) hooks.
		Name string `json:"name"`
		// Merge request hooks.
		Action string `json:"action"`
	} `json:"object_attributes"`
}

func normalizeGitLab(body []byte) (feedback.Record, error) {
	var p gitlabFeedback
	if err := json.Unmarshal(body, &p); err != nil {
		return feedback.Record{}, fmt.Errorf("parse gitlab payload: %w", err)
	}

	owner, name, err := splitRepo(p.Project.PathWithNamespace)
	if err != nil {
		return feedback.Record{}, fmt.Errorf("gitlab payload: %w", err)
	}

	switch p.ObjectKind {
	case "note":
		rec := feedback.NewRecord(review.ProviderGitLab, feedback.EventComment,
			owner, name, p.MergeRequest.IID, p.User.Username)
		rec.FilePath = p.ObjectAttributes.Position.NewPath
		rec.LineNumber = p.ObjectAttributes.Position.NewLine
		return rec.Classify(""), nil

	case "emoji":
		rec := feedback.NewRecord(review.ProviderGitLab, feedback.EventReaction,
			owner, name, p.MergeRequest.IID, p.User.Username)
		rec.Emojis = []string{gitlabEmojiName(p.ObjectAttributes.Name)}
		return rec.Classify(""), nil

	case "merge_request":
		switch p.ObjectAttributes.Action {
		case "approved":
			rec := feedback.NewRecord(review.ProviderGitLab, feedback.EventReviewState,
				owner, name, p.MergeRequest.IID, p.User.Username)
			return rec.Classify("approved"), nil
		case "unapproved":
			rec := feedback.NewRecord(review.ProviderGitLab, feedback.EventReviewState,
				owner, name, p.MergeRequest.IID, p.User.Username)
			return rec.Classify("changes_requested"), nil
		}
		return feedback.Record{}, ignored("gitlab merge_request action %q carries no feedback",
			p.ObjectAttributes.Action)

	default:
		return feedback.Record{}, ignored("gitlab event %q carries no feedback", p.ObjectKind)
	}
}

// gitlabEmojiName maps GitLab award names onto the shared emoji table.
func gitlabEmojiName(name string) string {
	switch name {
	case "thumbsup":
		return "+1"
	case "thumbsdown":
		return "-1"
	default:
		return name
	}
}

type bitbucketFeedback struct {
	Actor struct {
		Nickname    string `json:"nickname"`
		DisplayName string `json:"display_name"`
	} `json:"actor"`
	PullRequest struct {
		ID int `json:"id"`
	} `json:"pullrequest"`
	Comment struct {
		Inline struct {
			Path string `json:"path"`
			To   int    `json:"to"`
		} `json:"inline"`
	} `json:"comment"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

func normalizeBitbucket(eventKey string, body []byte) (feedback.Record, error) {
	var p bitbucketFeedback
	if err := json.Unmarshal(body, &p); err != nil {
		return feedback.Record{}, fmt.Errorf("parse bitbucket payload: %w", err)
	}

	owner, name, err := splitRepo(p.Repository.FullName)
	if err != nil {
		return feedback.Record{}, fmt.Errorf("bitbucket payload: %w", err)
	}

	user := p.Actor.Nickname
	if user == "" {
		user = p.Actor.DisplayName
	}

	switch eventKey {
	case "pullrequest:approved":
		rec := feedback.NewRecord(review.ProviderBitbucket, feedback.EventReviewState,
			owner, name, p.PullRequest.ID, user)
		return rec.Classify("approved"), nil

	case "pullrequest:unapproved":
		rec := feedback.NewRecord(review.ProviderBitbucket, feedback.EventReviewState,
			owner, name, p.PullRequest.ID, user)
		return rec.Classify("changes_requested"), nil

	case "pullrequest:comment_created":
		rec := feedback.NewRecord(review.ProviderBitbucket, feedback.EventComment,
			owner, name, p.PullRequest.ID, user)
		rec.FilePath = p.Comment.Inline.Path
		rec.LineNumber = p.Comment.Inline.To
		return rec.Classify(""), nil

	default:
		return feedback.Record{}, ignored("bitbucket event %q carries no feedback", eventKey)
	}
}
