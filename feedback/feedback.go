// Package feedback collects reviewer reactions to posted comments:
// emoji reactions, review states, and reply comments, classified into a
// sentiment record and stored for later analysis.
package feedback

import (
	"time"

	"github.com/google/uuid"

	"github.com/revuhq/revu/review"
)

// Type is the classified sentiment of one feedback event.
type Type string

const (
	TypePositive Type = "positive"
	TypeNegative Type = "negative"
	TypeNeutral  Type = "neutral"
	TypeConfused Type = "confused"
)

// Event kinds accepted by the ingress.
const (
	EventReaction    = "reaction"
	EventReviewState = "review_state"
	EventComment     = "comment"
)

// Record is one classified feedback event.
type Record struct {
	ID         string          `json:"id"`
	Provider   review.Provider `json:"provider"`
	EventType  string          `json:"event_type"`
	RepoOwner  string          `json:"repo_owner"`
	RepoName   string          `json:"repo_name"`
	PRNumber   int             `json:"pr_number"`
	FilePath   string          `json:"file_path,omitempty"`
	LineNumber int             `json:"line_number,omitempty"`
	User       string          `json:"user"`

	Emojis       []string `json:"emojis,omitempty"`
	PrimaryEmoji string   `json:"primary_emoji,omitempty"`

	Type         Type    `json:"feedback_type"`
	Score        float64 `json:"score"`
	Confidence   float64 `json:"confidence"`
	IsActionable bool    `json:"is_actionable"`

	Timestamp time.Time `json:"timestamp"`
}

// emojiSentiment maps reaction emojis (and their GitHub API names) to a
// sentiment score in [-1, 1].
var emojiSentiment = map[string]float64{
	"+1":     1.0,
	"👍":      1.0,
	"heart":  1.0,
	"❤️":     1.0,
	"hooray": 0.8,
	"🎉":      0.8,
	"rocket": 0.8,
	"🚀":      0.8,
	"laugh":  0.5,
	"😄":      0.5,

	"-1": -1.0,
	"👎":  -1.0,

	"confused": -0.5,
	"😕":        -0.5,

	"eyes": 0.0,
	"👀":    0.0,
}

// confusedEmojis are scored negative but classified separately: the
// reviewer did not disagree, they did not understand.
var confusedEmojis = map[string]bool{
	"confused": true,
	"😕":        true,
}

// ClassifyReactions builds a record from a set of emoji reactions. The
// first emoji is primary and decides the type; confidence drops when
// the set disagrees with it.
func ClassifyReactions(emojis []string) (Type, float64, float64) {
	if len(emojis) == 0 {
		return TypeNeutral, 0, 0.5
	}

	primary := emojis[0]
	primaryScore, known := emojiSentiment[primary]
	if !known {
		return TypeNeutral, 0, 0.3
	}

	var sum float64
	agreements := 0
	for _, e := range emojis {
		score, ok := emojiSentiment[e]
		if !ok {
			continue
		}
		sum += score
		if sameSign(score, primaryScore) {
			agreements++
		}
	}
	avg := sum / float64(len(emojis))
	confidence := float64(agreements) / float64(len(emojis))

	switch {
	case confusedEmojis[primary]:
		return TypeConfused, avg, confidence
	case primaryScore > 0:
		return TypePositive, avg, confidence
	case primaryScore < 0:
		return TypeNegative, avg, confidence
	default:
		return TypeNeutral, avg, confidence
	}
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0) || (a == 0 && b == 0)
}

// reviewStates maps provider review verdicts to sentiment.
var reviewStates = map[string]struct {
	t     Type
	score float64
}{
	"approved":          {TypePositive, 1.0},
	"changes_requested": {TypeNegative, -1.0},
	"commented":         {TypeNeutral, 0},
	"dismissed":         {TypeNeutral, 0},
}

// ClassifyReviewState classifies a PR review verdict.
func ClassifyReviewState(state string) (Type, float64, float64) {
	if s, ok := reviewStates[state]; ok {
		return s.t, s.score, 1.0
	}
	return TypeNeutral, 0, 0.3
}

// NewRecord assembles a classified record with id and timestamp filled in.
func NewRecord(provider review.Provider, eventType, owner, name string, prNumber int, user string) Record {
	return Record{
		ID:        uuid.New().String(),
		Provider:  provider,
		EventType: eventType,
		RepoOwner: owner,
		RepoName:  name,
		PRNumber:  prNumber,
		User:      user,
		Timestamp: time.Now().UTC(),
	}
}

// Classify fills the sentiment fields from the record's raw signals.
// Negative and confused feedback is actionable: it points at a
// suggestion the pipeline should have filtered or phrased better.
func (r Record) Classify(reviewState string) Record {
	switch r.EventType {
	case EventReaction:
		r.Type, r.Score, r.Confidence = ClassifyReactions(r.Emojis)
		if len(r.Emojis) > 0 {
			r.PrimaryEmoji = r.Emojis[0]
		}
	case EventReviewState:
		r.Type, r.Score, r.Confidence = ClassifyReviewState(reviewState)
	default:
		r.Type, r.Score, r.Confidence = TypeNeutral, 0, 0.5
	}
	r.IsActionable = r.Type == TypeNegative || r.Type == TypeConfused
	return r
}
