// Package queue defines the review job envelope and the JetStream
// publisher feeding the worker pool.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/revuhq/revu/review"
)

// Stream and subject layout for review work.
const (
	StreamName = "REVIEWS"

	// SubjectReviewRequest carries inbound review jobs.
	SubjectReviewRequest = "reviews.request"

	// SubjectDLQ receives messages that exhausted their retries.
	SubjectDLQ = "reviews.dlq"
)

// Priority bounds: 1 is most urgent, 10 least.
const (
	PriorityHighest = 1
	PriorityDefault = 5
	PriorityLowest  = 10
)

// Envelope is the wire format of a review request.
type Envelope struct {
	PREvent     review.PREvent `json:"pr_event"`
	Priority    int            `json:"priority"`
	PublishedAt string         `json:"published_at,omitempty"`
}

// Job is one unit of review work as seen by the worker.
type Job struct {
	// ID is the broker's message id.
	ID string

	// Event is the canonical PR event.
	Event review.PREvent

	// Priority is 1 (highest) through 10 (lowest).
	Priority int

	// ReceivedAt is when the worker picked the message up.
	ReceivedAt time.Time

	// DeliveryAttempt counts broker deliveries, starting at 1.
	DeliveryAttempt int
}

// ParseJob decodes a queue message into a Job.
func ParseJob(msgID string, data []byte, deliveryAttempt int) (Job, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Job{}, fmt.Errorf("decode review request: %w", err)
	}
	if err := env.PREvent.Validate(); err != nil {
		return Job{}, fmt.Errorf("invalid pr_event: %w", err)
	}

	return Job{
		ID:              msgID,
		Event:           env.PREvent,
		Priority:        clampPriority(env.Priority),
		ReceivedAt:      time.Now().UTC(),
		DeliveryAttempt: deliveryAttempt,
	}, nil
}

func clampPriority(p int) int {
	if p < PriorityHighest {
		return PriorityDefault
	}
	if p > PriorityLowest {
		return PriorityLowest
	}
	return p
}

// DLQInfo describes why a message was dead-lettered.
type DLQInfo struct {
	OriginalMessageID    string `json:"original_message_id"`
	Error                string `json:"error"`
	OriginalSubscription string `json:"original_subscription"`
	FailedAt             string `json:"failed_at"`
}

// BuildDLQPayload returns the original message JSON augmented with a
// _dlq_info object. Unparseable originals are wrapped so the raw bytes
// still reach the DLQ.
func BuildDLQPayload(original []byte, info DLQInfo) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(original, &doc); err != nil {
		doc = map[string]json.RawMessage{
			"raw": mustMarshal(string(original)),
		}
	}

	infoRaw, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("marshal dlq info: %w", err)
	}
	doc["_dlq_info"] = infoRaw

	return json.Marshal(doc)
}

func mustMarshal(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
