package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/c360studio/semstreams/natsclient"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/revuhq/revu/review"
)

// Publisher enqueues review requests onto the REVIEWS stream.
type Publisher struct {
	natsClient *natsclient.Client
	logger     *slog.Logger

	mu sync.Mutex
	js jetstream.JetStream
}

// NewPublisher creates a publisher. The JetStream context is initialized
// lazily on first publish so construction never blocks on the broker.
func NewPublisher(nc *natsclient.Client, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{natsClient: nc, logger: logger}
}

func (p *Publisher) jetStream() (jetstream.JetStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.js != nil {
		return p.js, nil
	}
	js, err := p.natsClient.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream init: %w", err)
	}
	p.js = js
	return js, nil
}

// PublishReviewRequest enqueues a PR event and returns the message id.
func (p *Publisher) PublishReviewRequest(ctx context.Context, event review.PREvent, priority int) (string, error) {
	js, err := p.jetStream()
	if err != nil {
		return "", err
	}

	env := Envelope{
		PREvent:     event,
		Priority:    clampPriority(priority),
		PublishedAt: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}

	msg := nats.NewMsg(SubjectReviewRequest)
	msg.Data = data
	msgID := uuid.New().String()
	msg.Header.Set("Nats-Msg-Id", msgID)
	msg.Header.Set("priority", strconv.Itoa(env.Priority))
	msg.Header.Set("provider", string(event.Provider))
	msg.Header.Set("repo", event.Repo())
	msg.Header.Set("pr_number", strconv.Itoa(event.PRNumber))

	if _, err := js.PublishMsg(ctx, msg); err != nil {
		return "", fmt.Errorf("publish review request: %w", err)
	}

	p.logger.Info("Enqueued review request",
		"message_id", msgID,
		"provider", event.Provider,
		"repo", event.Repo(),
		"pr_number", event.PRNumber,
		"priority", env.Priority)

	return msgID, nil
}

// PublishToDLQ dead-letters a message with its failure context.
func (p *Publisher) PublishToDLQ(ctx context.Context, original []byte, info DLQInfo) error {
	js, err := p.jetStream()
	if err != nil {
		return err
	}

	if info.FailedAt == "" {
		info.FailedAt = time.Now().UTC().Format(time.RFC3339)
	}

	payload, err := BuildDLQPayload(original, info)
	if err != nil {
		return err
	}

	if _, err := js.Publish(ctx, SubjectDLQ, payload); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}

	p.logger.Warn("Message dead-lettered",
		"original_message_id", info.OriginalMessageID,
		"error", info.Error)
	return nil
}
