// Package webhookingress turns provider webhooks into review jobs: it
// verifies the signature, normalizes the payload to the canonical PR
// event, and enqueues a job on the review stream.
package webhookingress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"

	"github.com/revuhq/revu/queue"
	"github.com/revuhq/revu/review"
	"github.com/revuhq/revu/vcs"
)

// jobPublisher is the queue surface the ingress needs.
type jobPublisher interface {
	PublishReviewRequest(ctx context.Context, event review.PREvent, priority int) (string, error)
}

// Component implements the webhook ingress processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger

	publisher jobPublisher

	// Lifecycle.
	running   bool
	startTime time.Time
	mu        sync.RWMutex

	// Counters.
	eventsAccepted atomic.Int64
	eventsIgnored  atomic.Int64
	eventsRejected atomic.Int64
	eventsErrored  atomic.Int64

	lastActivityMu sync.RWMutex
	lastActivity   time.Time
}

// NewComponent constructs a webhook ingress Component from raw JSON config.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	defaults := DefaultConfig()
	if config.PathPrefix == "" {
		config.PathPrefix = defaults.PathPrefix
	}
	if config.DefaultPriority == 0 {
		config.DefaultPriority = defaults.DefaultPriority
	}
	if config.MaxPayloadBytes == 0 {
		config.MaxPayloadBytes = defaults.MaxPayloadBytes
	}
	if config.Ports == nil {
		config.Ports = defaults.Ports
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := deps.GetLogger()

	// The publisher initializes its JetStream context lazily, so it can
	// be created here and be ready when RegisterHTTPHandlers is called.
	return &Component{
		name:       "webhook-ingress",
		config:     config,
		natsClient: deps.NATSClient,
		logger:     logger,
		publisher:  queue.NewPublisher(deps.NATSClient, logger),
	}, nil
}

// RegisterHTTPHandlers mounts one endpoint per provider on the service
// mux. The component's configured path prefix wins over the prefix the
// service derives from the component name, so the canonical
// /webhooks/<provider> paths stay stable.
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if c.config.PathPrefix != "" {
		prefix = c.config.PathPrefix
	}
	mux.HandleFunc(prefix+"github", c.handlerFor(review.ProviderGitHub))
	mux.HandleFunc(prefix+"gitlab", c.handlerFor(review.ProviderGitLab))
	mux.HandleFunc(prefix+"bitbucket", c.handlerFor(review.ProviderBitbucket))
}

// eventTypeHeader names each provider's event-kind header.
func eventTypeHeader(provider review.Provider) string {
	switch provider {
	case review.ProviderGitHub:
		return "X-GitHub-Event"
	case review.ProviderGitLab:
		return "X-Gitlab-Event"
	case review.ProviderBitbucket:
		return "X-Event-Key"
	default:
		return ""
	}
}

func (c *Component) secretFor(provider review.Provider) string {
	switch provider {
	case review.ProviderGitHub:
		return c.config.Secrets.GitHub
	case review.ProviderGitLab:
		return c.config.Secrets.GitLab
	case review.ProviderBitbucket:
		return c.config.Secrets.Bitbucket
	default:
		return ""
	}
}

func (c *Component) handlerFor(provider review.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.handleWebhook(w, r, provider)
	}
}

func (c *Component) handleWebhook(w http.ResponseWriter, r *http.Request, provider review.Provider) {
	c.updateLastActivity()

	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, c.config.MaxPayloadBytes))
	if err != nil {
		c.eventsErrored.Add(1)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body: " + err.Error()})
		return
	}

	signature := r.Header.Get(vcs.SignatureHeader(provider))
	if err := vcs.VerifySignature(provider, c.secretFor(provider), body, signature); err != nil {
		c.eventsRejected.Add(1)
		metricWebhooksRejected.WithLabelValues(string(provider)).Inc()
		c.logger.Warn("Webhook signature rejected",
			"provider", provider,
			"error", err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "signature verification failed"})
		return
	}

	event, err := Normalize(provider, r.Header.Get(eventTypeHeader(provider)), body)
	if err != nil {
		if IsIgnored(err) {
			c.eventsIgnored.Add(1)
			metricWebhooksIgnored.WithLabelValues(string(provider)).Inc()
			writeJSON(w, http.StatusOK, map[string]string{
				"status": "ignored",
				"reason": err.Error(),
			})
			return
		}
		c.eventsErrored.Add(1)
		c.logger.Warn("Webhook payload rejected",
			"provider", provider,
			"error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if !review.ReviewableActions[event.Action] {
		c.eventsIgnored.Add(1)
		metricWebhooksIgnored.WithLabelValues(string(provider)).Inc()
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ignored",
			"reason": fmt.Sprintf("action %q does not trigger a review", event.Action),
		})
		return
	}

	msgID, err := c.publisher.PublishReviewRequest(r.Context(), event, c.config.DefaultPriority)
	if err != nil {
		c.eventsErrored.Add(1)
		c.logger.Error("Failed to enqueue review request",
			"provider", provider,
			"repo", event.Repo(),
			"pr_number", event.PRNumber,
			"error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "enqueue failed"})
		return
	}

	c.eventsAccepted.Add(1)
	metricWebhooksAccepted.WithLabelValues(string(provider)).Inc()
	c.logger.Info("Webhook accepted",
		"provider", provider,
		"repo", event.Repo(),
		"pr_number", event.PRNumber,
		"action", event.Action,
		"message_id", msgID)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":     "accepted",
		"message_id": msgID,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized webhook-ingress", "path_prefix", c.config.PathPrefix)
	return nil
}

// Start marks the component running. The HTTP server belongs to the
// service manager; this component only serves requests through it.
func (c *Component) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("component already running")
	}
	if c.natsClient == nil {
		return fmt.Errorf("NATS client required")
	}
	c.running = true
	c.startTime = time.Now()

	c.logger.Info("webhook-ingress started", "path_prefix", c.config.PathPrefix)
	return nil
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false

	c.logger.Info("webhook-ingress stopped",
		"events_accepted", c.eventsAccepted.Load(),
		"events_ignored", c.eventsIgnored.Load(),
		"events_rejected", c.eventsRejected.Load(),
		"events_errored", c.eventsErrored.Load())
	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "webhook-ingress",
		Type:        "processor",
		Description: "Normalizes provider webhooks into review jobs",
		Version:     "0.1.0",
	}
}

// InputPorts returns the configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts returns the configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}
	ports := make([]component.Port, len(c.config.Ports.Outputs))
	for i, def := range c.config.Ports.Outputs {
		ports[i] = component.Port{
			Name:        def.Name,
			Direction:   component.DirectionOutput,
			Required:    def.Required,
			Description: def.Description,
			Config:      component.NATSPort{Subject: def.Subject},
		}
	}
	return ports
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return ingressSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	running := c.running
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	if running {
		status = "running"
	}

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(c.eventsErrored.Load()),
		Uptime:     time.Since(startTime),
		Status:     status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{
		LastActivity: c.getLastActivity(),
	}
}

func (c *Component) updateLastActivity() {
	c.lastActivityMu.Lock()
	c.lastActivity = time.Now()
	c.lastActivityMu.Unlock()
}

func (c *Component) getLastActivity() time.Time {
	c.lastActivityMu.RLock()
	defer c.lastActivityMu.RUnlock()
	return c.lastActivity
}
