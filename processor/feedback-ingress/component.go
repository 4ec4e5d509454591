// Package feedbackingress collects reviewer feedback on posted review
// comments: emoji reactions, review states, and replies. Events follow
// the same signature discipline as the review webhooks but feed the
// feedback sink instead of the review queue.
package feedbackingress

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

	"github.com/revuhq/revu/feedback"
	"github.com/revuhq/revu/review"
	"github.com/revuhq/revu/vcs"
)

// Component implements the feedback ingress processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger

	// sink is set at Start (the KV bucket needs a live JetStream) or
	// injected in tests.
	sinkMu sync.RWMutex
	sink   feedback.Sink

	// Lifecycle.
	running   bool
	startTime time.Time
	mu        sync.RWMutex

	// Counters.
	recordsStored  atomic.Int64
	eventsIgnored  atomic.Int64
	eventsRejected atomic.Int64
	eventsErrored  atomic.Int64

	lastActivityMu sync.RWMutex
	lastActivity   time.Time
}

// NewComponent constructs a feedback ingress Component from raw JSON config.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	defaults := DefaultConfig()
	if config.PathPrefix == "" {
		config.PathPrefix = defaults.PathPrefix
	}
	if config.MaxPayloadBytes == 0 {
		config.MaxPayloadBytes = defaults.MaxPayloadBytes
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Component{
		name:       "feedback-ingress",
		config:     config,
		natsClient: deps.NATSClient,
		logger:     deps.GetLogger(),
	}, nil
}

// RegisterHTTPHandlers mounts one endpoint per provider on the service
// mux under the configured path prefix.
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if c.config.PathPrefix != "" {
		prefix = c.config.PathPrefix
	}
	mux.HandleFunc(prefix+"github", c.handlerFor(review.ProviderGitHub))
	mux.HandleFunc(prefix+"gitlab", c.handlerFor(review.ProviderGitLab))
	mux.HandleFunc(prefix+"bitbucket", c.handlerFor(review.ProviderBitbucket))
}

func (c *Component) handlerFor(provider review.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.handleFeedback(w, r, provider)
	}
}

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

func (c *Component) handleFeedback(w http.ResponseWriter, r *http.Request, provider review.Provider) {
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
		c.logger.Warn("Feedback signature rejected", "provider", provider, "error", err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "signature verification failed"})
		return
	}

	rec, err := Normalize(provider, r.Header.Get(eventTypeHeader(provider)), body)
	if err != nil {
		if IsIgnored(err) {
			c.eventsIgnored.Add(1)
			writeJSON(w, http.StatusOK, map[string]string{
				"status": "ignored",
				"reason": err.Error(),
			})
			return
		}
		c.eventsErrored.Add(1)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := c.getSink().Append(r.Context(), rec); err != nil {
		c.eventsErrored.Add(1)
		c.logger.Error("Failed to store feedback record",
			"provider", provider,
			"repo", rec.RepoOwner+"/"+rec.RepoName,
			"error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store failed"})
		return
	}

	c.recordsStored.Add(1)
	c.logger.Info("Feedback recorded",
		"provider", provider,
		"repo", rec.RepoOwner+"/"+rec.RepoName,
		"pr_number", rec.PRNumber,
		"event_type", rec.EventType,
		"feedback_type", rec.Type,
		"actionable", rec.IsActionable)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"id":     rec.ID,
	})
}

func (c *Component) getSink() feedback.Sink {
	c.sinkMu.RLock()
	defer c.sinkMu.RUnlock()
	if c.sink == nil {
		// Not started yet; drop into memory rather than panic.
		return feedback.NewMemorySink()
	}
	return c.sink
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized feedback-ingress", "path_prefix", c.config.PathPrefix)
	return nil
}

// Start creates the KV-backed feedback sink.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("component already running")
	}
	if c.natsClient == nil {
		return fmt.Errorf("NATS client required")
	}

	js, err := c.natsClient.JetStream()
	if err != nil {
		return fmt.Errorf("get jetstream: %w", err)
	}
	sink, err := feedback.NewKVSink(ctx, js)
	if err != nil {
		return fmt.Errorf("feedback sink: %w", err)
	}
	c.sinkMu.Lock()
	c.sink = sink
	c.sinkMu.Unlock()

	c.running = true
	c.startTime = time.Now()

	c.logger.Info("feedback-ingress started", "path_prefix", c.config.PathPrefix)
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

	c.logger.Info("feedback-ingress stopped",
		"records_stored", c.recordsStored.Load(),
		"events_ignored", c.eventsIgnored.Load(),
		"events_rejected", c.eventsRejected.Load(),
		"events_errored", c.eventsErrored.Load())
	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "feedback-ingress",
		Type:        "processor",
		Description: "Collects reviewer feedback on posted review comments",
		Version:     "0.1.0",
	}
}

// InputPorts returns the configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts returns the configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	return []component.Port{}
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return feedbackSchema
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
