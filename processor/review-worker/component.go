// Package reviewworker provides the JetStream processor that drains the
// review queue: each message is a PR event, each job a full run of the
// review workflow engine, with bounded concurrency, retry, and a
// dead-letter queue for jobs that keep failing.
package reviewworker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/revuhq/revu/analyzer"
	"github.com/revuhq/revu/budget"
	revuconfig "github.com/revuhq/revu/config"
	"github.com/revuhq/revu/engine"
	"github.com/revuhq/revu/judge"
	"github.com/revuhq/revu/llm"
	"github.com/revuhq/revu/optimizer"
	"github.com/revuhq/revu/queue"
	"github.com/revuhq/revu/review"
	"github.com/revuhq/revu/vcs"
)

// reviewRunner is the workflow surface the worker drives.
type reviewRunner interface {
	Run(ctx context.Context, threadID string, event review.PREvent, cfg review.ReviewConfig) (*engine.ReviewState, error)
}

// budgetGate admits or denies a review before any model call happens.
type budgetGate interface {
	CanReviewPR(ctx context.Context, prNumber int, repo string, estimatedCost float64) bool
}

// deadLetterer publishes exhausted jobs to the DLQ.
type deadLetterer interface {
	PublishToDLQ(ctx context.Context, original []byte, info queue.DLQInfo) error
}

// Component implements the review-worker processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger

	// Collaborators assembled at construction.
	analyzers []analyzer.Analyzer
	judge     engine.SuggestionJudge
	adapters  engine.AdapterFactory

	// Collaborators assembled at Start (they need a live JetStream).
	runner   reviewRunner
	gate     budgetGate
	dlq      deadLetterer
	enforcer *budget.Enforcer

	consumer jetstream.Consumer

	// Lifecycle.
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// Counters. Updated only from this worker's own tasks.
	jobsProcessed atomic.Int64
	jobsFailed    atomic.Int64
	jobsDLQ       atomic.Int64
	jobsSkipped   atomic.Int64
	activeWorkers atomic.Int64

	lastActivityMu sync.RWMutex
	lastActivity   time.Time
}

// NewComponent constructs a review-worker Component from raw JSON config.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := deps.GetLogger()

	c := &Component{
		name:       "review-worker",
		config:     config,
		natsClient: deps.NATSClient,
		logger:     logger,
	}

	// A missing endpoint map disables model-backed validation and
	// augmentation; the pattern analyzers still run.
	var router *llm.Router
	if len(config.Endpoints) > 0 {
		endpoints := make(map[llm.Tier]llm.Endpoint, len(config.Endpoints))
		for tier, ep := range config.Endpoints {
			endpoints[llm.Tier(tier)] = ep
		}
		var err error
		router, err = llm.NewRouter(llm.NewClient(llm.WithLogger(logger)), endpoints)
		if err != nil {
			return nil, fmt.Errorf("model router: %w", err)
		}
		c.judge = judge.New(router, logger)
	}

	var augmenter *analyzer.Augmenter
	if router != nil {
		augmenter = analyzer.NewAugmenter(router, logger)
	}
	c.analyzers = []analyzer.Analyzer{
		analyzer.NewSecurityAnalyzer(augmenter),
		analyzer.NewLogicAnalyzer(),
		analyzer.NewPatternAnalyzer(),
		analyzer.NewStyleAnalyzer(),
	}

	creds := config.Credentials
	c.adapters = func(p review.Provider) (vcs.ProviderAdapter, error) {
		return vcs.ForProvider(p, creds)
	}

	return c, nil
}

func applyDefaults(config *Config) {
	defaults := DefaultConfig()
	if config.StreamName == "" {
		config.StreamName = defaults.StreamName
	}
	if config.ConsumerName == "" {
		config.ConsumerName = defaults.ConsumerName
	}
	if config.Subject == "" {
		config.Subject = defaults.Subject
	}
	if config.MaxWorkers == 0 {
		config.MaxWorkers = defaults.MaxWorkers
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.AckWait == 0 {
		config.AckWait = defaults.AckWait
	}
	if config.EstimatedCostPerReview == 0 {
		config.EstimatedCostPerReview = defaults.EstimatedCostPerReview
	}
	if config.Budget.DailyBudgetUSD == 0 && config.Budget.PerPRBudgetUSD == 0 &&
		config.Budget.MonthlyBudgetUSD == 0 && config.Budget.RepoDailyBudgets == nil {
		config.Budget = defaults.Budget
	}
	if config.Budget.WarningThreshold == 0 {
		config.Budget.WarningThreshold = defaults.Budget.WarningThreshold
	}
	if config.Ports == nil {
		config.Ports = defaults.Ports
	}
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized review-worker",
		"stream", c.config.StreamName,
		"consumer", c.config.ConsumerName,
		"max_workers", c.config.MaxWorkers)
	return nil
}

// Start builds the workflow engine against live JetStream state and
// begins consuming review jobs.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}
	if c.natsClient == nil {
		c.mu.Unlock()
		return fmt.Errorf("NATS client required")
	}

	c.running = true
	c.startTime = time.Now()

	subCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	js, err := c.natsClient.JetStream()
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("get jetstream: %w", err)
	}

	stream, err := js.Stream(subCtx, c.config.StreamName)
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("get stream %s: %w", c.config.StreamName, err)
	}

	if err := c.buildPipeline(subCtx, js); err != nil {
		c.rollbackStart(cancel)
		return err
	}

	consumerConfig := jetstream.ConsumerConfig{
		Durable:       c.config.ConsumerName,
		FilterSubject: c.config.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.config.AckWait,
		MaxDeliver:    c.config.MaxRetries,
	}

	consumer, err := stream.CreateOrUpdateConsumer(subCtx, consumerConfig)
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("create consumer: %w", err)
	}
	c.consumer = consumer

	go c.consumeLoop(subCtx)

	if c.config.BudgetConfigFile != "" {
		go c.watchBudget(subCtx)
	}

	c.logger.Info("review-worker started",
		"stream", c.config.StreamName,
		"consumer", c.config.ConsumerName,
		"subject", c.config.Subject,
		"max_workers", c.config.MaxWorkers)

	return nil
}

// buildPipeline wires the KV-backed stores, the budget gate, the DLQ
// publisher, and the workflow engine.
func (c *Component) buildPipeline(ctx context.Context, js jetstream.JetStream) error {
	checkpoints, err := engine.NewKVCheckpointStore(ctx, js)
	if err != nil {
		return fmt.Errorf("checkpoint store: %w", err)
	}

	ledger, err := budget.NewKVLedger(ctx, js)
	if err != nil {
		return fmt.Errorf("cost ledger: %w", err)
	}
	c.enforcer = budget.NewEnforcer(ledger, c.config.Budget, c.logger)
	c.gate = c.enforcer

	c.dlq = queue.NewPublisher(c.natsClient, c.logger)

	eng, err := engine.New(engine.Options{
		Adapters:    c.adapters,
		Analyzers:   c.analyzers,
		Judge:       c.judge,
		Checkpoints: checkpoints,
		Optimizer:   c.optimizerConfig(),
		Logger:      c.logger,
	})
	if err != nil {
		return fmt.Errorf("workflow engine: %w", err)
	}
	c.runner = eng

	return nil
}

// watchBudget hot-reloads budget limits from disk so operators can
// tighten or loosen spending caps without a restart.
func (c *Component) watchBudget(ctx context.Context) {
	err := revuconfig.WatchBudget(ctx, c.config.BudgetConfigFile, c.logger, c.enforcer.UpdateConfig)
	if err != nil && ctx.Err() == nil {
		c.logger.Warn("Budget watcher stopped", "file", c.config.BudgetConfigFile, "error", err)
	}
}

func (c *Component) rollbackStart(cancel context.CancelFunc) {
	c.mu.Lock()
	c.running = false
	c.cancel = nil
	c.mu.Unlock()
	cancel()
}

func (c *Component) consumeLoop(ctx context.Context) {
	// The fetch batch doubles as the flow-control window: at most
	// MaxWorkers messages are outstanding at once.
	sem := make(chan struct{}, c.config.MaxWorkers)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := c.consumer.Fetch(c.config.MaxWorkers, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Debug("Fetch timeout or error", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			sem <- struct{}{}
			c.wg.Add(1)
			go func(msg jetstream.Msg) {
				defer func() {
					<-sem
					c.wg.Done()
				}()
				c.handleMessage(ctx, msg)
			}(msg)
		}

		if msgs.Error() != nil && msgs.Error() != context.DeadlineExceeded {
			c.logger.Warn("Message fetch error", "error", msgs.Error())
		}
	}
}

func (c *Component) handleMessage(ctx context.Context, msg jetstream.Msg) {
	c.activeWorkers.Add(1)
	metricActiveWorkers.Inc()
	defer func() {
		c.activeWorkers.Add(-1)
		metricActiveWorkers.Dec()
	}()
	c.updateLastActivity()

	msgID, delivered := messageIdentity(msg)

	job, err := queue.ParseJob(msgID, msg.Data(), delivered)
	if err != nil {
		c.handleFailure(ctx, msg, msgID, delivered, err)
		return
	}

	if !c.gate.CanReviewPR(ctx, job.Event.PRNumber, job.Event.Repo(), c.config.EstimatedCostPerReview) {
		// Budget denial is a graceful terminal outcome, not a failure:
		// record the decision and drop the job without posting comments.
		c.jobsSkipped.Add(1)
		metricJobsSkippedBudget.Inc()
		c.logger.Warn("Review denied by budget gate",
			"repo", job.Event.Repo(),
			"pr_number", job.Event.PRNumber,
			"notice", review.RenderBudgetNotice(job.Event.Repo(), budget.TypeDaily))
		c.ack(msg)
		return
	}

	// Reviews can outlive AckWait; tell the broker we are on it.
	if err := msg.InProgress(); err != nil {
		c.logger.Debug("Failed to signal in-progress", "error", err)
	}

	c.logger.Info("Processing review job",
		"message_id", job.ID,
		"repo", job.Event.Repo(),
		"pr_number", job.Event.PRNumber,
		"delivery_attempt", job.DeliveryAttempt)

	start := time.Now()
	state, err := c.runner.Run(ctx, job.Event.ReviewID(), job.Event, c.config.Review)
	if err != nil {
		c.handleFailure(ctx, msg, msgID, delivered, err)
		return
	}

	c.ack(msg)
	c.jobsProcessed.Add(1)
	metricJobsProcessed.Inc()
	metricReviewDuration.Observe(time.Since(start).Seconds())

	c.logger.Info("Review completed",
		"review_id", state.Metadata.ReviewID,
		"repo", job.Event.Repo(),
		"pr_number", job.Event.PRNumber,
		"suggestions", len(state.Suggestions),
		"comments", len(state.Comments),
		"passed", state.Passed,
		"error", state.Error,
		"duration", time.Since(start))
}

// handleFailure routes a failed delivery: redeliver while attempts
// remain, dead-letter once they are exhausted. A failed DLQ publish is
// logged and the message acked anyway so the worker never locks up.
func (c *Component) handleFailure(ctx context.Context, msg jetstream.Msg, msgID string, delivered int, cause error) {
	if delivered < c.config.MaxRetries {
		c.jobsFailed.Add(1)
		metricJobsFailed.Inc()
		c.logger.Error("Review job failed, requeueing",
			"message_id", msgID,
			"delivery_attempt", delivered,
			"error", cause)
		if nakErr := msg.Nak(); nakErr != nil {
			c.logger.Warn("Failed to NAK message", "error", nakErr)
		}
		return
	}

	info := queue.DLQInfo{
		OriginalMessageID:    msgID,
		Error:                cause.Error(),
		OriginalSubscription: c.config.Subject,
		FailedAt:             time.Now().UTC().Format(time.RFC3339),
	}
	if err := c.dlq.PublishToDLQ(ctx, msg.Data(), info); err != nil {
		c.logger.Error("DLQ publish failed, dropping message",
			"message_id", msgID,
			"error", err)
	}
	c.ack(msg)
	c.jobsDLQ.Add(1)
	metricJobsDeadLettered.Inc()
	c.logger.Error("Review job dead-lettered",
		"message_id", msgID,
		"delivery_attempt", delivered,
		"error", cause)
}

func (c *Component) ack(msg jetstream.Msg) {
	if err := msg.Ack(); err != nil {
		c.logger.Warn("Failed to ACK message", "error", err)
	}
}

// messageIdentity extracts the broker message id and delivery attempt.
func messageIdentity(msg jetstream.Msg) (string, int) {
	msgID := msg.Headers().Get("Nats-Msg-Id")
	delivered := 1

	if meta, err := msg.Metadata(); err == nil {
		if msgID == "" {
			msgID = fmt.Sprintf("%s-%d", msg.Subject(), meta.Sequence.Stream)
		}
		if meta.NumDelivered > 0 {
			delivered = int(meta.NumDelivered)
		}
	} else if msgID == "" {
		msgID = msg.Subject()
	}

	return msgID, delivered
}

func (c *Component) optimizerConfig() (cfg optimizer.Config) {
	cfg = optimizer.DefaultConfig()
	if c.config.MaxFilesToReview > 0 {
		cfg.MaxFilesToReview = c.config.MaxFilesToReview
	}
	if c.config.MaxTokensPerReview > 0 {
		cfg.MaxTokensPerReview = c.config.MaxTokensPerReview
	}
	if c.config.ChunkSize > 0 {
		cfg.ChunkSize = c.config.ChunkSize
	}
	return cfg
}

// Stop gracefully stops the component, waiting for in-flight reviews.
func (c *Component) Stop(timeout time.Duration) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}

	cancel := c.cancel
	c.running = false
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		c.logger.Warn("Timed out waiting for in-flight reviews")
	}

	c.logger.Info("review-worker stopped",
		"jobs_processed", c.jobsProcessed.Load(),
		"jobs_failed", c.jobsFailed.Load(),
		"jobs_dlq", c.jobsDLQ.Load(),
		"jobs_skipped_budget", c.jobsSkipped.Load())

	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "review-worker",
		Type:        "processor",
		Description: "Runs the review workflow for queued PR events",
		Version:     "0.1.0",
	}
}

// InputPorts returns the configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}
	ports := make([]component.Port, len(c.config.Ports.Inputs))
	for i, def := range c.config.Ports.Inputs {
		ports[i] = component.Port{
			Name:        def.Name,
			Direction:   component.DirectionInput,
			Required:    def.Required,
			Description: def.Description,
			Config:      component.NATSPort{Subject: def.Subject},
		}
	}
	return ports
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
	return workerSchema
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
		ErrorCount: int(c.jobsFailed.Load() + c.jobsDLQ.Load()),
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
