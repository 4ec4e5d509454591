package reviewworker

import (
	"fmt"
	"reflect"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/revuhq/revu/budget"
	"github.com/revuhq/revu/llm"
	"github.com/revuhq/revu/queue"
	"github.com/revuhq/revu/review"
	"github.com/revuhq/revu/vcs"
)

// workerSchema defines the configuration schema.
var workerSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the review worker component.
type Config struct {
	// StreamName is the JetStream stream carrying review jobs.
	StreamName string `json:"stream_name"`

	// ConsumerName is the durable consumer name.
	ConsumerName string `json:"consumer_name"`

	// Subject is the review request subject to consume.
	Subject string `json:"subject"`

	// MaxWorkers bounds concurrent reviews.
	MaxWorkers int `json:"max_workers"`

	// MaxRetries is the delivery count after which a job is
	// dead-lettered instead of retried.
	MaxRetries int `json:"max_retries"`

	// AckWait is how long the broker waits before redelivering an
	// unacknowledged job.
	AckWait time.Duration `json:"ack_wait"`

	// EstimatedCostPerReview is the USD estimate used for the per-PR
	// budget gate before any model call happens.
	EstimatedCostPerReview float64 `json:"estimated_cost_per_review"`

	// Credentials configures VCS provider API access.
	Credentials vcs.Credentials `json:"credentials"`

	// Budget configures spend limits.
	Budget budget.Config `json:"budget"`

	// Endpoints maps model tiers to provider endpoints. Empty disables
	// model-backed validation and augmentation.
	Endpoints map[string]llm.Endpoint `json:"endpoints,omitempty"`

	// Review sets the per-review defaults applied to every job. Zero
	// fields fall back to the workflow defaults.
	Review review.ReviewConfig `json:"review,omitempty"`

	// MaxFilesToReview, MaxTokensPerReview, and ChunkSize bound the
	// diff selection. Zero uses the optimizer defaults.
	MaxFilesToReview   int `json:"max_files_to_review,omitempty"`
	MaxTokensPerReview int `json:"max_tokens_per_review,omitempty"`
	ChunkSize          int `json:"chunk_size,omitempty"`

	// BudgetConfigFile, when set, is watched for changes so budget
	// limits can be adjusted without a restart.
	BudgetConfigFile string `json:"budget_config_file,omitempty"`

	// Ports contains input/output port definitions.
	Ports *component.PortConfig `json:"ports,omitempty"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		StreamName:             queue.StreamName,
		ConsumerName:           "review-worker",
		Subject:                queue.SubjectReviewRequest,
		MaxWorkers:             10,
		MaxRetries:             3,
		AckWait:                300 * time.Second,
		EstimatedCostPerReview: 0.50,
		Budget:                 budget.DefaultConfig(),
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "review-requests",
					Type:        "jetstream",
					Subject:     queue.SubjectReviewRequest,
					StreamName:  queue.StreamName,
					Description: "Inbound review jobs",
					Required:    true,
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "dead-letters",
					Type:        "jetstream",
					Subject:     queue.SubjectDLQ,
					StreamName:  queue.StreamName,
					Description: "Jobs that exhausted their retries",
					Required:    true,
				},
			},
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.StreamName == "" {
		return fmt.Errorf("stream_name is required")
	}
	if c.ConsumerName == "" {
		return fmt.Errorf("consumer_name is required")
	}
	if c.Subject == "" {
		return fmt.Errorf("subject is required")
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("max_workers must be positive")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max_retries must be positive")
	}
	return nil
}
