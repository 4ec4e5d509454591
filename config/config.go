// Package config provides configuration loading and management for Revu.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/revuhq/revu/budget"
	"github.com/revuhq/revu/llm"
	"github.com/revuhq/revu/queue"
	"github.com/revuhq/revu/vcs"
)

// Config represents the complete Revu configuration.
type Config struct {
	NATS      NATSConfig              `yaml:"nats"`
	Server    ServerConfig            `yaml:"server"`
	Worker    WorkerConfig            `yaml:"worker"`
	Webhooks  WebhooksConfig          `yaml:"webhooks"`
	Budget    budget.Config           `yaml:"budget"`
	VCS       vcs.Credentials         `yaml:"vcs"`
	Models    map[string]llm.Endpoint `yaml:"models"`
	Review    ReviewConfig            `yaml:"review"`
	Optimizer OptimizerConfig         `yaml:"optimizer"`
}

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	// URL is the NATS server URL (empty = use embedded server)
	URL string `yaml:"url"`
	// Embedded indicates whether to use embedded NATS
	Embedded bool `yaml:"embedded"`
}

// ServerConfig configures the HTTP ingress.
type ServerConfig struct {
	// Port is where webhooks, health, and metrics are served.
	Port int `yaml:"port"`
}

// WorkerConfig configures the review worker.
type WorkerConfig struct {
	// MaxWorkers bounds concurrent reviews per process.
	MaxWorkers int `yaml:"max_workers"`
	// MaxRetries is the delivery count after which a job is
	// dead-lettered.
	MaxRetries int `yaml:"max_retries"`
	// AckWait is how long the broker waits before redelivering.
	AckWait time.Duration `yaml:"ack_wait"`
	// EstimatedCostPerReview is the USD estimate for the budget gate.
	EstimatedCostPerReview float64 `yaml:"estimated_cost_per_review"`
}

// WebhooksConfig configures webhook signature verification and job
// priority. An empty secret disables verification for that provider.
type WebhooksConfig struct {
	GitHubSecret    string `yaml:"github_secret"`
	GitLabSecret    string `yaml:"gitlab_secret"`
	BitbucketSecret string `yaml:"bitbucket_secret"`
	// DefaultPriority is assigned to enqueued jobs, 1 (highest) to 10.
	DefaultPriority int `yaml:"default_priority"`
}

// ReviewConfig sets the per-review defaults.
type ReviewConfig struct {
	// MaxSuggestions caps the comments posted on one PR.
	MaxSuggestions int `yaml:"max_suggestions"`
	// SeverityThreshold drops findings less severe than it
	// (error, warning, suggestion, note).
	SeverityThreshold string `yaml:"severity_threshold"`
	// EnableAgents toggles analyzers by tag; absent tags default on.
	EnableAgents map[string]bool `yaml:"enable_agents,omitempty"`
}

// OptimizerConfig bounds large-PR file selection.
type OptimizerConfig struct {
	MaxFilesToReview   int `yaml:"max_files_to_review"`
	MaxTokensPerReview int `yaml:"max_tokens_per_review"`
	ChunkSize          int `yaml:"chunk_size"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:      "",
			Embedded: true,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Worker: WorkerConfig{
			MaxWorkers:             10,
			MaxRetries:             3,
			AckWait:                5 * time.Minute,
			EstimatedCostPerReview: 0.50,
		},
		Webhooks: WebhooksConfig{
			DefaultPriority: queue.PriorityDefault,
		},
		Budget: budget.DefaultConfig(),
		Models: map[string]llm.Endpoint{
			string(llm.TierFast):        {Provider: "ollama", Model: "qwen2.5-coder:7b"},
			string(llm.TierBalanced):    {Provider: "ollama", Model: "qwen2.5-coder:32b"},
			string(llm.TierHighQuality): {Provider: "ollama", Model: "qwen2.5-coder:32b"},
		},
		Review: ReviewConfig{
			MaxSuggestions:    20,
			SeverityThreshold: "suggestion",
		},
		Optimizer: OptimizerConfig{
			MaxFilesToReview:   50,
			MaxTokensPerReview: 50000,
			ChunkSize:          5000,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0,65535], got %d", c.Server.Port)
	}
	if c.Worker.MaxWorkers <= 0 {
		return fmt.Errorf("worker.max_workers must be positive")
	}
	if c.Worker.MaxRetries <= 0 {
		return fmt.Errorf("worker.max_retries must be positive")
	}
	if p := c.Webhooks.DefaultPriority; p < queue.PriorityHighest || p > queue.PriorityLowest {
		return fmt.Errorf("webhooks.default_priority must be in [%d,%d], got %d",
			queue.PriorityHighest, queue.PriorityLowest, p)
	}
	for tier := range c.Models {
		if !llm.Tier(tier).IsValid() {
			return fmt.Errorf("models: unknown tier %q", tier)
		}
	}
	if c.Review.MaxSuggestions <= 0 {
		return fmt.Errorf("review.max_suggestions must be positive")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file over the defaults.
// Environment variables in the file are expanded (${VAR} and $VAR).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
		c.NATS.Embedded = false
	}

	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}

	if other.Worker.MaxWorkers != 0 {
		c.Worker.MaxWorkers = other.Worker.MaxWorkers
	}
	if other.Worker.MaxRetries != 0 {
		c.Worker.MaxRetries = other.Worker.MaxRetries
	}
	if other.Worker.AckWait != 0 {
		c.Worker.AckWait = other.Worker.AckWait
	}
	if other.Worker.EstimatedCostPerReview != 0 {
		c.Worker.EstimatedCostPerReview = other.Worker.EstimatedCostPerReview
	}

	if other.Webhooks.GitHubSecret != "" {
		c.Webhooks.GitHubSecret = other.Webhooks.GitHubSecret
	}
	if other.Webhooks.GitLabSecret != "" {
		c.Webhooks.GitLabSecret = other.Webhooks.GitLabSecret
	}
	if other.Webhooks.BitbucketSecret != "" {
		c.Webhooks.BitbucketSecret = other.Webhooks.BitbucketSecret
	}
	if other.Webhooks.DefaultPriority != 0 {
		c.Webhooks.DefaultPriority = other.Webhooks.DefaultPriority
	}

	if other.Budget.DailyBudgetUSD != 0 {
		c.Budget.DailyBudgetUSD = other.Budget.DailyBudgetUSD
	}
	if other.Budget.PerPRBudgetUSD != 0 {
		c.Budget.PerPRBudgetUSD = other.Budget.PerPRBudgetUSD
	}
	if other.Budget.MonthlyBudgetUSD != 0 {
		c.Budget.MonthlyBudgetUSD = other.Budget.MonthlyBudgetUSD
	}
	if other.Budget.WarningThreshold != 0 {
		c.Budget.WarningThreshold = other.Budget.WarningThreshold
	}
	if len(other.Budget.RepoDailyBudgets) > 0 {
		c.Budget.RepoDailyBudgets = other.Budget.RepoDailyBudgets
	}

	mergeCredentials(&c.VCS, &other.VCS)

	if len(other.Models) > 0 {
		if c.Models == nil {
			c.Models = make(map[string]llm.Endpoint, len(other.Models))
		}
		for tier, ep := range other.Models {
			c.Models[tier] = ep
		}
	}

	if other.Review.MaxSuggestions != 0 {
		c.Review.MaxSuggestions = other.Review.MaxSuggestions
	}
	if other.Review.SeverityThreshold != "" {
		c.Review.SeverityThreshold = other.Review.SeverityThreshold
	}
	if other.Review.EnableAgents != nil {
		c.Review.EnableAgents = other.Review.EnableAgents
	}

	if other.Optimizer.MaxFilesToReview != 0 {
		c.Optimizer.MaxFilesToReview = other.Optimizer.MaxFilesToReview
	}
	if other.Optimizer.MaxTokensPerReview != 0 {
		c.Optimizer.MaxTokensPerReview = other.Optimizer.MaxTokensPerReview
	}
	if other.Optimizer.ChunkSize != 0 {
		c.Optimizer.ChunkSize = other.Optimizer.ChunkSize
	}
}

func mergeCredentials(dst, src *vcs.Credentials) {
	if src.GitHubToken != "" {
		dst.GitHubToken = src.GitHubToken
	}
	if src.GitHubURL != "" {
		dst.GitHubURL = src.GitHubURL
	}
	if src.GitLabToken != "" {
		dst.GitLabToken = src.GitLabToken
	}
	if src.GitLabURL != "" {
		dst.GitLabURL = src.GitLabURL
	}
	if src.BitbucketUser != "" {
		dst.BitbucketUser = src.BitbucketUser
	}
	if src.BitbucketPassword != "" {
		dst.BitbucketPassword = src.BitbucketPassword
	}
	if src.BitbucketURL != "" {
		dst.BitbucketURL = src.BitbucketURL
	}
}
