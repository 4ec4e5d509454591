package webhookingress

import (
	"fmt"
	"reflect"

	"github.com/c360studio/semstreams/component"

	"github.com/revuhq/revu/queue"
)

// ingressSchema defines the configuration schema.
var ingressSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Secrets holds the per-provider webhook secrets. An empty secret
// disables signature verification for that provider.
type Secrets struct {
	GitHub    string `json:"github,omitempty"`
	GitLab    string `json:"gitlab,omitempty"`
	Bitbucket string `json:"bitbucket,omitempty"`
}

// Config holds configuration for the webhook ingress component.
type Config struct {
	// PathPrefix is where the provider endpoints are mounted. Each
	// provider gets <PathPrefix><provider>, e.g. /webhooks/github.
	PathPrefix string `json:"path_prefix"`

	// Secrets are the provider webhook secrets.
	Secrets Secrets `json:"secrets"`

	// DefaultPriority is the queue priority assigned to accepted
	// events, 1 (highest) through 10 (lowest).
	DefaultPriority int `json:"default_priority"`

	// MaxPayloadBytes caps the accepted webhook body size.
	MaxPayloadBytes int64 `json:"max_payload_bytes"`

	// Ports contains input/output port definitions.
	Ports *component.PortConfig `json:"ports,omitempty"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		PathPrefix:      "/webhooks/",
		DefaultPriority: queue.PriorityDefault,
		MaxPayloadBytes: 10 * 1024 * 1024,
		Ports: &component.PortConfig{
			Outputs: []component.PortDefinition{
				{
					Name:        "review-requests",
					Type:        "jetstream",
					Subject:     queue.SubjectReviewRequest,
					StreamName:  queue.StreamName,
					Description: "Normalized PR events enqueued for review",
					Required:    true,
				},
			},
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.PathPrefix == "" {
		return fmt.Errorf("path_prefix is required")
	}
	if c.PathPrefix[len(c.PathPrefix)-1] != '/' {
		return fmt.Errorf("path_prefix must end with a slash, got %q", c.PathPrefix)
	}
	if c.DefaultPriority < queue.PriorityHighest || c.DefaultPriority > queue.PriorityLowest {
		return fmt.Errorf("default_priority must be in [%d,%d], got %d",
			queue.PriorityHighest, queue.PriorityLowest, c.DefaultPriority)
	}
	if c.MaxPayloadBytes <= 0 {
		return fmt.Errorf("max_payload_bytes must be positive")
	}
	return nil
}
