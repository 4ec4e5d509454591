package feedbackingress

import (
	"fmt"
	"reflect"

	"github.com/c360studio/semstreams/component"

	webhookingress "github.com/revuhq/revu/processor/webhook-ingress"
)

// feedbackSchema defines the configuration schema.
var feedbackSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the feedback ingress component.
type Config struct {
	// PathPrefix is where the provider endpoints are mounted. Each
	// provider gets <PathPrefix><provider>, e.g. /feedback/github.
	PathPrefix string `json:"path_prefix"`

	// Secrets are the provider webhook secrets; feedback hooks use the
	// same signing schemes as the review hooks.
	Secrets webhookingress.Secrets `json:"secrets"`

	// MaxPayloadBytes caps the accepted webhook body size.
	MaxPayloadBytes int64 `json:"max_payload_bytes"`

	// Ports contains input/output port definitions.
	Ports *component.PortConfig `json:"ports,omitempty"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		PathPrefix:      "/feedback/",
		MaxPayloadBytes: 10 * 1024 * 1024,
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
	if c.MaxPayloadBytes <= 0 {
		return fmt.Errorf("max_payload_bytes must be positive")
	}
	return nil
}
