package feedbackingress

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the feedback-ingress component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "feedback-ingress",
		Factory:     NewComponent,
		Schema:      feedbackSchema,
		Type:        "processor",
		Protocol:    "review",
		Domain:      "revu",
		Description: "Collects reviewer feedback on posted review comments",
		Version:     "0.1.0",
	})
}
