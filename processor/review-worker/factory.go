package reviewworker

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the review-worker component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "review-worker",
		Factory:     NewComponent,
		Schema:      workerSchema,
		Type:        "processor",
		Protocol:    "review",
		Domain:      "revu",
		Description: "Runs the review workflow for queued PR events",
		Version:     "0.1.0",
	})
}
