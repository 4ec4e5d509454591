package webhookingress

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the webhook-ingress component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "webhook-ingress",
		Factory:     NewComponent,
		Schema:      ingressSchema,
		Type:        "processor",
		Protocol:    "review",
		Domain:      "revu",
		Description: "Normalizes provider webhooks into review jobs",
		Version:     "0.1.0",
	})
}
