package llm

import (
	"context"
	"fmt"
	"sync"
)

// Tier identifies a model capability class. Routing trades cost against
// quality: cheap models for trivial chunks, strong models for security
// review.
type Tier string

const (
	TierFast        Tier = "fast"
	TierBalanced    Tier = "balanced"
	TierHighQuality Tier = "high_quality"
)

// IsValid reports whether the tier is one of the known classes.
func (t Tier) IsValid() bool {
	switch t {
	case TierFast, TierBalanced, TierHighQuality:
		return true
	}
	return false
}

// tierParams holds the sampling defaults applied per tier.
type tierParams struct {
	maxTokens   int
	temperature float64
}

var tierDefaults = map[Tier]tierParams{
	TierFast:        {maxTokens: 2048, temperature: 0.1},
	TierBalanced:    {maxTokens: 4096, temperature: 0.1},
	TierHighQuality: {maxTokens: 8192, temperature: 0.0},
}

// Complexity buckets a chunk's estimated review difficulty.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// TaskPriority buckets the urgency of a review task.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// SelectTier picks the model tier for a review task. Security analysis
// always gets the strongest model regardless of complexity.
func SelectTier(task string, complexity Complexity, priority TaskPriority) Tier {
	if task == "security" {
		return TierHighQuality
	}

	switch {
	case complexity == ComplexityLow && priority == PriorityLow:
		return TierFast
	case complexity == ComplexityHigh || priority == PriorityHigh:
		return TierHighQuality
	default:
		return TierBalanced
	}
}

// Router dispatches requests to the endpoint configured for each tier.
type Router struct {
	client    *Client
	endpoints map[Tier]Endpoint
	mu        sync.RWMutex
}

// NewRouter creates a router over the given tier endpoints. Tiers missing
// from the map fall back to the balanced endpoint.
func NewRouter(client *Client, endpoints map[Tier]Endpoint) (*Router, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if _, ok := endpoints[TierBalanced]; !ok {
		return nil, fmt.Errorf("balanced tier endpoint is required")
	}

	eps := make(map[Tier]Endpoint, len(endpoints))
	for tier, ep := range endpoints {
		if !tier.IsValid() {
			return nil, fmt.Errorf("unknown tier: %s", tier)
		}
		if ep.Provider == "" || ep.Model == "" {
			return nil, fmt.Errorf("tier %s: provider and model are required", tier)
		}
		eps[tier] = ep
	}

	return &Router{client: client, endpoints: eps}, nil
}

// Endpoint returns the endpoint serving a tier, falling back to balanced
// when the tier has no dedicated endpoint.
func (r *Router) Endpoint(tier Tier) Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ep, ok := r.endpoints[tier]; ok {
		return ep
	}
	return r.endpoints[TierBalanced]
}

// SetEndpoint replaces the endpoint for a tier. Used by config reload.
func (r *Router) SetEndpoint(tier Tier, ep Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[tier] = ep
}

// TierRequest is a routed completion request.
type TierRequest struct {
	Tier   Tier
	System string
	Prompt string

	// Opts override the tier's sampling defaults where set.
	Opts GenOptions
}

// Route sends a request through the endpoint for its tier, applying the
// tier's sampling defaults for any options left unset.
func (r *Router) Route(ctx context.Context, req TierRequest) (string, error) {
	return r.client.Generate(ctx, r.build(req))
}

// RouteJSON routes a request and decodes the JSON response into target.
func (r *Router) RouteJSON(ctx context.Context, req TierRequest, target any) error {
	return r.client.GenerateJSON(ctx, r.build(req), target)
}

// BatchRoute runs requests concurrently and returns the successful
// results keyed by input index. Failures are logged and dropped; callers
// that need all-or-nothing semantics should route individually.
func (r *Router) BatchRoute(ctx context.Context, reqs []TierRequest) map[int]string {
	results := make(map[int]string, len(reqs))

	var wg sync.WaitGroup
	var mu sync.Mutex
	for i, req := range reqs {
		wg.Add(1)
		go func(idx int, tr TierRequest) {
			defer wg.Done()
			content, err := r.Route(ctx, tr)
			if err != nil {
				r.client.logger.Warn("Batch request failed",
					"index", idx,
					"tier", tr.Tier,
					"error", err)
				return
			}
			mu.Lock()
			results[idx] = content
			mu.Unlock()
		}(i, req)
	}
	wg.Wait()

	return results
}

func (r *Router) build(req TierRequest) Request {
	tier := req.Tier
	if !tier.IsValid() {
		tier = TierBalanced
	}

	opts := req.Opts
	defaults := tierDefaults[tier]
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaults.maxTokens
	}
	if opts.Temperature == nil {
		temp := defaults.temperature
		opts.Temperature = &temp
	}

	return Request{
		Endpoint: r.Endpoint(tier),
		System:   req.System,
		Prompt:   req.Prompt,
		Opts:     opts,
	}
}
