// Package registry implements the Model Registry & Endpoint Selector
// (spec §4.2): it resolves a caller-supplied model alias against the
// MergedConfig's model_registry and routing_policies into a concrete
// ResolvedCall, skipping endpoints whose circuit hint is open.
package registry

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harrowgate/llmgate/config"
	"github.com/harrowgate/llmgate/internal/circuitbreaker"
	"github.com/harrowgate/llmgate/types"
)

// Registry resolves aliases against a MergedConfig snapshot.
type Registry struct {
	cfg     *config.MergedConfig
	circuit *circuitbreaker.Registry
	logger  *zap.Logger
}

func New(cfg *config.MergedConfig, circuit *circuitbreaker.Registry, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{cfg: cfg, circuit: circuit, logger: logger}
}

// Resolve implements spec §4.2's selection rule: the first endpoint in the
// filtered, ordered routing_policies list whose provider matches the spec
// and whose region is allowed wins; list order is the tie-break. Endpoints
// with an open circuit hint are skipped; if every candidate is skipped,
// the oldest-opened one is tried as a probe.
func (r *Registry) Resolve(alias string) (types.ResolvedCall, error) {
	spec, ok := r.cfg.ModelRegistry[alias]
	if !ok {
		return types.ResolvedCall{}, types.NewError(types.ErrConfig, fmt.Sprintf("unknown model alias %q", alias))
	}

	candidates := r.candidateEndpoints(spec)
	if len(candidates) == 0 {
		return types.ResolvedCall{}, types.NewError(types.ErrNoEndpoint, fmt.Sprintf("no endpoint for alias %q", alias))
	}

	var (
		chosen       *types.Endpoint
		oldestProbe  *types.Endpoint
		oldestOpened time.Time
	)

	for i := range candidates {
		ep := &candidates[i]
		if r.circuit == nil || !r.circuit.Skip(ep.Name) {
			chosen = ep
			break
		}
		opened := r.circuit.OpenedAt(ep.Name)
		if oldestProbe == nil || opened.Before(oldestOpened) {
			oldestProbe = ep
			oldestOpened = opened
		}
	}

	if chosen == nil {
		if oldestProbe == nil {
			return types.ResolvedCall{}, types.NewError(types.ErrNoEndpoint, fmt.Sprintf("all endpoints skipped for alias %q", alias))
		}
		r.logger.Info("probing oldest-opened endpoint", zap.String("endpoint", oldestProbe.Name))
		chosen = oldestProbe
	}

	return types.ResolvedCall{Spec: spec, Endpoint: *chosen}, nil
}

// candidateEndpoints returns the endpoints matching spec.Provider and an
// allowed region, ordered by routing_policies precedence then merged
// config endpoint list order.
func (r *Registry) candidateEndpoints(spec types.ModelSpec) []types.Endpoint {
	byProvider := map[string][]types.Endpoint{}
	for _, ep := range r.cfg.Endpoints {
		if ep.Provider != spec.Provider || !r.cfg.RegionAllowed(ep.Region) {
			continue
		}
		byProvider[ep.Provider] = append(byProvider[ep.Provider], ep)
	}

	var ordered []types.Endpoint
	seen := map[string]bool{}

	for _, policy := range r.cfg.RoutingPolicies {
		if policy.Provider != spec.Provider {
			continue
		}
		for _, ep := range byProvider[spec.Provider] {
			if ep.Region != policy.Region {
				continue
			}
			key := ep.Name
			if !seen[key] {
				seen[key] = true
				ordered = append(ordered, ep)
			}
		}
	}

	// Any matching endpoint not named by a routing policy is still a valid
	// candidate (spec §4.2 only requires provider+region match, routing
	// policies provide ordering preference, not an exclusivity filter).
	for _, ep := range byProvider[spec.Provider] {
		if !seen[ep.Name] {
			seen[ep.Name] = true
			ordered = append(ordered, ep)
		}
	}

	return ordered
}
