package config

import (
	"fmt"

	"github.com/harrowgate/llmgate/types"
)

// Validate enforces the invariants of spec §4.1: unknown provider names in
// model_registry, negative limits, and empty allowed-regions with
// non-empty endpoints are all ConfigError. The unknown-provider check runs
// only when api_keys or endpoints name at least one provider.
func (c *MergedConfig) Validate() error {
	knownProviders := map[string]struct{}{}
	for p := range c.APIKeys {
		knownProviders[p] = struct{}{}
	}
	for _, ep := range c.Endpoints {
		knownProviders[ep.Provider] = struct{}{}
	}

	for alias, spec := range c.ModelRegistry {
		if len(knownProviders) > 0 {
			if _, ok := knownProviders[spec.Provider]; !ok {
				return types.NewError(types.ErrConfig,
					fmt.Sprintf("model_registry[%s]: unknown provider %q", alias, spec.Provider))
			}
		}
		if spec.Limits.RPM < 0 || spec.Limits.TPM < 0 || spec.Limits.RPD < 0 {
			return types.NewError(types.ErrConfig,
				fmt.Sprintf("model_registry[%s]: negative limits", alias))
		}
	}

	if c.Budget.DailySpendLimitUSD < 0 {
		return types.NewError(types.ErrConfig, "daily_spend_limit must not be negative")
	}

	if len(c.AllowedRegions) == 0 && len(c.Endpoints) > 0 {
		return types.NewError(types.ErrConfig,
			"data_residency.allowed_regions is empty but endpoints are configured")
	}

	return nil
}
