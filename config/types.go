// Package config implements the layered Configuration Resolver: it reads
// the project file, the user file, and process environment variables and
// merges them into an immutable MergedConfig (spec §4.1).
package config

import "github.com/harrowgate/llmgate/types"

// ResilienceConfig holds the retry/wait tunables shared by the project and
// user files and, once merged, by the MergedConfig.
type ResilienceConfig struct {
	MaxRetries      int     `yaml:"max_retries" env:"MAX_RETRIES"`
	BaseDelayS      float64 `yaml:"base_delay_s" env:"BASE_DELAY_S"`
	MaxDelayS       float64 `yaml:"max_delay_s" env:"MAX_DELAY_S"`
	WaitOnRateLimit bool    `yaml:"wait_on_rate_limit" env:"WAIT_ON_RATE_LIMIT"`
	RetryBudgetS    float64 `yaml:"retry_budget_s" env:"RETRY_BUDGET_S"`
	MaxWaitTimeoutS float64 `yaml:"max_wait_timeout_s" env:"MAX_WAIT_TIMEOUT_S"`
}

// BudgetConfig holds the Budget Controller's scalar tunables.
type BudgetConfig struct {
	DailySpendLimitUSD float64 `yaml:"daily_spend_limit" env:"DAILY_SPEND_LIMIT"`
	WarnRatio          float64 `yaml:"warn_ratio" env:"WARN_RATIO"`
	Strict             bool    `yaml:"strict" env:"STRICT"`
}

// TelemetryConfig controls the ambient OTel wiring (expansion, SPEC_FULL.md
// §4.8) — not part of spec.md's data model, carried regardless since
// Non-goals only exclude a policy engine, not tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{ServiceName: "llmgate", SampleRate: 1.0}
}

// NetworkConfig controls proxy bypass behavior for specific providers.
type NetworkConfig struct {
	ProxyBypassEnabled bool     `yaml:"proxy_bypass_enabled" env:"PROXY_BYPASS_ENABLED"`
	BypassProxy        []string `yaml:"bypass_proxy" env:"BYPASS_PROXY"`
}

// DataResidency constrains which endpoint regions are usable.
type DataResidency struct {
	AllowedRegions []string `yaml:"allowed_regions" env:"ALLOWED_REGIONS"`
}

// ProjectFile is the shape of <cwd>/llm.project.yaml (and each file under
// llm.project.d/*.yaml, applied after the main project file in sorted name
// order: a fragment's model_registry entries replace earlier ones of the
// same alias, and its routing policies and regions are appended — see
// loadProjectLayer).
type ProjectFile struct {
	ModelRegistry   map[string]types.ModelSpec `yaml:"model_registry"`
	RoutingPolicies []types.RoutingPolicy      `yaml:"routing_policies"`
	DataResidency   DataResidency              `yaml:"data_residency"`
	Resilience      ResilienceConfig           `yaml:"resilience"`
	Settings        map[string]any             `yaml:"settings"`
}

// UserFile is the shape of <user-config-home>/llm-sdk/config.yaml (or
// <cwd>/config.yaml).
type UserFile struct {
	APIKeys                 map[string]string          `yaml:"api_keys"`
	Endpoints               []types.Endpoint           `yaml:"endpoints"`
	DailySpendLimit         *float64                   `yaml:"daily_spend_limit"`
	PersonalModelOverrides  map[string]types.ModelSpec `yaml:"personal_model_overrides"`
	PersonalRoutingPolicies []types.RoutingPolicy      `yaml:"personal_routing_policies"`
	Network                 NetworkConfig              `yaml:"network"`
	Resilience              ResilienceConfig           `yaml:"resilience"`
	Telemetry               TelemetryConfig            `yaml:"telemetry"`
}

// MergedConfig is the immutable snapshot produced once per process (or on
// an explicit, non-concurrent reload). Nothing mutates it after Load
// returns; a hot reload replaces the pointer atomically between calls
// (spec §5).
type MergedConfig struct {
	APIKeys         map[string]string
	Endpoints       []types.Endpoint
	ModelRegistry   map[string]types.ModelSpec
	RoutingPolicies []types.RoutingPolicy
	AllowedRegions  map[string]struct{}
	Resilience      ResilienceConfig
	Budget          BudgetConfig
	Network         NetworkConfig
	Telemetry       TelemetryConfig

	// Diagnostic counters populated during merge (spec §4.1, §9 OQ2).
	EndpointsDroppedCount int
	PolicyConflictCount   int
}

// RegionAllowed reports whether region is in the data-residency allow-list.
// An empty allow-list permits every region (spec §4.1's residency filter
// only drops entries when allowed_regions is non-empty).
func (c *MergedConfig) RegionAllowed(region string) bool {
	if len(c.AllowedRegions) == 0 {
		return true
	}
	_, ok := c.AllowedRegions[region]
	return ok
}
