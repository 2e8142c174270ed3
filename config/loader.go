package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/harrowgate/llmgate/types"
)

// Loader is a Builder-style assembler of a MergedConfig, grounded on the
// teacher's config.Loader (config/loader.go).
//
//	cfg, err := config.NewLoader().
//	    WithProjectDir(".").
//	    WithEnvPrefix("LLM").
//	    Load()
type Loader struct {
	projectDir     string
	userConfigPath string
	envPrefix      string

	// explicit overrides win over every file/env layer (spec §4.1 scalar
	// precedence: explicit API argument first).
	explicitResilience *ResilienceConfig
	explicitBudget     *BudgetConfig
}

func NewLoader() *Loader {
	return &Loader{envPrefix: "LLM"}
}

// WithProjectDir sets the directory llm.project.yaml and llm.project.d/
// are resolved relative to. Defaults to the process cwd.
func (l *Loader) WithProjectDir(dir string) *Loader {
	l.projectDir = dir
	return l
}

// WithUserConfigPath overrides user-config-home resolution with an exact
// path to config.yaml.
func (l *Loader) WithUserConfigPath(path string) *Loader {
	l.userConfigPath = path
	return l
}

func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithResilience supplies an explicit, highest-precedence resilience
// override (the "explicit API argument" tier of spec §4.1).
func (l *Loader) WithResilience(r ResilienceConfig) *Loader {
	l.explicitResilience = &r
	return l
}

func (l *Loader) WithBudget(b BudgetConfig) *Loader {
	l.explicitBudget = &b
	return l
}

// Load reads the project layer, the user layer, and the environment, and
// merges them into a MergedConfig per spec §4.1. Reloading is not
// concurrent-safe and must happen between calls (spec §4.1) — callers
// share the returned pointer read-only and replace it wholesale on reload.
func (l *Loader) Load() (*MergedConfig, error) {
	projectDir := l.projectDir
	if projectDir == "" {
		projectDir = "."
	}

	project, err := loadProjectLayer(projectDir)
	if err != nil {
		return nil, err
	}

	userPath := l.userConfigPath
	if userPath == "" {
		userPath = resolveUserConfigPath()
	}
	user, err := loadUserLayer(userPath)
	if err != nil {
		return nil, err
	}

	merged := &MergedConfig{
		APIKeys:       map[string]string{},
		ModelRegistry: map[string]types.ModelSpec{},
	}

	mergeModelRegistry(merged, project, user)
	mergeRoutingPolicies(merged, project, user)
	mergeEndpoints(merged, project, user)
	mergeAPIKeys(merged, user)

	merged.Resilience = resolveResilience(l.explicitResilience, project.Resilience, user.Resilience)
	merged.Budget = resolveBudget(l.explicitBudget, user.DailySpendLimit)
	merged.Network = user.Network
	merged.Telemetry = resolveTelemetry(user.Telemetry)

	if err := merged.Validate(); err != nil {
		return nil, err
	}

	return merged, nil
}

func loadProjectLayer(dir string) (ProjectFile, error) {
	out := ProjectFile{
		ModelRegistry: map[string]types.ModelSpec{},
	}

	mainPath := filepath.Join(dir, "llm.project.yaml")
	if err := unmarshalYAMLFile(mainPath, &out); err != nil {
		return out, fmt.Errorf("project config: %w", err)
	}

	fragDir := filepath.Join(dir, "llm.project.d")
	entries, err := os.ReadDir(fragDir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, fmt.Errorf("project config fragments: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		var frag ProjectFile
		frag.ModelRegistry = map[string]types.ModelSpec{}
		if err := unmarshalYAMLFile(filepath.Join(fragDir, name), &frag); err != nil {
			return out, fmt.Errorf("project fragment %s: %w", name, err)
		}
		for k, v := range frag.ModelRegistry {
			out.ModelRegistry[k] = v
		}
		out.RoutingPolicies = append(out.RoutingPolicies, frag.RoutingPolicies...)
		if len(frag.DataResidency.AllowedRegions) > 0 {
			out.DataResidency.AllowedRegions = append(out.DataResidency.AllowedRegions, frag.DataResidency.AllowedRegions...)
		}
	}

	return out, nil
}

func loadUserLayer(path string) (UserFile, error) {
	out := UserFile{
		APIKeys:                map[string]string{},
		PersonalModelOverrides: map[string]types.ModelSpec{},
	}
	if err := unmarshalYAMLFile(path, &out); err != nil {
		return out, fmt.Errorf("user config: %w", err)
	}

	if err := overlayFromEnv(&out.Resilience, "LLM_RESILIENCE"); err != nil {
		return out, err
	}
	if err := overlayFromEnv(&out.Network, "LLM_NETWORK"); err != nil {
		return out, err
	}
	for provider, key := range providerAPIKeyEnvOverrides() {
		out.APIKeys[provider] = key
	}

	return out, nil
}

func unmarshalYAMLFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, dst)
}

// resolveUserConfigPath mirrors spec §4.1's "<user-config-home>/llm-sdk/config.yaml
// or <cwd>/config.yaml" rule: prefer XDG_CONFIG_HOME (or $HOME/.config) if
// that file exists, else fall back to cwd.
func resolveUserConfigPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		if home, err := os.UserHomeDir(); err == nil {
			base = filepath.Join(home, ".config")
		}
	}
	if base != "" {
		candidate := filepath.Join(base, "llm-sdk", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return "config.yaml"
}

func resolveResilience(explicit *ResilienceConfig, project, user ResilienceConfig) ResilienceConfig {
	out := DefaultResilienceConfig()
	overlayResilience(&out, project)
	overlayResilience(&out, user)
	if explicit != nil {
		overlayResilience(&out, *explicit)
	}
	return out
}

// overlayResilience copies non-zero fields of src onto dst. Zero is treated
// as "not set" for these scalars — every spec-mandated default is
// strictly positive, so this does not lose a legitimate configuration.
func overlayResilience(dst *ResilienceConfig, src ResilienceConfig) {
	if src.MaxRetries != 0 {
		dst.MaxRetries = src.MaxRetries
	}
	if src.BaseDelayS != 0 {
		dst.BaseDelayS = src.BaseDelayS
	}
	if src.MaxDelayS != 0 {
		dst.MaxDelayS = src.MaxDelayS
	}
	dst.WaitOnRateLimit = dst.WaitOnRateLimit || src.WaitOnRateLimit
	if src.RetryBudgetS != 0 {
		dst.RetryBudgetS = src.RetryBudgetS
	}
	if src.MaxWaitTimeoutS != 0 {
		dst.MaxWaitTimeoutS = src.MaxWaitTimeoutS
	}
}

func resolveBudget(explicit *BudgetConfig, userLimit *float64) BudgetConfig {
	out := DefaultBudgetConfig()
	if userLimit != nil {
		out.DailySpendLimitUSD = *userLimit
	}
	if explicit != nil {
		if explicit.DailySpendLimitUSD != 0 || userLimit == nil {
			out.DailySpendLimitUSD = explicit.DailySpendLimitUSD
		}
		if explicit.WarnRatio != 0 {
			out.WarnRatio = explicit.WarnRatio
		}
		out.Strict = out.Strict || explicit.Strict
	}
	return out
}

func mergeModelRegistry(merged *MergedConfig, project ProjectFile, user UserFile) {
	registry := map[string]types.ModelSpec{}
	for k, v := range project.ModelRegistry {
		registry[k] = v
	}
	// personal_model_overrides: user-wins, but only for keys not already
	// defined by the project (spec §4.1).
	for k, v := range user.PersonalModelOverrides {
		if _, exists := registry[k]; !exists {
			registry[k] = v
		}
	}
	merged.ModelRegistry = registry
}

func mergeRoutingPolicies(merged *MergedConfig, project ProjectFile, user UserFile) {
	merged.RoutingPolicies = append(append([]types.RoutingPolicy{}, project.RoutingPolicies...), user.PersonalRoutingPolicies...)

	seen := map[string]bool{}
	for _, p := range project.RoutingPolicies {
		seen[p.Provider+"/"+p.Region] = true
	}
	for _, p := range user.PersonalRoutingPolicies {
		if seen[p.Provider+"/"+p.Region] {
			merged.PolicyConflictCount++
		}
	}
}

func mergeEndpoints(merged *MergedConfig, project ProjectFile, user UserFile) {
	allowed := map[string]struct{}{}
	for _, r := range project.DataResidency.AllowedRegions {
		allowed[r] = struct{}{}
	}
	merged.AllowedRegions = allowed

	if len(allowed) == 0 {
		merged.Endpoints = append([]types.Endpoint{}, user.Endpoints...)
		return
	}

	for _, ep := range user.Endpoints {
		if _, ok := allowed[ep.Region]; ok {
			merged.Endpoints = append(merged.Endpoints, ep)
		} else {
			merged.EndpointsDroppedCount++
		}
	}
}

func resolveTelemetry(user TelemetryConfig) TelemetryConfig {
	out := DefaultTelemetryConfig()
	if user.ServiceName != "" {
		out.ServiceName = user.ServiceName
	}
	if user.OTLPEndpoint != "" {
		out.OTLPEndpoint = user.OTLPEndpoint
	}
	if user.SampleRate != 0 {
		out.SampleRate = user.SampleRate
	}
	out.Enabled = user.Enabled
	return out
}

func mergeAPIKeys(merged *MergedConfig, user UserFile) {
	for k, v := range user.APIKeys {
		merged.APIKeys[k] = v
	}
}
