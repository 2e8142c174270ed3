package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrowgate/llmgate/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoader_MergesProjectAndUserLayers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "llm.project.yaml"), `
model_registry:
  fast:
    provider: openai
    model_id: gpt-4o-mini
    unit_type: token
data_residency:
  allowed_regions: [us]
`)
	userPath := filepath.Join(dir, "config.yaml")
	writeFile(t, userPath, `
endpoints:
  - name: openai-us
    url: https://api.openai.com
    region: us
    provider: openai
api_keys:
  openai: sk-test
daily_spend_limit: 10
`)

	cfg, err := NewLoader().WithProjectDir(dir).WithUserConfigPath(userPath).Load()
	require.NoError(t, err)

	assert.Contains(t, cfg.ModelRegistry, "fast")
	assert.Equal(t, "openai", cfg.ModelRegistry["fast"].Provider)
	assert.Len(t, cfg.Endpoints, 1)
	assert.Equal(t, 10.0, cfg.Budget.DailySpendLimitUSD)
	assert.Equal(t, "sk-test", cfg.APIKeys["openai"])
}

func TestLoader_DropsEndpointsOutsideAllowedRegions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "llm.project.yaml"), `
model_registry: {}
data_residency:
  allowed_regions: [us]
`)
	userPath := filepath.Join(dir, "config.yaml")
	writeFile(t, userPath, `
endpoints:
  - name: eu-ep
    url: https://eu.example.com
    region: eu
    provider: openai
  - name: us-ep
    url: https://us.example.com
    region: us
    provider: openai
`)

	cfg, err := NewLoader().WithProjectDir(dir).WithUserConfigPath(userPath).Load()
	require.NoError(t, err)
	assert.Len(t, cfg.Endpoints, 1)
	assert.Equal(t, "us-ep", cfg.Endpoints[0].Name)
	assert.Equal(t, 1, cfg.EndpointsDroppedCount)
}

func TestLoader_PersonalModelOverrideDoesNotShadowProjectAlias(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "llm.project.yaml"), `
model_registry:
  fast:
    provider: openai
    model_id: from-project
`)
	userPath := filepath.Join(dir, "config.yaml")
	writeFile(t, userPath, `
personal_model_overrides:
  fast:
    provider: anthropic
    model_id: from-user
  extra:
    provider: anthropic
    model_id: extra-model
`)

	cfg, err := NewLoader().WithProjectDir(dir).WithUserConfigPath(userPath).Load()
	require.NoError(t, err)
	assert.Equal(t, "from-project", cfg.ModelRegistry["fast"].ModelID)
	assert.Equal(t, "extra-model", cfg.ModelRegistry["extra"].ModelID)
}

func TestLoader_RoutingPolicyConflictCounted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "llm.project.yaml"), `
model_registry: {}
routing_policies:
  - provider: openai
    region: us
`)
	userPath := filepath.Join(dir, "config.yaml")
	writeFile(t, userPath, `
personal_routing_policies:
  - provider: openai
    region: us
  - provider: openai
    region: eu
`)

	cfg, err := NewLoader().WithProjectDir(dir).WithUserConfigPath(userPath).Load()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.PolicyConflictCount)
}

func TestLoader_ExplicitResilienceOverridesFileAndDefault(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "llm.project.yaml"), `
model_registry: {}
resilience:
  max_retries: 2
`)
	userPath := filepath.Join(dir, "config.yaml")
	writeFile(t, userPath, `{}`)

	cfg, err := NewLoader().WithProjectDir(dir).WithUserConfigPath(userPath).
		WithResilience(ResilienceConfig{MaxRetries: 9}).Load()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Resilience.MaxRetries)
}

func TestLoader_EnvOverlayAppliesOnResilience(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "llm.project.yaml"), `model_registry: {}`)
	userPath := filepath.Join(dir, "config.yaml")
	writeFile(t, userPath, `{}`)

	t.Setenv("LLM_RESILIENCE_MAX_RETRIES", "7")

	cfg, err := NewLoader().WithProjectDir(dir).WithUserConfigPath(userPath).Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Resilience.MaxRetries)
}

func TestLoader_ProviderAPIKeyEnvOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "llm.project.yaml"), `model_registry: {}`)
	userPath := filepath.Join(dir, "config.yaml")
	writeFile(t, userPath, `{}`)

	t.Setenv("LLM_PROVIDER_OPENAI_API_KEY", "sk-env-key")

	cfg, err := NewLoader().WithProjectDir(dir).WithUserConfigPath(userPath).Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-env-key", cfg.APIKeys["openai"])
}

func TestValidate_RejectsUnknownProvider(t *testing.T) {
	cfg := &MergedConfig{
		APIKeys: map[string]string{"openai": "k"},
		ModelRegistry: map[string]types.ModelSpec{
			"fast": {Provider: "anthropic"},
		},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, types.ErrConfig, types.GetErrorCode(err))
}

func TestValidate_RejectsNegativeLimits(t *testing.T) {
	cfg := &MergedConfig{
		ModelRegistry: map[string]types.ModelSpec{
			"fast": {Provider: "openai", Limits: types.Limits{RPM: -1}},
		},
	}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidate_RejectsEndpointsWithoutAllowedRegions(t *testing.T) {
	cfg := &MergedConfig{
		Endpoints: []types.Endpoint{{Name: "e1", Provider: "openai", Region: "us"}},
	}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	cfg := &MergedConfig{
		APIKeys:        map[string]string{"openai": "k"},
		ModelRegistry:  map[string]types.ModelSpec{"fast": {Provider: "openai", Limits: types.Limits{RPM: 60}}},
		AllowedRegions: map[string]struct{}{"us": {}},
		Endpoints:      []types.Endpoint{{Name: "e1", Provider: "openai", Region: "us"}},
	}
	assert.NoError(t, cfg.Validate())
}
