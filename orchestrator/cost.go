package orchestrator

import (
	"encoding/json"
	"time"

	"github.com/harrowgate/llmgate/types"
)

const defaultMaxOutputTokens = 1024

// maxOutputTokens returns the caller's bound, or a conservative default
// when unset — the spec's cost formula (§4.8 step 4) requires a concrete
// max_output_tokens even when the caller didn't supply one.
func maxOutputTokens(cfg types.GenConfig) int {
	if cfg.MaxOutputTokens != nil && *cfg.MaxOutputTokens > 0 {
		return *cfg.MaxOutputTokens
	}
	return defaultMaxOutputTokens
}

// estimateCost implements spec §4.8 step 4's formula for token-billed
// models, and the unit-appropriate analogue for image/audio/character
// billing (Open Question left unit-appropriate by the spec; resolved here
// as one image per call for image billing, 30 seconds for audio billing,
// and the input-token formula for character billing, since a caller's
// GenConfig gives no better signal before the call returns).
func estimateCost(spec types.ModelSpec, estimatedInputTokens, maxOutTokens int) float64 {
	switch spec.UnitType {
	case types.UnitImage:
		if spec.Pricing.PerImage != nil {
			return *spec.Pricing.PerImage
		}
		return 0
	case types.UnitAudioSecond:
		if spec.Pricing.PerSecond != nil {
			return *spec.Pricing.PerSecond * 30 // conservative 30s estimate
		}
		return 0
	case types.UnitCharacter:
		inputPer1M, _ := spec.Pricing.TierFor(estimatedInputTokens)
		return inputPer1M * float64(estimatedInputTokens) / 1e6
	default:
		inputPer1M, outputPer1M := spec.Pricing.TierFor(estimatedInputTokens)
		return inputPer1M*float64(estimatedInputTokens)/1e6 + outputPer1M*float64(maxOutTokens)/1e6
	}
}

// actualCostFor implements spec §4.8 step 8 and the usage_known=false
// fallback from spec §8's testable properties.
func actualCostFor(spec types.ModelSpec, resp types.GenerationResponse, estimatedCost float64) float64 {
	if resp.CostUSD != 0 {
		return resp.CostUSD
	}
	if !resp.Usage.UsageKnown {
		return estimatedCost
	}
	switch spec.UnitType {
	case types.UnitImage:
		if spec.Pricing.PerImage != nil {
			return *spec.Pricing.PerImage * float64(maxInt(resp.Usage.Images, 1))
		}
		return estimatedCost
	case types.UnitAudioSecond:
		if spec.Pricing.PerSecond != nil {
			return *spec.Pricing.PerSecond * resp.Usage.AudioSeconds
		}
		return estimatedCost
	case types.UnitCharacter:
		inputPer1M, _ := spec.Pricing.TierFor(resp.Usage.InputTokens)
		return inputPer1M * float64(resp.Usage.TTSCharacters) / 1e6
	default:
		inputPer1M, outputPer1M := spec.Pricing.TierFor(resp.Usage.InputTokens)
		return inputPer1M*float64(resp.Usage.InputTokens)/1e6 + outputPer1M*float64(resp.Usage.OutputTokens)/1e6
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func usageJSON(u types.TokenUsage) string {
	b, err := json.Marshal(u)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func timingJSON(elapsed time.Duration) string {
	t := types.Timing{TotalMs: float64(elapsed.Milliseconds())}
	b, err := json.Marshal(t)
	if err != nil {
		return "{}"
	}
	return string(b)
}
