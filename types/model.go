package types

// UnitType is the billing unit a ModelSpec's pricing is denominated in.
type UnitType string

const (
	UnitToken       UnitType = "token"
	UnitImage       UnitType = "image"
	UnitAudioSecond UnitType = "audio_second"
	UnitCharacter   UnitType = "character"
)

// Capability is a feature flag a model advertises.
type Capability string

const (
	CapText     Capability = "text"
	CapVision   Capability = "vision"
	CapTTS      Capability = "tts"
	CapASR      Capability = "asr"
	CapImageGen Capability = "image_gen"
	CapVideoGen Capability = "video_gen"
	CapThinking Capability = "thinking"
)

// PriceTier is one step of a context-length-dependent pricing ladder.
// Resolved via ModelSpec.Pricing.TierFor — see SPEC_FULL.md §3 (Open
// Question 1: tier selection is config-data-driven, not an adapter
// concern).
type PriceTier struct {
	MinTokens    int     `json:"min_tokens"`
	InputPer1M   float64 `json:"input_per_1m"`
	OutputPer1M  float64 `json:"output_per_1m"`
}

// Pricing describes how to price a call against a ModelSpec.
type Pricing struct {
	InputPer1M  float64     `json:"input_per_1m"`
	OutputPer1M float64     `json:"output_per_1m"`
	PerImage    *float64    `json:"per_image,omitempty"`
	PerSecond   *float64    `json:"per_second,omitempty"`
	Tiers       []PriceTier `json:"tiers,omitempty"`
}

// TierFor picks the pricing tier applicable to an estimated input token
// count: the highest tier whose MinTokens does not exceed it. Tiers need
// not be pre-sorted. Falls back to the flat InputPer1M/OutputPer1M when no
// tiers are configured.
func (p Pricing) TierFor(estimatedInputTokens int) (inputPer1M, outputPer1M float64) {
	if len(p.Tiers) == 0 {
		return p.InputPer1M, p.OutputPer1M
	}
	best := PriceTier{MinTokens: -1, InputPer1M: p.InputPer1M, OutputPer1M: p.OutputPer1M}
	for _, t := range p.Tiers {
		if t.MinTokens <= estimatedInputTokens && t.MinTokens > best.MinTokens {
			best = t
		}
	}
	return best.InputPer1M, best.OutputPer1M
}

// Limits are the per-(provider, model) rate-limit ceilings enforced by the
// rate limiter. A zero TPM or RPD means "not limited"; a zero RPM is a
// ceiling of zero requests, so the limiter always reports Exhausted.
type Limits struct {
	RPM int `json:"rpm"`
	TPM int `json:"tpm"`
	RPD int `json:"rpd"`
}

// ModelSpec is the concrete record a model alias resolves to.
type ModelSpec struct {
	Alias        string                 `json:"alias"`
	Provider     string                 `json:"provider"`
	ModelID      string                 `json:"model_id" yaml:"model_id"`
	UnitType     UnitType               `json:"unit_type" yaml:"unit_type"`
	Pricing      Pricing                `json:"pricing"`
	Limits       Limits                 `json:"limits"`
	Capabilities map[Capability]bool    `json:"capabilities,omitempty"`
	ExtraConfig  map[string]any         `json:"extra_config,omitempty" yaml:"extra_config,omitempty"`
}

// Endpoint is a network location with a region tag used for data-residency
// filtering and routing selection.
type Endpoint struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Region   string `json:"region"`
	Provider string `json:"provider"`
}

// RoutingPolicy names a (provider, region) pair a caller's resolved
// endpoint selection must prefer, in list order.
type RoutingPolicy struct {
	Provider string `json:"provider"`
	Region   string `json:"region"`
}

// ResolvedCall is what the Model Registry hands back for a resolved alias.
type ResolvedCall struct {
	Spec     ModelSpec
	Endpoint Endpoint
}
